package room

// 송신 메시지 타입
const (
	MsgConnection           = "connection"
	MsgState                = "state"
	MsgChat                 = "chat"
	MsgChatHistory          = "chatHistory"
	MsgTicketsUpdate        = "ticketsUpdate"
	MsgWinnerSelectionStart = "winnerSelectionStart"
	MsgWinnerSelected       = "winnerSelected"
	MsgComments             = "comments"
	MsgUserVotes            = "userVotes"
	MsgRejected             = "rejected"
)

// Outbound 클라이언트로 보내는 메시지 (닫힌 타입 집합)
type Outbound interface {
	MessageType() string
}

// ConnectionMessage 연결 직후 확정된 ID 통지 (direct)
type ConnectionMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// StateMessage 전체 참가자 목록 (broadcast)
type StateMessage struct {
	Type  string      `json:"type"`
	State RosterState `json:"state"`
}

// RosterState 참가자 목록 본문
type RosterState struct {
	Connections []Participant `json:"connections"`
}

// ChatBroadcast 새 채팅 메시지 (broadcast)
type ChatBroadcast struct {
	Type    string      `json:"type"`
	Message ChatMessage `json:"message"`
}

// ChatHistoryMessage 채팅 기록 (direct, 설정 시)
type ChatHistoryMessage struct {
	Type     string        `json:"type"`
	Messages []ChatMessage `json:"messages"`
}

// TicketsUpdateMessage 티켓 목록 교체 (broadcast)
type TicketsUpdateMessage struct {
	Type    string   `json:"type"`
	EventID string   `json:"eventId"`
	Tickets []Ticket `json:"tickets"`
}

// WinnerSelectionStartMessage 추첨 시작 (broadcast)
type WinnerSelectionStartMessage struct {
	Type    string   `json:"type"`
	EventID string   `json:"eventId"`
	Tickets []Ticket `json:"tickets"`
}

// WinnerSelectedMessage 당첨자 발표 (broadcast)
type WinnerSelectedMessage struct {
	Type    string `json:"type"`
	EventID string `json:"eventId"`
	Winner  Winner `json:"winner"`
}

// CommentsMessage 댓글 목록 (direct/broadcast)
type CommentsMessage struct {
	Type     string    `json:"type"`
	Comments []Comment `json:"comments"`
}

// UserVotesMessage 참가자의 투표 기록 (direct)
type UserVotesMessage struct {
	Type  string   `json:"type"`
	Votes []string `json:"votes"`
}

// RejectedMessage 거절된 명령 통지 (direct, 설정 시)
type RejectedMessage struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Reason  string `json:"reason"`
}

func (ConnectionMessage) MessageType() string           { return MsgConnection }
func (StateMessage) MessageType() string                { return MsgState }
func (ChatBroadcast) MessageType() string               { return MsgChat }
func (ChatHistoryMessage) MessageType() string          { return MsgChatHistory }
func (TicketsUpdateMessage) MessageType() string        { return MsgTicketsUpdate }
func (WinnerSelectionStartMessage) MessageType() string { return MsgWinnerSelectionStart }
func (WinnerSelectedMessage) MessageType() string       { return MsgWinnerSelected }
func (CommentsMessage) MessageType() string             { return MsgComments }
func (UserVotesMessage) MessageType() string            { return MsgUserVotes }
func (RejectedMessage) MessageType() string             { return MsgRejected }

func newStateMessage(roster []Participant) StateMessage {
	return StateMessage{Type: MsgState, State: RosterState{Connections: roster}}
}

func newCommentsMessage(comments []Comment) CommentsMessage {
	return CommentsMessage{Type: MsgComments, Comments: comments}
}

func newUserVotesMessage(votes []string) UserVotesMessage {
	return UserVotesMessage{Type: MsgUserVotes, Votes: votes}
}
