package room

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// IdentityNotFound 영속 ID가 필요한 룸에서 메타데이터가 없을 때 쓰는 ID
const IdentityNotFound = "ID NOT FOUND"

// Participant 룸 참가자의 공개 상태
type Participant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Score   int    `json:"score"`
	Contact string `json:"contact"`
	Online  bool   `json:"online"`

	conns map[string]struct{} // 이 참가자에 연결된 전송 계층 연결 ID
}

// ChatMessage 채팅 메시지
type ChatMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Ticket 이벤트 티켓 (외부 시스템이 발급, 내용은 그대로 전달)
type Ticket struct {
	UserID       string `json:"userId"`
	TicketNumber string `json:"ticketNumber"`
	Name         string `json:"name"`
}

// Winner 이벤트 당첨자 (외부 시스템이 선정, 내용은 그대로 전달)
type Winner struct {
	UserID       string `json:"userId"`
	TicketNumber string `json:"ticketNumber"`
	Name         string `json:"name"`
}

// Comment 투표 대상 댓글
type Comment struct {
	ID     string   `json:"id" validate:"required"`
	Text   string   `json:"text"`
	Author string   `json:"author"`
	Avatar string   `json:"avatar,omitempty"`
	Score  int      `json:"score" validate:"gte=0"`
	Tags   []string `json:"tags,omitempty"`
}

// State 룸이 소유하는 인메모리 상태. 룸 고루틴만 접근한다.
type State struct {
	participants map[string]*Participant
	order        []string
	chat         []ChatMessage
	tickets      map[string][]Ticket
	winners      map[string]Winner
	comments     []Comment
	commentIdx   map[string]int
	votes        map[string]map[string]struct{}
}

// NewState 빈 상태 생성
func NewState() *State {
	return &State{
		participants: make(map[string]*Participant),
		tickets:      make(map[string][]Ticket),
		winners:      make(map[string]Winner),
		commentIdx:   make(map[string]int),
		votes:        make(map[string]map[string]struct{}),
	}
}

// Join 참가자 레코드를 찾거나 만들고 연결을 붙인다
func (s *State) Join(identity, connID string) *Participant {
	p, ok := s.participants[identity]
	if !ok {
		p = &Participant{
			ID:    identity,
			conns: make(map[string]struct{}),
		}
		s.participants[identity] = p
		s.order = append(s.order, identity)
	}
	p.conns[connID] = struct{}{}
	p.Online = true
	return p
}

// Leave 연결을 떼고 정책에 따라 레코드를 정리한다
func (s *State) Leave(identity, connID string, policy DisconnectPolicy) {
	p, ok := s.participants[identity]
	if !ok {
		return
	}

	delete(p.conns, connID)
	p.Online = len(p.conns) > 0
	if p.Online {
		return
	}

	if policy == RemoveOnDisconnect {
		s.Remove(identity)
	}
}

// Remove 참가자 레코드와 투표 기록을 삭제한다
func (s *State) Remove(identity string) bool {
	if _, ok := s.participants[identity]; !ok {
		return false
	}

	delete(s.participants, identity)
	delete(s.votes, identity)
	for i, id := range s.order {
		if id == identity {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Participant 참가자 조회
func (s *State) Participant(identity string) (*Participant, bool) {
	p, ok := s.participants[identity]
	return p, ok
}

// Roster 입장 순서대로 참가자 목록 복사본 반환
func (s *State) Roster() []Participant {
	roster := make([]Participant, 0, len(s.order))
	for _, id := range s.order {
		p := s.participants[id]
		roster = append(roster, Participant{
			ID:      p.ID,
			Name:    p.Name,
			Score:   p.Score,
			Contact: p.Contact,
			Online:  p.Online,
		})
	}
	return roster
}

// Increment 참가자 점수 1 증가
func (s *State) Increment(identity string) Result {
	p, ok := s.participants[identity]
	if !ok {
		return Rejected(ReasonNoParticipant)
	}
	p.Score++
	return Applied()
}

// Rename 참가자 이름과 연락처 변경
func (s *State) Rename(identity, name, contact string) Result {
	p, ok := s.participants[identity]
	if !ok {
		return Rejected(ReasonNoParticipant)
	}
	p.Name = name
	p.Contact = contact
	return Applied()
}

// AppendChat 채팅 메시지 추가. 발신자는 표시 이름, 없으면 원본 ID
func (s *State) AppendChat(identity, text string, now time.Time) ChatMessage {
	sender := identity
	if p, ok := s.participants[identity]; ok && p.Name != "" {
		sender = p.Name
	}

	msg := ChatMessage{
		ID:        uuid.New().String(),
		Sender:    sender,
		Text:      text,
		Timestamp: now,
	}
	s.chat = append(s.chat, msg)
	return msg
}

// Chat 채팅 기록 복사본
func (s *State) Chat() []ChatMessage {
	out := make([]ChatMessage, len(s.chat))
	copy(out, s.chat)
	return out
}

// ReplaceTickets 이벤트 티켓 목록을 통째로 교체
func (s *State) ReplaceTickets(eventID string, tickets []Ticket) {
	replaced := make([]Ticket, len(tickets))
	copy(replaced, tickets)
	s.tickets[eventID] = replaced
}

// Tickets 이벤트 티켓 목록 복사본 (없으면 빈 목록)
func (s *State) Tickets(eventID string) []Ticket {
	tickets := s.tickets[eventID]
	out := make([]Ticket, len(tickets))
	copy(out, tickets)
	return out
}

// SetWinner 이벤트 당첨자 기록
func (s *State) SetWinner(eventID string, w Winner) {
	s.winners[eventID] = w
}

// SeedComments 댓글 목록 최초 설정. 이미 있으면 무시한다.
func (s *State) SeedComments(comments []Comment) Result {
	if len(s.comments) > 0 {
		return Rejected(ReasonAlreadySeeded)
	}

	s.comments = make([]Comment, len(comments))
	copy(s.comments, comments)
	s.commentIdx = make(map[string]int, len(comments))
	for i, c := range s.comments {
		s.commentIdx[c.ID] = i
	}
	return Applied()
}

// Vote 댓글 추천/취소. 참가자당 댓글별 최대 +1, 점수는 0 미만으로 내려가지 않는다.
func (s *State) Vote(identity, commentID string, upvote bool) Result {
	idx, ok := s.commentIdx[commentID]
	if !ok {
		return Rejected(ReasonUnknownComment)
	}

	voted := s.votes[identity]
	_, already := voted[commentID]

	if upvote {
		if already {
			return Rejected(ReasonAlreadyVoted)
		}
		if voted == nil {
			voted = make(map[string]struct{})
			s.votes[identity] = voted
		}
		voted[commentID] = struct{}{}
		s.comments[idx].Score++
		return Applied()
	}

	if !already {
		return Rejected(ReasonNotVoted)
	}
	delete(voted, commentID)
	if s.comments[idx].Score > 0 {
		s.comments[idx].Score--
	}
	return Applied()
}

// Comments 댓글 목록 복사본
func (s *State) Comments() []Comment {
	out := make([]Comment, len(s.comments))
	copy(out, s.comments)
	return out
}

// Votes 참가자가 추천한 댓글 ID (정렬됨, 없으면 빈 목록)
func (s *State) Votes(identity string) []string {
	voted := s.votes[identity]
	ids := make([]string, 0, len(voted))
	for id := range voted {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasVotes 참가자의 투표 기록 존재 여부
func (s *State) HasVotes(identity string) bool {
	return len(s.votes[identity]) > 0
}

// AllTickets 이벤트별 티켓 목록 전체 복사본
func (s *State) AllTickets() map[string][]Ticket {
	out := make(map[string][]Ticket, len(s.tickets))
	for eventID := range s.tickets {
		out[eventID] = s.Tickets(eventID)
	}
	return out
}

// AllWinners 이벤트별 당첨자 복사본
func (s *State) AllWinners() map[string]Winner {
	out := make(map[string]Winner, len(s.winners))
	for eventID, w := range s.winners {
		out[eventID] = w
	}
	return out
}
