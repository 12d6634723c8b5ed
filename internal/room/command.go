package room

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMalformed      = errors.New("malformed message")
	ErrInvalidPayload = errors.New("invalid command payload")
)

// 수신 명령 타입
const (
	TypeChat                 = "chat"
	TypeCounter              = "counter"
	TypeUpdateName           = "updateName"
	TypeUpdateTickets        = "updateTickets"
	TypeStartWinnerSelection = "startWinnerSelection"
	TypeWinnerAnnounce       = "winnerAnnounce"
	TypeSetComments          = "setComments"
	TypeVote                 = "vote"
	TypeGetComments          = "getComments"
	TypeGetUserVotes         = "getUserVotes"
)

var validate = validator.New()

// Command 클라이언트가 보내는 명령 (닫힌 타입 집합)
type Command interface {
	CommandType() string
	command()
}

// ChatCommand 채팅 전송
type ChatCommand struct {
	Text string `json:"text"`
}

// UnmarshalJSON text가 문자열이 아니면 빈 문자열로 받는다
func (c *ChatCommand) UnmarshalJSON(raw []byte) error {
	var body struct {
		Text json.RawMessage `json:"text"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return err
	}

	c.Text = ""
	var text string
	if len(body.Text) > 0 && json.Unmarshal(body.Text, &text) == nil {
		c.Text = text
	}
	return nil
}

// CounterCommand 점수 1 증가
type CounterCommand struct{}

// UpdateNameCommand 이름/연락처 변경
type UpdateNameCommand struct {
	Name    *string `json:"name" validate:"required"`
	Contact *string `json:"contact"`
}

// UpdateTicketsCommand 이벤트 티켓 목록 교체
type UpdateTicketsCommand struct {
	EventID string   `json:"eventId" validate:"required"`
	Tickets []Ticket `json:"tickets" validate:"required"`
}

// StartWinnerSelectionCommand 추첨 애니메이션 시작 신호
type StartWinnerSelectionCommand struct {
	EventID string `json:"eventId" validate:"required"`
}

// WinnerAnnounceCommand 외부에서 선정된 당첨자 발표
type WinnerAnnounceCommand struct {
	EventID string  `json:"eventId" validate:"required"`
	Winner  *Winner `json:"winner" validate:"required"`
}

// SetCommentsCommand 댓글 목록 최초 설정
type SetCommentsCommand struct {
	Comments []Comment `json:"comments" validate:"required,dive"`
}

// VoteCommand 댓글 추천/취소
type VoteCommand struct {
	CommentID string `json:"commentId" validate:"required"`
	IsUpvote  *bool  `json:"isUpvote" validate:"required"`
}

// GetCommentsCommand 댓글 목록 요청
type GetCommentsCommand struct{}

// GetUserVotesCommand 내 투표 기록 요청
type GetUserVotesCommand struct{}

// Unrecognized 알 수 없는 type
type Unrecognized struct {
	Type string
}

func (*ChatCommand) CommandType() string                 { return TypeChat }
func (*CounterCommand) CommandType() string              { return TypeCounter }
func (*UpdateNameCommand) CommandType() string           { return TypeUpdateName }
func (*UpdateTicketsCommand) CommandType() string        { return TypeUpdateTickets }
func (*StartWinnerSelectionCommand) CommandType() string { return TypeStartWinnerSelection }
func (*WinnerAnnounceCommand) CommandType() string       { return TypeWinnerAnnounce }
func (*SetCommentsCommand) CommandType() string          { return TypeSetComments }
func (*VoteCommand) CommandType() string                 { return TypeVote }
func (*GetCommentsCommand) CommandType() string          { return TypeGetComments }
func (*GetUserVotesCommand) CommandType() string         { return TypeGetUserVotes }
func (u *Unrecognized) CommandType() string              { return u.Type }

func (*ChatCommand) command()                 {}
func (*CounterCommand) command()              {}
func (*UpdateNameCommand) command()           {}
func (*UpdateTicketsCommand) command()        {}
func (*StartWinnerSelectionCommand) command() {}
func (*WinnerAnnounceCommand) command()       {}
func (*SetCommentsCommand) command()          {}
func (*VoteCommand) command()                 {}
func (*GetCommentsCommand) command()          {}
func (*GetUserVotesCommand) command()         {}
func (*Unrecognized) command()                {}

// newCommand type 문자열에 맞는 빈 명령 생성
func newCommand(msgType string) Command {
	switch msgType {
	case TypeChat:
		return &ChatCommand{}
	case TypeCounter:
		return &CounterCommand{}
	case TypeUpdateName:
		return &UpdateNameCommand{}
	case TypeUpdateTickets:
		return &UpdateTicketsCommand{}
	case TypeStartWinnerSelection:
		return &StartWinnerSelectionCommand{}
	case TypeWinnerAnnounce:
		return &WinnerAnnounceCommand{}
	case TypeSetComments:
		return &SetCommentsCommand{}
	case TypeVote:
		return &VoteCommand{}
	case TypeGetComments:
		return &GetCommentsCommand{}
	case TypeGetUserVotes:
		return &GetUserVotesCommand{}
	default:
		return nil
	}
}

// ParseCommand 원본 메시지를 명령으로 파싱하고 스키마를 검증한다.
// JSON이 아니면 ErrMalformed, 알려진 type의 필드가 잘못되면 ErrInvalidPayload를 반환한다.
// 알 수 없는 type은 에러 없이 *Unrecognized로 반환한다.
func ParseCommand(raw []byte) (Command, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	cmd := newCommand(envelope.Type)
	if cmd == nil {
		return &Unrecognized{Type: envelope.Type}, nil
	}

	if err := json.Unmarshal(raw, cmd); err != nil {
		return cmd, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, envelope.Type, err)
	}
	if err := validate.Struct(cmd); err != nil {
		return cmd, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, envelope.Type, err)
	}

	return cmd, nil
}
