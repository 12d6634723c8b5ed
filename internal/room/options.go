package room

import "time"

// Kind 룸 종류
type Kind string

const (
	KindGame    Kind = "game"    // 점수/티켓 룸
	KindChosen  Kind = "chosen"  // 댓글 투표 룸 (영속 사용자 ID 기반)
	KindGeneric Kind = "generic" // 일반 룸
)

func (k Kind) String() string {
	return string(k)
}

// ParseKind 문자열을 룸 종류로 변환
func ParseKind(s string) (Kind, bool) {
	// 입력 문자열이 아닌 상수를 돌려준다 (요청 버퍼를 참조하지 않도록)
	switch Kind(s) {
	case KindGame:
		return KindGame, true
	case KindChosen:
		return KindChosen, true
	case KindGeneric:
		return KindGeneric, true
	default:
		return "", false
	}
}

// DisconnectPolicy 연결 해제 시 참가자 레코드 처리 방식
type DisconnectPolicy int

const (
	RetainOnDisconnect DisconnectPolicy = iota // 레코드 유지 (재접속 시 복원)
	RemoveOnDisconnect                         // 마지막 연결이 끊기면 레코드 삭제
)

// String 정책을 문자열로 반환
func (p DisconnectPolicy) String() string {
	switch p {
	case RetainOnDisconnect:
		return "retain"
	case RemoveOnDisconnect:
		return "remove"
	default:
		return "unknown"
	}
}

// Features 룸별 선택 기능
type Features struct {
	Tickets         bool // updateTickets, startWinnerSelection, winnerAnnounce
	Comments        bool // setComments, vote, getComments, getUserVotes
	DurableIdentity bool // 연결 메타데이터의 userId를 참가자 키로 사용
}

// ChatArchiver 채팅 메시지 외부 보관소 (블로킹 금지)
type ChatArchiver interface {
	Archive(roomKey string, msg ChatMessage)
}

// Options 룸 생성 옵션
type Options struct {
	Features         Features
	Disconnect       DisconnectPolicy
	MailboxSize      int
	NotifyRejections bool // 거절된 명령을 송신자에게 rejected 메시지로 알림
	ReplayChat       bool // 새 연결에 채팅 기록 전송
	Archiver         ChatArchiver
	Now              func() time.Time
}

// DefaultOptions 룸 종류별 기본 옵션
func DefaultOptions(kind Kind) Options {
	opts := Options{
		Features:    Features{Tickets: true},
		Disconnect:  RetainOnDisconnect,
		MailboxSize: 256,
		Now:         time.Now,
	}

	switch kind {
	case KindChosen:
		opts.Features.Comments = true
		opts.Features.DurableIdentity = true
	case KindGeneric:
		opts.Disconnect = RemoveOnDisconnect
	}

	return opts
}

// OptionsFunc 룸 종류에 맞는 옵션을 만드는 함수
type OptionsFunc func(kind Kind) Options
