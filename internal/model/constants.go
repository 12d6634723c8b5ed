package model

// EventStatus 이벤트 진행 상태
type EventStatus string

const (
	EventStatusOpen  EventStatus = "OPEN"  // 참가/티켓 발급 가능
	EventStatusDrawn EventStatus = "DRAWN" // 당첨자 선정 완료
)

// String 메서드
func (s EventStatus) String() string {
	return string(s)
}

// TicketDigits 티켓 번호 자릿수
const TicketDigits = 6
