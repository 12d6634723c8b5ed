package model

import (
	"time"
)

// Event 라이브 이벤트 (룸 하나에 대응)
type Event struct {
	ID          string      `gorm:"type:varchar(64);primaryKey" json:"id"`
	Title       string      `gorm:"type:varchar(200);not null" json:"title"`
	Description string      `gorm:"type:text" json:"description"`
	RoomKind    string      `gorm:"type:varchar(20);not null;default:'game'" json:"room_kind"`
	Status      EventStatus `gorm:"type:varchar(20);not null;default:'OPEN'" json:"status"`
	StartsAt    *time.Time  `json:"starts_at,omitempty"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Registrations []Registration `gorm:"foreignKey:EventID" json:"registrations,omitempty"`
	Tickets       []Ticket       `gorm:"foreignKey:EventID" json:"tickets,omitempty"`
}

func (Event) TableName() string {
	return "events"
}

// Registration 이벤트 참가 등록
type Registration struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID   string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_registration_event_user" json:"event_id"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_registration_event_user" json:"user_id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	Contact   string    `gorm:"type:varchar(255)" json:"contact"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Registration) TableName() string {
	return "registrations"
}

// Ticket 추첨 티켓. 이벤트 내에서 번호와 사용자 모두 유일
type Ticket struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID      string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_ticket_event_number;uniqueIndex:idx_ticket_event_user" json:"event_id"`
	UserID       string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_ticket_event_user" json:"user_id"`
	Name         string    `gorm:"type:varchar(100)" json:"name"`
	TicketNumber string    `gorm:"type:varchar(16);not null;uniqueIndex:idx_ticket_event_number" json:"ticket_number"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// Winner 이벤트 당첨자 (이벤트당 최대 1명)
type Winner struct {
	EventID      string    `gorm:"type:varchar(64);primaryKey" json:"event_id"`
	UserID       string    `gorm:"type:varchar(64);not null" json:"user_id"`
	Name         string    `gorm:"type:varchar(100)" json:"name"`
	TicketNumber string    `gorm:"type:varchar(16);not null" json:"ticket_number"`
	SelectedBy   string    `gorm:"type:varchar(64)" json:"selected_by"`
	SelectedAt   time.Time `gorm:"autoCreateTime" json:"selected_at"`
}

func (Winner) TableName() string {
	return "winners"
}

// Score 이벤트별 사용자 점수
type Score struct {
	EventID   string    `gorm:"type:varchar(64);primaryKey" json:"event_id"`
	UserID    string    `gorm:"type:varchar(64);primaryKey" json:"user_id"`
	Score     int       `gorm:"not null;default:0" json:"score"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Score) TableName() string {
	return "scores"
}

// All AutoMigrate 대상 엔티티 목록
func All() []any {
	return []any{
		&Event{},
		&Registration{},
		&Ticket{},
		&Winner{},
		&Score{},
	}
}
