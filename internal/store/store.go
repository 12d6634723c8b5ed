package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	nanoid "github.com/jaevor/go-nanoid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eventroom-backend/internal/model"
)

var (
	ErrNotFound              = errors.New("record not found")
	ErrEventClosed           = errors.New("event is closed")
	ErrNoTickets             = errors.New("event has no tickets")
	ErrWinnerAlreadySelected = errors.New("winner already selected")
	ErrTicketSpaceExhausted  = errors.New("could not allocate a unique ticket number")
)

// maxTicketAttempts 번호 충돌 시 재시도 횟수
const maxTicketAttempts = 10

// Repository 이벤트/티켓/당첨자/점수 저장소 (system of record)
type Repository struct {
	db        *gorm.DB
	newNumber func() string
	pick      func(n int) int
}

// New Repository 생성
func New(db *gorm.DB) (*Repository, error) {
	gen, err := nanoid.CustomASCII("0123456789", model.TicketDigits)
	if err != nil {
		return nil, fmt.Errorf("ticket number generator: %w", err)
	}

	return &Repository{
		db:        db,
		newNumber: gen,
		pick:      rand.Intn,
	}, nil
}

// DB 내부 GORM 핸들 (헬스체크용)
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// =============================================================================
// Events
// =============================================================================

// CreateEvent 이벤트 생성. ID가 없으면 uuid 발급
func (r *Repository) CreateEvent(ctx context.Context, event *model.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Status == "" {
		event.Status = model.EventStatusOpen
	}

	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// GetEvent 이벤트 조회
func (r *Repository) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	return getEvent(r.db.WithContext(ctx), eventID)
}

func getEvent(db *gorm.DB, eventID string) (*model.Event, error) {
	var event model.Event
	if err := db.First(&event, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	return &event, nil
}

// =============================================================================
// Registrations
// =============================================================================

// Register 참가 등록. 이미 등록돼 있으면 이름/연락처만 갱신
func (r *Repository) Register(ctx context.Context, reg *model.Registration) error {
	db := r.db.WithContext(ctx)

	if _, err := getEvent(db, reg.EventID); err != nil {
		return err
	}

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "contact"}),
	}).Create(reg).Error
	if err != nil {
		return fmt.Errorf("failed to register participant: %w", err)
	}

	// upsert 후 ID/생성 시각을 확정하기 위해 다시 읽는다
	var saved model.Registration
	if err := db.First(&saved, "event_id = ? AND user_id = ?", reg.EventID, reg.UserID).Error; err != nil {
		return fmt.Errorf("failed to reload registration: %w", err)
	}
	*reg = saved
	return nil
}

// ListRegistrations 이벤트 참가자 목록 (등록 순)
func (r *Repository) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	regs := make([]model.Registration, 0)
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Order("id").Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	return regs, nil
}

// =============================================================================
// Tickets
// =============================================================================

// IssueTicket 사용자에게 이벤트 내 유일한 티켓 번호 발급.
// 이미 발급된 티켓이 있으면 그대로 반환하고 created는 false.
// 번호 중복은 유니크 인덱스로 판단하며, 충돌하면 새 번호로 다시 시도한다.
func (r *Repository) IssueTicket(ctx context.Context, eventID, userID, name string) (*model.Ticket, bool, error) {
	for attempt := 0; attempt < maxTicketAttempts; attempt++ {
		ticket, created, err := r.issueOnce(ctx, eventID, userID, name, r.newNumber())
		if errors.Is(err, errTicketConflict) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return ticket, created, nil
	}
	return nil, false, ErrTicketSpaceExhausted
}

// errTicketConflict 같은 번호 또는 같은 사용자의 티켓이 먼저 저장됨
var errTicketConflict = errors.New("ticket conflict")

// issueOnce 번호 하나로 발급 시도. 시도마다 트랜잭션을 새로 연다 (실패한 INSERT 이후 재사용 불가)
func (r *Repository) issueOnce(ctx context.Context, eventID, userID, name, number string) (*model.Ticket, bool, error) {
	var (
		ticket  model.Ticket
		created bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := getEvent(tx, eventID)
		if err != nil {
			return err
		}

		err = tx.First(&ticket, "event_id = ? AND user_id = ?", eventID, userID).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to find ticket: %w", err)
		}

		if event.Status != model.EventStatusOpen {
			return ErrEventClosed
		}

		ticket = model.Ticket{
			EventID:      eventID,
			UserID:       userID,
			Name:         name,
			TicketNumber: number,
		}
		if err := tx.Create(&ticket).Error; err != nil {
			if r.isDuplicate(err) {
				return errTicketConflict
			}
			return fmt.Errorf("failed to create ticket: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return &ticket, created, nil
}

// isDuplicate 유니크 제약 위반 여부 (TranslateError 설정과 무관하게 드라이버 번역기를 사용)
func (r *Repository) isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if translator, ok := r.db.Dialector.(gorm.ErrorTranslator); ok {
		return errors.Is(translator.Translate(err), gorm.ErrDuplicatedKey)
	}
	return false
}

// ListTickets 이벤트 티켓 목록 (발급 순)
func (r *Repository) ListTickets(ctx context.Context, eventID string) ([]model.Ticket, error) {
	tickets := make([]model.Ticket, 0)
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Order("id").Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

// =============================================================================
// Winner
// =============================================================================

// SelectWinner 티켓 중 하나를 무작위로 골라 당첨자로 확정 (이벤트당 1회).
// 이미 선정돼 있으면 기존 당첨자와 ErrWinnerAlreadySelected를 반환한다.
func (r *Repository) SelectWinner(ctx context.Context, eventID, selectedBy string) (*model.Winner, error) {
	var winner model.Winner

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getEvent(tx, eventID); err != nil {
			return err
		}

		err := tx.First(&winner, "event_id = ?", eventID).Error
		if err == nil {
			return ErrWinnerAlreadySelected
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to find winner: %w", err)
		}

		var count int64
		if err := tx.Model(&model.Ticket{}).Where("event_id = ?", eventID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count tickets: %w", err)
		}
		if count == 0 {
			return ErrNoTickets
		}

		var ticket model.Ticket
		if err := tx.Where("event_id = ?", eventID).Order("id").
			Offset(r.pick(int(count))).Limit(1).
			Find(&ticket).Error; err != nil {
			return fmt.Errorf("failed to pick ticket: %w", err)
		}

		winner = model.Winner{
			EventID:      eventID,
			UserID:       ticket.UserID,
			Name:         ticket.Name,
			TicketNumber: ticket.TicketNumber,
			SelectedBy:   selectedBy,
		}
		if err := tx.Create(&winner).Error; err != nil {
			return fmt.Errorf("failed to save winner: %w", err)
		}

		if err := tx.Model(&model.Event{}).Where("id = ?", eventID).
			Update("status", model.EventStatusDrawn).Error; err != nil {
			return fmt.Errorf("failed to close event: %w", err)
		}
		return nil
	})

	if errors.Is(err, ErrWinnerAlreadySelected) {
		return &winner, err
	}
	if err != nil {
		return nil, err
	}
	return &winner, nil
}

// GetWinner 당첨자 조회
func (r *Repository) GetWinner(ctx context.Context, eventID string) (*model.Winner, error) {
	var winner model.Winner
	if err := r.db.WithContext(ctx).First(&winner, "event_id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find winner: %w", err)
	}
	return &winner, nil
}

// =============================================================================
// Scores
// =============================================================================

// GetScore 점수 조회. 기록이 없으면 0점
func (r *Repository) GetScore(ctx context.Context, eventID, userID string) (*model.Score, error) {
	score := model.Score{EventID: eventID, UserID: userID}

	err := r.db.WithContext(ctx).First(&score, "event_id = ? AND user_id = ?", eventID, userID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to find score: %w", err)
	}
	return &score, nil
}

// SaveScore 점수 저장 (upsert)
func (r *Repository) SaveScore(ctx context.Context, score *model.Score) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "updated_at"}),
	}).Create(score).Error
	if err != nil {
		return fmt.Errorf("failed to save score: %w", err)
	}
	return nil
}

// =============================================================================
// Stats
// =============================================================================

// TableCounts 테이블별 행 수 (운영 점검용)
func (r *Repository) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	tables := map[string]any{
		"events":        &model.Event{},
		"registrations": &model.Registration{},
		"tickets":       &model.Ticket{},
		"winners":       &model.Winner{},
		"scores":        &model.Score{},
	}

	for name, m := range tables {
		var n int64
		if err := r.db.WithContext(ctx).Model(m).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		counts[name] = n
	}
	return counts, nil
}
