package handler

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"eventroom-backend/internal/model"
	"eventroom-backend/internal/room"
	"eventroom-backend/internal/store"
)

// EventHandler 이벤트/참가 등록 핸들러
type EventHandler struct {
	repo *store.Repository
}

// NewEventHandler EventHandler 생성
func NewEventHandler(repo *store.Repository) *EventHandler {
	return &EventHandler{repo: repo}
}

// CreateEventRequest 이벤트 생성 요청
type CreateEventRequest struct {
	ID          string     `json:"id" validate:"omitempty,max=64"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description"`
	RoomKind    string     `json:"room_kind" validate:"omitempty,oneof=game chosen generic"`
	StartsAt    *time.Time `json:"starts_at"`
}

// RegisterRequest 참가 등록 요청
type RegisterRequest struct {
	UserID  string `json:"user_id" validate:"required,max=64"`
	Name    string `json:"name" validate:"required,max=100"`
	Contact string `json:"contact" validate:"max=255"`
}

// CreateEvent 이벤트 생성
func (h *EventHandler) CreateEvent(c *fiber.Ctx) error {
	var req CreateEventRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	kind := req.RoomKind
	if kind == "" {
		kind = room.KindGame.String()
	}

	event := &model.Event{
		ID:          req.ID,
		Title:       req.Title,
		Description: req.Description,
		RoomKind:    kind,
		StartsAt:    req.StartsAt,
	}
	if err := h.repo.CreateEvent(c.UserContext(), event); err != nil {
		log.Printf("❌ Failed to create event: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create event"})
	}

	return c.Status(fiber.StatusCreated).JSON(event)
}

// GetEvent 이벤트 조회
func (h *EventHandler) GetEvent(c *fiber.Ctx) error {
	event, err := h.repo.GetEvent(c.UserContext(), c.Params("eventId"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(event)
}

// Register 참가 등록 (재등록 시 이름/연락처 갱신)
func (h *EventHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	reg := &model.Registration{
		EventID: c.Params("eventId"),
		UserID:  req.UserID,
		Name:    req.Name,
		Contact: req.Contact,
	}
	if err := h.repo.Register(c.UserContext(), reg); err != nil {
		return storeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(reg)
}

// ListParticipants 참가자 목록
func (h *EventHandler) ListParticipants(c *fiber.Ctx) error {
	regs, err := h.repo.ListRegistrations(c.UserContext(), c.Params("eventId"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{"participants": regs})
}

// storeError 저장소 에러를 HTTP 상태로 변환
func storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, store.ErrEventClosed),
		errors.Is(err, store.ErrWinnerAlreadySelected):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, store.ErrNoTickets):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	default:
		log.Printf("❌ Store error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}
