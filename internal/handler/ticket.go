package handler

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"golang.org/x/sync/singleflight"

	"eventroom-backend/internal/auth"
	"eventroom-backend/internal/model"
	"eventroom-backend/internal/store"
)

// TicketHandler 티켓 발급/당첨자 선정 핸들러
type TicketHandler struct {
	repo    *store.Repository
	sfGroup singleflight.Group // 같은 이벤트의 동시 추첨 요청을 하나로 합친다
}

// NewTicketHandler TicketHandler 생성
func NewTicketHandler(repo *store.Repository) *TicketHandler {
	return &TicketHandler{repo: repo}
}

// IssueTicketRequest 티켓 발급 요청
type IssueTicketRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
	Name   string `json:"name" validate:"max=100"`
}

// IssueTicket 사용자 티켓 발급 (이미 있으면 기존 티켓 반환)
func (h *TicketHandler) IssueTicket(c *fiber.Ctx) error {
	var req IssueTicketRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	ticket, created, err := h.repo.IssueTicket(c.UserContext(), c.Params("eventId"), req.UserID, req.Name)
	if err != nil {
		return storeError(c, err)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(ticket)
}

// ListTickets 이벤트 티켓 목록
func (h *TicketHandler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.repo.ListTickets(c.UserContext(), c.Params("eventId"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{"tickets": tickets})
}

type selectResult struct {
	winner *model.Winner
	err    error
}

// SelectWinner 당첨자 선정 (이벤트당 1회). 이미 선정됐으면 409와 기존 당첨자
func (h *TicketHandler) SelectWinner(c *fiber.Ctx) error {
	eventID := utils.CopyString(c.Params("eventId")) // singleflight 키로 보관됨
	selectedBy := auth.UserID(c)
	ctx := c.UserContext()

	v, _, _ := h.sfGroup.Do(eventID, func() (interface{}, error) {
		winner, err := h.repo.SelectWinner(ctx, eventID, selectedBy)
		return selectResult{winner: winner, err: err}, nil
	})
	res := v.(selectResult)

	if errors.Is(res.err, store.ErrWinnerAlreadySelected) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":  res.err.Error(),
			"winner": res.winner,
		})
	}
	if res.err != nil {
		return storeError(c, res.err)
	}

	log.Printf("🎉 Winner selected for event %s: ticket %s", eventID, res.winner.TicketNumber)
	return c.Status(fiber.StatusCreated).JSON(res.winner)
}

// GetWinner 당첨자 조회
func (h *TicketHandler) GetWinner(c *fiber.Ctx) error {
	winner, err := h.repo.GetWinner(c.UserContext(), c.Params("eventId"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(winner)
}
