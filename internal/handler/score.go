package handler

import (
	"github.com/gofiber/fiber/v2"

	"eventroom-backend/internal/model"
	"eventroom-backend/internal/store"
)

// ScoreHandler 이벤트별 사용자 점수 핸들러
type ScoreHandler struct {
	repo *store.Repository
}

// NewScoreHandler ScoreHandler 생성
func NewScoreHandler(repo *store.Repository) *ScoreHandler {
	return &ScoreHandler{repo: repo}
}

// SaveScoreRequest 점수 저장 요청
type SaveScoreRequest struct {
	Score *int `json:"score" validate:"required,gte=0"`
}

// GetScore 점수 조회 (기록 없으면 0)
func (h *ScoreHandler) GetScore(c *fiber.Ctx) error {
	score, err := h.repo.GetScore(c.UserContext(), c.Params("eventId"), c.Params("userId"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(score)
}

// SaveScore 점수 저장
func (h *ScoreHandler) SaveScore(c *fiber.Ctx) error {
	var req SaveScoreRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	score := &model.Score{
		EventID: c.Params("eventId"),
		UserID:  c.Params("userId"),
		Score:   *req.Score,
	}
	if err := h.repo.SaveScore(c.UserContext(), score); err != nil {
		return storeError(c, err)
	}
	return c.JSON(score)
}
