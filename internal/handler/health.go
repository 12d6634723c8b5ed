package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"eventroom-backend/internal/room"
)

// redisPinger Redis 상태 확인
type redisPinger interface {
	Health(ctx context.Context) error
}

// archiveStats 채팅 보관 워커 통계
type archiveStats interface {
	Stats() (written, dropped uint64)
}

// HealthHandler 헬스체크 핸들러
type HealthHandler struct {
	db      *gorm.DB
	redis   redisPinger // nil이면 not_configured
	hub     *room.Hub
	archive archiveStats
}

// NewHealthHandler HealthHandler 생성
func NewHealthHandler(db *gorm.DB, redis redisPinger, hub *room.Hub) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, hub: hub}
}

// WithArchive 채팅 보관 통계를 응답에 포함
func (h *HealthHandler) WithArchive(a archiveStats) *HealthHandler {
	h.archive = a
	return h
}

// ComponentCheck 컴포넌트 상태
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ArchiveCheck 채팅 보관 워커 누적 통계
type ArchiveCheck struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
}

// HealthResponse 헬스체크 응답
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Rooms     int                       `json:"rooms"`
	Checks    map[string]ComponentCheck `json:"checks"`
	Archive   *ArchiveCheck             `json:"archive,omitempty"`
}

// Check 전체 상태 확인 (DB + Redis)
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    make(map[string]ComponentCheck),
	}
	if h.hub != nil {
		response.Rooms = len(h.hub.Rooms())
	}

	// 1. Database 체크
	dbStart := time.Now()
	if err := h.pingDB(); err != nil {
		response.Status = "unhealthy"
		response.Checks["database"] = ComponentCheck{
			Status: "unhealthy",
			Error:  "database ping failed",
		}
	} else {
		response.Checks["database"] = ComponentCheck{
			Status:  "healthy",
			Latency: time.Since(dbStart).String(),
		}
	}

	// 2. Redis 체크 (채팅 보관은 부가 기능이라 실패해도 degraded)
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		redisStart := time.Now()
		if err := h.redis.Health(ctx); err != nil {
			if response.Status == "healthy" {
				response.Status = "degraded"
			}
			response.Checks["redis"] = ComponentCheck{
				Status: "degraded",
				Error:  "redis unreachable",
			}
		} else {
			response.Checks["redis"] = ComponentCheck{
				Status:  "healthy",
				Latency: time.Since(redisStart).String(),
			}
		}
	} else {
		response.Checks["redis"] = ComponentCheck{
			Status: "not_configured",
		}
	}

	if h.archive != nil {
		written, dropped := h.archive.Stats()
		response.Archive = &ArchiveCheck{Written: written, Dropped: dropped}
	}

	statusCode := fiber.StatusOK
	if response.Status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(response)
}

// Liveness K8s liveness probe용 (단순 체크)
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// Readiness K8s readiness probe용 (DB 연결 체크)
func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	if err := h.pingDB(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
	}
	return c.SendString("READY")
}

func (h *HealthHandler) pingDB() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
