package handler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"eventroom-backend/internal/room"
)

// chatStore 보관된 채팅 조회/삭제 (Redis)
type chatStore interface {
	GetRecentChat(ctx context.Context, roomKey string, count int64) ([]room.ChatMessage, error)
	ChatCount(ctx context.Context, roomKey string) (int64, error)
	DeleteRoom(ctx context.Context, roomKey string) error
}

// RoomHandler 룸 운영 API 핸들러
type RoomHandler struct {
	hub  *room.Hub
	chat chatStore // nil이면 보관 채팅 조회 불가
}

// NewRoomHandler RoomHandler 생성
func NewRoomHandler(hub *room.Hub, chat chatStore) *RoomHandler {
	return &RoomHandler{hub: hub, chat: chat}
}

const snapshotTimeout = 3 * time.Second

// ListRooms 현재 활성 룸 목록
func (h *RoomHandler) ListRooms(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"rooms": h.hub.Rooms()})
}

// GetRoom 룸 상태 스냅샷
func (h *RoomHandler) GetRoom(c *fiber.Ctx) error {
	rm, ok, err := h.lookup(c)
	if !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), snapshotTimeout)
	defer cancel()

	snap, err := rm.Snapshot(ctx)
	if err != nil {
		return roomError(c, err)
	}
	return c.JSON(snap)
}

// RemoveParticipant 참가자 레코드 명시적 삭제
func (h *RoomHandler) RemoveParticipant(c *fiber.Ctx) error {
	rm, ok, err := h.lookup(c)
	if !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), snapshotTimeout)
	defer cancel()

	// 타임아웃 뒤에도 룸 고루틴이 읽을 수 있으므로 복사
	identity := utils.CopyString(c.Params("identity"))
	removed, err := rm.RemoveParticipant(ctx, identity)
	if err != nil {
		return roomError(c, err)
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "participant not found"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetChat Redis에 보관된 채팅 조회 (limit 기본 100)
func (h *RoomHandler) GetChat(c *fiber.Ctx) error {
	if h.chat == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "chat archive not configured"})
	}

	kind, ok := room.ParseKind(c.Params("kind"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown room kind"})
	}

	limit := c.QueryInt("limit", 100)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	key := room.KeyOf(kind, c.Params("roomId"))
	messages, err := h.chat.GetRecentChat(c.UserContext(), key, int64(limit))
	if err != nil {
		log.Printf("❌ [RoomAPI] Failed to read chat archive for %s: %v", key, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read chat archive"})
	}
	total, err := h.chat.ChatCount(c.UserContext(), key)
	if err != nil {
		log.Printf("⚠️ [RoomAPI] Failed to count chat archive for %s: %v", key, err)
		total = int64(len(messages))
	}
	return c.JSON(fiber.Map{"room": key, "messages": messages, "total": total})
}

// CloseRoom 룸 강제 종료. purgeChat=true면 보관된 채팅도 삭제한다.
func (h *RoomHandler) CloseRoom(c *fiber.Ctx) error {
	kind, ok := room.ParseKind(c.Params("kind"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown room kind"})
	}
	roomID := c.Params("roomId")
	key := room.KeyOf(kind, roomID)

	if !h.hub.RemoveRoom(kind, roomID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "room not found"})
	}
	log.Printf("🧹 [RoomAPI] Room closed by admin: %s", key)

	if c.QueryBool("purgeChat") && h.chat != nil {
		if err := h.chat.DeleteRoom(c.UserContext(), key); err != nil {
			log.Printf("⚠️ [RoomAPI] Failed to purge chat archive for %s: %v", key, err)
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// lookup 경로의 kind/roomId로 활성 룸 조회. 없으면 응답을 쓰고 false
func (h *RoomHandler) lookup(c *fiber.Ctx) (*room.Room, bool, error) {
	kind, ok := room.ParseKind(c.Params("kind"))
	if !ok {
		return nil, false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown room kind"})
	}
	rm, ok := h.hub.GetRoom(kind, c.Params("roomId"))
	if !ok {
		return nil, false, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "room not found"})
	}
	return rm, true, nil
}

func roomError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, room.ErrRoomClosed):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "room closed"})
	case errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": "room busy"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
