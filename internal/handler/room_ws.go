package handler

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"eventroom-backend/internal/auth"
	"eventroom-backend/internal/room"
	"eventroom-backend/internal/session"
)

// Locals 키
const (
	localRoomKind = "roomKind"
	localRoomID   = "roomId"
	localUserID   = "wsUserId"
)

// RoomWSHandler 룸 WebSocket 핸들러. 연결마다 세션을 만들어 룸 코디네이터에 넘긴다.
type RoomWSHandler struct {
	hub *room.Hub
	cfg RoomWSConfig
}

// RoomWSConfig 세션 송신 설정
type RoomWSConfig struct {
	SendBufferSize int
	WriteTimeout   time.Duration // 0이면 데드라인 없음
}

// NewRoomWSHandler RoomWSHandler 생성
func NewRoomWSHandler(hub *room.Hub, cfg RoomWSConfig) *RoomWSHandler {
	return &RoomWSHandler{hub: hub, cfg: cfg}
}

// Upgrade 업그레이드 전 경로 검증 (kind, roomId, 사용자 ID)
// Params/Query 값은 요청 버퍼를 가리키므로 룸에 넘기기 전에 복사한다.
func (h *RoomWSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	kind, ok := room.ParseKind(c.Params("kind"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown room kind"})
	}
	roomID := utils.CopyString(c.Params("roomId"))
	if roomID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "roomId is required"})
	}

	userID := utils.CopyString(auth.UserID(c))
	if userID == "" {
		userID = utils.CopyString(c.Query("userId"))
	}

	c.Locals(localRoomKind, kind)
	c.Locals(localRoomID, roomID)
	c.Locals(localUserID, userID)
	return c.Next()
}

// Handle WebSocket 연결 처리
func (h *RoomWSHandler) Handle(c *websocket.Conn) {
	kind, _ := c.Locals(localRoomKind).(room.Kind)
	roomID, _ := c.Locals(localRoomID).(string)
	userID, _ := c.Locals(localUserID).(string)

	if kind == "" || roomID == "" {
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","message":"invalid session"}`))
		c.Close()
		return
	}

	sess := session.New(c, h.cfg.SendBufferSize, h.cfg.WriteTimeout)
	sess.UserID = userID

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		sess.WritePump()
	}()

	rm, err := h.join(kind, roomID, sess, room.Metadata{UserID: userID})
	if err != nil {
		log.Printf("❌ [RoomWS] Join failed: room=%s:%s session=%s err=%v", kind, roomID, sess.ID(), err)
		sess.Close()
		<-pumpDone
		c.Close()
		return
	}

	log.Printf("🔌 [RoomWS] Connected: room=%s session=%s user=%q", rm.Key(), sess.ID(), userID)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("🔥 [RoomWS] Panic recovered: room=%s session=%s: %v", rm.Key(), sess.ID(), r)
		}
		if err := rm.Disconnect(sess); err != nil && !errors.Is(err, room.ErrRoomClosed) {
			log.Printf("⚠️ [RoomWS] Disconnect failed: %v", err)
		}
		sess.Close()
		<-pumpDone
		c.Close()

		sent, dropped := sess.GetStats()
		log.Printf("👋 [RoomWS] Disconnected: room=%s session=%s duration=%s sent=%d dropped=%d",
			rm.Key(), sess.ID(), sess.Duration(), sent, dropped)
	}()

	for {
		msgType, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️ [RoomWS] Read error: session=%s err=%v", sess.ID(), err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if err := rm.Receive(sess, raw); err != nil {
			// 정리 중인 룸이면 연결을 끊어 클라이언트가 다시 접속하게 한다
			log.Printf("⚠️ [RoomWS] Room %s unavailable: %v", rm.Key(), err)
			return
		}
	}
}

// join 룸에 연결 등록. 정리 직후의 닫힌 룸이면 새 룸으로 한 번 재시도
func (h *RoomWSHandler) join(kind room.Kind, roomID string, sess *session.Session, meta room.Metadata) (*room.Room, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		rm := h.hub.GetOrCreateRoom(kind, roomID)
		err := rm.Connect(sess, meta)
		if err == nil {
			return rm, nil
		}
		if !errors.Is(err, room.ErrRoomClosed) {
			return nil, err
		}
		h.hub.Forget(rm)
		lastErr = err
	}
	return nil, lastErr
}
