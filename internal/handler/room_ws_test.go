package handler

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	fws "github.com/fasthttp/websocket"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventroom-backend/internal/room"
)

type recordingArchive struct {
	mu   sync.Mutex
	keys []string
	msgs []room.ChatMessage
}

func (a *recordingArchive) Archive(roomKey string, msg room.ChatMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, roomKey)
	a.msgs = append(a.msgs, msg)
}

func (a *recordingArchive) snapshot() ([]string, []room.ChatMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.keys...), append([]room.ChatMessage(nil), a.msgs...)
}

// wsFrame 테스트에서 보는 송신 메시지 필드
type wsFrame struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	State struct {
		Connections []room.Participant `json:"connections"`
	} `json:"state"`
	Message room.ChatMessage `json:"message"`
}

// startWSServer 실제 TCP 리스너에 룸 WebSocket 라우트를 띄운다
func startWSServer(t *testing.T, archive room.ChatArchiver) (string, *room.Hub) {
	t.Helper()

	hub := room.NewHub(func(kind room.Kind) room.Options {
		opts := room.DefaultOptions(kind)
		opts.Archiver = archive
		return opts
	})
	h := NewRoomWSHandler(hub, RoomWSConfig{SendBufferSize: 32, WriteTimeout: time.Second})

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws/rooms/:kind/:roomId", h.Upgrade, websocket.New(h.Handle))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()

	t.Cleanup(func() {
		_ = app.Shutdown()
		_ = hub.Shutdown(context.Background())
	})
	return ln.Addr().String(), hub
}

func dialRoom(t *testing.T, addr, path string) *fws.Conn {
	t.Helper()

	conn, resp, err := fws.DefaultDialer.Dial("ws://"+addr+path, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn
}

// readUntil msgType 메시지가 올 때까지 읽는다 (match가 있으면 조건도 만족해야 함)
func readUntil(t *testing.T, conn *fws.Conn, msgType string, match func(wsFrame) bool) wsFrame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", msgType)

		var frame wsFrame
		require.NoError(t, json.Unmarshal(raw, &frame))
		if frame.Type == msgType && (match == nil || match(frame)) {
			return frame
		}
	}
}

func closeSocket(t *testing.T, conn *fws.Conn) {
	t.Helper()
	_ = conn.WriteMessage(fws.CloseMessage, fws.FormatCloseMessage(fws.CloseNormalClosure, ""))
	_ = conn.Close()
}

func TestRoomWSHandler_RoomAndIdentitySurviveRequestReuse(t *testing.T) {
	archive := &recordingArchive{}
	addr, hub := startWSServer(t, archive)

	alice := dialRoom(t, addr, "/ws/rooms/chosen/roomAAAA?userId=alice")
	assert.Equal(t, "alice", readUntil(t, alice, room.MsgConnection, nil).ID)

	require.NoError(t, alice.WriteMessage(fws.TextMessage, []byte(`{"type":"counter"}`)))
	require.NoError(t, alice.WriteMessage(fws.TextMessage, []byte(`{"type":"chat","text":"hello"}`)))
	chat := readUntil(t, alice, room.MsgChat, nil)
	assert.Equal(t, "hello", chat.Message.Text)
	closeSocket(t, alice)

	rm, ok := hub.GetRoom(room.KindChosen, "roomAAAA")
	require.True(t, ok)
	require.Eventually(t, func() bool { return rm.Connections() == 0 }, 3*time.Second, 10*time.Millisecond)

	// 서버가 요청 컨텍스트를 재사용하도록 다른 경로로 요청을 계속 보낸다
	client := &http.Client{Timeout: 2 * time.Second}
	for i := 0; i < 200; i++ {
		resp, err := client.Get("http://" + addr + "/ws/rooms/chosen/roomZZZZ?userId=mallory")
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		require.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
	}

	infos := hub.Rooms()
	require.Len(t, infos, 1)
	assert.Equal(t, "chosen:roomAAAA", infos[0].Key)
	assert.Equal(t, "roomAAAA", infos[0].ID)
	assert.Equal(t, room.KindChosen, infos[0].Kind)
	assert.Equal(t, "chosen:roomAAAA", rm.Key())

	again := dialRoom(t, addr, "/ws/rooms/chosen/roomAAAA?userId=alice")
	defer closeSocket(t, again)
	assert.Equal(t, "alice", readUntil(t, again, room.MsgConnection, nil).ID)

	state := readUntil(t, again, room.MsgState, nil)
	require.Len(t, state.State.Connections, 1)
	assert.Equal(t, "alice", state.State.Connections[0].ID)
	assert.Equal(t, 1, state.State.Connections[0].Score)
	assert.True(t, state.State.Connections[0].Online)

	reused, ok := hub.GetRoom(room.KindChosen, "roomAAAA")
	require.True(t, ok)
	assert.Same(t, rm, reused)

	keys, msgs := archive.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"chosen:roomAAAA"}, keys)
	assert.Equal(t, "hello", msgs[0].Text)
}

func TestRoomWSHandler_SeparateRoomsStayIsolated(t *testing.T) {
	archive := &recordingArchive{}
	addr, hub := startWSServer(t, archive)

	a := dialRoom(t, addr, "/ws/rooms/game/r1?userId=u1")
	defer closeSocket(t, a)
	readUntil(t, a, room.MsgConnection, nil)

	b := dialRoom(t, addr, "/ws/rooms/generic/r2")
	defer closeSocket(t, b)
	readUntil(t, b, room.MsgConnection, nil)

	require.NoError(t, b.WriteMessage(fws.TextMessage, []byte(`{"type":"chat","text":"only r2"}`)))
	readUntil(t, b, room.MsgChat, nil)

	require.NoError(t, a.WriteMessage(fws.TextMessage, []byte(`{"type":"counter"}`)))
	readUntil(t, a, room.MsgState, func(f wsFrame) bool {
		return len(f.State.Connections) == 1 && f.State.Connections[0].Score == 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	r1, ok := hub.GetRoom(room.KindGame, "r1")
	require.True(t, ok)
	snap, err := r1.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.ChatCount)

	r2, ok := hub.GetRoom(room.KindGeneric, "r2")
	require.True(t, ok)
	snap, err = r2.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ChatCount)
	assert.Equal(t, "generic:r2", snap.Key)

	keys, _ := archive.snapshot()
	assert.Equal(t, []string{"generic:r2"}, keys)
	assert.Len(t, hub.Rooms(), 2)
}
