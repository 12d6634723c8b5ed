package session

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// State WebSocket 연결 상태
type State int

const (
	StateOpen   State = iota // 송신 가능
	StateClosed              // 연결 종료
)

// Conn 세션이 사용하는 WebSocket 쓰기 인터페이스
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

// Session 클라이언트 세션 (Thread-Safe). 룸에서는 Peer로 쓰인다.
type Session struct {
	id          string
	UserID      string // 인증된 사용자 ID (없으면 빈 문자열)
	ConnectedAt time.Time

	conn         Conn
	writeTimeout time.Duration

	// 동시성 제어
	mu    sync.RWMutex
	state State

	// 비동기 송신
	send chan []byte

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// New 새 세션 생성
func New(conn Conn, bufferSize int, writeTimeout time.Duration) *Session {
	if bufferSize <= 0 {
		bufferSize = 64
	}

	return &Session{
		id:           uuid.New().String(),
		ConnectedAt:  time.Now(),
		conn:         conn,
		writeTimeout: writeTimeout,
		state:        StateOpen,
		send:         make(chan []byte, bufferSize),
	}
}

// ID 연결 ID
func (s *Session) ID() string {
	return s.id
}

// Send 송신 큐에 추가. 큐가 가득 찼거나 닫혔으면 false (블로킹하지 않음)
func (s *Session) Send(data []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == StateClosed {
		return false
	}

	select {
	case s.send <- data:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// WritePump 송신 큐를 비우며 WebSocket에 쓴다. 세션이 닫힐 때까지 블로킹
func (s *Session) WritePump() {
	defer log.Printf("[Session %s] Write pump stopped (sent=%d, dropped=%d)",
		s.id, s.sent.Load(), s.dropped.Load())

	for data := range s.send {
		if s.writeTimeout > 0 {
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		}
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[Session %s] ❌ Write failed: %v", s.id, err)
			s.Close()
			return
		}
		s.sent.Add(1)
	}
}

// GetStats 통계 조회
func (s *Session) GetStats() (sent, dropped uint64) {
	return s.sent.Load(), s.dropped.Load()
}

// Duration 연결 유지 시간
func (s *Session) Duration() time.Duration {
	return time.Since(s.ConnectedAt)
}

// Close 세션 정리 (여러 번 호출해도 안전)
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}

	s.state = StateClosed
	close(s.send)
}
