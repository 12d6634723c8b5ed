package cache

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"eventroom-backend/internal/room"
)

// chatAppender 채팅 보관소 쓰기 인터페이스 (RedisClient)
type chatAppender interface {
	AppendChat(ctx context.Context, roomKey string, msg room.ChatMessage, ttl time.Duration) error
}

type archiveEntry struct {
	roomKey string
	msg     room.ChatMessage
}

// ChatArchive 룸 고루틴 대신 Redis에 채팅을 쓰는 백그라운드 워커.
// Archive는 블로킹하지 않으며 큐가 가득 차면 버린다.
type ChatArchive struct {
	store   chatAppender
	ttl     time.Duration
	queue   chan archiveEntry
	done    chan struct{}
	written atomic.Uint64
	dropped atomic.Uint64
}

// NewChatArchive 워커 생성 (Run으로 시작)
func NewChatArchive(store chatAppender, bufferSize int, ttl time.Duration) *ChatArchive {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &ChatArchive{
		store: store,
		ttl:   ttl,
		queue: make(chan archiveEntry, bufferSize),
		done:  make(chan struct{}),
	}
}

// Archive room.ChatArchiver 구현
func (a *ChatArchive) Archive(roomKey string, msg room.ChatMessage) {
	select {
	case a.queue <- archiveEntry{roomKey: roomKey, msg: msg}:
	default:
		a.dropped.Add(1)
		log.Printf("[ChatArchive] Queue full, dropping message for %s", roomKey)
	}
}

// Run ctx가 끝날 때까지 큐를 처리하고, 끝나면 남은 항목을 비운 뒤 종료한다
func (a *ChatArchive) Run(ctx context.Context) {
	log.Printf("[ChatArchive] Worker started")
	defer close(a.done)
	defer log.Printf("[ChatArchive] Worker stopped (written=%d, dropped=%d)", a.written.Load(), a.dropped.Load())

	for {
		select {
		case <-ctx.Done():
			a.drain()
			return
		case e := <-a.queue:
			a.write(e)
		}
	}
}

// Done 워커 종료 신호
func (a *ChatArchive) Done() <-chan struct{} {
	return a.done
}

// Stats 기록/버린 메시지 수
func (a *ChatArchive) Stats() (written, dropped uint64) {
	return a.written.Load(), a.dropped.Load()
}

func (a *ChatArchive) drain() {
	for {
		select {
		case e := <-a.queue:
			a.write(e)
		default:
			return
		}
	}
}

func (a *ChatArchive) write(e archiveEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := a.store.AppendChat(ctx, e.roomKey, e.msg, a.ttl); err != nil {
		log.Printf("[ChatArchive] Failed to save chat for %s: %v", e.roomKey, err)
		return
	}
	a.written.Add(1)
}
