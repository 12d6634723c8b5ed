package room

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Hub - 룸 레지스트리 (룸 ID당 코디네이터 하나)
// =============================================================================

// Hub manages all rooms
type Hub struct {
	rooms   map[string]*Room
	mu      sync.RWMutex
	options OptionsFunc
	now     func() time.Time
}

// Info 룸 목록 항목
type Info struct {
	Key         string `json:"key"`
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	Connections int    `json:"connections"`
}

func roomKey(kind Kind, id string) string {
	return string(kind) + ":" + id
}

// KeyOf 룸 종류와 ID로 레지스트리 키 생성
func KeyOf(kind Kind, id string) string {
	return roomKey(kind, id)
}

// NewHub creates a new Hub. options가 nil이면 DefaultOptions 사용
func NewHub(options OptionsFunc) *Hub {
	if options == nil {
		options = DefaultOptions
	}
	return &Hub{
		rooms:   make(map[string]*Room),
		options: options,
		now:     time.Now,
	}
}

// GetOrCreateRoom gets an existing room or creates and starts a new one
func (h *Hub) GetOrCreateRoom(kind Kind, roomID string) *Room {
	key := roomKey(kind, roomID)

	h.mu.RLock()
	room, exists := h.rooms[key]
	h.mu.RUnlock()
	if exists {
		return room
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if room, exists := h.rooms[key]; exists {
		return room
	}

	room = New(kind, roomID, h.options(kind))
	room.Start()
	h.rooms[key] = room
	log.Printf("[RoomHub] Created room: %s", key)

	return room
}

// GetRoom 기존 룸 조회
func (h *Hub) GetRoom(kind Kind, roomID string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, exists := h.rooms[roomKey(kind, roomID)]
	return room, exists
}

// RemoveRoom shuts down and removes a room
func (h *Hub) RemoveRoom(kind Kind, roomID string) bool {
	key := roomKey(kind, roomID)

	h.mu.Lock()
	room, exists := h.rooms[key]
	if exists {
		delete(h.rooms, key)
	}
	h.mu.Unlock()

	if !exists {
		return false
	}

	room.Shutdown()
	log.Printf("[RoomHub] Removed room: %s", key)
	return true
}

// Forget 레지스트리의 항목이 아직 rm일 때만 제거 (이미 교체된 룸은 건드리지 않음)
func (h *Hub) Forget(rm *Room) bool {
	key := rm.Key()

	h.mu.Lock()
	current, exists := h.rooms[key]
	if exists && current == rm {
		delete(h.rooms, key)
	}
	h.mu.Unlock()

	return exists && current == rm
}

// Rooms 현재 룸 목록 (키 순 정렬)
func (h *Hub) Rooms() []Info {
	h.mu.RLock()
	infos := make([]Info, 0, len(h.rooms))
	for key, room := range h.rooms {
		infos = append(infos, Info{
			Key:         key,
			ID:          room.ID,
			Kind:        room.Kind,
			Connections: room.Connections(),
		})
	}
	h.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

// =============================================================================
// Cleanup
// =============================================================================

// CleanupInactiveRooms removes rooms that have had no connections for longer than maxIdle
func (h *Hub) CleanupInactiveRooms(maxIdle time.Duration) int {
	now := h.now()

	h.mu.Lock()
	stale := make([]*Room, 0)
	for key, room := range h.rooms {
		idle, ok := room.IdleFor(now)
		if ok && idle >= maxIdle {
			stale = append(stale, room)
			delete(h.rooms, key)
		}
	}
	h.mu.Unlock()

	for _, room := range stale {
		room.Shutdown()
		log.Printf("[RoomHub] Cleaned up inactive room: %s", room.Key())
	}
	return len(stale)
}

// RunJanitor interval마다 비활성 룸 정리. ctx가 끝나면 종료
func (h *Hub) RunJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 || maxIdle <= 0 {
		log.Printf("[RoomHub] Idle eviction disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[RoomHub] Janitor started (interval=%s, idle=%s)", interval, maxIdle)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[RoomHub] Janitor stopped")
			return
		case <-ticker.C:
			if n := h.CleanupInactiveRooms(maxIdle); n > 0 {
				log.Printf("[RoomHub] Evicted %d idle rooms", n)
			}
		}
	}
}

// Shutdown 모든 룸 종료
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, room)
	}
	h.rooms = make(map[string]*Room)
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, room := range rooms {
			room.Shutdown()
		}
		close(done)
	}()

	select {
	case <-done:
		log.Printf("[RoomHub] ✅ All rooms shut down (%d)", len(rooms))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
