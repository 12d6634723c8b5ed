package room

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync/atomic"
	"time"
)

// ErrRoomClosed 종료된 룸에 이벤트를 보낼 때
var ErrRoomClosed = errors.New("room closed")

// Peer 룸에 연결된 클라이언트 연결. Send는 블로킹하면 안 된다.
type Peer interface {
	ID() string
	Send(data []byte) bool
}

// Metadata 연결 시점에 전송 계층이 넘겨주는 정보
type Metadata struct {
	UserID string // 인증된 영속 사용자 ID (없을 수 있음)
}

type eventKind int

const (
	eventConnect eventKind = iota
	eventDisconnect
	eventMessage
	eventCall
)

type event struct {
	kind eventKind
	peer Peer
	meta Metadata
	raw  []byte
	fn   func()
	done chan struct{}
}

// member 룸에 연결된 연결과 그 연결이 가리키는 참가자 ID
type member struct {
	peer     Peer
	identity string
}

// Snapshot 룸 상태 복사본 (운영/테스트용)
type Snapshot struct {
	Key          string              `json:"key"`
	ID           string              `json:"id"`
	Kind         Kind                `json:"kind"`
	Connections  int                 `json:"connections"`
	Participants []Participant       `json:"participants"`
	ChatCount    int                 `json:"chatCount"`
	Tickets      map[string][]Ticket `json:"tickets"`
	Winners      map[string]Winner   `json:"winners"`
	Comments     []Comment           `json:"comments,omitempty"`
}

// Room 단일 룸 코디네이터. 모든 상태 변경은 run 고루틴 하나에서만 일어난다.
type Room struct {
	ID   string
	Kind Kind

	opts    Options
	state   *State
	members map[string]*member // connID -> member
	mailbox chan event
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	connCount  atomic.Int64
	emptySince atomic.Int64 // 연결이 0이 된 시각 (UnixNano), 연결 중이면 0
}

// New 룸 생성 (Start 전에는 이벤트를 처리하지 않는다)
func New(kind Kind, id string, opts Options) *Room {
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		ID:      id,
		Kind:    kind,
		opts:    opts,
		state:   NewState(),
		members: make(map[string]*member),
		mailbox: make(chan event, opts.MailboxSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	r.emptySince.Store(opts.Now().UnixNano())
	return r
}

// Key 허브에서 쓰는 룸 키 (kind:id)
func (r *Room) Key() string {
	return roomKey(r.Kind, r.ID)
}

// Start 룸 고루틴 시작
func (r *Room) Start() {
	go r.run()
}

// Shutdown 룸 고루틴을 멈추고 종료될 때까지 기다린다
func (r *Room) Shutdown() {
	r.cancel()
	<-r.done
}

// Done 룸 고루틴 종료 신호
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Connections 현재 연결 수
func (r *Room) Connections() int {
	return int(r.connCount.Load())
}

// IdleFor 연결이 없는 상태로 지난 시간. 연결이 있으면 false
func (r *Room) IdleFor(now time.Time) (time.Duration, bool) {
	if r.connCount.Load() > 0 {
		return 0, false
	}
	since := r.emptySince.Load()
	if since == 0 {
		return 0, false
	}
	return now.Sub(time.Unix(0, since)), true
}

// Connect 연결 등록
func (r *Room) Connect(p Peer, meta Metadata) error {
	return r.post(event{kind: eventConnect, peer: p, meta: meta})
}

// Disconnect 연결 해제
func (r *Room) Disconnect(p Peer) error {
	return r.post(event{kind: eventDisconnect, peer: p})
}

// Receive 연결에서 받은 원본 메시지 전달
func (r *Room) Receive(p Peer, raw []byte) error {
	return r.post(event{kind: eventMessage, peer: p, raw: raw})
}

// RemoveParticipant 참가자 레코드를 명시적으로 삭제하고 목록을 브로드캐스트한다
func (r *Room) RemoveParticipant(ctx context.Context, identity string) (bool, error) {
	var removed bool
	err := r.call(ctx, func() {
		removed = r.state.Remove(identity)
		if removed {
			log.Printf("[Room %s] Removed participant: %s", r.Key(), identity)
			r.broadcastRoster()
		}
	})
	return removed, err
}

// Snapshot 현재 상태 복사본
func (r *Room) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := r.call(ctx, func() {
		snap = Snapshot{
			Key:          r.Key(),
			ID:           r.ID,
			Kind:         r.Kind,
			Connections:  len(r.members),
			Participants: r.state.Roster(),
			ChatCount:    len(r.state.chat),
			Tickets:      r.state.AllTickets(),
			Winners:      r.state.AllWinners(),
		}
		if r.opts.Features.Comments {
			snap.Comments = r.state.Comments()
		}
	})
	return snap, err
}

// post 메일박스에 이벤트 추가 (가득 차면 대기)
func (r *Room) post(ev event) error {
	select {
	case <-r.ctx.Done():
		return ErrRoomClosed
	default:
	}

	select {
	case r.mailbox <- ev:
		return nil
	case <-r.ctx.Done():
		return ErrRoomClosed
	}
}

// call 룸 고루틴에서 fn을 실행하고 끝날 때까지 기다린다
func (r *Room) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := r.post(event{kind: eventCall, fn: fn, done: done}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRoomClosed
	}
}

// =============================================================================
// Room Goroutine
// =============================================================================

func (r *Room) run() {
	log.Printf("[Room %s] Coordinator started", r.Key())
	defer log.Printf("[Room %s] Coordinator stopped", r.Key())
	defer close(r.done)

	for {
		select {
		case <-r.ctx.Done():
			return
		case ev := <-r.mailbox:
			r.handle(ev)
		}
	}
}

// handle 이벤트 하나 처리. 패닉이 나도 룸은 계속 동작한다.
func (r *Room) handle(ev event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[Room %s] ⚠️ Recovered from panic: %v", r.Key(), rec)
		}
		if ev.done != nil {
			close(ev.done)
		}
	}()

	switch ev.kind {
	case eventConnect:
		r.handleConnect(ev.peer, ev.meta)
	case eventDisconnect:
		r.handleDisconnect(ev.peer)
	case eventMessage:
		r.handleMessage(ev.peer, ev.raw)
	case eventCall:
		ev.fn()
	}
}

func (r *Room) resolveIdentity(p Peer, meta Metadata) string {
	if !r.opts.Features.DurableIdentity {
		return p.ID()
	}
	if meta.UserID != "" {
		return meta.UserID
	}
	return IdentityNotFound
}

func (r *Room) handleConnect(p Peer, meta Metadata) {
	if _, exists := r.members[p.ID()]; exists {
		log.Printf("[Room %s] Duplicate connect ignored: %s", r.Key(), p.ID())
		return
	}

	identity := r.resolveIdentity(p, meta)
	r.members[p.ID()] = &member{peer: p, identity: identity}
	r.state.Join(identity, p.ID())
	r.trackConnections()

	log.Printf("[Room %s] Connected: %s (conn=%s), total: %d",
		r.Key(), identity, p.ID(), len(r.members))

	r.direct(p, ConnectionMessage{Type: MsgConnection, ID: identity})
	r.broadcastRoster()

	if r.opts.Features.Comments {
		r.direct(p, newCommentsMessage(r.state.Comments()))
		if r.state.HasVotes(identity) {
			r.direct(p, newUserVotesMessage(r.state.Votes(identity)))
		}
	}
	if r.opts.ReplayChat {
		r.direct(p, ChatHistoryMessage{Type: MsgChatHistory, Messages: r.state.Chat()})
	}
}

func (r *Room) handleDisconnect(p Peer) {
	m, ok := r.members[p.ID()]
	if !ok {
		return
	}

	delete(r.members, p.ID())
	r.state.Leave(m.identity, p.ID(), r.opts.Disconnect)
	r.trackConnections()

	log.Printf("[Room %s] Disconnected: %s (conn=%s, policy=%s), remaining: %d",
		r.Key(), m.identity, p.ID(), r.opts.Disconnect, len(r.members))

	r.broadcastRoster()
}

func (r *Room) handleMessage(p Peer, raw []byte) {
	m, ok := r.members[p.ID()]
	if !ok {
		log.Printf("[Room %s] Message from unknown connection dropped: %s", r.Key(), p.ID())
		return
	}

	cmd, err := ParseCommand(raw)
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			log.Printf("[Room %s] Malformed message from %s dropped: %v", r.Key(), m.identity, err)
			return
		}
		log.Printf("[Room %s] Rejected %s from %s: %v", r.Key(), cmd.CommandType(), m.identity, err)
		r.notifyRejected(m, cmd.CommandType(), ReasonInvalidPayload)
		return
	}

	res := r.dispatch(m, cmd)
	if res.Applied {
		return
	}

	log.Printf("[Room %s] Rejected %s from %s: %s", r.Key(), cmd.CommandType(), m.identity, res.Reason)
	if res.Reason != ReasonUnrecognized {
		r.notifyRejected(m, cmd.CommandType(), res.Reason)
	}
}

func (r *Room) trackConnections() {
	n := int64(len(r.members))
	r.connCount.Store(n)
	if n > 0 {
		r.emptySince.Store(0)
	} else if r.emptySince.Load() == 0 {
		r.emptySince.Store(r.opts.Now().UnixNano())
	}
}

// =============================================================================
// Outbound
// =============================================================================

func (r *Room) notifyRejected(m *member, command, reason string) {
	if !r.opts.NotifyRejections {
		return
	}
	r.direct(m.peer, RejectedMessage{Type: MsgRejected, Command: command, Reason: reason})
}

func (r *Room) broadcastRoster() {
	r.broadcast(newStateMessage(r.state.Roster()))
}

// broadcast 모든 연결에 전송 (직렬화는 한 번만)
func (r *Room) broadcast(msg Outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[Room %s] Failed to marshal %s: %v", r.Key(), msg.MessageType(), err)
		return
	}

	for _, m := range r.members {
		if !m.peer.Send(data) {
			log.Printf("[Room %s] Send buffer full, dropped %s for %s", r.Key(), msg.MessageType(), m.peer.ID())
		}
	}
}

// direct 하나의 연결에만 전송
func (r *Room) direct(p Peer, msg Outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[Room %s] Failed to marshal %s: %v", r.Key(), msg.MessageType(), err)
		return
	}

	if !p.Send(data) {
		log.Printf("[Room %s] Send buffer full, dropped %s for %s", r.Key(), msg.MessageType(), p.ID())
	}
}
