package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePeer 전송된 프레임을 기록하는 테스트용 연결
type fakePeer struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.full {
		return false
	}
	p.frames = append(p.frames, data)
	return true
}

func (p *fakePeer) messages(t *testing.T) []map[string]any {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]map[string]any, 0, len(p.frames))
	for _, f := range p.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func (p *fakePeer) ofType(t *testing.T, msgType string) []map[string]any {
	t.Helper()
	out := make([]map[string]any, 0)
	for _, m := range p.messages(t) {
		if m["type"] == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (p *fakePeer) last(t *testing.T, msgType string) map[string]any {
	t.Helper()
	msgs := p.ofType(t, msgType)
	require.NotEmpty(t, msgs, "no %s message", msgType)
	return msgs[len(msgs)-1]
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = nil
}

func newTestRoom(t *testing.T, kind Kind, mutate func(*Options)) *Room {
	t.Helper()

	opts := DefaultOptions(kind)
	if mutate != nil {
		mutate(&opts)
	}
	r := New(kind, "test", opts)
	r.Start()
	t.Cleanup(r.Shutdown)
	return r
}

// flush 이전에 보낸 이벤트가 모두 처리될 때까지 대기
func flush(t *testing.T, r *Room) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	return snap
}

func send(t *testing.T, r *Room, p Peer, raw string) {
	t.Helper()
	require.NoError(t, r.Receive(p, []byte(raw)))
}

func connect(t *testing.T, r *Room, p Peer, userID string) {
	t.Helper()
	require.NoError(t, r.Connect(p, Metadata{UserID: userID}))
}

func rosterOf(t *testing.T, msg map[string]any) []map[string]any {
	t.Helper()
	state, ok := msg["state"].(map[string]any)
	require.True(t, ok)
	conns, ok := state["connections"].([]any)
	require.True(t, ok)

	out := make([]map[string]any, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.(map[string]any))
	}
	return out
}

func TestRoom_ConnectSendsIdentityAndRoster(t *testing.T) {
	r := newTestRoom(t, KindGame, nil)
	a := newFakePeer("conn-a")
	b := newFakePeer("conn-b")

	connect(t, r, a, "")
	connect(t, r, b, "")
	flush(t, r)

	msgs := a.messages(t)
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, MsgConnection, msgs[0]["type"])
	assert.Equal(t, "conn-a", msgs[0]["id"])

	// a도 b의 입장으로 인한 roster를 받는다
	assert.Len(t, rosterOf(t, a.last(t, MsgState)), 2)
	assert.Len(t, rosterOf(t, b.last(t, MsgState)), 2)
	assert.Len(t, a.ofType(t, MsgConnection), 1)
}

func TestRoom_RosterConsistency(t *testing.T) {
	r := newTestRoom(t, KindGame, nil)
	a := newFakePeer("a")
	b := newFakePeer("b")

	connect(t, r, a, "")
	connect(t, r, b, "")
	send(t, r, a, `{"type":"updateName","name":"Alice","contact":"alice@example.com"}`)
	send(t, r, a, `{"type":"counter"}`)
	send(t, r, a, `{"type":"counter"}`)
	send(t, r, b, `{"type":"updateName","name":"Bob"}`)
	require.NoError(t, r.Disconnect(b))

	late := newFakePeer("late")
	connect(t, r, late, "")
	flush(t, r)

	roster := rosterOf(t, late.last(t, MsgState))
	require.Len(t, roster, 3)

	byID := make(map[string]map[string]any)
	for _, p := range roster {
		byID[p["id"].(string)] = p
	}
	assert.Equal(t, "Alice", byID["a"]["name"])
	assert.Equal(t, float64(2), byID["a"]["score"])
	assert.Equal(t, "alice@example.com", byID["a"]["contact"])
	assert.Equal(t, "Bob", byID["b"]["name"])
	assert.Equal(t, "", byID["b"]["contact"])
	assert.Equal(t, false, byID["b"]["online"])
	assert.Equal(t, true, byID["late"]["online"])
}

func TestRoom_DisconnectPolicy(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		wantLeft int
	}{
		{name: "game retains", kind: KindGame, wantLeft: 2},
		{name: "generic removes", kind: KindGeneric, wantLeft: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRoom(t, tt.kind, nil)
			a := newFakePeer("a")
			b := newFakePeer("b")

			connect(t, r, a, "")
			connect(t, r, b, "")
			require.NoError(t, r.Disconnect(b))
			flush(t, r)

			assert.Len(t, rosterOf(t, a.last(t, MsgState)), tt.wantLeft)
		})
	}
}

func TestRoom_DurableIdentity(t *testing.T) {
	r := newTestRoom(t, KindChosen, nil)
	first := newFakePeer("conn-1")

	connect(t, r, first, "user-42")
	send(t, r, first, `{"type":"counter"}`)
	require.NoError(t, r.Disconnect(first))

	second := newFakePeer("conn-2")
	connect(t, r, second, "user-42")
	snap := flush(t, r)

	assert.Equal(t, "user-42", second.ofType(t, MsgConnection)[0]["id"])
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, "user-42", snap.Participants[0].ID)
	assert.Equal(t, 1, snap.Participants[0].Score)
}

func TestRoom_DurableIdentityMissingMetadata(t *testing.T) {
	r := newTestRoom(t, KindChosen, nil)
	p := newFakePeer("conn-1")

	connect(t, r, p, "")
	flush(t, r)

	assert.Equal(t, IdentityNotFound, p.ofType(t, MsgConnection)[0]["id"])
}

func TestRoom_ChatBroadcast(t *testing.T) {
	r := newTestRoom(t, KindGame, nil)
	a := newFakePeer("a")
	b := newFakePeer("b")

	connect(t, r, a, "")
	connect(t, r, b, "")
	send(t, r, a, `{"type":"updateName","name":"Alice"}`)
	send(t, r, a, `{"type":"chat","text":"hello"}`)
	send(t, r, b, `{"type":"chat"}`)
	send(t, r, b, `{"type":"chat","text":123}`)
	flush(t, r)

	chats := b.ofType(t, MsgChat)
	require.Len(t, chats, 3)

	first := chats[0]["message"].(map[string]any)
	assert.Equal(t, "Alice", first["sender"])
	assert.Equal(t, "hello", first["text"])
	assert.NotEmpty(t, first["id"])

	second := chats[1]["message"].(map[string]any)
	assert.Equal(t, "b", second["sender"])
	assert.Equal(t, "", second["text"])

	third := chats[2]["message"].(map[string]any)
	assert.Equal(t, "", third["text"])
}

func TestRoom_MalformedInputResilience(t *testing.T) {
	r := newTestRoom(t, KindGame, nil)
	a := newFakePeer("a")
	b := newFakePeer("b")

	connect(t, r, a, "")
	connect(t, r, b, "")
	flush(t, r)
	a.reset()
	b.reset()

	send(t, r, a, `this is not json`)
	send(t, r, a, `{"type":"chat","text":"still here"}`)
	flush(t, r)

	for _, p := range []*fakePeer{a, b} {
		msgs := p.messages(t)
		require.Len(t, msgs, 1)
		assert.Equal(t, MsgChat, msgs[0]["type"])
	}
}

func TestRoom_TicketReplace(t *testing.T) {
	r := newTestRoom(t, KindGame, nil)
	a := newFakePeer("a")

	connect(t, r, a, "")
	send(t, r, a, `{"type":"updateTickets","eventId":"E1","tickets":[{"userId":"u1","ticketNumber":"000001","name":"A"},{"userId":"u2","ticketNumber":"000002","name":"B"}]}`)
	send(t, r, a, `{"type":"updateTickets","eventId":"E1","tickets":[{"userId":"u3","ticketNumber":"000003","name":"C"}]}`)
	snap := flush(t, r)

	assert.Equal(t, []Ticket{{UserID: "u3", TicketNumber: "000003", Name: "C"}}, snap.Tickets["E1"])

	updates := a.ofType(t, MsgTicketsUpdate)
	require.Len(t, updates, 2)
	assert.Equal(t, "E1", updates[1]["eventId"])
	assert.Len(t, updates[1]["tickets"], 1)
}

func TestRoom_StartWinnerSelectionRelaysTickets(t *testing.T) {
	r := newTestRoom(t, KindGame, nil)
	a := newFakePeer("a")
	b := newFakePeer("b")

	connect(t, r, a, "")
	connect(t, r, b, "")
	send(t, r, a, `{"type":"startWinnerSelection","eventId":"E9"}`)
	send(t, r, a, `{"type":"updateTickets","eventId":"E1","tickets":[{"userId":"u1","ticketNumber":"000001"}]}`)
	send(t, r, a, `{"type":"startWinnerSelection","eventId":"E1"}`)
	flush(t, r)

	starts := b.ofType(t, MsgWinnerSelectionStart)
	require.Len(t, starts, 2)
	assert.Equal(t, "E9", starts[0]["eventId"])
	assert.Equal(t, []any{}, starts[0]["tickets"])
	assert.Len(t, starts[1]["tickets"], 1)
}

func TestRoom_WinnerAnnounceRelay(t *testing.T) {
	r := newTestRoom(t, KindGame, nil)
	a := newFakePeer("a")
	b := newFakePeer("b")

	connect(t, r, a, "")
	connect(t, r, b, "")
	send(t, r, a, `{"type":"winnerAnnounce","eventId":"E1","winner":{"userId":"U1","ticketNumber":"000123","name":"Alice"}}`)

	late := newFakePeer("late")
	connect(t, r, late, "")
	snap := flush(t, r)

	want := map[string]any{
		"type":    MsgWinnerSelected,
		"eventId": "E1",
		"winner": map[string]any{
			"userId":       "U1",
			"ticketNumber": "000123",
			"name":         "Alice",
		},
	}
	for _, p := range []*fakePeer{a, b} {
		got := p.ofType(t, MsgWinnerSelected)
		require.Len(t, got, 1)
		assert.Equal(t, want, got[0])
	}

	assert.Empty(t, late.ofType(t, MsgWinnerSelected))
	assert.Equal(t, Winner{UserID: "U1", TicketNumber: "000123", Name: "Alice"}, snap.Winners["E1"])
}

func TestRoom_EmptyTypeIsIgnored(t *testing.T) {
	r := newTestRoom(t, KindGame, func(o *Options) { o.NotifyRejections = true })
	a := newFakePeer("a")

	connect(t, r, a, "")
	flush(t, r)
	a.reset()

	send(t, r, a, `{"type":"","eventId":"E1","winner":{"userId":"U1","ticketNumber":"1"}}`)
	snap := flush(t, r)

	assert.Empty(t, a.messages(t))
	assert.Empty(t, snap.Winners)
}

func TestRoom_IdempotentCommentSeeding(t *testing.T) {
	r := newTestRoom(t, KindChosen, nil)
	a := newFakePeer("a")

	connect(t, r, a, "user-a")
	send(t, r, a, `{"type":"setComments","comments":[{"id":"a","text":"first","author":"x","score":0}]}`)
	send(t, r, a, `{"type":"setComments","comments":[{"id":"b","text":"second","author":"y","score":0}]}`)
	snap := flush(t, r)

	require.Len(t, snap.Comments, 1)
	assert.Equal(t, "a", snap.Comments[0].ID)

	// 연결 시 1회 + 첫 seed 브로드캐스트 1회
	assert.Len(t, a.ofType(t, MsgComments), 2)
}

func TestRoom_VoteMonotonicityAndFloor(t *testing.T) {
	r := newTestRoom(t, KindChosen, nil)
	a := newFakePeer("conn-a")
	b := newFakePeer("conn-b")

	connect(t, r, a, "A")
	connect(t, r, b, "B")
	send(t, r, a, `{"type":"setComments","comments":[{"id":"c1","text":"t","author":"x","score":0}]}`)

	steps := []struct {
		peer  *fakePeer
		raw   string
		score int
	}{
		{a, `{"type":"vote","commentId":"c1","isUpvote":true}`, 1},
		{a, `{"type":"vote","commentId":"c1","isUpvote":true}`, 1},
		{b, `{"type":"vote","commentId":"c1","isUpvote":false}`, 1},
		{a, `{"type":"vote","commentId":"c1","isUpvote":false}`, 0},
	}

	for i, step := range steps {
		send(t, r, step.peer, step.raw)
		snap := flush(t, r)
		require.Len(t, snap.Comments, 1)
		assert.Equal(t, step.score, snap.Comments[0].Score, "step %d", i)
	}

	// no-op 투표도 송신자에게 userVotes direct 1회
	votes := a.ofType(t, MsgUserVotes)
	require.Len(t, votes, 3)
	assert.Equal(t, []any{"c1"}, votes[0]["votes"])
	assert.Equal(t, []any{"c1"}, votes[1]["votes"])
	assert.Equal(t, []any{}, votes[2]["votes"])

	bVotes := b.ofType(t, MsgUserVotes)
	require.Len(t, bVotes, 1)
	assert.Equal(t, []any{}, bVotes[0]["votes"])
}

func TestRoom_NegativeSeedScoreIsRejected(t *testing.T) {
	r := newTestRoom(t, KindChosen, nil)
	a := newFakePeer("a")

	connect(t, r, a, "A")
	send(t, r, a, `{"type":"setComments","comments":[{"id":"c1","text":"t","score":-2}]}`)
	snap := flush(t, r)
	assert.Empty(t, snap.Comments)

	// 거절된 시드는 최초 설정으로 치지 않는다
	send(t, r, a, `{"type":"setComments","comments":[{"id":"c1","text":"t","score":2}]}`)
	snap = flush(t, r)
	require.Len(t, snap.Comments, 1)
	assert.Equal(t, 2, snap.Comments[0].Score)
}

func TestRoom_NoopVoteStillBroadcastsComments(t *testing.T) {
	r := newTestRoom(t, KindChosen, nil)
	a := newFakePeer("conn-a")
	b := newFakePeer("conn-b")

	connect(t, r, a, "A")
	connect(t, r, b, "B")
	send(t, r, a, `{"type":"setComments","comments":[{"id":"c1","text":"t","author":"x"}]}`)
	flush(t, r)
	a.reset()
	b.reset()

	send(t, r, b, `{"type":"vote","commentId":"c1","isUpvote":false}`)
	flush(t, r)

	require.Len(t, a.ofType(t, MsgComments), 1)
	comments := b.ofType(t, MsgComments)
	require.Len(t, comments, 1)
	require.Len(t, b.ofType(t, MsgUserVotes), 1)
	assert.Empty(t, a.ofType(t, MsgUserVotes))

	// 없는 댓글은 응답 없음
	a.reset()
	b.reset()
	send(t, r, b, `{"type":"vote","commentId":"missing","isUpvote":true}`)
	flush(t, r)
	assert.Empty(t, a.ofType(t, MsgComments))
	assert.Empty(t, b.ofType(t, MsgUserVotes))
}

func TestRoom_ReconnectReceivesVotes(t *testing.T) {
	r := newTestRoom(t, KindChosen, nil)
	a := newFakePeer("conn-1")

	connect(t, r, a, "A")
	send(t, r, a, `{"type":"setComments","comments":[{"id":"c1","text":"t","author":"x"}]}`)
	send(t, r, a, `{"type":"vote","commentId":"c1","isUpvote":true}`)
	require.NoError(t, r.Disconnect(a))

	again := newFakePeer("conn-2")
	connect(t, r, again, "A")
	flush(t, r)

	msgs := again.messages(t)
	types := make([]any, 0, len(msgs))
	for _, m := range msgs {
		types = append(types, m["type"])
	}
	assert.Equal(t, []any{MsgConnection, MsgState, MsgComments, MsgUserVotes}, types)
	assert.Equal(t, []any{"c1"}, msgs[3]["votes"])
}

func TestRoom_GetCommentsAndVotesAreDirect(t *testing.T) {
	r := newTestRoom(t, KindChosen, nil)
	a := newFakePeer("a")
	b := newFakePeer("b")

	connect(t, r, a, "A")
	connect(t, r, b, "B")
	flush(t, r)
	a.reset()
	b.reset()

	send(t, r, a, `{"type":"getComments"}`)
	send(t, r, a, `{"type":"getUserVotes"}`)
	flush(t, r)

	assert.Len(t, a.ofType(t, MsgComments), 1)
	assert.Equal(t, []any{}, a.last(t, MsgUserVotes)["votes"])
	assert.Empty(t, b.messages(t))
}

func TestRoom_CommentCommandsDisabledOutsideChosen(t *testing.T) {
	r := newTestRoom(t, KindGame, func(o *Options) { o.NotifyRejections = true })
	a := newFakePeer("a")

	connect(t, r, a, "")
	send(t, r, a, `{"type":"setComments","comments":[{"id":"c1"}]}`)
	snap := flush(t, r)

	assert.Empty(t, snap.Comments)
	rejected := a.last(t, MsgRejected)
	assert.Equal(t, TypeSetComments, rejected["command"])
	assert.Equal(t, ReasonFeatureDisabled, rejected["reason"])
}

func TestRoom_RejectionsSilentByDefault(t *testing.T) {
	r := newTestRoom(t, KindGame, nil)
	a := newFakePeer("a")

	connect(t, r, a, "")
	flush(t, r)
	a.reset()

	send(t, r, a, `{"type":"updateName"}`)
	send(t, r, a, `{"type":"setComments","comments":[]}`)
	flush(t, r)

	assert.Empty(t, a.messages(t))
}

func TestRoom_NotifyRejectionsInvalidPayload(t *testing.T) {
	r := newTestRoom(t, KindGame, func(o *Options) { o.NotifyRejections = true })
	a := newFakePeer("a")

	connect(t, r, a, "")
	send(t, r, a, `{"type":"updateName"}`)
	flush(t, r)

	rejected := a.last(t, MsgRejected)
	assert.Equal(t, TypeUpdateName, rejected["command"])
	assert.Equal(t, ReasonInvalidPayload, rejected["reason"])
}

func TestRoom_CounterAfterRemoval(t *testing.T) {
	r := newTestRoom(t, KindGame, func(o *Options) { o.NotifyRejections = true })
	a := newFakePeer("a")

	connect(t, r, a, "")
	flush(t, r)

	removed, err := r.RemoveParticipant(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, removed)

	send(t, r, a, `{"type":"counter"}`)
	snap := flush(t, r)

	assert.Empty(t, snap.Participants)
	assert.Equal(t, ReasonNoParticipant, a.last(t, MsgRejected)["reason"])
}

func TestRoom_RemoveUnknownParticipant(t *testing.T) {
	r := newTestRoom(t, KindGame, nil)

	removed, err := r.RemoveParticipant(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRoom_ReplayChat(t *testing.T) {
	r := newTestRoom(t, KindGame, func(o *Options) { o.ReplayChat = true })
	a := newFakePeer("a")

	connect(t, r, a, "")
	send(t, r, a, `{"type":"chat","text":"one"}`)
	send(t, r, a, `{"type":"chat","text":"two"}`)

	late := newFakePeer("late")
	connect(t, r, late, "")
	flush(t, r)

	history := late.last(t, MsgChatHistory)
	assert.Len(t, history["messages"], 2)
}

type recordingArchiver struct {
	mu   sync.Mutex
	keys []string
	msgs []ChatMessage
}

func (a *recordingArchiver) Archive(roomKey string, msg ChatMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, roomKey)
	a.msgs = append(a.msgs, msg)
}

func TestRoom_ChatIsArchived(t *testing.T) {
	archiver := &recordingArchiver{}
	r := newTestRoom(t, KindGame, func(o *Options) { o.Archiver = archiver })
	a := newFakePeer("a")

	connect(t, r, a, "")
	send(t, r, a, `{"type":"chat","text":"keep me"}`)
	flush(t, r)

	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	require.Len(t, archiver.msgs, 1)
	assert.Equal(t, "game:test", archiver.keys[0])
	assert.Equal(t, "keep me", archiver.msgs[0].Text)
}

func TestRoom_FullPeerDoesNotBlockOthers(t *testing.T) {
	r := newTestRoom(t, KindGame, nil)
	slow := newFakePeer("slow")
	fast := newFakePeer("fast")

	connect(t, r, slow, "")
	connect(t, r, fast, "")
	flush(t, r)

	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	send(t, r, fast, `{"type":"chat","text":"hi"}`)
	flush(t, r)

	assert.Len(t, fast.ofType(t, MsgChat), 1)
	assert.Empty(t, slow.ofType(t, MsgChat))
}

func TestRoom_ClosedRoomRejectsEvents(t *testing.T) {
	r := New(KindGame, "closed", DefaultOptions(KindGame))
	r.Start()
	r.Shutdown()

	assert.ErrorIs(t, r.Connect(newFakePeer("a"), Metadata{}), ErrRoomClosed)
	_, err := r.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestRoom_IdleTracking(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := newTestRoom(t, KindGame, func(o *Options) { o.Now = func() time.Time { return now } })

	idle, ok := r.IdleFor(now.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, time.Minute, idle)

	a := newFakePeer("a")
	connect(t, r, a, "")
	flush(t, r)

	_, ok = r.IdleFor(now)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Connections())

	require.NoError(t, r.Disconnect(a))
	flush(t, r)

	_, ok = r.IdleFor(now)
	assert.True(t, ok)
}
