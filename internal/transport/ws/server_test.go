package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"riftgate.ai/internal/affinity"
	"riftgate.ai/internal/protocol"
	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/engine"
)

type fakeBackend struct {
	srv *Server

	mu      sync.Mutex
	actions []engine.Action
	logouts []uuid.UUID
	busy    bool
}

func (b *fakeBackend) Login(_ context.Context, player uuid.UUID, _ string) (engine.LoginResult, error) {
	entries := []affinity.Entry{{Affinity: affinity.Void}}
	b.srv.AffinityChanged(player, 7, entries)
	return engine.LoginResult{Player: player, Realm: realm.Overworld, Tick: 7, Entries: entries}, nil
}

func (b *fakeBackend) Logout(player uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logouts = append(b.logouts, player)
}

func (b *fakeBackend) Submit(a engine.Action) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.busy {
		return engine.ErrBusy
	}
	b.actions = append(b.actions, a)
	return nil
}

func (b *fakeBackend) snapshot() ([]engine.Action, []uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]engine.Action(nil), b.actions...), append([]uuid.UUID(nil), b.logouts...)
}

func startServer(t *testing.T) (*fakeBackend, *Server, string) {
	t.Helper()
	b := &fakeBackend{}
	srv := NewServer(b, Options{Params: protocol.WorldParams{TickRateHz: 20, ChunkSize: 16}}, zerolog.Nop())
	b.srv = srv
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return b, srv, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readType(t *testing.T, conn *websocket.Conn, out any) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != nil {
		if err := json.Unmarshal(msg, out); err != nil {
			t.Fatalf("unmarshal %s: %v", base.Type, err)
		}
	}
	return base.Type
}

func hello(t *testing.T, conn *websocket.Conn, player uuid.UUID) protocol.WelcomeMsg {
	t.Helper()
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerID: player.String(), PlayerName: "alice"}); err != nil {
		t.Fatalf("hello: %v", err)
	}
	var w protocol.WelcomeMsg
	if typ := readType(t, conn, &w); typ != protocol.TypeWelcome {
		t.Fatalf("first message = %s, want WELCOME", typ)
	}
	return w
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandshakeWelcomesThenSendsAffinities(t *testing.T) {
	_, _, url := startServer(t)
	conn := dial(t, url)
	player := uuid.New()

	w := hello(t, conn, player)
	if w.PlayerID != player.String() || w.CurrentRealm != string(realm.Overworld) || w.ServerTick != 7 {
		t.Fatalf("welcome = %+v", w)
	}
	if w.SessionID == "" || w.Params.TickRateHz != 20 {
		t.Fatalf("welcome missing session or params: %+v", w)
	}

	var ch protocol.AffinityChangedMsg
	if typ := readType(t, conn, &ch); typ != protocol.TypeAffinityChanged {
		t.Fatalf("second message = %s, want AFFINITY_CHANGED", typ)
	}
	es, err := protocol.DecodeEntries(ch.Entries)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(es) != 1 || es[0].Affinity != affinity.Void {
		t.Fatalf("entries = %+v", es)
	}
}

func TestHandshakeRejectsBadHello(t *testing.T) {
	_, srv, url := startServer(t)
	cases := []any{
		protocol.OpenAffinityUIMsg{Type: protocol.TypeOpenAffinityUI, ProtocolVersion: protocol.Version},
		protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "0.1", PlayerID: uuid.NewString()},
		protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerID: "not-a-uuid"},
	}
	for i, m := range cases {
		conn := dial(t, url)
		if err := conn.WriteJSON(m); err != nil {
			t.Fatalf("case %d: write: %v", i, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, _, err := conn.ReadMessage()
		if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			t.Fatalf("case %d: err = %v, want policy violation close", i, err)
		}
	}
	if n := srv.Sessions(); n != 0 {
		t.Fatalf("sessions = %d, want 0", n)
	}
}

func TestClientMessagesBecomeActions(t *testing.T) {
	b, _, url := startServer(t)
	conn := dial(t, url)
	player := uuid.New()
	hello(t, conn, player)
	readType(t, conn, nil) // AFFINITY_CHANGED

	msgs := []any{
		protocol.OpenAffinityUIMsg{Type: protocol.TypeOpenAffinityUI, ProtocolVersion: protocol.Version, ReqID: "r1"},
		protocol.UseStaffMsg{Type: protocol.TypeUseStaff, ProtocolVersion: protocol.Version, Facing: [3]int{1, 0, 0}},
		protocol.ConsumeItemMsg{Type: protocol.TypeConsumeItem, ProtocolVersion: protocol.Version, Item: protocol.ItemAffinityTome, Affinity: "FIRE"},
		protocol.MoveMsg{Type: protocol.TypeMove, ProtocolVersion: protocol.Version, Pos: [3]int{4, 65, -2}},
	}
	for _, m := range msgs {
		if err := conn.WriteJSON(m); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	waitFor(t, func() bool {
		acts, _ := b.snapshot()
		return len(acts) == 4
	})
	acts, _ := b.snapshot()
	want := []engine.ActionKind{engine.ActOpenAffinityUI, engine.ActUseStaff, engine.ActConsumeItem, engine.ActMove}
	for i, a := range acts {
		if a.Kind != want[i] || a.Player != player {
			t.Fatalf("action %d = %+v, want kind %s", i, a, want[i])
		}
	}
	if acts[0].ReqID != "r1" || acts[1].Facing != [3]int{1, 0, 0} || acts[2].Affinity != "FIRE" {
		t.Fatalf("fields not carried: %+v", acts)
	}
	if acts[3].Pos.X != 4 || acts[3].Pos.Y != 65 || acts[3].Pos.Z != -2 {
		t.Fatalf("move pos = %+v", acts[3].Pos)
	}
}

func TestRejectedRequestsReplyWithMessage(t *testing.T) {
	b, _, url := startServer(t)
	conn := dial(t, url)
	hello(t, conn, uuid.New())
	readType(t, conn, nil)

	_ = conn.WriteJSON(map[string]string{"type": "DANCE", "protocol_version": protocol.Version})
	var m protocol.MessageMsg
	if typ := readType(t, conn, &m); typ != protocol.TypeMessage || m.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("unknown type reply = %s %+v", typ, m)
	}

	b.mu.Lock()
	b.busy = true
	b.mu.Unlock()
	_ = conn.WriteJSON(protocol.OpenAffinityUIMsg{Type: protocol.TypeOpenAffinityUI, ProtocolVersion: protocol.Version})
	if typ := readType(t, conn, &m); typ != protocol.TypeMessage || m.Code != protocol.ErrBusy {
		t.Fatalf("busy reply = %s %+v", typ, m)
	}
}

func TestDisconnectLogsOut(t *testing.T) {
	b, srv, url := startServer(t)
	conn := dial(t, url)
	player := uuid.New()
	hello(t, conn, player)
	_ = conn.Close()

	waitFor(t, func() bool {
		_, outs := b.snapshot()
		return len(outs) == 1
	})
	_, outs := b.snapshot()
	if outs[0] != player {
		t.Fatalf("logout = %s, want %s", outs[0], player)
	}
	waitFor(t, func() bool { return srv.Sessions() == 0 })

	// Messages to an offline player are dropped.
	srv.Message(player, protocol.ErrBusy, "ignored")
}

func TestNewerSessionReplacesOlder(t *testing.T) {
	b, srv, url := startServer(t)
	player := uuid.New()
	first := dial(t, url)
	hello(t, first, player)
	readType(t, first, nil)

	second := dial(t, url)
	hello(t, second, player)

	_ = first.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := first.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("first session err = %v, want policy violation close", err)
	}
	if n := srv.Sessions(); n != 1 {
		t.Fatalf("sessions = %d, want 1", n)
	}
	time.Sleep(50 * time.Millisecond)
	if _, outs := b.snapshot(); len(outs) != 0 {
		t.Fatalf("replaced session logged the player out: %v", outs)
	}
}
