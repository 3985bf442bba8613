// Package enginetest drives a full engine on the in-process host for black-box tests.
package enginetest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"riftgate.ai/internal/affinity"
	"riftgate.ai/internal/persistence/globaldb"
	"riftgate.ai/internal/portal"
	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/engine"
	"riftgate.ai/internal/sim/geom"
	"riftgate.ai/internal/sim/host"
	"riftgate.ai/internal/sim/realms"
	"riftgate.ai/internal/sim/tuning"
)

type Options struct {
	Tuning *tuning.Tuning
	Realms *realms.Config
	Seed   int64
	// DBPath reuses a global store across harnesses; empty means a fresh temp file.
	DBPath    string
	MaxRealms int
}

// Harness owns a host, a global store and an engine. Everything is driven through StepOnce.
type Harness struct {
	T         *testing.T
	Host      *host.Host
	Engine    *engine.Engine
	Store     *globaldb.Store
	Transport *Recorder
	Tuning    tuning.Tuning
	Realms    realms.Config
	DBPath    string

	closeOnce sync.Once
}

func New(t *testing.T, opts Options) *Harness {
	t.Helper()
	tun := tuning.Defaults()
	if opts.Tuning != nil {
		tun = *opts.Tuning
	}
	rc, err := realms.Load("")
	if err != nil {
		t.Fatalf("realms: %v", err)
	}
	if opts.Realms != nil {
		rc = *opts.Realms
		rc.Normalize()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = 1337
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(t.TempDir(), "global.sqlite")
	}

	def, _ := rc.FixedSpec(realm.ID(rc.DefaultRealm))
	h := host.New(host.Options{
		DefaultRealm: realm.ID(rc.DefaultRealm),
		DefaultSpawn: def.Spawn,
		MaxRealms:    opts.MaxRealms,
	}, zerolog.Nop())
	for _, f := range rc.Fixed {
		h.AddRealm(realm.ID(f.ID), f.Terrain.Generator(seed))
	}

	store, err := globaldb.Open(dbPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("globaldb: %v", err)
	}
	e, err := engine.New(context.Background(), engine.Config{Seed: seed, Tuning: tun, Realms: rc}, h, store, zerolog.Nop())
	if err != nil {
		_ = store.Close()
		t.Fatalf("engine.New: %v", err)
	}
	rec := NewRecorder()
	e.SetTransport(rec)

	hs := &Harness{
		T:         t,
		Host:      h,
		Engine:    e,
		Store:     store,
		Transport: rec,
		Tuning:    tun,
		Realms:    rc,
		DBPath:    dbPath,
	}
	t.Cleanup(hs.Close)
	return hs
}

// Close flushes and closes the global store. It is safe to call more than once.
func (h *Harness) Close() {
	h.closeOnce.Do(func() {
		if err := h.Store.Close(); err != nil {
			h.T.Errorf("close store: %v", err)
		}
	})
}

func (h *Harness) Login(name string) uuid.UUID {
	h.T.Helper()
	id := uuid.New()
	h.Engine.OnPlayerLogin(id, name)
	return id
}

func (h *Harness) Step(actions ...engine.Action) uint64 {
	return h.Engine.StepOnce(actions...)
}

func (h *Harness) StepFor(n int) {
	for i := 0; i < n; i++ {
		h.Engine.StepOnce()
	}
}

func (h *Harness) Move(player uuid.UUID, pos geom.Vec3i) {
	h.T.Helper()
	if err := h.Host.Move(player, pos); err != nil {
		h.T.Fatalf("move %s to %v: %v", player, pos, err)
	}
}

func (h *Harness) Location(player uuid.UUID) (realm.ID, geom.Vec3i) {
	h.T.Helper()
	r, pos, ok := h.Host.Location(player)
	if !ok {
		h.T.Fatalf("player %s has no location", player)
	}
	return r, pos
}

// Portal materializes a portal and steps once so it initializes.
func (h *Harness) Portal(spec portal.Spec) portal.Portal {
	h.T.Helper()
	p, err := h.Engine.Registry().Materialize(spec)
	if err != nil {
		h.T.Fatalf("materialize: %v", err)
	}
	h.Step()
	got, ok := h.Engine.Registry().Get(p.ID)
	if !ok {
		h.T.Fatalf("portal %d vanished during init", p.ID)
	}
	return got
}

// Walk moves the player onto a portal and steps once so the contact is routed.
func (h *Harness) Walk(player uuid.UUID, p portal.Portal) {
	h.T.Helper()
	h.Move(player, p.Pos)
	h.Step()
}

// PortalsIn lists the live portals of a realm.
func (h *Harness) PortalsIn(r realm.ID) []portal.Portal {
	return h.Engine.Registry().List(r)
}

// Message is one client-bound notice.
type Message struct {
	Player uuid.UUID
	Code   string
	Text   string
}

// Recorder is a Transport that keeps everything it is sent.
type Recorder struct {
	mu       sync.Mutex
	changed  map[uuid.UUID][][]affinity.Entry
	ui       map[uuid.UUID][]string
	messages []Message
}

func NewRecorder() *Recorder {
	return &Recorder{changed: map[uuid.UUID][][]affinity.Entry{}, ui: map[uuid.UUID][]string{}}
}

func (r *Recorder) AffinityChanged(player uuid.UUID, _ uint64, entries []affinity.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed[player] = append(r.changed[player], entries)
}

func (r *Recorder) AffinityUI(player uuid.UUID, reqID string, _ []affinity.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ui[player] = append(r.ui[player], reqID)
}

func (r *Recorder) Message(player uuid.UUID, code, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Player: player, Code: code, Text: text})
}

// Changes returns every affinity-changed payload sent to player.
func (r *Recorder) Changes(player uuid.UUID) [][]affinity.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]affinity.Entry(nil), r.changed[player]...)
}

func (r *Recorder) UIRequests(player uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ui[player]...)
}

// Codes lists the message codes sent to player, oldest first.
func (r *Recorder) Codes(player uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.messages {
		if m.Player == player {
			out = append(out, m.Code)
		}
	}
	return out
}
