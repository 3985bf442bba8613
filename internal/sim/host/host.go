// Package host is an in-process world host: realms with heightmap terrain, entities, players,
// attachments and an effects journal. cmd/server runs the engine on it and tests drive it
// directly.
package host

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/geom"
	"riftgate.ai/internal/sim/terrain"
)

var (
	ErrNoRealm      = errors.New("realm not loaded")
	ErrRealmLimit   = errors.New("realm limit reached")
	ErrOutsideWorld = errors.New("position outside world border")
	ErrNoPlayer     = errors.New("unknown player")
)

type Options struct {
	DefaultRealm realm.ID
	DefaultSpawn geom.Vec3i
	// MaxRealms caps loaded realms, fixed ones included; 0 is unlimited.
	MaxRealms int
	// JournalSize bounds the effects journal; 0 means 1024.
	JournalSize int
}

type Border struct {
	CenterX int `json:"center_x"`
	CenterZ int `json:"center_z"`
	Size    int `json:"size"`
}

func (b Border) Contains(x, z int) bool {
	if b.Size <= 0 {
		return true
	}
	h := b.Size / 2
	return x >= b.CenterX-h && x < b.CenterX+h && z >= b.CenterZ-h && z < b.CenterZ+h
}

type EntityKind string

const (
	KindPortal   EntityKind = "portal"
	KindGuardian EntityKind = "guardian"
)

type Entity struct {
	ID    uint64     `json:"id"`
	Kind  EntityKind `json:"kind"`
	Realm realm.ID   `json:"realm"`
	Pos   geom.Vec3i `json:"pos"`
}

type realmState struct {
	id        realm.ID
	permanent bool
	store     *terrain.Store
	border    Border
	entities  map[uint64]*Entity
}

type player struct {
	id     uuid.UUID
	name   string
	realm  realm.ID
	pos    geom.Vec3i
	online bool
	attach map[string][]byte
}

// Player is a read-only view of a player.
type Player struct {
	ID     uuid.UUID  `json:"id"`
	Name   string     `json:"name,omitempty"`
	Realm  realm.ID   `json:"realm"`
	Pos    geom.Vec3i `json:"pos"`
	Online bool       `json:"online"`
}

type Host struct {
	opts Options
	log  zerolog.Logger

	mu         sync.Mutex
	realms     map[realm.ID]*realmState
	removing   map[realm.ID]struct{}
	players    map[uuid.UUID]*player
	nextEntity uint64
	journal    []Effect
}

func New(opts Options, logger zerolog.Logger) *Host {
	if opts.DefaultRealm == "" {
		opts.DefaultRealm = realm.Hub
	}
	if opts.JournalSize <= 0 {
		opts.JournalSize = 1024
	}
	return &Host{
		opts:       opts,
		log:        logger.With().Str("component", "host").Logger(),
		realms:     map[realm.ID]*realmState{},
		removing:   map[realm.ID]struct{}{},
		players:    map[uuid.UUID]*player{},
		nextEntity: 1,
	}
}

// AddRealm loads a permanent realm. Loading an already loaded realm is a no-op.
func (h *Host) AddRealm(id realm.ID, gen terrain.Generator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.realms[id]; ok {
		return
	}
	h.realms[id] = newRealm(id, gen, true)
}

func newRealm(id realm.ID, gen terrain.Generator, permanent bool) *realmState {
	return &realmState{
		id:        id,
		permanent: permanent,
		store:     terrain.NewStore(gen),
		entities:  map[uint64]*Entity{},
	}
}

func (h *Host) CreateOrFetch(id realm.ID, factory func() terrain.Generator) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.realms[id]; ok {
		delete(h.removing, id)
		return nil
	}
	if h.opts.MaxRealms > 0 && len(h.realms) >= h.opts.MaxRealms {
		return fmt.Errorf("%w: %d", ErrRealmLimit, h.opts.MaxRealms)
	}
	h.realms[id] = newRealm(id, factory(), false)
	h.log.Info().Str("realm", string(id)).Msg("realm loaded")
	return nil
}

// MarkForRemoval queues a realm for unregistration by the next DrainRemovals.
func (h *Host) MarkForRemoval(id realm.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rs, ok := h.realms[id]
	if !ok || rs.permanent {
		return
	}
	h.removing[id] = struct{}{}
}

// DrainRemovals unregisters queued realms and returns their ids sorted. Players still inside
// are moved to the default spawn.
func (h *Host) DrainRemovals() []realm.ID {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.removing) == 0 {
		return nil
	}
	ids := make([]realm.ID, 0, len(h.removing))
	for id := range h.removing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		delete(h.realms, id)
		delete(h.removing, id)
		for _, p := range h.players {
			if p.realm == id {
				p.realm, p.pos = h.opts.DefaultRealm, h.opts.DefaultSpawn
			}
		}
		h.log.Info().Str("realm", string(id)).Msg("realm unloaded")
	}
	return ids
}

func (h *Host) PendingRemoval(id realm.ID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.removing[id]
	return ok
}

func (h *Host) SetBorder(id realm.ID, centerX, centerZ, size int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	rs, ok := h.realms[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRealm, id)
	}
	rs.border = Border{CenterX: centerX, CenterZ: centerZ, Size: size}
	return nil
}

func (h *Host) ForceLoadChunk(id realm.ID, pos geom.ChunkPos) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	rs, ok := h.realms[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRealm, id)
	}
	rs.store.ForceLoad(pos)
	return nil
}

func (h *Host) ReleaseChunk(id realm.ID, pos geom.ChunkPos) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rs, ok := h.realms[id]; ok {
		rs.store.Release(pos)
	}
}

func (h *Host) SurfaceHeight(id realm.ID, x, z int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rs, ok := h.realms[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoRealm, id)
	}
	return rs.store.Height(x, z), nil
}

// PlayerCount counts online players in a realm.
func (h *Host) PlayerCount(id realm.ID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, p := range h.players {
		if p.online && p.realm == id {
			n++
		}
	}
	return n
}

// UnloadIdle drops clean, unforced chunks in every realm.
func (h *Host) UnloadIdle() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, rs := range h.realms {
		n += rs.store.Unload()
	}
	return n
}

// RealmInfo describes a loaded realm.
type RealmInfo struct {
	ID        realm.ID `json:"id"`
	Permanent bool     `json:"permanent"`
	Border    Border   `json:"border"`
	Chunks    int      `json:"loaded_chunks"`
	Entities  int      `json:"entities"`
	Players   int      `json:"players"`
	Removing  bool     `json:"removing,omitempty"`
}

func (h *Host) Realms() []RealmInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]RealmInfo, 0, len(h.realms))
	for id, rs := range h.realms {
		_, removing := h.removing[id]
		info := RealmInfo{
			ID:        id,
			Permanent: rs.permanent,
			Border:    rs.border,
			Chunks:    len(rs.store.LoadedChunkKeys()),
			Entities:  len(rs.entities),
			Removing:  removing,
		}
		for _, p := range h.players {
			if p.online && p.realm == id {
				info.Players++
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (h *Host) HasRealm(id realm.ID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.realms[id]
	return ok
}

// Generator returns the generation rules a realm was created with.
func (h *Host) Generator(id realm.ID) (terrain.Generator, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rs, ok := h.realms[id]
	if !ok {
		return terrain.Generator{}, false
	}
	return rs.store.Gen, true
}
