// Package dimension creates, reuses and retires realms bound to individual portals and gives
// each one a unique generation center.
package dimension

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/rs/zerolog"

	"riftgate.ai/internal/persistence/globaldb"
	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/geom"
	"riftgate.ai/internal/sim/terrain"
)

// Realms is the host realm-lifecycle collaborator.
type Realms interface {
	CreateOrFetch(id realm.ID, factory func() terrain.Generator) error
	// MarkForRemoval schedules asynchronous unregistration.
	MarkForRemoval(id realm.ID)
	SetBorder(id realm.ID, centerX, centerZ, size int) error
	ForceLoadChunk(id realm.ID, pos geom.ChunkPos) error
	ReleaseChunk(id realm.ID, pos geom.ChunkPos)
	SurfaceHeight(id realm.ID, x, z int) (int, error)
	PlayerCount(id realm.ID) int
}

// Store is the durable global store collaborator.
type Store interface {
	GetOrCreate(ctx context.Context, owner realm.ID, rec globaldb.Record) error
	MarkDirty(name string)
}

// Binding is the portal side of a realm binding.
type Binding interface {
	TargetRealm() realm.ID
	SetTargetRealm(id realm.ID)
}

// Template is one entry of the random realm template pool.
type Template struct {
	Name   string
	Weight int
	Gen    terrain.Generator
}

type Config struct {
	Seed int64
	// ChunkBound is the generation bound of dynamic realms, in chunks around the anchor.
	ChunkBound int
	// AnchorSpacing is the distance in chunks between candidate anchors; AnchorGrid the
	// number of candidates per axis.
	AnchorSpacing int
	AnchorGrid    int
	// FixedSpawns are the spawn points of fixed realms.
	FixedSpawns map[realm.ID]geom.Vec3i
}

func (c Config) normalized() Config {
	if c.ChunkBound <= 0 {
		c.ChunkBound = 4
	}
	if c.AnchorSpacing <= 0 {
		c.AnchorSpacing = 2*c.ChunkBound + 1
	}
	if c.AnchorGrid <= 0 {
		c.AnchorGrid = 64
	}
	return c
}

// BorderSize is the world border edge length of dynamic realms, in blocks.
func (c Config) BorderSize() int { return 2 * c.ChunkBound * geom.ChunkSize }

type Manager struct {
	cfg     Config
	realms  Realms
	store   Store
	centers *Registry
	alloc   *Allocator
	rng     *rand.Rand
	log     zerolog.Logger

	retiring map[realm.ID]struct{}
}

// NewManager binds the generation-center record to store, loading any persisted state.
func NewManager(ctx context.Context, cfg Config, realms Realms, store Store, logger zerolog.Logger) (*Manager, error) {
	cfg = cfg.normalized()
	reg := NewRegistry()
	if err := store.GetOrCreate(ctx, realm.Overworld, reg); err != nil {
		return nil, fmt.Errorf("load generation centers: %w", err)
	}
	reg.OnDirty(func() { store.MarkDirty(RecordName) })
	m := &Manager{
		cfg:      cfg,
		realms:   realms,
		store:    store,
		centers:  reg,
		alloc:    NewAllocator(reg),
		rng:      rand.New(rand.NewPCG(uint64(cfg.Seed), 0x7269667467617465)),
		log:      logger.With().Str("component", "dimension").Logger(),
		retiring: map[realm.ID]struct{}{},
	}
	return m, nil
}

func (m *Manager) Config() Config        { return m.cfg }
func (m *Manager) Centers() *Registry    { return m.centers }
func (m *Manager) Allocator() *Allocator { return m.alloc }

// ResolveOrCreate returns the portal's destination, creating a fresh realm from pool when the
// portal has none yet. On failure the portal is left unresolved and ErrRealmCreation is
// returned so the caller can retry on a later tick.
func (m *Manager) ResolveOrCreate(b Binding, pool []Template) (realm.ID, error) {
	if id := b.TargetRealm(); id.Resolved() {
		return id, nil
	}
	tpl, ok := m.pickTemplate(pool)
	if !ok {
		m.log.Error().Err(ErrNoTemplates).Msg("realm creation")
		return "", fmt.Errorf("%w: %w", ErrRealmCreation, ErrNoTemplates)
	}
	id, seq := m.alloc.Next()
	anchor, err := m.pickAnchor(seq)
	if err != nil {
		m.log.Error().Err(err).Str("realm", string(id)).Str("template", tpl.Name).Msg("realm creation")
		return "", fmt.Errorf("%w: %w", ErrRealmCreation, err)
	}

	gen := tpl.Gen.WithCenter(anchor, m.cfg.ChunkBound)
	gen.Seed = int64(terrain.Hash2(m.cfg.Seed^tpl.Gen.Seed, int(seq), int(seq>>32)))
	if err := m.realms.CreateOrFetch(id, func() terrain.Generator { return gen }); err != nil {
		m.log.Error().Err(err).Str("realm", string(id)).Str("template", tpl.Name).Msg("realm creation")
		return "", fmt.Errorf("%w: %v", ErrRealmCreation, err)
	}
	if !m.centers.Add(anchor, id) {
		m.realms.MarkForRemoval(id)
		m.log.Error().Str("realm", string(id)).Interface("anchor", anchor).Msg("generation center taken")
		return "", fmt.Errorf("%w: anchor %v taken", ErrRealmCreation, anchor)
	}
	x, z := anchor.Center()
	if err := m.realms.SetBorder(id, x, z, m.cfg.BorderSize()); err != nil {
		m.centers.Remove(anchor)
		m.realms.MarkForRemoval(id)
		m.log.Error().Err(err).Str("realm", string(id)).Msg("realm border")
		return "", fmt.Errorf("%w: %v", ErrRealmCreation, err)
	}
	b.SetTargetRealm(id)
	m.log.Info().Str("realm", string(id)).Str("template", tpl.Name).Int("cx", anchor.CX).Int("cz", anchor.CZ).Msg("realm created")
	return id, nil
}

func (m *Manager) pickTemplate(pool []Template) (Template, bool) {
	total := 0
	for _, t := range pool {
		total += max(t.Weight, 1)
	}
	if total == 0 {
		return Template{}, false
	}
	n := m.rng.IntN(total)
	for _, t := range pool {
		n -= max(t.Weight, 1)
		if n < 0 {
			return t, true
		}
	}
	return pool[len(pool)-1], true
}

// pickAnchor hashes the sequence onto the candidate grid and scans forward for a free cell.
func (m *Manager) pickAnchor(seq uint64) (geom.ChunkPos, error) {
	grid := m.cfg.AnchorGrid
	cells := grid * grid
	start := int(terrain.Hash2(m.cfg.Seed, int(seq), int(seq>>32)) % uint64(cells))
	for i := 0; i < cells; i++ {
		k := (start + i) % cells
		p := geom.ChunkPos{
			CX: (k%grid - grid/2) * m.cfg.AnchorSpacing,
			CZ: (k/grid - grid/2) * m.cfg.AnchorSpacing,
		}
		if !m.centers.Contains(p) {
			return p, nil
		}
	}
	return geom.ChunkPos{}, ErrAnchorsExhausted
}

// Retire releases the portal's destination realm. Fixed realms are refused. A realm that still
// hosts players is unregistered once the last one leaves; the portal reference is cleared
// immediately either way.
func (m *Manager) Retire(b Binding) error {
	id := b.TargetRealm()
	if id.IsFixed() {
		return fmt.Errorf("%w: %s", ErrPermanentRealm, id)
	}
	if !id.Resolved() {
		return nil
	}
	b.SetTargetRealm(realm.Pending)
	if n := m.realms.PlayerCount(id); n > 0 {
		m.retiring[id] = struct{}{}
		m.log.Info().Str("realm", string(id)).Int("players", n).Msg("realm retirement deferred")
		return nil
	}
	m.unregister(id)
	return nil
}

func (m *Manager) unregister(id realm.ID) {
	m.realms.MarkForRemoval(id)
	if a, ok := m.centers.AnchorOf(id); ok {
		m.centers.Remove(a)
	}
	delete(m.retiring, id)
	m.log.Info().Str("realm", string(id)).Msg("realm retired")
}

// Drop unregisters a dynamic realm immediately, ignoring players still inside.
func (m *Manager) Drop(id realm.ID) {
	if !id.IsDynamic() {
		return
	}
	m.unregister(id)
}

// ProcessRetirements unregisters deferred realms that no longer host players.
func (m *Manager) ProcessRetirements() int {
	if len(m.retiring) == 0 {
		return 0
	}
	ids := make([]realm.ID, 0, len(m.retiring))
	for id := range m.retiring {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	n := 0
	for _, id := range ids {
		if m.realms.PlayerCount(id) > 0 {
			continue
		}
		m.unregister(id)
		n++
	}
	return n
}

func (m *Manager) Retiring(id realm.ID) bool {
	_, ok := m.retiring[id]
	return ok
}

// SpawnPoint returns the arrival point of a realm. Fixed realms use their configured spawn;
// dynamic realms sample the surface above the centre column of their anchor chunk.
func (m *Manager) SpawnPoint(id realm.ID) (geom.Vec3i, error) {
	if p, ok := m.cfg.FixedSpawns[id]; ok {
		return p, nil
	}
	anchor, ok := m.centers.AnchorOf(id)
	if !ok {
		return geom.Vec3i{}, fmt.Errorf("%w: %s", ErrUnknownRealm, id)
	}
	if err := m.realms.ForceLoadChunk(id, anchor); err != nil {
		return geom.Vec3i{}, fmt.Errorf("force load %s %v: %w", id, anchor, err)
	}
	defer m.realms.ReleaseChunk(id, anchor)
	x, z := anchor.Center()
	h, err := m.realms.SurfaceHeight(id, x, z)
	if err != nil {
		return geom.Vec3i{}, fmt.Errorf("sample height %s: %w", id, err)
	}
	return geom.Vec3i{X: x, Y: h, Z: z}, nil
}
