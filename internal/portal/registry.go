package portal

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"riftgate.ai/internal/dimension"
	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/geom"
)

type Reason string

const (
	ReasonDespawned    Reason = "despawned"
	ReasonConsumed     Reason = "consumed"
	ReasonAdmin        Reason = "admin"
	ReasonRealmRemoved Reason = "realm_removed"
	ReasonEntityLost   Reason = "entity_lost"
)

type Config struct {
	// HalfExtent is the portal bounding box half size around its position.
	HalfExtent geom.Vec3i
	// ClearRadius is the radius of the one-time area clear of primed portals.
	ClearRadius int
	// ParticleEvery emits ambient particles every N ticks of a portal's life; 0 disables.
	ParticleEvery uint64
}

func DefaultConfig() Config {
	return Config{
		HalfExtent:    geom.Vec3i{X: 1, Y: 2, Z: 1},
		ClearRadius:   3,
		ParticleEvery: 5,
	}
}

// Contact is a player standing inside an enterable portal.
type Contact struct {
	Player uuid.UUID
	Portal ID
}

// Registry owns the live portals. Mutations happen on the tick thread; Get, List and
// FindNearest may be called from any goroutine.
type Registry struct {
	cfg       Config
	entities  Entities
	players   Players
	effects   Effects
	lifecycle Lifecycle
	log       zerolog.Logger

	mu      sync.RWMutex
	portals map[ID]*Portal

	// OnInit fires once per portal after it becomes active; primed is set for natural spawns.
	OnInit func(p Portal)
}

func NewRegistry(cfg Config, entities Entities, players Players, effects Effects, lifecycle Lifecycle, logger zerolog.Logger) *Registry {
	return &Registry{
		cfg:       cfg,
		entities:  entities,
		players:   players,
		effects:   effects,
		lifecycle: lifecycle,
		log:       logger.With().Str("component", "portal").Logger(),
		portals:   map[ID]*Portal{},
	}
}

func (r *Registry) Config() Config { return r.cfg }

// Materialize spawns the host entity and registers the portal uninitialized.
func (r *Registry) Materialize(s Spec) (Portal, error) {
	if !s.Home.Resolved() {
		return Portal{}, fmt.Errorf("%w: home realm %q", ErrInvalidPortal, s.Home)
	}
	if s.DespawnTicks < 0 {
		return Portal{}, fmt.Errorf("%w: despawn ticks %d", ErrInvalidPortal, s.DespawnTicks)
	}
	eid, err := r.entities.SpawnPortal(s.Home, s.Pos)
	if err != nil {
		return Portal{}, fmt.Errorf("spawn portal entity: %w", err)
	}
	p := &Portal{
		ID:           ID(eid),
		Owner:        s.Owner,
		Home:         s.Home,
		Target:       s.Target,
		Pos:          s.Pos,
		SingleUse:    s.SingleUse,
		DespawnTicks: s.DespawnTicks,
		Primed:       s.Primed,
		State:        StateUninitialized,
	}
	r.mu.Lock()
	r.portals[p.ID] = p
	r.mu.Unlock()
	r.log.Debug().Uint64("portal", eid).Str("home", string(s.Home)).Str("target", string(s.Target)).Msg("portal materialized")
	return *p, nil
}

// Restore re-registers portals from a snapshot without spawning host entities.
func (r *Registry) Restore(ps []Portal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range ps {
		p := ps[i]
		if p.State == StateRemoved {
			continue
		}
		r.portals[p.ID] = &p
	}
}

func (r *Registry) Get(id ID) (Portal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.portals[id]
	if !ok {
		return Portal{}, false
	}
	return *p, true
}

// List returns the portals of one realm, or of all realms when r is empty, ordered by id.
func (r *Registry) List(in realm.ID) []Portal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Portal, 0, len(r.portals))
	for _, p := range r.portals {
		if in != "" && p.Home != in {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.portals)
}

func (r *Registry) setTarget(id ID, to realm.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.portals[id]; ok {
		p.Target = to
	}
}

// Binding exposes a portal's destination to the dimension manager.
func (r *Registry) Binding(id ID) dimension.Binding { return binding{r: r, id: id} }

type binding struct {
	r  *Registry
	id ID
}

func (b binding) TargetRealm() realm.ID {
	p, _ := b.r.Get(b.id)
	return p.Target
}

func (b binding) SetTargetRealm(id realm.ID) { b.r.setTarget(b.id, id) }

func (r *Registry) bounds(p *Portal) geom.AABB {
	return geom.Around(p.Pos, r.cfg.HalfExtent)
}

// Covers reports whether pos lies inside the box of any live portal of the realm.
func (r *Registry) Covers(in realm.ID, pos geom.Vec3i) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.portals {
		if p.Home == in && p.Live() && r.bounds(p).Contains(pos) {
			return true
		}
	}
	return false
}

// Tick advances every portal of one realm and returns the players standing inside them.
func (r *Registry) Tick(in realm.ID) []Contact {
	type removal struct {
		id     ID
		reason Reason
	}
	var (
		expired  []removal
		contacts []Contact
		inited   []Portal
	)
	r.mu.Lock()
	ids := make([]ID, 0, len(r.portals))
	for id, p := range r.portals {
		if p.Home == in {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		p := r.portals[id]
		if !r.entities.Alive(p.Home, uint64(p.ID)) {
			expired = append(expired, removal{id, ReasonEntityLost})
			p.State = StateRemoved
			continue
		}
		if p.State == StateUninitialized {
			r.initLocked(p)
			inited = append(inited, *p)
		}
		p.Age++
		if p.State == StateDespawning {
			p.Remaining--
			if p.Remaining <= 0 {
				p.State = StateRemoved
				r.effects.Disappear(p.Home, p.Pos)
				expired = append(expired, removal{id, ReasonDespawned})
				continue
			}
		}
		if r.cfg.ParticleEvery > 0 && p.Age%r.cfg.ParticleEvery == 0 {
			r.effects.Particles(p.Home, "portal", p.Pos)
		}
		for _, pl := range r.players.InBox(p.Home, r.bounds(p)) {
			contacts = append(contacts, Contact{Player: pl, Portal: id})
		}
	}
	r.mu.Unlock()

	for _, rm := range expired {
		r.Discard(rm.id, rm.reason)
	}
	if r.OnInit != nil {
		for _, p := range inited {
			r.OnInit(p)
		}
	}
	sort.SliceStable(contacts, func(i, j int) bool {
		if contacts[i].Portal != contacts[j].Portal {
			return contacts[i].Portal < contacts[j].Portal
		}
		return contacts[i].Player.String() < contacts[j].Player.String()
	})
	return contacts
}

// initLocked fills destination defaults and activates the portal. A portal never leaves init
// with an unset target: fixed homes lead to a realm created on first use, dynamic homes back
// to the hub.
func (r *Registry) initLocked(p *Portal) {
	if p.Target == "" {
		if p.Home.IsVanillaLike() {
			p.Target = realm.Pending
		} else {
			p.Target = realm.Hub
		}
	}
	if p.Primed {
		r.effects.AreaClear(p.Home, geom.Cube(p.Pos, r.cfg.ClearRadius))
	}
	if p.DespawnTicks > 0 {
		p.State = StateDespawning
		p.Remaining = p.DespawnTicks
	} else {
		p.State = StateActive
	}
}

// Discard removes a portal. A portal bound to a dynamic realm retires that realm.
func (r *Registry) Discard(id ID, reason Reason) bool {
	r.mu.Lock()
	p, ok := r.portals[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	p.State = StateRemoved
	snap := *p
	r.mu.Unlock()

	r.entities.Discard(snap.Home, uint64(id))
	if snap.Target.IsDynamic() && r.lifecycle != nil {
		if err := r.lifecycle.Retire(r.Binding(id)); err != nil && !errors.Is(err, dimension.ErrPermanentRealm) {
			r.log.Error().Err(err).Uint64("portal", uint64(id)).Msg("retire realm")
		}
	}

	r.mu.Lock()
	delete(r.portals, id)
	r.mu.Unlock()
	r.log.Debug().Uint64("portal", uint64(id)).Str("reason", string(reason)).Msg("portal removed")
	return true
}

// DropRealm removes every portal whose home realm has been unregistered.
func (r *Registry) DropRealm(in realm.ID) int {
	n := 0
	for _, p := range r.List(in) {
		if r.Discard(p.ID, ReasonRealmRemoved) {
			n++
		}
	}
	return n
}

// FindNearest returns the closest live portal in a realm within radius of pos. Exact distance
// ties resolve to the lowest id.
func (r *Registry) FindNearest(in realm.ID, pos geom.Vec3i, radius int) (Portal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		best  *Portal
		bestD int
	)
	limit := radius * radius
	for _, p := range r.portals {
		if p.Home != in || !p.Live() {
			continue
		}
		d := p.Pos.DistSq(pos)
		if d > limit {
			continue
		}
		if best == nil || d < bestD || (d == bestD && p.ID < best.ID) {
			best, bestD = p, d
		}
	}
	if best == nil {
		return Portal{}, false
	}
	return *best, true
}
