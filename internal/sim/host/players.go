package host

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/geom"
)

// Join brings a player online. First-time players start at the default spawn; players whose
// realm is gone are moved there too. created reports a first join.
func (h *Host) Join(id uuid.UUID, name string) (p Player, created bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pl, ok := h.players[id]
	if !ok {
		pl = &player{id: id, realm: h.opts.DefaultRealm, pos: h.opts.DefaultSpawn, attach: map[string][]byte{}}
		h.players[id] = pl
		created = true
	}
	if _, loaded := h.realms[pl.realm]; !loaded {
		pl.realm, pl.pos = h.opts.DefaultRealm, h.opts.DefaultSpawn
	}
	if name != "" {
		pl.name = name
	}
	pl.online = true
	return pl.view(), created
}

func (h *Host) Leave(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if pl, ok := h.players[id]; ok {
		pl.online = false
	}
}

func (pl *player) view() Player {
	return Player{ID: pl.id, Name: pl.name, Realm: pl.realm, Pos: pl.pos, Online: pl.online}
}

func (h *Host) Player(id uuid.UUID) (Player, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pl, ok := h.players[id]
	if !ok {
		return Player{}, false
	}
	return pl.view(), true
}

// Players lists every known player ordered by id.
func (h *Host) Players() []Player {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Player, 0, len(h.players))
	for _, pl := range h.players {
		out = append(out, pl.view())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// Move walks an online player within its current realm.
func (h *Host) Move(id uuid.UUID, pos geom.Vec3i) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	pl, ok := h.players[id]
	if !ok || !pl.online {
		return fmt.Errorf("%w: %s", ErrNoPlayer, id)
	}
	rs, ok := h.realms[pl.realm]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRealm, pl.realm)
	}
	if !rs.border.Contains(pos.X, pos.Z) {
		return fmt.Errorf("%w: %s %v", ErrOutsideWorld, pl.realm, pos)
	}
	pl.pos = pos
	return nil
}

func (h *Host) Location(id uuid.UUID) (realm.ID, geom.Vec3i, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pl, ok := h.players[id]
	if !ok || !pl.online {
		return "", geom.Vec3i{}, false
	}
	return pl.realm, pl.pos, true
}

// Teleport moves an online player into a loaded realm that is not queued for removal.
func (h *Host) Teleport(id uuid.UUID, to realm.ID, pos geom.Vec3i) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	pl, ok := h.players[id]
	if !ok || !pl.online {
		return fmt.Errorf("%w: %s", ErrNoPlayer, id)
	}
	rs, ok := h.realms[to]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRealm, to)
	}
	if _, gone := h.removing[to]; gone {
		return fmt.Errorf("%w: %s is being removed", ErrNoRealm, to)
	}
	if !rs.border.Contains(pos.X, pos.Z) {
		return fmt.Errorf("%w: %s %v", ErrOutsideWorld, to, pos)
	}
	pl.realm, pl.pos = to, pos
	return nil
}

// InBox lists online players of a realm inside box, ordered by id.
func (h *Host) InBox(r realm.ID, box geom.AABB) []uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []uuid.UUID
	for _, pl := range h.players {
		if pl.online && pl.realm == r && box.Contains(pl.pos) {
			out = append(out, pl.id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// NearestPlayer finds the closest online player within radius. Ties go to the lowest id.
func (h *Host) NearestPlayer(r realm.ID, pos geom.Vec3i, radius int) (uuid.UUID, geom.Vec3i, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var (
		best  *player
		bestD int
	)
	limit := radius * radius
	for _, pl := range h.players {
		if !pl.online || pl.realm != r {
			continue
		}
		d := pl.pos.DistSq(pos)
		if d > limit {
			continue
		}
		if best == nil || d < bestD || (d == bestD && pl.id.String() < best.id.String()) {
			best, bestD = pl, d
		}
	}
	if best == nil {
		return uuid.Nil, geom.Vec3i{}, false
	}
	return best.id, best.pos, true
}

func (h *Host) Attachment(id uuid.UUID, key string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pl, ok := h.players[id]
	if !ok {
		return nil, false
	}
	b, ok := pl.attach[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

func (h *Host) SetAttachment(id uuid.UUID, key string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pl, ok := h.players[id]
	if !ok {
		return
	}
	pl.attach[key] = append([]byte(nil), data...)
}

func (h *Host) DeleteAttachment(id uuid.UUID, key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if pl, ok := h.players[id]; ok {
		delete(pl.attach, key)
	}
}

// Connect is Join for the engine: it returns the realm the player is in.
func (h *Host) Connect(id uuid.UUID, name string) realm.ID {
	p, _ := h.Join(id, name)
	return p.Realm
}

func (h *Host) Disconnect(id uuid.UUID) { h.Leave(id) }
