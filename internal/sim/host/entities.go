package host

import (
	"fmt"
	"sort"

	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/geom"
)

func (h *Host) spawn(home realm.ID, kind EntityKind, pos geom.Vec3i) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rs, ok := h.realms[home]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoRealm, home)
	}
	if !rs.border.Contains(pos.X, pos.Z) {
		return 0, fmt.Errorf("%w: %s %v", ErrOutsideWorld, home, pos)
	}
	id := h.nextEntity
	h.nextEntity++
	rs.entities[id] = &Entity{ID: id, Kind: kind, Realm: home, Pos: pos}
	return id, nil
}

func (h *Host) SpawnPortal(home realm.ID, pos geom.Vec3i) (uint64, error) {
	return h.spawn(home, KindPortal, pos)
}

func (h *Host) SpawnGuardian(home realm.ID, pos geom.Vec3i) (uint64, error) {
	return h.spawn(home, KindGuardian, pos)
}

// Discard removes an entity; unknown ids and unloaded realms are ignored.
func (h *Host) Discard(home realm.ID, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rs, ok := h.realms[home]; ok {
		delete(rs.entities, id)
	}
}

func (h *Host) Alive(home realm.ID, id uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	rs, ok := h.realms[home]
	if !ok {
		return false
	}
	_, ok = rs.entities[id]
	return ok
}

// Entities lists a realm's entities ordered by id.
func (h *Host) Entities(home realm.ID) []Entity {
	h.mu.Lock()
	defer h.mu.Unlock()
	rs, ok := h.realms[home]
	if !ok {
		return nil
	}
	out := make([]Entity, 0, len(rs.entities))
	for _, e := range rs.entities {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RestoreEntity re-creates an entity with a known id, keeping the id counter ahead of it.
func (h *Host) RestoreEntity(e Entity) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	rs, ok := h.realms[e.Realm]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRealm, e.Realm)
	}
	cp := e
	rs.entities[e.ID] = &cp
	if e.ID >= h.nextEntity {
		h.nextEntity = e.ID + 1
	}
	return nil
}

func (h *Host) NextEntityID() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextEntity
}

func (h *Host) SetNextEntityID(n uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n > h.nextEntity {
		h.nextEntity = n
	}
}

func (h *Host) RestorePortal(home realm.ID, id uint64, pos geom.Vec3i) error {
	return h.RestoreEntity(Entity{ID: id, Kind: KindPortal, Realm: home, Pos: pos})
}
