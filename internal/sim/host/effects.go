package host

import (
	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/geom"
)

type EffectKind string

const (
	EffectAreaClear EffectKind = "area_clear"
	EffectDisappear EffectKind = "disappear"
	EffectParticles EffectKind = "particles"
)

// Effect is one journaled world effect.
type Effect struct {
	Kind     EffectKind `json:"kind"`
	Realm    realm.ID   `json:"realm"`
	Pos      geom.Vec3i `json:"pos"`
	Particle string     `json:"particle,omitempty"`
	Changed  int        `json:"changed,omitempty"`
}

func (h *Host) record(e Effect) {
	h.journal = append(h.journal, e)
	if over := len(h.journal) - h.opts.JournalSize; over > 0 {
		h.journal = append(h.journal[:0], h.journal[over:]...)
	}
}

// AreaClear flattens the box down to its floor.
func (h *Host) AreaClear(r realm.ID, box geom.AABB) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rs, ok := h.realms[r]
	if !ok {
		return
	}
	n := rs.store.Flatten(box)
	center := geom.Vec3i{
		X: (box.Min.X + box.Max.X) / 2,
		Y: (box.Min.Y + box.Max.Y) / 2,
		Z: (box.Min.Z + box.Max.Z) / 2,
	}
	h.record(Effect{Kind: EffectAreaClear, Realm: r, Pos: center, Changed: n})
}

func (h *Host) Disappear(r realm.ID, pos geom.Vec3i) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Effect{Kind: EffectDisappear, Realm: r, Pos: pos})
}

func (h *Host) Particles(r realm.ID, kind string, pos geom.Vec3i) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Effect{Kind: EffectParticles, Realm: r, Pos: pos, Particle: kind})
}

// DrainEffects returns and clears the journal.
func (h *Host) DrainEffects() []Effect {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.journal
	h.journal = nil
	return out
}

// CountEffects counts journaled effects of one kind without draining.
func (h *Host) CountEffects(kind EffectKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.journal {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
