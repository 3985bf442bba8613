package engine

import (
	"github.com/google/uuid"

	"riftgate.ai/internal/affinity"
	"riftgate.ai/internal/portal"
	"riftgate.ai/internal/sim/beam"
	"riftgate.ai/internal/sim/geom"
	"riftgate.ai/internal/sim/terrain"
)

const (
	beamStaff = "staff"
	beamLaser = "laser"
)

var eyeOffset = geom.Vec3i{Y: 1}

// OnUseStaff starts a beam from the caster along facing. When it lands the beam opens a
// portal at the surface below its end point.
func (e *Engine) OnUseStaff(player uuid.UUID, facing [3]int) error {
	if _, ok := e.sets[player]; !ok {
		return ErrNotLoggedIn
	}
	if facing == [3]int{} {
		return ErrBadRequest
	}
	for _, b := range e.beams {
		if b.Caster == player {
			return ErrCasting
		}
	}
	r, pos, ok := e.host.Location(player)
	if !ok {
		return ErrNotLoggedIn
	}
	st := e.cfg.Tuning.Staff
	origin := pos.Add(eyeOffset)
	a := beam.New(r, origin, beam.Endpoint(origin, facing, st.Range), st.BeamTicks)
	a.Caster = player
	a.Kind = beamStaff
	e.beams = append(e.beams, a)
	return nil
}

func (e *Engine) stepBeams() {
	kept := e.beams[:0]
	var landed []*beam.Animation
	for _, b := range e.beams {
		head, done := b.Step()
		e.host.Particles(b.Realm, b.Kind, head)
		if done {
			landed = append(landed, b)
			continue
		}
		kept = append(kept, b)
	}
	e.beams = kept
	for _, b := range landed {
		switch b.Kind {
		case beamStaff:
			e.staffLanded(b)
		case beamLaser:
			e.host.Particles(b.Realm, "laser_hit", b.To)
			e.stats.laserHits++
		}
	}
}

func (e *Engine) staffLanded(b *beam.Animation) {
	st := e.cfg.Tuning.Staff
	pos := b.To
	if h, err := e.host.SurfaceHeight(b.Realm, pos.X, pos.Z); err == nil && h != terrain.NoGround {
		pos.Y = h
	}
	p, err := e.registry.Materialize(portal.Spec{
		Owner:        b.Caster,
		Home:         b.Realm,
		Pos:          pos,
		SingleUse:    st.SingleUse,
		DespawnTicks: st.DespawnTicks,
	})
	if err != nil {
		e.log.Warn().Err(err).Str("player", b.Caster.String()).Msg("staff portal")
		e.Notify(b.Caster, err)
		return
	}
	e.stats.staffPortals++
	e.log.Debug().Uint64("portal", uint64(p.ID)).Str("player", b.Caster.String()).Msg("staff portal opened")

	set, ok := e.sets[b.Caster]
	if !ok || st.Progress == 0 {
		return
	}
	changed := false
	for _, en := range set.Entries() {
		if en.Affinity.Tier() != affinity.TierElemental {
			continue
		}
		if _, err := set.IncrementProgress(en.Affinity, int32(st.Progress)); err == nil {
			changed = true
		}
	}
	if changed {
		e.affinityChanged(b.Caster, set)
	}
}

// onPortalInit spawns a laser guardian next to each primed portal.
func (e *Engine) onPortalInit(p portal.Portal) {
	g := e.cfg.Tuning.Guardian
	if !p.Primed || !g.Enabled {
		return
	}
	pos := p.Pos.Add(geom.Vec3i{Y: 3})
	id, err := e.host.SpawnGuardian(p.Home, pos)
	if err != nil {
		e.log.Warn().Err(err).Uint64("portal", uint64(p.ID)).Msg("spawn guardian")
		return
	}
	e.guardians[id] = &guardian{
		mob:      beam.Mob{ID: id, Realm: p.Home, Pos: pos},
		behavior: beam.NewLaser(g.Range, uint64(g.IntervalTicks), g.BeamTicks),
	}
	e.log.Info().Uint64("guardian", id).Uint64("portal", uint64(p.ID)).Str("realm", string(p.Home)).Msg("guardian spawned")
}

func (e *Engine) stepGuardians(now uint64) {
	for _, id := range sortedKeys(e.guardians) {
		g := e.guardians[id]
		if !e.host.Alive(g.mob.Realm, id) {
			delete(e.guardians, id)
			continue
		}
		if a := g.behavior.Act(now, g.mob, e.host); a != nil {
			e.beams = append(e.beams, a)
		}
	}
}

func (e *Engine) Guardians() int { return len(e.guardians) }
