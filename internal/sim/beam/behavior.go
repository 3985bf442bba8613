package beam

import (
	"github.com/google/uuid"

	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/geom"
)

// Mob is the entity a behavior is attached to.
type Mob struct {
	ID    uint64
	Realm realm.ID
	Pos   geom.Vec3i
}

// Targets finds players for attack behaviors.
type Targets interface {
	NearestPlayer(r realm.ID, pos geom.Vec3i, radius int) (uuid.UUID, geom.Vec3i, bool)
}

// Behavior is an optional attack strategy given to a mob when it spawns. Act runs once per
// tick and may start a beam.
type Behavior interface {
	Act(now uint64, self Mob, targets Targets) *Animation
}

// Laser fires a beam at the nearest player in range at most once per Interval ticks.
type Laser struct {
	Range     int
	Interval  uint64
	BeamTicks int

	last  uint64
	fired bool
}

func NewLaser(rng int, interval uint64, beamTicks int) *Laser {
	return &Laser{Range: rng, Interval: interval, BeamTicks: beamTicks}
}

func (l *Laser) Act(now uint64, self Mob, targets Targets) *Animation {
	if l.fired && now-l.last < l.Interval {
		return nil
	}
	pl, pos, ok := targets.NearestPlayer(self.Realm, self.Pos, l.Range)
	if !ok {
		return nil
	}
	l.last = now
	l.fired = true
	a := New(self.Realm, self.Pos, pos, l.BeamTicks)
	a.Kind = "laser"
	a.Victim = pl
	return a
}
