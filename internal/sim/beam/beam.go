// Package beam runs tick-based beam animations and the attack behaviors that fire them.
package beam

import (
	"github.com/google/uuid"

	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/geom"
)

// Animation is a beam travelling from From to To over Duration ticks.
type Animation struct {
	Realm    realm.ID
	From     geom.Vec3i
	To       geom.Vec3i
	Duration int

	// Caster is the player that started the beam; Nil for mobs. Victim is the player a
	// laser aimed at.
	Caster uuid.UUID
	Victim uuid.UUID
	Kind   string

	elapsed int
	done    bool
}

func New(r realm.ID, from, to geom.Vec3i, duration int) *Animation {
	if duration <= 0 {
		duration = 1
	}
	return &Animation{Realm: r, From: from, To: to, Duration: duration}
}

// Step advances the beam one tick and returns the head position for that tick. completed is
// true on exactly one call; later calls return the end point with completed false.
func (a *Animation) Step() (head geom.Vec3i, completed bool) {
	if a.done {
		return a.To, false
	}
	a.elapsed++
	if a.elapsed >= a.Duration {
		a.done = true
		return a.To, true
	}
	return lerp(a.From, a.To, a.elapsed, a.Duration), false
}

func (a *Animation) Done() bool   { return a.done }
func (a *Animation) Elapsed() int { return a.elapsed }

func lerp(from, to geom.Vec3i, n, d int) geom.Vec3i {
	return geom.Vec3i{
		X: from.X + (to.X-from.X)*n/d,
		Y: from.Y + (to.Y-from.Y)*n/d,
		Z: from.Z + (to.Z-from.Z)*n/d,
	}
}

// Endpoint is where a beam fired from origin along facing stops after rng blocks. facing is
// reduced to its sign per axis.
func Endpoint(origin geom.Vec3i, facing [3]int, rng int) geom.Vec3i {
	return origin.Add(geom.Vec3i{X: sign(facing[0]) * rng, Y: sign(facing[1]) * rng, Z: sign(facing[2]) * rng})
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
