// Package affinity implements the per-player affinity ledger: an ordered set of unlocked
// magic tags with tiering rules.
package affinity

import (
	"fmt"
	"strings"
)

type Tier uint8

const (
	TierNone Tier = iota
	TierElemental
	TierDeviant
	TierEternal
)

func (t Tier) String() string {
	switch t {
	case TierElemental:
		return "ELEMENTAL"
	case TierDeviant:
		return "DEVIANT"
	case TierEternal:
		return "ETERNAL"
	default:
		return "NONE"
	}
}

// Affinity is an enumerated tag. The numeric value is the wire ordinal and must stay stable.
type Affinity uint8

const (
	Void Affinity = iota

	Fire
	Water
	Earth
	Air

	SoulFire
	Blood
	Metal
	Lightning

	Life
	Death
	Time
	Space

	numAffinities
)

type def struct {
	name string
	tier Tier
	base Affinity // deviants only
}

var defs = [numAffinities]def{
	Void:      {name: "VOID", tier: TierNone},
	Fire:      {name: "FIRE", tier: TierElemental},
	Water:     {name: "WATER", tier: TierElemental},
	Earth:     {name: "EARTH", tier: TierElemental},
	Air:       {name: "AIR", tier: TierElemental},
	SoulFire:  {name: "SOUL_FIRE", tier: TierDeviant, base: Fire},
	Blood:     {name: "BLOOD", tier: TierDeviant, base: Water},
	Metal:     {name: "METAL", tier: TierDeviant, base: Earth},
	Lightning: {name: "LIGHTNING", tier: TierDeviant, base: Air},
	Life:      {name: "LIFE", tier: TierEternal},
	Death:     {name: "DEATH", tier: TierEternal},
	Time:      {name: "TIME", tier: TierEternal},
	Space:     {name: "SPACE", tier: TierEternal},
}

func (a Affinity) Valid() bool { return a < numAffinities }

func (a Affinity) String() string {
	if !a.Valid() {
		return fmt.Sprintf("AFFINITY(%d)", uint8(a))
	}
	return defs[a].name
}

func (a Affinity) Tier() Tier {
	if !a.Valid() {
		return TierNone
	}
	return defs[a].tier
}

// Base returns the elemental a deviant tag requires. ok is false for non-deviants.
func (a Affinity) Base() (Affinity, bool) {
	if a.Tier() != TierDeviant {
		return Void, false
	}
	return defs[a].base, true
}

// Deviant returns the deviant variant of an elemental tag.
func (a Affinity) Deviant() (Affinity, bool) {
	if a.Tier() != TierElemental {
		return Void, false
	}
	for i := Affinity(0); i < numAffinities; i++ {
		if defs[i].tier == TierDeviant && defs[i].base == a {
			return i, true
		}
	}
	return Void, false
}

// Elementals lists elemental tags in ordinal order.
func Elementals() []Affinity {
	return byTier(TierElemental)
}

func Eternals() []Affinity {
	return byTier(TierEternal)
}

func byTier(t Tier) []Affinity {
	var out []Affinity
	for i := Affinity(0); i < numAffinities; i++ {
		if defs[i].tier == t {
			out = append(out, i)
		}
	}
	return out
}

// All lists every tag including Void.
func All() []Affinity {
	out := make([]Affinity, 0, numAffinities)
	for i := Affinity(0); i < numAffinities; i++ {
		out = append(out, i)
	}
	return out
}

func Parse(s string) (Affinity, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i := Affinity(0); i < numAffinities; i++ {
		if defs[i].name == name {
			return i, nil
		}
	}
	return Void, fmt.Errorf("%w: %q", ErrInvalidAffinity, s)
}

func (a Affinity) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: ordinal %d", ErrInvalidAffinity, uint8(a))
	}
	return []byte(a.String()), nil
}

func (a *Affinity) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
