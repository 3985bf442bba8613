package affinity

import (
	"math/rand/v2"
	"testing"
)

// scriptedRand answers Float64 from a fixed value and IntN with 0.
type scriptedRand struct {
	f float64
}

func (r scriptedRand) Float64() float64 { return r.f }
func (r scriptedRand) IntN(n int) int   { return 0 }

func TestRollInitial_ForcedFailStopsAfterGuaranteedDraw(t *testing.T) {
	got := RollInitial(scriptedRand{f: 0.999}, nil)
	if len(got) != 1 {
		t.Fatalf("entries=%v want exactly the guaranteed draw", got)
	}
	if got[0].Affinity.Tier() != TierElemental {
		t.Fatalf("first draw tier=%s", got[0].Affinity.Tier())
	}
}

func TestRollInitial_ForcedSuccessTakesEveryElemental(t *testing.T) {
	got := RollInitial(scriptedRand{f: 0}, nil)
	elementals := 0
	seen := map[Affinity]bool{}
	for _, e := range got {
		if seen[e.Affinity] {
			t.Fatalf("duplicate %s in proposal %v", e.Affinity, got)
		}
		seen[e.Affinity] = true
		if e.Affinity.Tier() == TierElemental {
			elementals++
		}
	}
	if elementals != 4 {
		t.Fatalf("elementals=%d want 4 (%v)", elementals, got)
	}
	s := NewSet()
	if n := ApplyRoll(s, got); n != len(got) {
		t.Fatalf("applied=%d want %d", n, len(got))
	}
}

func TestRollInitial_Bounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 2000; i++ {
		got := RollInitial(rng, nil)
		if len(got) == 0 {
			t.Fatalf("empty roll")
		}
		elementals := 0
		for _, e := range got {
			if e.Completion < MinCompletion || e.Completion > MaxCompletion {
				t.Fatalf("completion out of range: %v", e)
			}
			if e.Affinity.Tier() == TierElemental {
				elementals++
			}
		}
		if elementals > 4 {
			t.Fatalf("elementals=%d", elementals)
		}
		s := NewSet()
		ApplyRoll(s, got)
		if s.IsVoid() {
			t.Fatalf("apply left set void: %v", got)
		}
	}
}

func TestRoll_SkipsHeldElementals(t *testing.T) {
	held := NewSet()
	for _, a := range []Affinity{Fire, Water, Earth} {
		if err := held.Add(a); err != nil {
			t.Fatalf("add %s: %v", a, err)
		}
	}
	got := DefaultRollConfig().Roll(scriptedRand{f: 0}, held)
	if len(got) == 0 || got[0].Affinity != Air {
		t.Fatalf("proposal=%v want AIR first", got)
	}
	for _, e := range got {
		if e.Affinity.Tier() == TierElemental && e.Affinity != Air {
			t.Fatalf("held elemental %s proposed again (%v)", e.Affinity, got)
		}
	}
	if n := ApplyRoll(held, got); n == 0 {
		t.Fatalf("nothing applied from %v", got)
	}
	if !held.Has(Air) {
		t.Fatalf("air not granted")
	}
}

func TestRoll_AllElementalsHeldProposesNothing(t *testing.T) {
	held := NewSet()
	for _, a := range Elementals() {
		_ = held.Add(a)
	}
	if got := DefaultRollConfig().Roll(scriptedRand{f: 0}, held); len(got) != 0 {
		t.Fatalf("proposal=%v want empty", got)
	}
}

func TestApplyRoll_SkipsRejected(t *testing.T) {
	s := NewSet()
	_ = s.Add(Water)
	n := ApplyRoll(s, []Entry{{Affinity: Water, Completion: 3}, {Affinity: Metal}, {Affinity: Fire, Completion: 40}})
	if n != 1 {
		t.Fatalf("applied=%d want 1", n)
	}
	if c, _ := s.Completion(Fire); c != 40 {
		t.Fatalf("fire completion=%d", c)
	}
	if s.Has(Metal) {
		t.Fatalf("metal applied without earth")
	}
}

func TestRollConfig_Validate(t *testing.T) {
	if err := DefaultRollConfig().Validate(); err != nil {
		t.Fatalf("default: %v", err)
	}
	bad := []RollConfig{
		{},
		{DrawChances: []float64{1, 1, 1, 1, 1}},
		{DrawChances: []float64{1.5}},
		{DrawChances: []float64{1}, DeviantChance: -0.1},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d accepted", i)
		}
	}
}
