package affinity

import "fmt"

// Rand is the subset of *math/rand/v2.Rand used by rolls.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// RollConfig holds the initial roll probabilities.
type RollConfig struct {
	// DrawChances is the success chance of each successive draw. Rolling stops at the first miss.
	DrawChances   []float64 `yaml:"draw_chances"`
	DeviantChance float64   `yaml:"deviant_chance"`
}

func DefaultRollConfig() RollConfig {
	return RollConfig{
		DrawChances:   []float64{1.0, 0.25, 0.20, 0.20},
		DeviantChance: 0.25,
	}
}

func (c RollConfig) Validate() error {
	if len(c.DrawChances) == 0 || len(c.DrawChances) > len(Elementals()) {
		return fmt.Errorf("draw_chances must have 1..%d entries", len(Elementals()))
	}
	for i, p := range c.DrawChances {
		if p < 0 || p > 1 {
			return fmt.Errorf("draw_chances[%d] must be in [0,1]", i)
		}
	}
	if c.DeviantChance < 0 || c.DeviantChance > 1 {
		return fmt.Errorf("deviant_chance must be in [0,1]")
	}
	return nil
}

// RollInitial proposes a starting affinity loadout with the default probabilities. The
// proposal is not validated against any set; callers feed it through ApplyRoll.
func RollInitial(rng Rand, held *Set) []Entry { return DefaultRollConfig().Roll(rng, held) }

// Roll draws only from elementals missing from held. A nil held set means nothing is held.
func (c RollConfig) Roll(rng Rand, held *Set) []Entry {
	var out []Entry
	taken := map[Affinity]bool{}
	if held != nil {
		for _, a := range Elementals() {
			if held.Has(a) {
				taken[a] = true
			}
		}
	}
	for _, chance := range c.DrawChances {
		if rng.Float64() >= chance {
			break
		}
		var pool []Affinity
		for _, a := range Elementals() {
			if !taken[a] {
				pool = append(pool, a)
			}
		}
		if len(pool) == 0 {
			break
		}
		pick := pool[rng.IntN(len(pool))]
		taken[pick] = true
		out = append(out, Entry{Affinity: pick, Completion: rollCompletion(rng)})
		if rng.Float64() < c.DeviantChance {
			if d, ok := pick.Deviant(); ok {
				out = append(out, Entry{Affinity: d, Completion: rollCompletion(rng)})
			}
		}
	}
	return out
}

// ApplyRoll adds every proposed entry the set accepts and returns how many were applied.
// Rejections are skipped silently.
func ApplyRoll(s *Set, proposal []Entry) int {
	applied := 0
	for _, e := range proposal {
		if err := s.AddWithCompletion(e.Affinity, e.Completion); err != nil {
			continue
		}
		applied++
	}
	return applied
}

func rollCompletion(rng Rand) int32 {
	return int32(rng.IntN(int(MaxCompletion) + 1))
}
