package affinity

import "fmt"

const (
	MinCompletion int32 = 0
	MaxCompletion int32 = 100
)

type Entry struct {
	Affinity   Affinity `json:"affinity"`
	Completion int32    `json:"completion"`
}

// Set is a player's insertion-ordered affinity collection. It holds exactly {Void} when
// nothing else is unlocked. The zero value is not valid; use NewSet.
type Set struct {
	entries []Entry
}

func NewSet() *Set {
	return &Set{entries: []Entry{{Affinity: Void}}}
}

func (s *Set) Len() int { return len(s.entries) }

func (s *Set) Has(a Affinity) bool {
	return s.index(a) >= 0
}

// IsVoid reports whether the set is in its placeholder state.
func (s *Set) IsVoid() bool {
	return len(s.entries) == 1 && s.entries[0].Affinity == Void
}

func (s *Set) HasEternal() bool {
	for _, e := range s.entries {
		if e.Affinity.Tier() == TierEternal {
			return true
		}
	}
	return false
}

func (s *Set) Completion(a Affinity) (int32, bool) {
	i := s.index(a)
	if i < 0 {
		return 0, false
	}
	return s.entries[i].Completion, true
}

// Entries returns a copy in insertion order.
func (s *Set) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Set) Clone() *Set {
	return &Set{entries: s.Entries()}
}

func (s *Set) Add(a Affinity) error {
	return s.AddWithCompletion(a, MinCompletion)
}

func (s *Set) AddWithCompletion(a Affinity, completion int32) error {
	if err := s.CanAdd(a); err != nil {
		return err
	}
	if s.IsVoid() {
		s.entries = s.entries[:0]
	}
	s.entries = append(s.entries, Entry{Affinity: a, Completion: clampCompletion(completion)})
	return nil
}

// CanAdd runs the validation of Add without mutating the set.
func (s *Set) CanAdd(a Affinity) error {
	if !a.Valid() || a == Void {
		return fmt.Errorf("%w: %s", ErrInvalidAffinity, a)
	}
	if s.Has(a) {
		return fmt.Errorf("%w: %s", ErrDuplicateAffinity, a)
	}
	switch a.Tier() {
	case TierEternal:
		if s.HasEternal() {
			return fmt.Errorf("%w: %s", ErrEternalLimitExceeded, a)
		}
	case TierDeviant:
		base, _ := a.Base()
		if !s.Has(base) {
			return fmt.Errorf("%w: %s needs %s", ErrMissingBaseAffinity, a, base)
		}
	}
	return nil
}

func (s *Set) Clear() error {
	if s.IsVoid() {
		return ErrNothingToClear
	}
	s.entries = []Entry{{Affinity: Void}}
	return nil
}

// IncrementProgress adds delta to a held tag's completion and returns the clamped result.
func (s *Set) IncrementProgress(a Affinity, delta int32) (int32, error) {
	if a == Void {
		return 0, fmt.Errorf("%w: %s", ErrAffinityNotHeld, a)
	}
	i := s.index(a)
	if i < 0 {
		return 0, fmt.Errorf("%w: %s", ErrAffinityNotHeld, a)
	}
	s.entries[i].Completion = clampCompletion(s.entries[i].Completion + delta)
	return s.entries[i].Completion, nil
}

func (s *Set) index(a Affinity) int {
	for i, e := range s.entries {
		if e.Affinity == a {
			return i
		}
	}
	return -1
}

func clampCompletion(v int32) int32 {
	if v < MinCompletion {
		return MinCompletion
	}
	if v > MaxCompletion {
		return MaxCompletion
	}
	return v
}
