package affinity

import (
	"errors"
	"testing"
)

func TestSet_NewIsVoid(t *testing.T) {
	s := NewSet()
	if !s.IsVoid() || s.Len() != 1 || !s.Has(Void) {
		t.Fatalf("new set entries=%v", s.Entries())
	}
}

func TestSet_AddRemovesVoidAndRejectsDuplicate(t *testing.T) {
	s := NewSet()
	if err := s.Add(Fire); err != nil {
		t.Fatalf("add fire: %v", err)
	}
	if s.Has(Void) {
		t.Fatalf("void still present after add: %v", s.Entries())
	}
	before := s.Entries()
	if err := s.Add(Fire); !errors.Is(err, ErrDuplicateAffinity) {
		t.Fatalf("second add err=%v want ErrDuplicateAffinity", err)
	}
	after := s.Entries()
	if len(before) != len(after) || before[0] != after[0] {
		t.Fatalf("set changed on rejected add: before=%v after=%v", before, after)
	}
}

func TestSet_EternalLimit(t *testing.T) {
	s := NewSet()
	if err := s.Add(Life); err != nil {
		t.Fatalf("add life: %v", err)
	}
	for _, a := range []Affinity{Death, Time, Space} {
		if err := s.Add(a); !errors.Is(err, ErrEternalLimitExceeded) {
			t.Fatalf("add %s err=%v want ErrEternalLimitExceeded", a, err)
		}
	}
	n := 0
	for _, e := range s.Entries() {
		if e.Affinity.Tier() == TierEternal {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("eternal count=%d", n)
	}
}

func TestSet_DeviantRequiresBase(t *testing.T) {
	s := NewSet()
	if err := s.Add(Lightning); !errors.Is(err, ErrMissingBaseAffinity) {
		t.Fatalf("deviant before base err=%v", err)
	}
	if !s.IsVoid() {
		t.Fatalf("rejected deviant mutated set: %v", s.Entries())
	}
	if err := s.Add(Air); err != nil {
		t.Fatalf("add base: %v", err)
	}
	if err := s.Add(Lightning); err != nil {
		t.Fatalf("deviant after base: %v", err)
	}
}

func TestSet_InsertionOrder(t *testing.T) {
	s := NewSet()
	order := []Affinity{Water, Fire, Blood, Space, Earth}
	for _, a := range order {
		if err := s.Add(a); err != nil {
			t.Fatalf("add %s: %v", a, err)
		}
	}
	got := s.Entries()
	for i, a := range order {
		if got[i].Affinity != a {
			t.Fatalf("entries[%d]=%s want %s", i, got[i].Affinity, a)
		}
	}
}

func TestSet_ClearTwice(t *testing.T) {
	s := NewSet()
	if err := s.Clear(); !errors.Is(err, ErrNothingToClear) {
		t.Fatalf("clear void err=%v", err)
	}
	_ = s.Add(Earth)
	_ = s.Add(Metal)
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !s.IsVoid() {
		t.Fatalf("after clear entries=%v", s.Entries())
	}
	if err := s.Clear(); !errors.Is(err, ErrNothingToClear) {
		t.Fatalf("second clear err=%v", err)
	}
}

func TestSet_AddVoidRejected(t *testing.T) {
	s := NewSet()
	if err := s.Add(Void); !errors.Is(err, ErrInvalidAffinity) {
		t.Fatalf("add void err=%v", err)
	}
}

func TestSet_IncrementProgressClamps(t *testing.T) {
	s := NewSet()
	if _, err := s.IncrementProgress(Fire, 5); !errors.Is(err, ErrAffinityNotHeld) {
		t.Fatalf("increment missing err=%v", err)
	}
	_ = s.AddWithCompletion(Fire, 90)
	v, err := s.IncrementProgress(Fire, 25)
	if err != nil || v != MaxCompletion {
		t.Fatalf("increment=%d err=%v", v, err)
	}
	v, _ = s.IncrementProgress(Fire, -500)
	if v != MinCompletion {
		t.Fatalf("negative increment=%d", v)
	}
}

func TestAffinity_Metadata(t *testing.T) {
	for _, el := range Elementals() {
		d, ok := el.Deviant()
		if !ok {
			t.Fatalf("%s has no deviant", el)
		}
		base, ok := d.Base()
		if !ok || base != el {
			t.Fatalf("%s base=%s ok=%v", d, base, ok)
		}
	}
	if _, ok := Life.Base(); ok {
		t.Fatalf("eternal reported a base")
	}
	a, err := Parse("soul_fire")
	if err != nil || a != SoulFire {
		t.Fatalf("parse soul_fire=%s err=%v", a, err)
	}
	if _, err := Parse("plasma"); !errors.Is(err, ErrInvalidAffinity) {
		t.Fatalf("parse unknown err=%v", err)
	}
}
