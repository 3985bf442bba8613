package engine_test

import (
	"errors"
	"fmt"
	"testing"

	"riftgate.ai/internal/affinity"
	"riftgate.ai/internal/dimension"
	"riftgate.ai/internal/portal"
	"riftgate.ai/internal/protocol"
	"riftgate.ai/internal/sim/engine"
	"riftgate.ai/internal/sim/enginetest"
)

func TestCodeFor(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: %q", engine.ErrUnknownItem, "BANANA"), protocol.ErrUnknownItem},
		{engine.ErrBusy, protocol.ErrBusy},
		{engine.ErrCasting, protocol.ErrBusy},
		{engine.ErrNotLoggedIn, protocol.ErrBadRequest},
		{fmt.Errorf("wrap: %w", portal.ErrPortalOnCooldown), protocol.ErrPortalCooldown},
		{affinity.ErrNothingToClear, protocol.ErrNothingToClear},
		{dimension.ErrPermanentRealm, protocol.ErrPermanentRealm},
		{errors.New("boom"), protocol.ErrInternal},
	}
	for _, tc := range cases {
		if got := engine.CodeFor(tc.err); got != tc.want {
			t.Fatalf("CodeFor(%v)=%q want %q", tc.err, got, tc.want)
		}
	}
}

func TestNotifySuppressesRepeatsInsideCooldown(t *testing.T) {
	h := enginetest.New(t, enginetest.Options{})
	p := h.Login("alice")

	h.Engine.Notify(p, portal.ErrPortalOnCooldown)
	h.Engine.Notify(p, portal.ErrPortalOnCooldown)
	if got := h.Transport.Codes(p); len(got) != 1 {
		t.Fatalf("codes=%v, want one", got)
	}
	h.Engine.Notify(p, portal.ErrNoReturnPath)
	if got := h.Transport.Codes(p); len(got) != 2 || got[1] != protocol.ErrNoReturnPath {
		t.Fatalf("codes=%v", got)
	}

	h.StepFor(h.Tuning.Portal.CooldownTicks)
	h.Engine.Notify(p, portal.ErrNoReturnPath)
	if got := h.Transport.Codes(p); len(got) != 3 {
		t.Fatalf("codes=%v, want repeat after cooldown", got)
	}
}

func TestUnknownItemIsReported(t *testing.T) {
	h := enginetest.New(t, enginetest.Options{})
	p := h.Login("bob")
	h.Step(engine.Action{Kind: engine.ActConsumeItem, Player: p, Item: "BANANA"})
	got := h.Transport.Codes(p)
	if len(got) != 1 || got[0] != protocol.ErrUnknownItem {
		t.Fatalf("codes=%v", got)
	}
	if changes := h.Transport.Changes(p); len(changes) != 1 {
		t.Fatalf("affinity changes=%d, want only the login push", len(changes))
	}
}
