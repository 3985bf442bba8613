package enginetest

import (
	"testing"

	"github.com/google/uuid"

	"riftgate.ai/internal/affinity"
	"riftgate.ai/internal/portal"
	"riftgate.ai/internal/protocol"
	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/engine"
	"riftgate.ai/internal/sim/geom"
	"riftgate.ai/internal/sim/host"
)

func tome(p uuid.UUID, name string) engine.Action {
	return engine.Action{Kind: engine.ActConsumeItem, Player: p, Item: protocol.ItemAffinityTome, Affinity: name}
}

func TestAffinityItems(t *testing.T) {
	h := New(t, Options{})
	p := h.Login("ana")
	if got := h.Transport.Changes(p); len(got) != 1 || len(got[0]) != 1 || got[0][0].Affinity != affinity.Void {
		t.Fatalf("login notification=%v", got)
	}

	h.Step(tome(p, "FIRE"))
	h.Step(tome(p, "FIRE"))
	h.Step(tome(p, "SOUL_FIRE"))
	h.Step(tome(p, "BLOOD"))
	h.Step(tome(p, "LIFE"))
	h.Step(tome(p, "DEATH"))
	h.Step(engine.Action{Kind: engine.ActConsumeItem, Player: p, Item: "APPLE"})

	set, ok := h.Engine.Affinities(p)
	if !ok {
		t.Fatalf("no affinity set")
	}
	var got []affinity.Affinity
	for _, e := range set.Entries() {
		got = append(got, e.Affinity)
	}
	want := []affinity.Affinity{affinity.Fire, affinity.SoulFire, affinity.Life}
	if len(got) != len(want) {
		t.Fatalf("entries=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entries=%v want %v", got, want)
		}
	}
	wantCodes := []string{protocol.ErrDuplicateAffinity, protocol.ErrMissingBaseAffinity, protocol.ErrEternalLimit, protocol.ErrUnknownItem}
	codes := h.Transport.Codes(p)
	if len(codes) != len(wantCodes) {
		t.Fatalf("codes=%v want %v", codes, wantCodes)
	}
	for i := range wantCodes {
		if codes[i] != wantCodes[i] {
			t.Fatalf("codes=%v want %v", codes, wantCodes)
		}
	}
	// Login plus three successful tomes.
	if n := len(h.Transport.Changes(p)); n != 4 {
		t.Fatalf("affinity notifications=%d want 4", n)
	}

	h.Step(engine.Action{Kind: engine.ActConsumeItem, Player: p, Item: protocol.ItemClearingOrb})
	h.Step(engine.Action{Kind: engine.ActConsumeItem, Player: p, Item: protocol.ItemClearingOrb})
	set, _ = h.Engine.Affinities(p)
	if !set.IsVoid() {
		t.Fatalf("clearing orb left %v", set.Entries())
	}
	if codes := h.Transport.Codes(p); codes[len(codes)-1] != protocol.ErrNothingToClear {
		t.Fatalf("codes=%v", codes)
	}

	h.Step(engine.Action{Kind: engine.ActConsumeItem, Player: p, Item: protocol.ItemAwakeningOrb})
	set, _ = h.Engine.Affinities(p)
	if set.IsVoid() || set.Len() < 1 {
		t.Fatalf("awakening orb applied nothing: %v", set.Entries())
	}

	h.Step(engine.Action{Kind: engine.ActOpenAffinityUI, Player: p, ReqID: "r1"})
	if ui := h.Transport.UIRequests(p); len(ui) != 1 || ui[0] != "r1" {
		t.Fatalf("ui requests=%v", ui)
	}
}

func TestAffinitySetSurvivesRelog(t *testing.T) {
	h := New(t, Options{})
	p := h.Login("ana")
	h.Step(tome(p, "WATER"))
	h.Engine.OnPlayerLogout(p)
	if _, ok := h.Engine.Affinities(p); ok {
		t.Fatalf("set kept after logout")
	}
	h.Engine.OnPlayerLogin(p, "ana")
	set, ok := h.Engine.Affinities(p)
	if !ok || !set.Has(affinity.Water) {
		t.Fatalf("set after relog=%v", set)
	}
}

func TestAwakeningOrbGrantsMissingElemental(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		h := New(t, Options{Seed: seed})
		p := h.Login("ana")
		h.Step(tome(p, "FIRE"), tome(p, "WATER"), tome(p, "EARTH"))
		h.Step(engine.Action{Kind: engine.ActConsumeItem, Player: p, Item: protocol.ItemAwakeningOrb})
		set, _ := h.Engine.Affinities(p)
		if !set.Has(affinity.Air) {
			t.Fatalf("seed %d: awakening orb left %v", seed, set.Entries())
		}
		if codes := h.Transport.Codes(p); len(codes) != 0 {
			t.Fatalf("seed %d: codes=%v", seed, codes)
		}
	}
}

func TestRoundTripThroughDynamicRealm(t *testing.T) {
	h := New(t, Options{})
	p := h.Login("ana")
	gate := h.Portal(portal.Spec{Home: realm.Overworld, Pos: geom.Vec3i{X: 20, Y: 70, Z: 20}})
	if gate.Target != realm.Pending || gate.State != portal.StateActive {
		t.Fatalf("gate after init=%+v", gate)
	}

	h.Walk(p, gate)
	r, pos := h.Location(p)
	if r != realm.Dynamic(1) {
		t.Fatalf("landed in %s", r)
	}
	if g, _ := h.Engine.Registry().Get(gate.ID); g.Target != r {
		t.Fatalf("gate target=%s want %s", g.Target, r)
	}
	recips := h.PortalsIn(r)
	if len(recips) != 1 || recips[0].Target != realm.Overworld || recips[0].Pos != pos.Add(h.Tuning.Portal.ReciprocalOffset) {
		t.Fatalf("reciprocal=%+v spawn=%v", recips, pos)
	}
	rp, ok, err := h.Engine.Router().ReturnPath(p)
	if err != nil || !ok || rp.From != realm.Overworld || rp.Pos != gate.Pos {
		t.Fatalf("return path=%+v ok=%v err=%v", rp, ok, err)
	}

	// The reciprocal rejects entry until the cooldown ends; the notice is sent once.
	h.Walk(p, recips[0])
	if r2, _ := h.Location(p); r2 != r {
		t.Fatalf("routed during cooldown")
	}
	for i := 0; i < 150; i++ {
		if cur, _ := h.Location(p); cur == realm.Overworld {
			break
		}
		h.Step()
	}
	cur, back := h.Location(p)
	if cur != realm.Overworld || back != gate.Pos.Add(h.Tuning.Portal.ReturnOffset) {
		t.Fatalf("returned to %s %v", cur, back)
	}
	if codes := h.Transport.Codes(p); len(codes) != 1 || codes[0] != protocol.ErrPortalCooldown {
		t.Fatalf("codes=%v", codes)
	}
	if _, ok, _ := h.Engine.Router().ReturnPath(p); ok {
		t.Fatalf("return path not cleared")
	}

	// A second trip back through the reciprocal has nothing to return to.
	if err := h.Host.Teleport(p, r, recips[0].Pos); err != nil {
		t.Fatalf("teleport: %v", err)
	}
	for i := 0; i < 150; i++ {
		codes := h.Transport.Codes(p)
		if codes[len(codes)-1] == protocol.ErrNoReturnPath {
			break
		}
		h.Step()
	}
	codes := h.Transport.Codes(p)
	if codes[len(codes)-1] != protocol.ErrNoReturnPath {
		t.Fatalf("codes=%v", codes)
	}
	if cur, _ := h.Location(p); cur != r {
		t.Fatalf("rejected entry moved the player to %s", cur)
	}
	if m := h.Engine.Metrics(); m.Routes["ok"] != 2 || m.DynamicRealms != 1 {
		t.Fatalf("metrics=%+v", m)
	}
}

func TestReturnFromBoxEdgeLandsClearOfPortal(t *testing.T) {
	h := New(t, Options{})
	p := h.Login("ana")
	gate := h.Portal(portal.Spec{Home: realm.Overworld, Pos: geom.Vec3i{X: 0, Y: 65, Z: 20}})
	edge := geom.Vec3i{X: gate.Pos.X - h.Tuning.Portal.HalfExtent.X, Y: 65, Z: 20}
	h.Move(p, edge)
	h.Step()
	rift, _ := h.Location(p)
	if !rift.IsDynamic() {
		t.Fatalf("landed in %s", rift)
	}
	recips := h.PortalsIn(rift)
	if len(recips) != 1 {
		t.Fatalf("reciprocal portals=%d", len(recips))
	}
	h.Walk(p, recips[0])
	for i := 0; i < 150; i++ {
		if cur, _ := h.Location(p); cur == realm.Overworld {
			break
		}
		h.Step()
	}
	cur, back := h.Location(p)
	if cur != realm.Overworld {
		t.Fatalf("never returned, in %s", cur)
	}
	box := geom.Around(gate.Pos, h.Tuning.Portal.HalfExtent)
	if box.Contains(back) {
		t.Fatalf("returned to %v inside portal box %+v", back, box)
	}

	h.StepFor(h.Tuning.Portal.CooldownTicks + 1)
	if now, pos := h.Location(p); now != realm.Overworld || pos != back {
		t.Fatalf("standing still moved the player to %s %v", now, pos)
	}
}

func TestHubPortalReusedForSecondPlayer(t *testing.T) {
	h := New(t, Options{})
	a, b := h.Login("ana"), h.Login("bo")
	for _, p := range []uuid.UUID{a, b} {
		if err := h.Host.Teleport(p, realm.Hub, h.Tuning.Portal.HubSpawn); err != nil {
			t.Fatalf("teleport: %v", err)
		}
	}
	gate := h.Portal(portal.Spec{Home: realm.Hub, Pos: geom.Vec3i{X: 6, Y: 65, Z: 0}})
	h.Walk(a, gate)
	h.Walk(b, gate)
	ra, _ := h.Location(a)
	rb, _ := h.Location(b)
	if !ra.IsDynamic() || ra != rb {
		t.Fatalf("players landed in %s and %s", ra, rb)
	}
	if n := len(h.PortalsIn(ra)); n != 1 {
		t.Fatalf("reciprocal portals=%d want 1", n)
	}
	if h.Engine.Manager().Centers().Len() != 1 {
		t.Fatalf("centers=%d", h.Engine.Manager().Centers().Len())
	}
}

func TestStaffPortalConsumedAndRealmRetired(t *testing.T) {
	h := New(t, Options{})
	p := h.Login("ana")
	h.Step(tome(p, "FIRE"))
	h.Step(engine.Action{Kind: engine.ActUseStaff, Player: p, Facing: [3]int{1, 0, 0}})
	h.Step(engine.Action{Kind: engine.ActUseStaff, Player: p, Facing: [3]int{1, 0, 0}})
	if codes := h.Transport.Codes(p); len(codes) != 1 || codes[0] != protocol.ErrBusy {
		t.Fatalf("second cast codes=%v", codes)
	}
	for i := 0; i < h.Tuning.Staff.BeamTicks && len(h.PortalsIn(realm.Overworld)) == 0; i++ {
		h.Step()
	}
	ps := h.PortalsIn(realm.Overworld)
	if len(ps) != 1 {
		t.Fatalf("staff portals=%d", len(ps))
	}
	gate := ps[0]
	_, start := h.Location(p)
	if gate.Pos.X != start.X+h.Tuning.Staff.Range || gate.Pos.Z != start.Z || !gate.SingleUse || gate.Owner != p {
		t.Fatalf("staff portal=%+v start=%v", gate, start)
	}
	set, _ := h.Engine.Affinities(p)
	if c, _ := set.Completion(affinity.Fire); c != int32(h.Tuning.Staff.Progress) {
		t.Fatalf("fire completion=%d", c)
	}

	h.Walk(p, gate)
	rift, _ := h.Location(p)
	if !rift.IsDynamic() {
		t.Fatalf("landed in %s", rift)
	}
	if _, ok := h.Engine.Registry().Get(gate.ID); ok {
		t.Fatalf("single-use portal survived")
	}
	if !h.Engine.Manager().Retiring(rift) || !h.Host.HasRealm(rift) {
		t.Fatalf("realm should wait for its last player")
	}

	recip := h.PortalsIn(rift)[0]
	h.Move(p, recip.Pos)
	for i := 0; i < 150; i++ {
		if cur, _ := h.Location(p); cur == realm.Overworld {
			break
		}
		h.Step()
	}
	if cur, _ := h.Location(p); cur != realm.Overworld {
		t.Fatalf("still in %s", cur)
	}
	h.Step()
	if h.Host.HasRealm(rift) || len(h.PortalsIn(rift)) != 0 {
		t.Fatalf("retired realm still loaded")
	}
	if h.Engine.Manager().Centers().Len() != 0 || h.Engine.Manager().Retiring(rift) {
		t.Fatalf("generation center not released")
	}
}

func TestDespawnEmitsOneDisappearance(t *testing.T) {
	h := New(t, Options{})
	gate := h.Portal(portal.Spec{Home: realm.Hub, Pos: geom.Vec3i{X: 5, Y: 65, Z: 5}, DespawnTicks: 200})
	h.StepFor(198)
	if _, ok := h.Engine.Registry().Get(gate.ID); !ok {
		t.Fatalf("portal gone early")
	}
	if n := h.Host.CountEffects(host.EffectDisappear); n != 0 {
		t.Fatalf("disappear before expiry: %d", n)
	}
	h.StepFor(10)
	if _, ok := h.Engine.Registry().Get(gate.ID); ok {
		t.Fatalf("portal outlived its countdown")
	}
	if n := h.Host.CountEffects(host.EffectDisappear); n != 1 {
		t.Fatalf("disappear effects=%d want 1", n)
	}
	if h.Host.Alive(realm.Hub, uint64(gate.ID)) {
		t.Fatalf("host entity left behind")
	}
}

func TestPrimedPortalClearsAreaAndSpawnsGuardian(t *testing.T) {
	h := New(t, Options{})
	p := h.Login("ana")
	if err := h.Host.Teleport(p, realm.End, geom.Vec3i{X: 100, Y: 50, Z: 0}); err != nil {
		t.Fatalf("teleport: %v", err)
	}
	h.Portal(portal.Spec{Home: realm.End, Pos: geom.Vec3i{X: 100, Y: 50, Z: 12}, Primed: true})
	if n := h.Host.CountEffects(host.EffectAreaClear); n != 1 {
		t.Fatalf("area clears=%d want 1", n)
	}
	if h.Engine.Guardians() != 1 {
		t.Fatalf("guardians=%d", h.Engine.Guardians())
	}
	h.StepFor(h.Tuning.Guardian.BeamTicks + 2)
	if m := h.Engine.Metrics(); m.LaserHits < 1 {
		t.Fatalf("laser never landed: %+v", m)
	}
	h.StepFor(50)
	if n := h.Host.CountEffects(host.EffectAreaClear); n != 1 {
		t.Fatalf("area clear repeated: %d", n)
	}
}

func TestRealmCreationFailureLeavesPortalPending(t *testing.T) {
	// Four fixed realms fill the host.
	h := New(t, Options{MaxRealms: 4})
	p := h.Login("ana")
	gate := h.Portal(portal.Spec{Home: realm.Overworld, Pos: geom.Vec3i{X: 20, Y: 70, Z: 20}})
	h.Walk(p, gate)
	if cur, _ := h.Location(p); cur != realm.Overworld {
		t.Fatalf("player moved to %s", cur)
	}
	if g, _ := h.Engine.Registry().Get(gate.ID); g.Target != realm.Pending {
		t.Fatalf("target=%s", g.Target)
	}
	if codes := h.Transport.Codes(p); len(codes) != 1 || codes[0] != protocol.ErrUnresolvedDestination {
		t.Fatalf("codes=%v", codes)
	}
	if _, ok, _ := h.Engine.Router().ReturnPath(p); ok {
		t.Fatalf("return path written for a failed route")
	}
}

func TestRestartRestoresStateAndAllocator(t *testing.T) {
	h1 := New(t, Options{})
	p := h1.Login("ana")
	h1.Step(tome(p, "EARTH"))
	gate := h1.Portal(portal.Spec{Home: realm.Overworld, Pos: geom.Vec3i{X: 20, Y: 70, Z: 20}})
	h1.Walk(p, gate)
	snap := h1.Engine.Snapshot()
	h1.Close()

	h2 := New(t, Options{DBPath: h1.DBPath})
	if err := h2.Engine.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if h2.Engine.Tick() != snap.Header.Tick {
		t.Fatalf("tick=%d want %d", h2.Engine.Tick(), snap.Header.Tick)
	}
	h2.Engine.OnPlayerLogin(p, "ana")
	if cur, _ := h2.Location(p); cur != realm.Dynamic(1) {
		t.Fatalf("restored into %s", cur)
	}
	set, _ := h2.Engine.Affinities(p)
	if !set.Has(affinity.Earth) {
		t.Fatalf("affinities=%v", set.Entries())
	}
	if rp, ok, _ := h2.Engine.Router().ReturnPath(p); !ok || rp.From != realm.Overworld {
		t.Fatalf("return path=%+v ok=%v", rp, ok)
	}
	if g, ok := h2.Engine.Registry().Get(gate.ID); !ok || g.Target != realm.Dynamic(1) {
		t.Fatalf("gate=%+v ok=%v", g, ok)
	}
	if !h2.Engine.Router().OnCooldown(p, h2.Engine.Tick()) {
		t.Fatalf("cooldown lost")
	}

	other := h2.Login("bo")
	gate2 := h2.Portal(portal.Spec{Home: realm.Overworld, Pos: geom.Vec3i{X: -20, Y: 70, Z: -20}})
	h2.Walk(other, gate2)
	if cur, _ := h2.Location(other); cur != realm.Dynamic(2) {
		t.Fatalf("second realm=%s want %s", cur, realm.Dynamic(2))
	}
	if h2.Engine.Manager().Centers().Len() != 2 {
		t.Fatalf("centers=%d", h2.Engine.Manager().Centers().Len())
	}
}
