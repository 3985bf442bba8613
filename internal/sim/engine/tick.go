package engine

import (
	"sort"
	"time"

	"riftgate.ai/internal/realm"
)

// OnTick advances the world one tick: realm removals, beams, guardians, every realm's portals
// and the contacts they report, deferred retirements, then housekeeping.
func (e *Engine) OnTick() {
	start := time.Now()
	now := e.tick.Load()

	for _, id := range e.host.DrainRemovals() {
		n := e.registry.DropRealm(id)
		for gid, g := range e.guardians {
			if g.mob.Realm == id {
				delete(e.guardians, gid)
			}
		}
		e.stats.realmsRemoved++
		e.log.Info().Str("realm", string(id)).Int("portals", n).Msg("realm unregistered")
	}

	e.stepBeams()
	e.stepGuardians(now)

	for _, home := range e.portalRealms() {
		for _, c := range e.registry.Tick(home) {
			_, _ = e.OnPortalContact(c.Player, c.Portal)
		}
	}

	e.manager.ProcessRetirements()
	e.router.Expire(now)

	t := e.cfg.Tuning
	if t.UnloadEveryTicks > 0 && now > 0 && now%uint64(t.UnloadEveryTicks) == 0 {
		if n := e.host.UnloadIdle(); n > 0 {
			e.log.Debug().Int("chunks", n).Msg("unloaded idle chunks")
		}
	}
	if e.snapshotSink != nil && t.SnapshotEveryTicks > 0 && now > 0 && now%uint64(t.SnapshotEveryTicks) == 0 {
		snap := e.Snapshot()
		select {
		case e.snapshotSink <- snap:
		default:
			e.log.Warn().Uint64("tick", now).Msg("snapshot sink full; dropping snapshot")
		}
	}

	e.tick.Add(1)
	e.stats.stepMS = float64(time.Since(start).Microseconds()) / 1000
	e.publishMetrics(now + 1)
}

// portalRealms lists the home realms that currently hold portals.
func (e *Engine) portalRealms() []realm.ID {
	seen := map[realm.ID]struct{}{}
	for _, p := range e.registry.List("") {
		seen[p.Home] = struct{}{}
	}
	out := make([]realm.ID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
