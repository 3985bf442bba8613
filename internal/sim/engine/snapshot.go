package engine

import (
	"fmt"

	"github.com/google/uuid"

	"riftgate.ai/internal/persistence/snapshot"
	"riftgate.ai/internal/portal"
	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/geom"
)

// Snapshot captures the engine and host state. Affinity sets and return paths travel as
// player attachments.
func (e *Engine) Snapshot() snapshot.SnapshotV1 {
	for player, set := range e.sets {
		e.saveSet(player, set)
	}
	now := e.tick.Load()
	snap := snapshot.SnapshotV1{
		Header:       snapshot.Header{Version: snapshot.Version, Tick: now, Seed: e.cfg.Seed},
		TickRate:     e.cfg.Tuning.TickRateHz,
		NextEntityID: e.host.NextEntityID(),
		Realms:       e.host.ExportRealms(),
		Players:      e.host.ExportPlayers(),
	}
	for _, p := range e.registry.List("") {
		snap.Portals = append(snap.Portals, snapshot.PortalV1{
			ID:           uint64(p.ID),
			Owner:        ownerString(p.Owner),
			Home:         string(p.Home),
			Target:       string(p.Target),
			Pos:          [3]int{p.Pos.X, p.Pos.Y, p.Pos.Z},
			SingleUse:    p.SingleUse,
			DespawnTicks: p.DespawnTicks,
			Primed:       p.Primed,
			State:        uint8(p.State),
			Remaining:    p.Remaining,
			Age:          p.Age,
		})
	}
	for _, c := range e.router.Cooldowns(now) {
		snap.Cooldowns = append(snap.Cooldowns, snapshot.CooldownV1{Player: c.Player.String(), Until: c.Until})
	}
	return snap
}

func ownerString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

// Restore loads a snapshot into a fresh engine before Run. Generation centers whose realm did
// not make it into the snapshot are dropped, and snapshot realms without a center are queued
// for removal.
func (e *Engine) Restore(snap snapshot.SnapshotV1) error {
	if err := e.host.ImportRealms(snap.Realms); err != nil {
		return err
	}
	if err := e.host.ImportPlayers(snap.Players); err != nil {
		return err
	}
	var ps []portal.Portal
	for _, pv := range snap.Portals {
		p, err := portalFromSnapshot(pv)
		if err != nil {
			return err
		}
		if err := e.host.RestorePortal(p.Home, uint64(p.ID), p.Pos); err != nil {
			e.log.Warn().Err(err).Uint64("portal", pv.ID).Msg("dropping portal from snapshot")
			continue
		}
		ps = append(ps, p)
	}
	e.registry.Restore(ps)
	e.host.SetNextEntityID(snap.NextEntityID)

	var cds []portal.Cooldown
	for _, c := range snap.Cooldowns {
		id, err := uuid.Parse(c.Player)
		if err != nil {
			return fmt.Errorf("snapshot cooldown: %w", err)
		}
		cds = append(cds, portal.Cooldown{Player: id, Until: c.Until})
	}
	e.router.RestoreCooldowns(cds)

	for _, c := range e.manager.Centers().Centers() {
		if !e.host.HasRealm(c.Realm) {
			e.manager.Drop(c.Realm)
		}
	}
	for _, rv := range snap.Realms {
		id := realm.ID(rv.ID)
		if _, ok := e.manager.Centers().AnchorOf(id); id.IsDynamic() && !ok {
			e.host.MarkForRemoval(id)
		}
	}
	e.tick.Store(snap.Header.Tick)
	e.publishMetrics(snap.Header.Tick)
	return nil
}

func portalFromSnapshot(pv snapshot.PortalV1) (portal.Portal, error) {
	home, err := realm.Parse(pv.Home)
	if err != nil {
		return portal.Portal{}, fmt.Errorf("snapshot portal %d: %w", pv.ID, err)
	}
	var target realm.ID
	if pv.Target != "" {
		if target, err = realm.Parse(pv.Target); err != nil {
			return portal.Portal{}, fmt.Errorf("snapshot portal %d: %w", pv.ID, err)
		}
	}
	var owner uuid.UUID
	if pv.Owner != "" {
		if owner, err = uuid.Parse(pv.Owner); err != nil {
			return portal.Portal{}, fmt.Errorf("snapshot portal %d: %w", pv.ID, err)
		}
	}
	return portal.Portal{
		ID:           portal.ID(pv.ID),
		Owner:        owner,
		Home:         home,
		Target:       target,
		Pos:          geom.Vec3i{X: pv.Pos[0], Y: pv.Pos[1], Z: pv.Pos[2]},
		SingleUse:    pv.SingleUse,
		DespawnTicks: pv.DespawnTicks,
		Primed:       pv.Primed,
		State:        portal.State(pv.State),
		Remaining:    pv.Remaining,
		Age:          pv.Age,
	}, nil
}
