package engine

import (
	"fmt"

	"github.com/google/uuid"

	"riftgate.ai/internal/affinity"
	"riftgate.ai/internal/portal"
	"riftgate.ai/internal/protocol"
)

// OnPlayerLogin brings a player online and loads its affinity set, creating {VOID} on the
// first session. The client is sent the current set.
func (e *Engine) OnPlayerLogin(player uuid.UUID, name string) LoginResult {
	r := e.host.Connect(player, name)
	set := e.loadSet(player)
	e.sets[player] = set
	if _, ok, err := e.router.ReturnPath(player); err != nil {
		e.log.Warn().Err(err).Str("player", player.String()).Msg("corrupt return path")
		e.host.DeleteAttachment(player, portal.ReturnPathKey)
	} else if ok {
		e.log.Debug().Str("player", player.String()).Msg("return path restored")
	}
	entries := set.Entries()
	e.transport.AffinityChanged(player, e.tick.Load(), entries)
	e.log.Info().Str("player", player.String()).Str("realm", string(r)).Msg("player login")
	return LoginResult{Player: player, Realm: r, Tick: e.tick.Load(), Entries: entries}
}

func (e *Engine) loadSet(player uuid.UUID) *affinity.Set {
	set := affinity.NewSet()
	if data, ok := e.host.Attachment(player, AffinityKey); ok {
		err := set.UnmarshalBinary(data)
		if err == nil {
			return set
		}
		e.log.Warn().Err(err).Str("player", player.String()).Msg("resetting corrupt affinity set")
		set = affinity.NewSet()
	}
	e.saveSet(player, set)
	return set
}

func (e *Engine) saveSet(player uuid.UUID, set *affinity.Set) {
	data, err := set.MarshalBinary()
	if err != nil {
		e.log.Error().Err(err).Str("player", player.String()).Msg("encode affinity set")
		return
	}
	e.host.SetAttachment(player, AffinityKey, data)
}

func (e *Engine) OnPlayerLogout(player uuid.UUID) {
	if set, ok := e.sets[player]; ok {
		e.saveSet(player, set)
		delete(e.sets, player)
	}
	delete(e.notes, player)
	kept := e.beams[:0]
	for _, b := range e.beams {
		if b.Caster != player {
			kept = append(kept, b)
		}
	}
	e.beams = kept
	e.host.Disconnect(player)
	e.log.Info().Str("player", player.String()).Msg("player logout")
}

// Affinities returns a copy of an online player's set.
func (e *Engine) Affinities(player uuid.UUID) (*affinity.Set, bool) {
	set, ok := e.sets[player]
	if !ok {
		return nil, false
	}
	return set.Clone(), true
}

// OnConsumeItem applies an affinity item. The set changes only on success, and every success
// is followed by an affinity-changed notification.
func (e *Engine) OnConsumeItem(player uuid.UUID, item, name string) error {
	set, ok := e.sets[player]
	if !ok {
		return ErrNotLoggedIn
	}
	switch item {
	case protocol.ItemAffinityTome:
		a, err := affinity.Parse(name)
		if err != nil {
			return err
		}
		if err := set.Add(a); err != nil {
			return err
		}
	case protocol.ItemClearingOrb:
		if err := set.Clear(); err != nil {
			return err
		}
	case protocol.ItemAwakeningOrb:
		proposal := e.cfg.Tuning.Affinity.Roll(e.rng, set)
		if affinity.ApplyRoll(set, proposal) == 0 {
			return affinity.ErrDuplicateAffinity
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownItem, item)
	}
	e.affinityChanged(player, set)
	return nil
}

func (e *Engine) affinityChanged(player uuid.UUID, set *affinity.Set) {
	e.saveSet(player, set)
	e.transport.AffinityChanged(player, e.tick.Load(), set.Entries())
}

// OnOpenAffinityUI answers with the full entry list.
func (e *Engine) OnOpenAffinityUI(player uuid.UUID, reqID string) error {
	set, ok := e.sets[player]
	if !ok {
		return ErrNotLoggedIn
	}
	e.transport.AffinityUI(player, reqID, set.Entries())
	return nil
}
