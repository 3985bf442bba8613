package engine

import (
	"sort"

	"github.com/google/uuid"

	tlog "riftgate.ai/internal/persistence/log"
	"riftgate.ai/internal/portal"
	"riftgate.ai/internal/protocol"
)

// OnPortalContact routes a player standing in a portal. Detected contacts from the portal
// tick take the same path.
func (e *Engine) OnPortalContact(player uuid.UUID, id portal.ID) (portal.Outcome, error) {
	now := e.tick.Load()
	out, err := e.router.Route(now, player, id)
	code := CodeFor(err)
	e.stats.route(code)
	entry := tlog.TravelEntry{
		Tick:     now,
		Player:   player.String(),
		Portal:   uint64(id),
		Accepted: err == nil,
		Code:     code,
	}
	if err == nil {
		entry.Direction = string(out.Direction)
		entry.From = string(out.From)
		entry.To = string(out.To)
		entry.Pos = [3]int{out.Pos.X, out.Pos.Y, out.Pos.Z}
		entry.Reciprocal = uint64(out.Reciprocal)
		e.log.Info().
			Str("player", player.String()).
			Uint64("portal", uint64(id)).
			Str("direction", string(out.Direction)).
			Str("from", string(out.From)).
			Str("to", string(out.To)).
			Msg("teleport")
	}
	if e.travel != nil {
		if werr := e.travel.WriteTravel(entry); werr != nil {
			e.log.Warn().Err(werr).Msg("travel log")
		}
	}
	return out, err
}

// Notify shows an error to the player. A repeat of the same code inside the teleport
// cooldown window is dropped so a player standing in a portal is not spammed.
func (e *Engine) Notify(player uuid.UUID, err error) {
	if err == nil {
		return
	}
	code := CodeFor(err)
	now := e.tick.Load()
	if n, ok := e.notes[player]; ok && n.code == code && now-n.tick < uint64(e.cfg.Tuning.Portal.CooldownTicks) {
		return
	}
	e.notes[player] = note{code: code, tick: now}
	e.transport.Message(player, code, messageText(code, err))
}

var messageTexts = map[string]string{
	protocol.ErrNoReturnPath:          "This portal has nowhere to send you back to.",
	protocol.ErrPortalCooldown:        "The portal rejects you. Wait a moment.",
	protocol.ErrUnresolvedDestination: "The portal flickers; its destination is not ready.",
	protocol.ErrPortalGone:            "The portal has closed.",
}

func messageText(code string, err error) string {
	if t, ok := messageTexts[code]; ok {
		return t
	}
	return err.Error()
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	out := make([]uint64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
