package portal

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"riftgate.ai/internal/dimension"
	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/geom"
)

type RouterConfig struct {
	// SearchRadius bounds the reciprocal-portal lookup around a landing point.
	SearchRadius int
	// ReturnOffset is added to a recorded return position, repeatedly while the result is
	// still inside a portal box. It must not be zero.
	ReturnOffset geom.Vec3i
	// ReciprocalOffset places a reciprocal portal relative to the landing point.
	ReciprocalOffset geom.Vec3i
	HubSpawn         geom.Vec3i
	CooldownTicks    uint64
	Templates        []dimension.Template
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		SearchRadius:     16,
		ReturnOffset:     geom.Vec3i{X: 2},
		ReciprocalOffset: geom.Vec3i{X: 3},
		HubSpawn:         geom.Vec3i{X: 0, Y: 65, Z: 0},
		CooldownTicks:    100,
	}
}

type Direction string

const (
	Outbound Direction = "outbound"
	Return   Direction = "return"
)

// Outcome describes a completed teleport.
type Outcome struct {
	Player     uuid.UUID
	Portal     ID
	Direction  Direction
	From       realm.ID
	To         realm.ID
	Pos        geom.Vec3i
	Reciprocal ID
	Consumed   bool
}

type Router struct {
	cfg       RouterConfig
	reg       *Registry
	players   Players
	attach    Attachments
	lifecycle Lifecycle
	notifier  Notifier
	log       zerolog.Logger

	mu       sync.Mutex
	cooldown map[uuid.UUID]uint64
}

func NewRouter(cfg RouterConfig, reg *Registry, players Players, attach Attachments, lifecycle Lifecycle, notifier Notifier, logger zerolog.Logger) *Router {
	return &Router{
		cfg:       cfg,
		reg:       reg,
		players:   players,
		attach:    attach,
		lifecycle: lifecycle,
		notifier:  notifier,
		log:       logger.With().Str("component", "router").Logger(),
		cooldown:  map[uuid.UUID]uint64{},
	}
}

func (rt *Router) Config() RouterConfig { return rt.cfg }

// Route teleports player through portal id at tick now. A rejection changes nothing; it is
// returned and also shown to the player.
func (rt *Router) Route(now uint64, player uuid.UUID, id ID) (Outcome, error) {
	out, err := rt.route(now, player, id)
	if err != nil {
		rt.log.Debug().Err(err).Str("player", player.String()).Uint64("portal", uint64(id)).Msg("route rejected")
		if rt.notifier != nil {
			rt.notifier.Notify(player, err)
		}
		return Outcome{}, err
	}
	return out, nil
}

func (rt *Router) route(now uint64, player uuid.UUID, id ID) (Outcome, error) {
	p, ok := rt.reg.Get(id)
	if !ok || !p.Enterable() {
		return Outcome{}, ErrPortalGone
	}
	cur, pos, ok := rt.players.Location(player)
	if !ok || cur != p.Home {
		return Outcome{}, ErrPortalGone
	}
	if rt.OnCooldown(player, now) {
		return Outcome{}, ErrPortalOnCooldown
	}
	if p.Target == "" {
		return Outcome{}, ErrUnresolvedDestination
	}

	out := Outcome{Player: player, Portal: id, From: cur}
	if p.Home.IsVanillaLike() {
		if err := rt.outbound(p, player, cur, pos, &out); err != nil {
			return Outcome{}, err
		}
	} else {
		if err := rt.back(player, &out); err != nil {
			return Outcome{}, err
		}
	}

	if p.SingleUse {
		rt.reg.Discard(id, ReasonConsumed)
		out.Consumed = true
	}
	rt.mu.Lock()
	rt.cooldown[player] = now + rt.cfg.CooldownTicks
	rt.mu.Unlock()
	return out, nil
}

func (rt *Router) outbound(p Portal, player uuid.UUID, cur realm.ID, pos geom.Vec3i, out *Outcome) error {
	target, err := rt.lifecycle.ResolveOrCreate(rt.reg.Binding(p.ID), rt.cfg.Templates)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnresolvedDestination, err)
	}
	var spawn geom.Vec3i
	if target == realm.Hub {
		spawn = rt.cfg.HubSpawn
	} else {
		spawn, err = rt.lifecycle.SpawnPoint(target)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUnresolvedDestination, err)
		}
	}

	prev, hadPrev := rt.attach.Attachment(player, ReturnPathKey)
	data, err := json.Marshal(ReturnPath{From: cur, Pos: pos})
	if err != nil {
		return err
	}
	rt.attach.SetAttachment(player, ReturnPathKey, data)
	if err := rt.players.Teleport(player, target, spawn); err != nil {
		if hadPrev {
			rt.attach.SetAttachment(player, ReturnPathKey, prev)
		} else {
			rt.attach.DeleteAttachment(player, ReturnPathKey)
		}
		return fmt.Errorf("teleport: %w", err)
	}

	out.Direction = Outbound
	out.To = target
	out.Pos = spawn
	if _, found := rt.reg.FindNearest(target, spawn, rt.cfg.SearchRadius); !found {
		recip, err := rt.reg.Materialize(Spec{
			Owner:  p.Owner,
			Home:   target,
			Target: cur,
			Pos:    spawn.Add(rt.cfg.ReciprocalOffset),
		})
		if err != nil {
			rt.log.Error().Err(err).Str("realm", string(target)).Msg("reciprocal portal")
		} else {
			out.Reciprocal = recip.ID
		}
	}
	return nil
}

func (rt *Router) back(player uuid.UUID, out *Outcome) error {
	rp, ok, err := rt.ReturnPath(player)
	if err != nil {
		rt.log.Warn().Err(err).Str("player", player.String()).Msg("dropping corrupt return path")
		rt.attach.DeleteAttachment(player, ReturnPathKey)
		return ErrNoReturnPath
	}
	if !ok {
		return ErrNoReturnPath
	}
	dest := rt.returnPoint(rp)
	if err := rt.players.Teleport(player, rp.From, dest); err != nil {
		return fmt.Errorf("teleport: %w", err)
	}
	rt.attach.DeleteAttachment(player, ReturnPathKey)
	out.Direction = Return
	out.To = rp.From
	out.Pos = dest
	return nil
}

// maxReturnSteps bounds the walk out of overlapping portal boxes.
const maxReturnSteps = 32

func (rt *Router) returnPoint(rp ReturnPath) geom.Vec3i {
	dest := rp.Pos.Add(rt.cfg.ReturnOffset)
	for i := 0; i < maxReturnSteps && rt.reg.Covers(rp.From, dest); i++ {
		dest = dest.Add(rt.cfg.ReturnOffset)
	}
	return dest
}

// ReturnPath decodes the player's stored return path.
func (rt *Router) ReturnPath(player uuid.UUID) (ReturnPath, bool, error) {
	data, ok := rt.attach.Attachment(player, ReturnPathKey)
	if !ok {
		return ReturnPath{}, false, nil
	}
	var rp ReturnPath
	if err := json.Unmarshal(data, &rp); err != nil {
		return ReturnPath{}, false, err
	}
	return rp, true, nil
}

func (rt *Router) OnCooldown(player uuid.UUID, now uint64) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	until, ok := rt.cooldown[player]
	return ok && now < until
}

// Cooldown is one player's teleport cooldown.
type Cooldown struct {
	Player uuid.UUID `json:"player"`
	Until  uint64    `json:"until"`
}

// Cooldowns lists active cooldowns ordered by player.
func (rt *Router) Cooldowns(now uint64) []Cooldown {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]Cooldown, 0, len(rt.cooldown))
	for p, until := range rt.cooldown {
		if until > now {
			out = append(out, Cooldown{Player: p, Until: until})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Player.String() < out[j].Player.String() })
	return out
}

func (rt *Router) RestoreCooldowns(cs []Cooldown) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, c := range cs {
		rt.cooldown[c.Player] = c.Until
	}
}

// Expire drops cooldowns that ended before now.
func (rt *Router) Expire(now uint64) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for p, until := range rt.cooldown {
		if until <= now {
			delete(rt.cooldown, p)
		}
	}
}
