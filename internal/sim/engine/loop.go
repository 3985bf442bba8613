package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"riftgate.ai/internal/affinity"
	"riftgate.ai/internal/portal"
	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/geom"
)

type ActionKind string

const (
	ActConsumeItem    ActionKind = "consume_item"
	ActUseStaff       ActionKind = "use_staff"
	ActOpenAffinityUI ActionKind = "open_affinity_ui"
	ActPortalContact  ActionKind = "portal_contact"
	ActMove           ActionKind = "move"
)

// Action is one server-bound player request, applied at the next tick boundary.
type Action struct {
	Kind     ActionKind
	Player   uuid.UUID
	ReqID    string
	Item     string
	Affinity string
	Facing   [3]int
	Portal   portal.ID
	Pos      geom.Vec3i
}

// LoginResult is what a client learns on login.
type LoginResult struct {
	Player  uuid.UUID
	Realm   realm.ID
	Tick    uint64
	Entries []affinity.Entry
}

type loginReq struct {
	player uuid.UUID
	name   string
	resp   chan LoginResult
}

type spawnResp struct {
	portal portal.Portal
	err    error
}

type spawnReq struct {
	spec portal.Spec
	resp chan spawnResp
}

func (e *Engine) Run(ctx context.Context) error {
	rate := e.cfg.Tuning.TickRateHz
	if rate <= 0 {
		rate = 20
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	var (
		pendingLogins  []loginReq
		pendingLogouts []uuid.UUID
		pendingActions []Action
		pendingSpawns  []spawnReq
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stop:
			return nil
		case req := <-e.logins:
			pendingLogins = append(pendingLogins, req)
		case id := <-e.logouts:
			pendingLogouts = append(pendingLogouts, id)
		case req := <-e.spawns:
			pendingSpawns = append(pendingSpawns, req)
		case a := <-e.inbox:
			pendingActions = append(pendingActions, a)
		case <-ticker.C:
			for _, id := range pendingLogouts {
				e.OnPlayerLogout(id)
			}
			for _, req := range pendingLogins {
				req.resp <- e.OnPlayerLogin(req.player, req.name)
			}
			for _, req := range pendingSpawns {
				p, err := e.registry.Materialize(req.spec)
				req.resp <- spawnResp{portal: p, err: err}
			}
			for _, a := range pendingActions {
				e.Apply(a)
			}
			e.OnTick()
			pendingLogins = pendingLogins[:0]
			pendingLogouts = pendingLogouts[:0]
			pendingActions = pendingActions[:0]
			pendingSpawns = pendingSpawns[:0]
		}
	}
}

func (e *Engine) Stop() { close(e.stop) }

// StepOnce applies actions and advances one tick, in the same order as Run.
func (e *Engine) StepOnce(actions ...Action) uint64 {
	for _, a := range actions {
		e.Apply(a)
	}
	tick := e.tick.Load()
	e.OnTick()
	return tick
}

// Login queues a login for the next tick and waits for it.
func (e *Engine) Login(ctx context.Context, player uuid.UUID, name string) (LoginResult, error) {
	req := loginReq{player: player, name: name, resp: make(chan LoginResult, 1)}
	select {
	case e.logins <- req:
	case <-ctx.Done():
		return LoginResult{}, ctx.Err()
	}
	select {
	case res := <-req.resp:
		return res, nil
	case <-ctx.Done():
		return LoginResult{}, ctx.Err()
	}
}

func (e *Engine) Logout(player uuid.UUID) {
	select {
	case e.logouts <- player:
	default:
		e.log.Warn().Str("player", player.String()).Msg("logout queue full")
	}
}

// Submit queues an action without blocking.
func (e *Engine) Submit(a Action) error {
	select {
	case e.inbox <- a:
		return nil
	default:
		return ErrBusy
	}
}

// SpawnPortal materializes a portal at the next tick boundary.
func (e *Engine) SpawnPortal(ctx context.Context, spec portal.Spec) (portal.Portal, error) {
	req := spawnReq{spec: spec, resp: make(chan spawnResp, 1)}
	select {
	case e.spawns <- req:
	case <-ctx.Done():
		return portal.Portal{}, ctx.Err()
	}
	select {
	case r := <-req.resp:
		return r.portal, r.err
	case <-ctx.Done():
		return portal.Portal{}, ctx.Err()
	}
}

// Apply dispatches one action on the tick thread. Failures are reported to the player.
func (e *Engine) Apply(a Action) {
	var err error
	switch a.Kind {
	case ActConsumeItem:
		err = e.OnConsumeItem(a.Player, a.Item, a.Affinity)
	case ActUseStaff:
		err = e.OnUseStaff(a.Player, a.Facing)
	case ActOpenAffinityUI:
		err = e.OnOpenAffinityUI(a.Player, a.ReqID)
	case ActPortalContact:
		// The router notifies on its own.
		_, _ = e.OnPortalContact(a.Player, a.Portal)
		return
	case ActMove:
		if merr := e.host.Move(a.Player, a.Pos); merr != nil {
			err = fmt.Errorf("%w: %v", ErrBadRequest, merr)
		}
	default:
		err = ErrBadRequest
	}
	if err != nil {
		e.Notify(a.Player, err)
	}
}
