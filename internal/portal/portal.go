// Package portal tracks live portal instances and routes players that step into them.
package portal

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/geom"
)

// ID is the host entity id of a portal.
type ID uint64

type State uint8

const (
	StateUninitialized State = iota
	StateActive
	StateDespawning
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateDespawning:
		return "despawning"
	case StateRemoved:
		return "removed"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Spec describes a portal to materialize.
type Spec struct {
	Owner        uuid.UUID
	Home         realm.ID
	Target       realm.ID
	Pos          geom.Vec3i
	SingleUse    bool
	DespawnTicks int
	Primed       bool
}

// Portal is a copy of a registered portal's state.
type Portal struct {
	ID           ID         `json:"id"`
	Owner        uuid.UUID  `json:"owner"`
	Home         realm.ID   `json:"home"`
	Target       realm.ID   `json:"target"`
	Pos          geom.Vec3i `json:"pos"`
	SingleUse    bool       `json:"single_use,omitempty"`
	DespawnTicks int        `json:"despawn_ticks,omitempty"`
	Primed       bool       `json:"primed,omitempty"`

	State     State  `json:"state"`
	Remaining int    `json:"remaining,omitempty"`
	Age       uint64 `json:"age"`
}

// Live reports whether the portal still exists in the world.
func (p Portal) Live() bool { return p.State != StateRemoved }

// Enterable reports whether contact with the portal may route a player.
func (p Portal) Enterable() bool { return p.State == StateActive || p.State == StateDespawning }

// ReturnPathKey is the player attachment key holding the return path.
const ReturnPathKey = "riftgate:return_path"

// ReturnPath remembers where a player came from on an outbound trip.
type ReturnPath struct {
	From realm.ID
	Pos  geom.Vec3i
}

type returnPathJSON struct {
	From string `json:"from"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Z    int    `json:"z"`
}

func (rp ReturnPath) MarshalJSON() ([]byte, error) {
	return json.Marshal(returnPathJSON{From: string(rp.From), X: rp.Pos.X, Y: rp.Pos.Y, Z: rp.Pos.Z})
}

func (rp *ReturnPath) UnmarshalJSON(b []byte) error {
	var v returnPathJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptReturnPath, err)
	}
	from, err := realm.Parse(v.From)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptReturnPath, err)
	}
	if !from.Resolved() {
		return fmt.Errorf("%w: unresolved realm %q", ErrCorruptReturnPath, v.From)
	}
	rp.From = from
	rp.Pos = geom.Vec3i{X: v.X, Y: v.Y, Z: v.Z}
	return nil
}
