package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeAck     = "ACK"

	// Server-bound.
	TypeOpenAffinityUI = "OPEN_AFFINITY_UI"
	TypeUseStaff       = "USE_STAFF"
	TypeConsumeItem    = "CONSUME_ITEM"
	TypeMove           = "MOVE"

	// Client-bound.
	TypeAffinityChanged = "AFFINITY_CHANGED"
	TypeAffinityUI      = "AFFINITY_UI"
	TypeMessage         = "MESSAGE"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Consumable items.
const (
	ItemAffinityTome = "AFFINITY_TOME"
	ItemClearingOrb  = "CLEARING_ORB"
	ItemAwakeningOrb = "AWAKENING_ORB"
)
