package protocol

import (
	"encoding/base64"
	"fmt"

	"riftgate.ai/internal/affinity"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerID        string `json:"player_id"`
	PlayerName      string `json:"player_name,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	PlayerID        string      `json:"player_id"`
	CurrentRealm    string      `json:"current_realm,omitempty"`
	ServerTick      uint64      `json:"server_tick"`
	Params          WorldParams `json:"world_params"`
	RealmManifest   []RealmRef  `json:"realm_manifest,omitempty"`
}

type WorldParams struct {
	TickRateHz int   `json:"tick_rate_hz"`
	ChunkSize  int   `json:"chunk_size"`
	ChunkBound int   `json:"chunk_bound"`
	Seed       int64 `json:"seed"`
}

type RealmRef struct {
	RealmID   string `json:"realm_id"`
	Kind      string `json:"kind,omitempty"`
	Permanent bool   `json:"permanent,omitempty"`
}

// OPEN_AFFINITY_UI (client -> server)
type OpenAffinityUIMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
}

// USE_STAFF (client -> server)
type UseStaffMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Facing          [3]int `json:"facing"`
}

// CONSUME_ITEM (client -> server). Affinity names the tome's affinity.
type ConsumeItemMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Item            string `json:"item"`
	Affinity        string `json:"affinity,omitempty"`
}

// MOVE (client -> server): walk to Pos inside the current realm.
type MoveMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Pos             [3]int `json:"pos"`
}

// AFFINITY_CHANGED (server -> client). Entries is the base64 ordinal+int32 encoding.
type AffinityChangedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ServerTick      uint64 `json:"server_tick"`
	Entries         string `json:"entries"`
}

// AFFINITY_UI (server -> client)
type AffinityUIMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Entries         string `json:"entries"`
}

// MESSAGE (server -> client): a user-visible notice such as a rejected portal entry.
type MessageMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code,omitempty"`
	Text            string `json:"text"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

// EncodeEntries renders affinity entries for the wire.
func EncodeEntries(es []affinity.Entry) string {
	return base64.StdEncoding.EncodeToString(affinity.EncodeEntries(es))
}

func DecodeEntries(s string) ([]affinity.Entry, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("entries: %w", err)
	}
	return affinity.DecodeEntries(raw)
}
