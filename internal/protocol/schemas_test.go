package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"riftgate.ai/internal/affinity"
	"riftgate.ai/internal/protocol"
	"riftgate.ai/internal/realm"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// asAny round-trips v through JSON so the validator sees plain maps.
func asAny(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_ValidateMessages(t *testing.T) {
	entries := protocol.EncodeEntries([]affinity.Entry{{Affinity: affinity.Water, Completion: 12}})
	cases := []struct {
		schema string
		msg    any
	}{
		{"hello.schema.json", protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerID: uuid.NewString(), PlayerName: "ari"}},
		{"welcome.schema.json", protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       "s1",
			PlayerID:        uuid.NewString(),
			CurrentRealm:    string(realm.Overworld),
			ServerTick:      42,
			Params:          protocol.WorldParams{TickRateHz: 20, ChunkSize: 16, ChunkBound: 4, Seed: 1337},
			RealmManifest:   []protocol.RealmRef{{RealmID: string(realm.Hub), Kind: "hub", Permanent: true}},
		}},
		{"open_affinity_ui.schema.json", protocol.OpenAffinityUIMsg{Type: protocol.TypeOpenAffinityUI, ProtocolVersion: protocol.Version, ReqID: "r1"}},
		{"use_staff.schema.json", protocol.UseStaffMsg{Type: protocol.TypeUseStaff, ProtocolVersion: protocol.Version, Facing: [3]int{1, 0, 0}}},
		{"consume_item.schema.json", protocol.ConsumeItemMsg{Type: protocol.TypeConsumeItem, ProtocolVersion: protocol.Version, Item: protocol.ItemAffinityTome, Affinity: "FIRE"}},
		{"consume_item.schema.json", protocol.ConsumeItemMsg{Type: protocol.TypeConsumeItem, ProtocolVersion: protocol.Version, Item: protocol.ItemClearingOrb}},
		{"move.schema.json", protocol.MoveMsg{Type: protocol.TypeMove, ProtocolVersion: protocol.Version, Pos: [3]int{4, 65, -2}}},
		{"affinity_changed.schema.json", protocol.AffinityChangedMsg{Type: protocol.TypeAffinityChanged, ProtocolVersion: protocol.Version, ServerTick: 7, Entries: entries}},
		{"affinity_ui.schema.json", protocol.AffinityUIMsg{Type: protocol.TypeAffinityUI, ProtocolVersion: protocol.Version, Entries: entries}},
		{"message.schema.json", protocol.MessageMsg{Type: protocol.TypeMessage, ProtocolVersion: protocol.Version, Code: protocol.ErrNoReturnPath, Text: "no return path"}},
	}
	for _, c := range cases {
		if err := compile(t, c.schema).Validate(asAny(t, c.msg)); err != nil {
			t.Fatalf("%s: %v", c.schema, err)
		}
	}
}

func TestSchemas_RejectMalformed(t *testing.T) {
	cases := []struct {
		schema string
		raw    string
	}{
		{"hello.schema.json", `{"type":"HELLO","protocol_version":"1.0","player_id":"not-a-uuid"}`},
		{"use_staff.schema.json", `{"type":"USE_STAFF","protocol_version":"1.0","facing":[2,0,0]}`},
		{"consume_item.schema.json", `{"type":"CONSUME_ITEM","protocol_version":"1.0","item":"AFFINITY_TOME"}`},
		{"consume_item.schema.json", `{"type":"CONSUME_ITEM","protocol_version":"1.0","item":"APPLE"}`},
		{"move.schema.json", `{"type":"MOVE","protocol_version":"1.0","pos":[1,2]}`},
		{"welcome.schema.json", `{"type":"WELCOME","protocol_version":"1.0","session_id":"s","player_id":"p","server_tick":0,"current_realm":"Bad Realm","world_params":{"tick_rate_hz":20,"chunk_size":16,"chunk_bound":4,"seed":1}}`},
	}
	for _, c := range cases {
		var v any
		if err := json.Unmarshal([]byte(c.raw), &v); err != nil {
			t.Fatalf("bad fixture: %v", err)
		}
		if err := compile(t, c.schema).Validate(v); err == nil {
			t.Fatalf("%s accepted %s", c.schema, c.raw)
		}
	}
}
