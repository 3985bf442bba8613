package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWriter_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWriter(&buf, "debug", "router", false)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Debug().Str("realm", "riftgate:rift_1").Msg("route rejected")

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("not json: %v: %s", err, buf.String())
	}
	if m["component"] != "router" || m["realm"] != "riftgate:rift_1" || m["level"] != "debug" {
		t.Fatalf("fields=%v", m)
	}
	if _, ok := m["time"]; !ok {
		t.Fatalf("missing timestamp: %v", m)
	}
}

func TestNewWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWriter(&buf, "WARN", "", false)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, err := ParseLevel(""); err != nil || lvl != zerolog.InfoLevel {
		t.Fatalf("empty: %v %v", lvl, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error")
	}
}
