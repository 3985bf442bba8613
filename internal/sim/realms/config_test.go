package realms

import (
	"os"
	"path/filepath"
	"testing"

	"riftgate.ai/internal/realm"
)

func TestLoad_RealmsYAML(t *testing.T) {
	cfg, err := Load("../../../configs/realms.yaml")
	if err != nil {
		t.Fatalf("load realms.yaml: %v", err)
	}
	if len(cfg.Fixed) != 4 {
		t.Fatalf("fixed=%d want 4", len(cfg.Fixed))
	}
	hub, ok := cfg.FixedSpec(realm.Hub)
	if !ok || hub.Spawn.Y != 65 || !hub.Permanent {
		t.Fatalf("hub=%+v ok=%v", hub, ok)
	}
	if len(cfg.Pool(1)) == 0 {
		t.Fatalf("empty template pool")
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	m := cfg.Manifest()
	for i := 1; i < len(m); i++ {
		if m[i-1].RealmID >= m[i].RealmID {
			t.Fatalf("manifest not sorted: %v", m)
		}
	}
}

func TestNormalize_FillsKindAndWeight(t *testing.T) {
	cfg := Config{
		Fixed:     []FixedSpec{{ID: string(realm.Hub)}, {ID: string(realm.Nether)}},
		Templates: []TemplateSpec{{ID: "riftgate:plain"}},
	}
	cfg.Normalize()
	if cfg.Fixed[0].Kind != "arcane_hub" || cfg.Fixed[1].Kind != "nether" {
		t.Fatalf("kinds=%q,%q", cfg.Fixed[0].Kind, cfg.Fixed[1].Kind)
	}
	if cfg.Templates[0].Weight != 1 || cfg.DefaultRealm != string(realm.Hub) {
		t.Fatalf("normalize=%+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "realms.yaml")
	bad := []string{
		"fixed:\n  - id: \"Not Valid\"\n",
		"fixed:\n  - id: riftgate:somewhere\n",
		"fixed:\n  - id: minecraft:overworld\n",
		"default_realm: minecraft:the_end\nfixed:\n  - id: riftgate:arcane_hub\n",
		"templates:\n  - id: riftgate:a\n  - id: riftgate:a\n",
	}
	for _, raw := range bad {
		if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("accepted:\n%s", raw)
		}
	}
}
