// Package realms loads realms.yaml: the fixed realms and the template pool for dynamic ones.
package realms

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"riftgate.ai/internal/dimension"
	"riftgate.ai/internal/protocol"
	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/geom"
	"riftgate.ai/internal/sim/terrain"
)

type Config struct {
	DefaultRealm string         `yaml:"default_realm"`
	Fixed        []FixedSpec    `yaml:"fixed"`
	Templates    []TemplateSpec `yaml:"templates"`
}

type FixedSpec struct {
	ID        string      `yaml:"id"`
	Kind      string      `yaml:"kind"`
	Spawn     geom.Vec3i  `yaml:"spawn"`
	Permanent bool        `yaml:"permanent"`
	Terrain   TerrainSpec `yaml:"terrain"`
}

type TemplateSpec struct {
	ID      string      `yaml:"id"`
	Weight  int         `yaml:"weight"`
	Terrain TerrainSpec `yaml:"terrain"`
}

type TerrainSpec struct {
	SeedOffset int64 `yaml:"seed_offset"`
	BaseHeight int   `yaml:"base_height"`
	Amplitude  int   `yaml:"amplitude"`
	RegionSize int   `yaml:"region_size"`
}

func (t TerrainSpec) Generator(seed int64) terrain.Generator {
	return terrain.Generator{
		Seed:       seed + t.SeedOffset,
		BaseHeight: t.BaseHeight,
		Amplitude:  t.Amplitude,
		RegionSize: t.RegionSize,
	}
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	var file Config
	if err := yaml.Unmarshal(b, &file); err != nil {
		return cfg, fmt.Errorf("realms.yaml: %w", err)
	}
	if file.DefaultRealm != "" {
		cfg.DefaultRealm = file.DefaultRealm
	}
	if len(file.Fixed) > 0 {
		cfg.Fixed = file.Fixed
	}
	if len(file.Templates) > 0 {
		cfg.Templates = file.Templates
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("realms.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		DefaultRealm: string(realm.Overworld),
		Fixed: []FixedSpec{
			{ID: string(realm.Overworld), Kind: "overworld", Spawn: geom.Vec3i{X: 8, Y: 72, Z: 8}, Permanent: true,
				Terrain: TerrainSpec{BaseHeight: 64, Amplitude: 8, RegionSize: 32}},
			{ID: string(realm.Nether), Kind: "nether", Spawn: geom.Vec3i{X: 8, Y: 40, Z: 8}, Permanent: true,
				Terrain: TerrainSpec{SeedOffset: 1, BaseHeight: 32, Amplitude: 12, RegionSize: 16}},
			{ID: string(realm.End), Kind: "end", Spawn: geom.Vec3i{X: 100, Y: 50, Z: 0}, Permanent: true,
				Terrain: TerrainSpec{SeedOffset: 2, BaseHeight: 48, Amplitude: 0}},
			{ID: string(realm.Hub), Kind: "hub", Spawn: geom.Vec3i{X: 0, Y: 65, Z: 0}, Permanent: true,
				Terrain: TerrainSpec{SeedOffset: 3, BaseHeight: 64, Amplitude: 0}},
		},
		Templates: []TemplateSpec{
			{ID: "riftgate:verdant", Weight: 3, Terrain: TerrainSpec{SeedOffset: 101, BaseHeight: 70, Amplitude: 6, RegionSize: 24}},
			{ID: "riftgate:cinder", Weight: 2, Terrain: TerrainSpec{SeedOffset: 202, BaseHeight: 60, Amplitude: 14, RegionSize: 12}},
			{ID: "riftgate:shoal", Weight: 1, Terrain: TerrainSpec{SeedOffset: 303, BaseHeight: 50, Amplitude: 3, RegionSize: 48}},
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	for i := range c.Fixed {
		c.Fixed[i].ID = strings.TrimSpace(c.Fixed[i].ID)
		if c.Fixed[i].Kind == "" {
			c.Fixed[i].Kind = strings.TrimPrefix(c.Fixed[i].ID[strings.IndexByte(c.Fixed[i].ID, ':')+1:], "the_")
		}
		// Fixed realms are always permanent; the flag is informational.
		c.Fixed[i].Permanent = true
	}
	for i := range c.Templates {
		c.Templates[i].ID = strings.TrimSpace(c.Templates[i].ID)
		if c.Templates[i].Weight <= 0 {
			c.Templates[i].Weight = 1
		}
		if c.Templates[i].Terrain.RegionSize <= 0 {
			c.Templates[i].Terrain.RegionSize = 32
		}
	}
	if strings.TrimSpace(c.DefaultRealm) == "" && len(c.Fixed) > 0 {
		c.DefaultRealm = c.Fixed[0].ID
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if len(c.Fixed) == 0 {
		return fmt.Errorf("fixed must not be empty")
	}
	seen := map[string]bool{}
	for _, f := range c.Fixed {
		id, err := realm.Parse(f.ID)
		if err != nil {
			return fmt.Errorf("fixed realm: %w", err)
		}
		if !id.IsFixed() {
			return fmt.Errorf("fixed realm %s is not a known permanent realm", f.ID)
		}
		if seen[f.ID] {
			return fmt.Errorf("duplicate fixed realm: %s", f.ID)
		}
		seen[f.ID] = true
		if f.Terrain.Amplitude < 0 {
			return fmt.Errorf("fixed realm %s amplitude must be >= 0", f.ID)
		}
	}
	if !seen[string(realm.Hub)] {
		return fmt.Errorf("fixed realms must include %s", realm.Hub)
	}
	if !seen[c.DefaultRealm] {
		return fmt.Errorf("default_realm %q not found in fixed", c.DefaultRealm)
	}
	if len(c.Templates) == 0 {
		return fmt.Errorf("templates must not be empty")
	}
	tpl := map[string]bool{}
	for _, t := range c.Templates {
		if _, err := realm.Parse(t.ID); err != nil {
			return fmt.Errorf("template: %w", err)
		}
		if tpl[t.ID] {
			return fmt.Errorf("duplicate template: %s", t.ID)
		}
		tpl[t.ID] = true
		if t.Terrain.Amplitude < 0 {
			return fmt.Errorf("template %s amplitude must be >= 0", t.ID)
		}
	}
	return nil
}

// Pool converts the templates for the dimension manager.
func (c Config) Pool(seed int64) []dimension.Template {
	out := make([]dimension.Template, 0, len(c.Templates))
	for _, t := range c.Templates {
		out = append(out, dimension.Template{Name: t.ID, Weight: t.Weight, Gen: t.Terrain.Generator(seed)})
	}
	return out
}

func (c Config) FixedSpawns() map[realm.ID]geom.Vec3i {
	out := make(map[realm.ID]geom.Vec3i, len(c.Fixed))
	for _, f := range c.Fixed {
		out[realm.ID(f.ID)] = f.Spawn
	}
	return out
}

func (c Config) FixedSpec(id realm.ID) (FixedSpec, bool) {
	for _, f := range c.Fixed {
		if f.ID == string(id) {
			return f, true
		}
	}
	return FixedSpec{}, false
}

func (c Config) Manifest() []protocol.RealmRef {
	out := make([]protocol.RealmRef, 0, len(c.Fixed))
	for _, f := range c.Fixed {
		out = append(out, protocol.RealmRef{RealmID: f.ID, Kind: f.Kind, Permanent: f.Permanent})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RealmID < out[j].RealmID })
	return out
}
