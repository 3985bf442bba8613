// Package tuning loads the engine and gameplay parameters from tuning.yaml.
package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"riftgate.ai/internal/affinity"
	"riftgate.ai/internal/sim/geom"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	// UnloadEveryTicks drops idle chunks from realm memory; 0 disables.
	UnloadEveryTicks int `yaml:"unload_every_ticks"`

	Portal    Portal              `yaml:"portal"`
	Staff     Staff               `yaml:"staff"`
	Guardian  Guardian            `yaml:"guardian"`
	Dimension Dimension           `yaml:"dimension"`
	Affinity  affinity.RollConfig `yaml:"affinity_roll"`
}

type Portal struct {
	SearchRadius     int        `yaml:"search_radius"`
	CooldownTicks    int        `yaml:"cooldown_ticks"`
	ReturnOffset     geom.Vec3i `yaml:"return_offset"`
	ReciprocalOffset geom.Vec3i `yaml:"reciprocal_offset"`
	HalfExtent       geom.Vec3i `yaml:"half_extent"`
	HubSpawn         geom.Vec3i `yaml:"hub_spawn"`
	ClearRadius      int        `yaml:"clear_radius"`
	ParticleEvery    int        `yaml:"particle_every_ticks"`
}

type Staff struct {
	BeamTicks    int  `yaml:"beam_ticks"`
	Range        int  `yaml:"range"`
	SingleUse    bool `yaml:"single_use"`
	DespawnTicks int  `yaml:"despawn_ticks"`
	Progress     int  `yaml:"progress_per_cast"`
}

type Guardian struct {
	Enabled       bool `yaml:"enabled"`
	Range         int  `yaml:"range"`
	IntervalTicks int  `yaml:"interval_ticks"`
	BeamTicks     int  `yaml:"beam_ticks"`
}

type Dimension struct {
	ChunkBound    int `yaml:"chunk_bound"`
	AnchorSpacing int `yaml:"anchor_spacing"`
	AnchorGrid    int `yaml:"anchor_grid"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         20,
		SnapshotEveryTicks: 600,
		UnloadEveryTicks:   200,
		Portal: Portal{
			SearchRadius:     16,
			CooldownTicks:    100,
			ReturnOffset:     geom.Vec3i{X: 2},
			ReciprocalOffset: geom.Vec3i{X: 3},
			HalfExtent:       geom.Vec3i{X: 1, Y: 2, Z: 1},
			HubSpawn:         geom.Vec3i{X: 0, Y: 65, Z: 0},
			ClearRadius:      3,
			ParticleEvery:    5,
		},
		Staff: Staff{
			BeamTicks:    20,
			Range:        12,
			SingleUse:    true,
			DespawnTicks: 1200,
			Progress:     1,
		},
		Guardian: Guardian{
			Enabled:       true,
			Range:         24,
			IntervalTicks: 60,
			BeamTicks:     10,
		},
		Dimension: Dimension{
			ChunkBound:    4,
			AnchorSpacing: 16,
			AnchorGrid:    64,
		},
		Affinity: affinity.DefaultRollConfig(),
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz must be in [1,1000]")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if t.UnloadEveryTicks < 0 {
		return fmt.Errorf("unload_every_ticks must be >= 0")
	}
	p := t.Portal
	if p.SearchRadius <= 0 {
		return fmt.Errorf("portal.search_radius must be > 0")
	}
	if p.CooldownTicks < 0 {
		return fmt.Errorf("portal.cooldown_ticks must be >= 0")
	}
	if p.HalfExtent.X < 0 || p.HalfExtent.Y < 0 || p.HalfExtent.Z < 0 {
		return fmt.Errorf("portal.half_extent must be non-negative")
	}
	if p.ReturnOffset == (geom.Vec3i{}) {
		return fmt.Errorf("portal.return_offset must not be zero")
	}
	if p.ClearRadius < 0 || p.ParticleEvery < 0 {
		return fmt.Errorf("portal.clear_radius and portal.particle_every_ticks must be >= 0")
	}
	if t.Staff.BeamTicks <= 0 {
		return fmt.Errorf("staff.beam_ticks must be > 0")
	}
	if t.Staff.Range <= 0 {
		return fmt.Errorf("staff.range must be > 0")
	}
	if t.Staff.DespawnTicks < 0 || t.Staff.Progress < 0 {
		return fmt.Errorf("staff.despawn_ticks and staff.progress_per_cast must be >= 0")
	}
	if t.Guardian.Enabled && (t.Guardian.Range <= 0 || t.Guardian.IntervalTicks <= 0 || t.Guardian.BeamTicks <= 0) {
		return fmt.Errorf("guardian range, interval_ticks and beam_ticks must be > 0")
	}
	d := t.Dimension
	if d.ChunkBound <= 0 {
		return fmt.Errorf("dimension.chunk_bound must be > 0")
	}
	if d.AnchorSpacing <= 2*d.ChunkBound {
		return fmt.Errorf("dimension.anchor_spacing must exceed 2*chunk_bound")
	}
	if d.AnchorGrid <= 0 {
		return fmt.Errorf("dimension.anchor_grid must be > 0")
	}
	if err := t.Affinity.Validate(); err != nil {
		return fmt.Errorf("affinity_roll: %w", err)
	}
	return nil
}
