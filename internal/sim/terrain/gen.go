// Package terrain generates deterministic heightmap chunks for realms.
package terrain

import "riftgate.ai/internal/sim/geom"

// NoGround is the height reported for columns outside a bounded generator.
const NoGround = -64

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	return mix64(uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9))
}

// Generator is the cloneable generation rule set of one realm.
type Generator struct {
	Seed       int64 `json:"seed" yaml:"seed"`
	BaseHeight int   `json:"base_height" yaml:"base_height"`
	Amplitude  int   `json:"amplitude" yaml:"amplitude"`
	RegionSize int   `json:"region_size" yaml:"region_size"`

	// Bounded generation: when BoundChunks > 0 only chunks within BoundChunks of Center
	// produce ground; everything else is empty.
	Center      geom.ChunkPos `json:"center" yaml:"-"`
	BoundChunks int           `json:"bound_chunks" yaml:"bound_chunks"`
}

// WithCenter returns a copy bound around the given chunk.
func (g Generator) WithCenter(c geom.ChunkPos, boundChunks int) Generator {
	g.Center = c
	g.BoundChunks = boundChunks
	return g
}

func (g Generator) InBounds(c geom.ChunkPos) bool {
	if g.BoundChunks <= 0 {
		return true
	}
	dx := c.CX - g.Center.CX
	dz := c.CZ - g.Center.CZ
	return dx >= -g.BoundChunks && dx <= g.BoundChunks && dz >= -g.BoundChunks && dz <= g.BoundChunks
}

// HeightAt returns the surface height of a column: the y of the first air block above ground.
func (g Generator) HeightAt(x, z int) int {
	if !g.InBounds(geom.Vec3i{X: x, Z: z}.Chunk()) {
		return NoGround
	}
	if g.Amplitude <= 0 {
		return g.BaseHeight
	}
	region := g.RegionSize
	if region <= 0 {
		region = 32
	}
	// Bilinear value noise over a region lattice.
	rx := geom.FloorDiv(x, region)
	rz := geom.FloorDiv(z, region)
	fx := geom.Mod(x, region)
	fz := geom.Mod(z, region)
	v00 := g.lattice(rx, rz)
	v10 := g.lattice(rx+1, rz)
	v01 := g.lattice(rx, rz+1)
	v11 := g.lattice(rx+1, rz+1)
	top := v00*(region-fx) + v10*fx
	bot := v01*(region-fx) + v11*fx
	v := (top*(region-fz) + bot*fz) / (region * region)
	return g.BaseHeight + v
}

func (g Generator) lattice(rx, rz int) int {
	span := uint64(2*g.Amplitude + 1)
	return int(Hash2(g.Seed, rx, rz)%span) - g.Amplitude
}
