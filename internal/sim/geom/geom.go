// Package geom holds integer block-space geometry shared by the sim packages.
package geom

const ChunkSize = 16

type Vec3i struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (v Vec3i) Add(o Vec3i) Vec3i {
	return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vec3i) DistSq(o Vec3i) int {
	dx := v.X - o.X
	dy := v.Y - o.Y
	dz := v.Z - o.Z
	return dx*dx + dy*dy + dz*dz
}

func (v Vec3i) Chunk() ChunkPos {
	return ChunkPos{CX: FloorDiv(v.X, ChunkSize), CZ: FloorDiv(v.Z, ChunkSize)}
}

// AABB is inclusive on both corners.
type AABB struct {
	Min Vec3i `json:"min"`
	Max Vec3i `json:"max"`
}

func Around(center, half Vec3i) AABB {
	return AABB{
		Min: Vec3i{X: center.X - half.X, Y: center.Y - half.Y, Z: center.Z - half.Z},
		Max: Vec3i{X: center.X + half.X, Y: center.Y + half.Y, Z: center.Z + half.Z},
	}
}

// Cube returns the box of the given radius around center.
func Cube(center Vec3i, r int) AABB {
	return Around(center, Vec3i{X: r, Y: r, Z: r})
}

func (b AABB) Contains(p Vec3i) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

type ChunkPos struct {
	CX int `json:"cx"`
	CZ int `json:"cz"`
}

// Center returns the block column at the middle of the chunk.
func (c ChunkPos) Center() (x, z int) {
	return c.CX*ChunkSize + ChunkSize/2, c.CZ*ChunkSize + ChunkSize/2
}

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	if a%b < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
