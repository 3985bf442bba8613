package terrain

import (
	"sort"

	"riftgate.ai/internal/sim/geom"
)

type Chunk struct {
	Pos     geom.ChunkPos
	Heights []int16 // len = 16*16

	dirty bool
}

func (c *Chunk) Height(lx, lz int) int {
	return int(c.Heights[lx+lz*geom.ChunkSize])
}

func (c *Chunk) setHeight(lx, lz, h int) {
	i := lx + lz*geom.ChunkSize
	if int(c.Heights[i]) == h {
		return
	}
	c.Heights[i] = int16(h)
	c.dirty = true
}

// Store holds the loaded chunks of one realm. Chunks are generated on first access; forced
// chunks stay resident through Unload until released.
type Store struct {
	Gen    Generator
	chunks map[geom.ChunkPos]*Chunk
	forced map[geom.ChunkPos]int
}

func NewStore(gen Generator) *Store {
	return &Store{
		Gen:    gen,
		chunks: map[geom.ChunkPos]*Chunk{},
		forced: map[geom.ChunkPos]int{},
	}
}

func (s *Store) GetOrGenChunk(pos geom.ChunkPos) *Chunk {
	if ch, ok := s.chunks[pos]; ok {
		return ch
	}
	ch := &Chunk{Pos: pos, Heights: make([]int16, geom.ChunkSize*geom.ChunkSize)}
	for lz := 0; lz < geom.ChunkSize; lz++ {
		for lx := 0; lx < geom.ChunkSize; lx++ {
			ch.Heights[lx+lz*geom.ChunkSize] = int16(s.Gen.HeightAt(pos.CX*geom.ChunkSize+lx, pos.CZ*geom.ChunkSize+lz))
		}
	}
	s.chunks[pos] = ch
	return ch
}

func (s *Store) Height(x, z int) int {
	ch := s.GetOrGenChunk(geom.Vec3i{X: x, Z: z}.Chunk())
	return ch.Height(geom.Mod(x, geom.ChunkSize), geom.Mod(z, geom.ChunkSize))
}

// Flatten lowers every column in box whose surface is above box.Min.Y down to box.Min.Y.
// It returns the number of columns changed.
func (s *Store) Flatten(box geom.AABB) int {
	changed := 0
	for z := box.Min.Z; z <= box.Max.Z; z++ {
		for x := box.Min.X; x <= box.Max.X; x++ {
			ch := s.GetOrGenChunk(geom.Vec3i{X: x, Z: z}.Chunk())
			lx, lz := geom.Mod(x, geom.ChunkSize), geom.Mod(z, geom.ChunkSize)
			if ch.Height(lx, lz) > box.Min.Y && ch.Height(lx, lz) != NoGround {
				ch.setHeight(lx, lz, box.Min.Y)
				changed++
			}
		}
	}
	return changed
}

func (s *Store) ForceLoad(pos geom.ChunkPos) {
	s.forced[pos]++
	s.GetOrGenChunk(pos)
}

func (s *Store) Release(pos geom.ChunkPos) {
	n := s.forced[pos]
	if n <= 1 {
		delete(s.forced, pos)
		return
	}
	s.forced[pos] = n - 1
}

func (s *Store) Forced(pos geom.ChunkPos) bool {
	return s.forced[pos] > 0
}

// Unload drops every clean chunk that is not forced. Modified chunks stay resident.
func (s *Store) Unload() int {
	n := 0
	for pos, ch := range s.chunks {
		if s.forced[pos] > 0 || ch.dirty {
			continue
		}
		delete(s.chunks, pos)
		n++
	}
	return n
}

func (s *Store) LoadedChunkKeys() []geom.ChunkPos {
	keys := make([]geom.ChunkPos, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

// Column is one edited surface column.
type Column struct {
	X, Z, H int
}

// Edits lists the columns of modified chunks whose height differs from the generator.
func (s *Store) Edits() []Column {
	var out []Column
	for _, pos := range s.LoadedChunkKeys() {
		ch := s.chunks[pos]
		if !ch.dirty {
			continue
		}
		for lz := 0; lz < geom.ChunkSize; lz++ {
			for lx := 0; lx < geom.ChunkSize; lx++ {
				x, z := pos.CX*geom.ChunkSize+lx, pos.CZ*geom.ChunkSize+lz
				if h := ch.Height(lx, lz); h != s.Gen.HeightAt(x, z) {
					out = append(out, Column{X: x, Z: z, H: h})
				}
			}
		}
	}
	return out
}

// SetHeight overwrites one column, marking its chunk modified.
func (s *Store) SetHeight(x, z, h int) {
	ch := s.GetOrGenChunk(geom.Vec3i{X: x, Z: z}.Chunk())
	ch.setHeight(geom.Mod(x, geom.ChunkSize), geom.Mod(z, geom.ChunkSize), h)
}
