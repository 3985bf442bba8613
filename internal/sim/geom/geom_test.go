package geom

import "testing"

func TestChunkMath(t *testing.T) {
	cases := []struct {
		x, z   int
		cx, cz int
	}{
		{0, 0, 0, 0},
		{15, 16, 0, 1},
		{-1, -16, -1, -1},
		{-17, 33, -2, 2},
	}
	for _, c := range cases {
		got := Vec3i{X: c.x, Z: c.z}.Chunk()
		if got.CX != c.cx || got.CZ != c.cz {
			t.Fatalf("chunk(%d,%d)=%v want (%d,%d)", c.x, c.z, got, c.cx, c.cz)
		}
	}
	if m := Mod(-1, 16); m != 15 {
		t.Fatalf("mod=%d", m)
	}
	x, z := ChunkPos{CX: -1, CZ: 2}.Center()
	if x != -8 || z != 40 {
		t.Fatalf("center=(%d,%d)", x, z)
	}
}

func TestAABB_ContainsInclusive(t *testing.T) {
	b := Around(Vec3i{X: 10, Y: 64, Z: -3}, Vec3i{X: 1, Y: 2, Z: 1})
	if !b.Contains(Vec3i{X: 11, Y: 66, Z: -2}) || !b.Contains(Vec3i{X: 9, Y: 62, Z: -4}) {
		t.Fatalf("corners not contained: %v", b)
	}
	if b.Contains(Vec3i{X: 12, Y: 64, Z: -3}) {
		t.Fatalf("outside point contained")
	}
}
