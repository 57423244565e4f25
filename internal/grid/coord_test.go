package grid

import "testing"

func TestChunkOf(t *testing.T) {
	cases := []struct {
		v, size, want int
	}{
		{0, 16, 0},
		{15, 16, 0},
		{16, 16, 1},
		{-1, 16, -1},
		{-16, 16, -1},
		{-17, 16, -2},
	}
	for _, c := range cases {
		if got := ChunkOf(c.v, c.size); got != c.want {
			t.Errorf("ChunkOf(%d, %d) = %d, want %d", c.v, c.size, got, c.want)
		}
	}
}

func TestInChunk(t *testing.T) {
	cases := []struct {
		v, size, want int
	}{
		{0, 16, 0},
		{15, 16, 15},
		{16, 16, 0},
		{-1, 16, 15},
		{-16, 16, 0},
		{-17, 16, 15},
	}
	for _, c := range cases {
		if got := InChunk(c.v, c.size); got != c.want {
			t.Errorf("InChunk(%d, %d) = %d, want %d", c.v, c.size, got, c.want)
		}
		if got := InChunk(c.v, c.size); got < 0 || got >= c.size {
			t.Errorf("InChunk(%d, %d) = %d not in [0, %d)", c.v, c.size, got, c.size)
		}
	}
}

func TestPosOf(t *testing.T) {
	pos, idx := PosOf(-1, -1)
	if pos != (ChunkPos{X: -1, Y: -1}) {
		t.Fatalf("pos = %v, want (-1,-1)", pos)
	}
	wantIdx := (Width - 1) + (Height-1)*Width
	if idx != wantIdx {
		t.Fatalf("idx = %d, want %d", idx, wantIdx)
	}

	pos, idx = PosOf(0, 0)
	if pos != (ChunkPos{}) || idx != 0 {
		t.Fatalf("PosOf(0,0) = %v, %d; want (0,0), 0", pos, idx)
	}
}
