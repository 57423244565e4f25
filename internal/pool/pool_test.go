package pool

import (
	"testing"

	"github.com/Garmelon/wot/internal/grid"
)

func TestGetOrCreate(t *testing.T) {
	p := NewBase()
	pos := grid.ChunkPos{X: 1, Y: 2}

	if p.Get(pos) != nil {
		t.Fatalf("fresh pool should not have pos resident")
	}
	c := p.GetOrCreate(pos)
	if c == nil {
		t.Fatalf("GetOrCreate should return a chunk")
	}
	if p.Get(pos) != c {
		t.Fatalf("Get should return the same chunk GetOrCreate created")
	}
}

func TestLoadListAndUnloadList(t *testing.T) {
	p := NewBase()
	positions := []grid.ChunkPos{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}
	p.LoadList(positions)

	if p.Len() != 3 {
		t.Fatalf("Len = %d, want 3", p.Len())
	}
	for _, pos := range positions {
		if p.Get(pos) == nil {
			t.Fatalf("position %v not resident after LoadList", pos)
		}
	}

	p.UnloadList(positions[:2])
	if p.Len() != 1 {
		t.Fatalf("Len after unload = %d, want 1", p.Len())
	}
	if p.Get(positions[2]) == nil {
		t.Fatalf("position not unloaded should still be resident")
	}
}

func TestApplyDiffsVsCommitDiffs(t *testing.T) {
	p := NewBase()
	pos := grid.ChunkPos{X: 0, Y: 0}

	d := grid.NewChunkDiff()
	d.Set(0, 0, 'a')

	p.ApplyDiffs(map[grid.ChunkPos]grid.ChunkDiff{pos: d})
	c := p.Get(pos)
	if !c.Modified() {
		t.Fatalf("ApplyDiffs should leave the chunk modified (pending), not committed")
	}

	p2 := NewBase()
	p2.CommitDiffs(map[grid.ChunkPos]grid.ChunkDiff{pos: d})
	c2 := p2.Get(pos)
	if c2.Modified() {
		t.Fatalf("CommitDiffs should commit directly, leaving no pending modifications")
	}
	if c2.AsDiff().Get(0, ' ') != 'a' {
		t.Fatalf("CommitDiffs should apply the diff to committed content")
	}
}

func TestCommitChanges(t *testing.T) {
	p := NewBase()
	pos := grid.ChunkPos{X: 0, Y: 0}
	c := p.GetOrCreate(pos)
	c.Set(0, 0, 'a')

	committed := p.CommitChanges()
	if len(committed) != 1 {
		t.Fatalf("expected exactly one committed chunk, got %d", len(committed))
	}
	if committed[pos].Get(0, ' ') != 'a' {
		t.Fatalf("committed diff missing the edit")
	}
	if c.Modified() {
		t.Fatalf("chunk should no longer be modified")
	}
}

func TestCleanUpRespectsExceptFor(t *testing.T) {
	p := NewBase()
	keep := grid.ChunkPos{X: 0, Y: 0}
	drop := grid.ChunkPos{X: 1, Y: 0}
	p.LoadList([]grid.ChunkPos{keep, drop})

	p.CleanUp(map[grid.ChunkPos]struct{}{keep: {}}, func(pos grid.ChunkPos, c *grid.Chunk) bool {
		return true
	})

	if p.Get(keep) == nil {
		t.Fatalf("excepted position should not have been unloaded")
	}
	if p.Get(drop) != nil {
		t.Fatalf("non-excepted position should have been unloaded")
	}
}
