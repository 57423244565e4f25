// Package pool implements the keyed collection of chunks shared by the
// server-side persistent pool and the client-side pool: get/create,
// apply/commit of diffs, load/unload and sweep-style clean-up, all
// serialized by a single mutex.
package pool

import (
	"errors"
	"sync"

	"github.com/Garmelon/wot/internal/grid"
)

// ErrUnsupportedSingleLoad is returned by specializations (the
// persistent pool and the client pool) whose Load is unsupported:
// loading must go through LoadList so it can be batched.
var ErrUnsupportedSingleLoad = errors.New("pool: single-position Load is unsupported, use LoadList")

// Base is the keyed collection of chunks common to every pool
// specialization. Callers hold Lock/Unlock around a sequence of calls
// that must be seen atomically (e.g. request-chunks' load-then-read).
type Base struct {
	mu     sync.Mutex
	chunks map[grid.ChunkPos]*grid.Chunk
}

// NewBase returns an empty pool.
func NewBase() *Base {
	return &Base{chunks: make(map[grid.ChunkPos]*grid.Chunk)}
}

// Lock acquires the pool's mutex. Every mutating or iterating
// operation below must run while the lock is held.
func (p *Base) Lock() { p.mu.Lock() }

// Unlock releases the pool's mutex.
func (p *Base) Unlock() { p.mu.Unlock() }

// Get returns the chunk at pos, or nil if it isn't resident.
func (p *Base) Get(pos grid.ChunkPos) *grid.Chunk {
	return p.chunks[pos]
}

// Create stores a fresh empty chunk at pos, overwriting any chunk
// already there, and returns it.
func (p *Base) Create(pos grid.ChunkPos) *grid.Chunk {
	c := grid.NewChunk()
	p.chunks[pos] = c
	return c
}

// GetOrCreate returns the chunk at pos, creating it first if absent.
func (p *Base) GetOrCreate(pos grid.ChunkPos) *grid.Chunk {
	if c := p.Get(pos); c != nil {
		return c
	}
	return p.Create(pos)
}

// Load ensures pos is resident, creating an empty chunk if needed.
// This is the base contract's Load; specializations that must fetch
// from an external source (the store, or the server over the wire)
// shadow this method and reject single-position loads instead.
func (p *Base) Load(pos grid.ChunkPos) {
	p.GetOrCreate(pos)
}

// LoadList loads every position in positions.
func (p *Base) LoadList(positions []grid.ChunkPos) {
	for _, pos := range positions {
		p.Load(pos)
	}
}

// Unload drops the in-memory record for pos, if any.
func (p *Base) Unload(pos grid.ChunkPos) {
	delete(p.chunks, pos)
}

// UnloadList drops every position in positions.
func (p *Base) UnloadList(positions []grid.ChunkPos) {
	for _, pos := range positions {
		p.Unload(pos)
	}
}

// ApplyDiffs folds each diff into its chunk's pending modifications,
// creating chunks as needed. Used for locally-queued edits awaiting a
// later flush.
func (p *Base) ApplyDiffs(diffs map[grid.ChunkPos]grid.ChunkDiff) {
	for pos, d := range diffs {
		p.GetOrCreate(pos).Apply(d)
	}
}

// CommitDiffs folds each diff directly into its chunk's committed
// content, creating chunks as needed. Used to adopt authoritative
// state.
func (p *Base) CommitDiffs(diffs map[grid.ChunkPos]grid.ChunkDiff) {
	for pos, d := range diffs {
		p.GetOrCreate(pos).CommitDiff(d)
	}
}

// CommitChanges commits every modified chunk's pending modifications
// into its content and returns the map of diffs that were committed,
// keyed by position.
func (p *Base) CommitChanges() map[grid.ChunkPos]grid.ChunkDiff {
	out := make(map[grid.ChunkPos]grid.ChunkDiff)
	for pos, c := range p.chunks {
		if c.Modified() {
			out[pos] = c.CommitChanges()
		}
	}
	return out
}

// CleanUpFunc decides whether a resident chunk should be unloaded.
type CleanUpFunc func(pos grid.ChunkPos, c *grid.Chunk) bool

// CleanUp unloads every chunk for which shouldUnload returns true and
// which is not in exceptFor.
func (p *Base) CleanUp(exceptFor map[grid.ChunkPos]struct{}, shouldUnload CleanUpFunc) {
	var victims []grid.ChunkPos
	for pos, c := range p.chunks {
		if _, keep := exceptFor[pos]; keep {
			continue
		}
		if shouldUnload(pos, c) {
			victims = append(victims, pos)
		}
	}
	p.UnloadList(victims)
}

// Len returns the number of resident chunks. Mostly useful for metrics
// and tests.
func (p *Base) Len() int {
	return len(p.chunks)
}

// Positions returns a snapshot of every resident chunk position.
func (p *Base) Positions() []grid.ChunkPos {
	out := make([]grid.ChunkPos, 0, len(p.chunks))
	for pos := range p.chunks {
		out = append(out, pos)
	}
	return out
}
