// Package clientpool specializes the base chunk pool for the client
// side: residency is populated by asking the server, and local edits
// are queued and flushed to the server on a debounce timer rather than
// committed directly.
package clientpool

import (
	"sync"
	"time"

	"github.com/Garmelon/wot/internal/grid"
	"github.com/Garmelon/wot/internal/pool"
)

// Requester is how the client pool talks to the server. A real
// implementation sends wire messages over a wstransport.Conn; tests
// can supply a fake.
type Requester interface {
	RequestChunks(positions []grid.ChunkPos)
	SendChanges(diffs map[grid.ChunkPos]grid.ChunkDiff)
	UnloadChunks(positions []grid.ChunkPos)
}

// Pool is the client's chunk pool. It embeds *pool.Base and shadows
// Load, LoadList, CommitDiffs and UnloadList so they talk to the
// server via Requester, following the same struct-embedding
// specialization pattern as serverpool.Pool.
type Pool struct {
	*pool.Base

	req       Requester
	redraw    func()
	saveDelay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
}

// New returns a client pool that asks req for data it doesn't have,
// calls redraw whenever server-authoritative state lands, and debounces
// local-edit flushes by saveDelay.
func New(req Requester, redraw func(), saveDelay time.Duration) *Pool {
	return &Pool{
		Base:      pool.NewBase(),
		req:       req,
		redraw:    redraw,
		saveDelay: saveDelay,
	}
}

// Load is unsupported on the client pool: loading must go through
// LoadList so requests to the server can be batched.
func (p *Pool) Load(pos grid.ChunkPos) error {
	return pool.ErrUnsupportedSingleLoad
}

// LoadList filters to positions not already resident and asks the
// server for them. The server's subsequent apply-changes populates the
// pool via CommitDiffs.
func (p *Pool) LoadList(positions []grid.ChunkPos) {
	var missing []grid.ChunkPos
	for _, pos := range positions {
		if p.Get(pos) == nil {
			missing = append(missing, pos)
		}
	}
	if len(missing) > 0 {
		p.req.RequestChunks(missing)
	}
}

// CommitDiffs delegates to the base pool, then signals redraw.
func (p *Pool) CommitDiffs(diffs map[grid.ChunkPos]grid.ChunkDiff) {
	p.Base.CommitDiffs(diffs)
	if p.redraw != nil {
		p.redraw()
	}
}

// UnloadList notifies the server the session no longer needs these
// positions, then drops them locally.
func (p *Pool) UnloadList(positions []grid.ChunkPos) {
	p.req.UnloadChunks(positions)
	p.Base.UnloadList(positions)
}

// SaveChangesDelayed schedules a single-shot debounce timer if one
// isn't already pending. Additional calls while a timer is pending are
// no-ops, matching spec.md's "at most one in-flight" debounce.
func (p *Pool) SaveChangesDelayed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending {
		return
	}
	p.pending = true
	p.timer = time.AfterFunc(p.saveDelay, func() {
		p.SaveChanges()
		p.mu.Lock()
		p.pending = false
		p.mu.Unlock()
	})
}

// SaveChanges drains pending modifications from every resident chunk,
// drops chunks whose committed diff turned out empty, and sends the
// rest to the server in a single save-changes frame.
func (p *Pool) SaveChanges() {
	p.Lock()
	committed := p.Base.CommitChanges()
	p.Unlock()

	out := make(map[grid.ChunkPos]grid.ChunkDiff, len(committed))
	for pos, d := range committed {
		if !d.Empty() {
			out[pos] = d
		}
	}
	if len(out) > 0 {
		p.req.SendChanges(out)
	}
}
