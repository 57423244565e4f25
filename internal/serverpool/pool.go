// Package serverpool specializes the base chunk pool with SQLite-backed
// persistence: missing chunks are fetched from the store on load, and a
// background loop periodically commits pending edits, persists them,
// and evicts chunks that have been idle past max age.
package serverpool

import (
	"context"
	"time"

	"github.com/Garmelon/wot/internal/grid"
	"github.com/Garmelon/wot/internal/observability"
	"github.com/Garmelon/wot/internal/pool"
	"github.com/Garmelon/wot/internal/serverstore"
)

// Pool is the server's persistent chunk pool. It embeds *pool.Base and
// shadows Load/LoadList so residency is always backed by the store,
// per this codebase's struct-embedding-with-overridable-methods
// convention rather than a formal interface.
type Pool struct {
	*pool.Base

	store   *serverstore.Store
	maxAge  time.Duration
	log     *observability.Logger
	metrics *observability.Metrics
}

// New returns a persistent pool backed by store. metrics may be nil.
func New(store *serverstore.Store, maxAge time.Duration, log *observability.Logger, metrics *observability.Metrics) *Pool {
	return &Pool{
		Base:    pool.NewBase(),
		store:   store,
		maxAge:  maxAge,
		log:     log,
		metrics: metrics,
	}
}

// Load is unsupported on the persistent pool: callers must batch
// through LoadList so a single store call can serve many positions.
func (p *Pool) Load(pos grid.ChunkPos) error {
	return pool.ErrUnsupportedSingleLoad
}

// LoadList ensures every position is resident, fetching any missing
// ones with one store LoadMany call (one lookup per position) and creating empty chunks for
// positions absent from the store. Callers must hold the pool lock.
func (p *Pool) LoadList(positions []grid.ChunkPos) error {
	var missing []grid.ChunkPos
	for _, pos := range positions {
		if p.Get(pos) == nil {
			missing = append(missing, pos)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	images, err := p.store.LoadMany(missing)
	p.countStoreOp("load", err)
	if err != nil {
		return err
	}
	for _, pos := range missing {
		if image, ok := images[pos]; ok {
			// Base has no "install a prebuilt chunk" primitive; commit
			// the loaded image's diff onto a freshly created empty
			// chunk, which has the same effect.
			p.CommitDiffs(map[grid.ChunkPos]grid.ChunkDiff{pos: grid.NewChunkFromImage(image).AsDiff()})
		} else {
			p.Create(pos)
		}
		if p.metrics != nil {
			p.metrics.ChunksLoadedTotal.Inc()
		}
	}
	return nil
}

// SaveChanges commits every chunk's pending modifications, persists
// the full image of every chunk that had pending modifications
// (including ones that just went empty, so a deletion is recorded),
// and returns how many chunks were persisted. Chunks without pending
// modifications are not written. Callers must hold the pool lock.
func (p *Pool) SaveChanges() (saved int, err error) {
	committed := p.CommitChanges()
	if len(committed) == 0 {
		return 0, nil
	}

	images := make(map[grid.ChunkPos]string, len(committed))
	for pos := range committed {
		if c := p.Get(pos); c != nil {
			images[pos] = c.Image()
		}
	}
	err = p.store.SaveMany(images)
	p.countStoreOp("save", err)
	if err != nil {
		return 0, err
	}
	return len(images), nil
}

// RemoveEmpty asks the store to drop every row that has gone back to
// an all-space image.
func (p *Pool) RemoveEmpty() error {
	err := p.store.RemoveEmpty()
	p.countStoreOp("remove_empty", err)
	return err
}

// countStoreOp records a store round trip for the store_operations_total
// metric, labeled by outcome.
func (p *Pool) countStoreOp(op string, err error) {
	if p.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.metrics.StoreOperationsTotal.WithLabelValues(op, result).Inc()
}

// Run drives the background flush loop: every period, it locks the
// pool, commits and persists pending changes, evicts chunks older than
// maxAge, and unlocks. It runs until ctx is cancelled.
func (p *Pool) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Pool) tick(ctx context.Context) {
	_, span := observability.Tracer.Start(ctx, "flush-tick")
	defer span.End()

	start := time.Now()
	p.Lock()
	defer p.Unlock()

	saved, err := p.SaveChanges()
	if err != nil {
		p.log.StoreError("save-changes", err, false)
	}

	var evicted int
	p.CleanUp(nil, func(pos grid.ChunkPos, c *grid.Chunk) bool {
		if c.Age() >= p.maxAge && !c.Modified() {
			evicted++
			return true
		}
		return false
	})

	dur := time.Since(start)
	p.log.FlushTick(saved, evicted, dur)
	if p.metrics != nil {
		p.metrics.FlushDuration.Observe(dur.Seconds())
		p.metrics.ChunksEvictedTotal.Add(float64(evicted))
		p.metrics.ChunksResident.Set(float64(p.Len()))
	}
}
