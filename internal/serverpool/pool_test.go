package serverpool

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Garmelon/wot/internal/grid"
	"github.com/Garmelon/wot/internal/observability"
	"github.com/Garmelon/wot/internal/serverstore"
)

// testMetrics is shared across tests in this package: observability.NewMetrics
// registers every series with the default Prometheus registry, which panics
// on a second registration of the same name.
var testMetricsOnce sync.Once
var testMetrics *observability.Metrics

func sharedTestMetrics() *observability.Metrics {
	testMetricsOnce.Do(func() { testMetrics = observability.NewMetrics() })
	return testMetrics
}

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	store, err := serverstore.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	log := observability.NewLogger("test", "0", io.Discard)
	return New(store, time.Minute, log, nil)
}

func TestLoadSingleUnsupported(t *testing.T) {
	p := newTestPool(t)
	if err := p.Load(grid.ChunkPos{}); err == nil {
		t.Fatalf("expected single-position Load to be unsupported")
	}
}

func TestSaveChangesPersistsAndReloads(t *testing.T) {
	p := newTestPool(t)
	pos := grid.ChunkPos{X: 2, Y: -3}

	if err := p.LoadList([]grid.ChunkPos{pos}); err != nil {
		t.Fatalf("load: %v", err)
	}
	p.Get(pos).Set(0, 0, 'a')

	saved, err := p.SaveChanges()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved != 1 {
		t.Fatalf("expected 1 chunk saved, got %d", saved)
	}

	// Evict and reload from the store to confirm it actually persisted.
	p.CleanUp(nil, func(grid.ChunkPos, *grid.Chunk) bool { return true })
	if p.Get(pos) != nil {
		t.Fatalf("chunk should have been evicted")
	}

	if err := p.LoadList([]grid.ChunkPos{pos}); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if p.Get(pos).AsDiff().Get(0, ' ') != 'a' {
		t.Fatalf("reloaded chunk missing persisted edit")
	}
}

func TestRemoveEmptyDropsEmptyChunks(t *testing.T) {
	p := newTestPool(t)
	pos := grid.ChunkPos{X: 0, Y: 0}
	p.LoadList([]grid.ChunkPos{pos})
	p.Get(pos).Set(0, 0, 'a')
	p.Get(pos).Delete(0, 0)

	if _, err := p.SaveChanges(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := p.RemoveEmpty(); err != nil {
		t.Fatalf("remove empty: %v", err)
	}
	rows, err := p.store.LoadMany([]grid.ChunkPos{pos})
	if err != nil {
		t.Fatalf("load rows: %v", err)
	}
	if _, ok := rows[pos]; ok {
		t.Fatalf("all-space row should have been removed from the store")
	}

	p.CleanUp(nil, func(grid.ChunkPos, *grid.Chunk) bool { return true })
	if err := p.LoadList([]grid.ChunkPos{pos}); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !p.Get(pos).Empty() {
		t.Fatalf("chunk that went back to empty should not have been persisted")
	}
}

func TestTickEvictsOldUnmodifiedChunks(t *testing.T) {
	p := newTestPool(t)
	p.maxAge = 0 // anything is "old" immediately
	pos := grid.ChunkPos{X: 0, Y: 0}
	p.LoadList([]grid.ChunkPos{pos})

	p.tick(context.Background())

	if p.Get(pos) != nil {
		t.Fatalf("chunk older than max age should have been evicted")
	}
}

func TestLoadListIncrementsChunksLoadedMetric(t *testing.T) {
	store, err := serverstore.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	log := observability.NewLogger("test", "0", io.Discard)
	metrics := sharedTestMetrics()
	p := New(store, time.Minute, log, metrics)

	before := testutil.ToFloat64(metrics.ChunksLoadedTotal)
	if err := p.LoadList([]grid.ChunkPos{{X: 5, Y: 5}, {X: 6, Y: 6}}); err != nil {
		t.Fatalf("load: %v", err)
	}
	after := testutil.ToFloat64(metrics.ChunksLoadedTotal)
	if after-before != 2 {
		t.Fatalf("expected ChunksLoadedTotal to advance by 2, got %v -> %v", before, after)
	}
}
