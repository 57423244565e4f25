package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics exported by the server.
type Metrics struct {
	SessionsActive      prometheus.Gauge
	SessionsTotal        *prometheus.CounterVec
	ChunksResident      prometheus.Gauge
	ChunksLoadedTotal   prometheus.Counter
	ChunksEvictedTotal  prometheus.Counter
	BroadcastFanout     prometheus.Histogram
	ChangesAppliedTotal prometheus.Counter
	ChangesRejectedTotal prometheus.Counter
	FlushDuration       prometheus.Histogram
	StoreOperationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wot_sessions_active",
			Help: "Currently connected sessions",
		}),
		SessionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wot_sessions_total",
			Help: "Sessions opened, by how they ended",
		}, []string{"result"}),
		ChunksResident: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wot_chunks_resident",
			Help: "Chunks currently resident in the server pool",
		}),
		ChunksLoadedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wot_chunks_loaded_total",
			Help: "Chunks loaded from the store or created fresh",
		}),
		ChunksEvictedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wot_chunks_evicted_total",
			Help: "Chunks unloaded by the background sweep",
		}),
		BroadcastFanout: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wot_broadcast_fanout",
			Help:    "Number of sessions a single apply-changes broadcast reached",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		ChangesAppliedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wot_changes_applied_total",
			Help: "Legitimate chunk diffs applied",
		}),
		ChangesRejectedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wot_changes_rejected_total",
			Help: "Illegitimate chunk diffs rejected with a reverse diff",
		}),
		FlushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wot_flush_duration_seconds",
			Help:    "Duration of a periodic save+evict cycle",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
		}),
		StoreOperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wot_store_operations_total",
			Help: "Store operations, by kind and result",
		}, []string{"op", "result"}),
	}
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
