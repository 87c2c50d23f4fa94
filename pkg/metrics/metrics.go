// Package metrics defines the Prometheus metrics the tablet server
// exposes, grouped into one Registry the way
// dd0wney-graphdb/pkg/metrics/metrics_types.go groups its per-subsystem
// gauges/counters/histograms into one struct built with promauto.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every metric this server publishes.
type Registry struct {
	MutationsTotal    *prometheus.CounterVec
	MutationDuration  *prometheus.HistogramVec
	ScansOpenTotal     prometheus.Counter
	ScansActive        prometheus.Gauge
	ScanCellsTotal      prometheus.Counter
	CompactionsTotal   *prometheus.CounterVec
	CompactionDuration prometheus.Histogram
	SplitsTotal         prometheus.Counter
	FragmentStackSize   *prometheus.GaugeVec
	BlockCacheHits      prometheus.Counter
	BlockCacheMisses    prometheus.Counter
	WALAppendsTotal     prometheus.Counter
	WALSyncDuration      prometheus.Histogram

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide metrics registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry builds a fresh Registry backed by its own
// prometheus.Registry — tests use this instead of DefaultRegistry to
// avoid duplicate-registration panics across test cases.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Registry{
		MutationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kdi_mutations_total",
			Help: "Total number of set/erase/insert mutations applied.",
		}, []string{"table", "op"}),
		MutationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kdi_mutation_duration_seconds",
			Help:    "Latency of a single mutation from call to memfrag-visible.",
			Buckets: prometheus.DefBuckets,
		}, []string{"table"}),
		ScansOpenTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "kdi_scans_opened_total",
			Help: "Total number of scanOpen calls.",
		}),
		ScansActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "kdi_scans_active",
			Help: "Number of scanners currently open.",
		}),
		ScanCellsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "kdi_scan_cells_total",
			Help: "Total number of cells delivered across all scans.",
		}),
		CompactionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kdi_compactions_total",
			Help: "Total number of compactions run, by outcome.",
		}, []string{"outcome"}),
		CompactionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kdi_compaction_duration_seconds",
			Help:    "Wall time of a single compaction pass.",
			Buckets: prometheus.DefBuckets,
		}),
		SplitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "kdi_splits_total",
			Help: "Total number of tablet splits performed.",
		}),
		FragmentStackSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kdi_fragment_stack_size",
			Help: "Number of static fragments currently in a tablet's stack.",
		}, []string{"tablet"}),
		BlockCacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "kdi_block_cache_hits_total",
			Help: "Total block cache hits.",
		}),
		BlockCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "kdi_block_cache_misses_total",
			Help: "Total block cache misses.",
		}),
		WALAppendsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "kdi_wal_appends_total",
			Help: "Total number of write-ahead log append calls.",
		}),
		WALSyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kdi_wal_sync_duration_seconds",
			Help:    "Latency of write-ahead log sync calls.",
			Buckets: prometheus.DefBuckets,
		}),
		registry: reg,
	}
}

// PrometheusRegistry returns the underlying prometheus.Registry, for
// wiring into an HTTP /metrics handler.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}
