package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the snapshot service.
type Metrics struct {
	SnapshotRequests *prometheus.CounterVec // labels: fill={hit,partial,cold}
	ScansBuffered    prometheus.Counter
	GatewayErrors    *prometheus.CounterVec // labels: op={list,parse}
	SiteEvictions    prometheus.Counter
	BufferedSites    prometheus.Gauge

	// Scan reduction metrics.
	ReducedPoints  prometheus.Histogram
	ReduceDuration prometheus.Histogram

	// Archive gateway metrics.
	ArchiveCache           *prometheus.CounterVec   // labels: op={list,parse}, result={hit,miss}
	ArchiveRequestDuration *prometheus.HistogramVec // labels: op={list,fetch}

	SnapshotsPublished *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)

	prometheus.MustRegister(
		m.SnapshotRequests,
		m.ScansBuffered,
		m.GatewayErrors,
		m.SiteEvictions,
		m.BufferedSites,
		m.ReducedPoints,
		m.ReduceDuration,
		m.ArchiveCache,
		m.ArchiveRequestDuration,
		m.SnapshotsPublished,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		SnapshotRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "radar",
			Name:      "snapshot_requests_total",
			Help:      help("Snapshot requests by how the site window was filled."),
		}, []string{"fill"}),
		ScansBuffered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radar",
			Name:      "scans_buffered_total",
			Help:      help("Total reduced scans inserted into site windows."),
		}),
		GatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "radar",
			Name:      "gateway_errors_total",
			Help:      help("Archive gateway failures seen by the buffer, by operation."),
		}, []string{"op"}),
		SiteEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radar",
			Name:      "site_evictions_total",
			Help:      help("Sites evicted from the buffer as least recently used."),
		}),
		BufferedSites: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "radar",
			Name:      "buffered_sites",
			Help:      help("Number of sites currently held in the buffer."),
		}),
		ReducedPoints: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "radar",
			Name:      "reduced_points",
			Help:      help("Points retained per reduced scan."),
			Buckets:   prometheus.ExponentialBuckets(1000, 2, 10),
		}),
		ReduceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "radar",
			Name:      "reduce_duration_seconds",
			Help:      help("Duration of a single scan reduction."),
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		ArchiveCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "radar",
			Name:      "archive_cache_total",
			Help:      help("Archive memo lookups by operation and result."),
		}, []string{"op", "result"}),
		ArchiveRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "radar",
			Name:      "archive_request_duration_seconds",
			Help:      help("Archive HTTP request duration in seconds."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		SnapshotsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "radar",
			Name:      "snapshots_published_total",
			Help:      help("Snapshot notifications published, by outcome."),
		}, []string{"outcome"}),
	}
}
