// Package metrics exposes Prometheus instrumentation for the
// correlation engine: fetch cycles, per-source availability, merge
// output sizes, cache behavior, and session lifecycle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the engine. Construct once in main and
// pass by reference; components treat a nil Registry as disabled.
type Registry struct {
	registry *prometheus.Registry

	// Fetch / orchestrator
	FetchCyclesTotal    *prometheus.CounterVec
	FetchDuration       prometheus.Histogram
	SourceUp            *prometheus.GaugeVec
	SourceFailuresTotal *prometheus.CounterVec
	DroppedRecordsTotal prometheus.Counter

	// Merge
	TopologyDevices prometheus.Gauge
	TopologyEdges   prometheus.Gauge
	StaleDevices    prometheus.Gauge

	// Cache
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CacheStaleServeTotal prometheus.Counter

	// Session
	SessionLoginsTotal    *prometheus.CounterVec
	SessionFallbacksTotal prometheus.Counter
}

// New creates a Registry backed by its own Prometheus registry.
func New() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.FetchCyclesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "topolens_fetch_cycles_total",
			Help: "Total discovery fetch cycles by outcome",
		},
		[]string{"status"},
	)
	r.FetchDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "topolens_fetch_duration_seconds",
			Help:    "Duration of a full fetch-and-merge cycle",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	r.SourceUp = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "topolens_source_up",
			Help: "Whether a discovery source answered in the latest cycle (1/0)",
		},
		[]string{"source"},
	)
	r.SourceFailuresTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "topolens_source_failures_total",
			Help: "Total per-source fetch failures",
		},
		[]string{"source"},
	)
	r.DroppedRecordsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "topolens_dropped_records_total",
			Help: "Malformed observations dropped during merge",
		},
	)

	r.TopologyDevices = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "topolens_topology_devices",
			Help: "Devices in the most recently merged topology",
		},
	)
	r.TopologyEdges = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "topolens_topology_edges",
			Help: "Edges in the most recently merged topology",
		},
	)
	r.StaleDevices = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "topolens_topology_stale_devices",
			Help: "Devices retained from the prior cycle pending re-detection",
		},
	)

	r.CacheHitsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "topolens_cache_hits_total",
			Help: "Topology cache hits served without I/O",
		},
	)
	r.CacheMissesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "topolens_cache_misses_total",
			Help: "Topology cache misses that triggered a build",
		},
	)
	r.CacheStaleServeTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "topolens_cache_stale_serve_total",
			Help: "Stale snapshots served because every source failed",
		},
	)

	r.SessionLoginsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "topolens_session_logins_total",
			Help: "Control-plane login attempts by outcome",
		},
		[]string{"status"},
	)
	r.SessionFallbacksTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "topolens_session_fallbacks_total",
			Help: "Transitions from session auth to the static token",
		},
	)

	return r
}

// Handler serves the registry over HTTP for scraping.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
