package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's instrumentation on a dedicated registry so
// tests can construct isolated instances
type Metrics struct {
	registry *prometheus.Registry

	Ingested       *prometheus.CounterVec
	Dropped        *prometheus.CounterVec
	TaxonomyMisses *prometheus.CounterVec
	CacheRequests  *prometheus.CounterVec
	CycleDuration  *prometheus.HistogramVec
	CycleOutcomes  *prometheus.CounterVec
	BreakerState   *prometheus.GaugeVec
	UpsertPending  prometheus.Gauge
	StoreBuffer    prometheus.Gauge
	FetchShed      prometheus.Counter
}

// New creates and registers the pipeline metrics
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		Ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propline_ingested_total",
			Help: "Upsert outcomes by provider, sport, and outcome",
		}, []string{"provider", "sport", "outcome"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propline_dropped_total",
			Help: "Props dropped during mapping by provider and reason",
		}, []string{"provider", "reason"}),
		TaxonomyMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propline_taxonomy_misses_total",
			Help: "Unmapped prop categories by provider and sport",
		}, []string{"provider", "sport"}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propline_cache_requests_total",
			Help: "Cache lookups by tier and result",
		}, []string{"tier", "result"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "propline_cycle_duration_seconds",
			Help:    "End-to-end ingest cycle duration",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider", "sport"}),
		CycleOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propline_cycles_total",
			Help: "Ingest cycles by provider, sport, and final state",
		}, []string{"provider", "sport", "state"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "propline_breaker_state",
			Help: "Provider circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"provider"}),
		UpsertPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "propline_upsert_pending",
			Help: "In-flight upsert operations",
		}),
		StoreBuffer: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "propline_store_buffer_depth",
			Help: "Deferred store writes awaiting replay",
		}),
		FetchShed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "propline_fetch_cycles_shed_total",
			Help: "Fetch cycles skipped due to backpressure",
		}),
	}

	registry.MustRegister(
		m.Ingested, m.Dropped, m.TaxonomyMisses, m.CacheRequests,
		m.CycleDuration, m.CycleOutcomes, m.BreakerState,
		m.UpsertPending, m.StoreBuffer, m.FetchShed,
	)
	return m
}

// Handler serves the registry in prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CacheHit implements cache.StatsRecorder
func (m *Metrics) CacheHit(tier string) {
	m.CacheRequests.WithLabelValues(tier, "hit").Inc()
}

// CacheMiss implements cache.StatsRecorder
func (m *Metrics) CacheMiss(tier string) {
	m.CacheRequests.WithLabelValues(tier, "miss").Inc()
}
