// Package metrics exports semantic cache telemetry in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/voxcache/ai/cache"
)

const (
	namespace = "voxcache"
	subsystem = "cache"
)

// PrometheusExporter implements cache.Recorder.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Lookup metrics
	lookups       *prometheus.CounterVec
	lookupLatency prometheus.Histogram

	// Store metrics
	stores *prometheus.CounterVec

	// Remote call metrics
	embedLatency  *prometheus.HistogramVec
	rerankLatency *prometheus.HistogramVec

	// Size metrics
	entries *prometheus.GaugeVec

	// Anchor generation metrics
	bootstrapDuration prometheus.Histogram
	bootstrapAnchors  prometheus.Gauge
	bootstrapRuns     *prometheus.CounterVec
}

var _ cache.Recorder = (*PrometheusExporter)(nil)

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64

	// ProcessCollectors adds Go runtime and process metrics.
	ProcessCollectors bool
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.lookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lookups_total",
			Help:      "Cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	e.lookupLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lookup_latency_seconds",
			Help:      "End-to-end lookup latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.stores = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stores_total",
			Help:      "Store requests by outcome",
		},
		[]string{"outcome"},
	)

	e.embedLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "embedding_latency_seconds",
			Help:      "Embedding call latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"status"},
	)

	e.rerankLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rerank_latency_seconds",
			Help:      "Reranker call latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"status"},
	)

	e.entries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "entries",
			Help:      "Entries held in memory",
		},
		[]string{"kind"},
	)

	e.bootstrapDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "anchor_generation_seconds",
			Help:      "Anchor generation duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	e.bootstrapAnchors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "anchors_generated",
			Help:      "Anchors produced by the last generation run",
		},
	)

	e.bootstrapRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "anchor_generation_runs_total",
			Help:      "Anchor generation runs by status",
		},
		[]string{"status"},
	)

	registry.MustRegister(
		e.lookups,
		e.lookupLatency,
		e.stores,
		e.embedLatency,
		e.rerankLatency,
		e.entries,
		e.bootstrapDuration,
		e.bootstrapAnchors,
		e.bootstrapRuns,
	)
	if cfg.ProcessCollectors {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return e
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordLookup records one lookup and its latency.
func (e *PrometheusExporter) RecordLookup(outcome string, latency time.Duration) {
	e.lookups.WithLabelValues(outcome).Inc()
	e.lookupLatency.Observe(latency.Seconds())
}

// RecordStore records one store request.
func (e *PrometheusExporter) RecordStore(outcome cache.StoreOutcome) {
	e.stores.WithLabelValues(string(outcome)).Inc()
}

// ObserveEmbedding records an embedding call.
func (e *PrometheusExporter) ObserveEmbedding(latency time.Duration, err error) {
	e.embedLatency.WithLabelValues(status(err)).Observe(latency.Seconds())
}

// ObserveRerank records a reranker call.
func (e *PrometheusExporter) ObserveRerank(latency time.Duration, err error) {
	e.rerankLatency.WithLabelValues(status(err)).Observe(latency.Seconds())
}

// SetEntries sets the in-memory entry counts.
func (e *PrometheusExporter) SetEntries(learned, anchors int) {
	e.entries.WithLabelValues("learned").Set(float64(learned))
	e.entries.WithLabelValues("anchor").Set(float64(anchors))
}

// RecordBootstrap records an anchor generation run.
func (e *PrometheusExporter) RecordBootstrap(latency time.Duration, anchors int, err error) {
	e.bootstrapRuns.WithLabelValues(status(err)).Inc()
	e.bootstrapDuration.Observe(latency.Seconds())
	if err == nil {
		e.bootstrapAnchors.Set(float64(anchors))
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// GetRegistry returns the Prometheus registry.
func (e *PrometheusExporter) GetRegistry() *prometheus.Registry {
	return e.registry
}
