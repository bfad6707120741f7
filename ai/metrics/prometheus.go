// Package metrics provides Prometheus metrics export for the scan pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exports scan pipeline metrics in Prometheus format.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Scan metrics
	scanRequests *prometheus.CounterVec
	scanLatency  *prometheus.HistogramVec
	scanDegraded prometheus.Counter

	// Pipeline stage metrics
	ocrLatency    prometheus.Histogram
	searchLatency prometheus.Histogram

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// LLM token metrics
	llmTokensUsed *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
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

	e := &PrometheusExporter{
		registry: registry,
	}

	e.scanRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lotus",
			Subsystem: "scan",
			Name:      "requests_total",
			Help:      "Total number of scan requests",
		},
		[]string{"source", "risk_level", "status"},
	)

	e.scanLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lotus",
			Subsystem: "scan",
			Name:      "latency_seconds",
			Help:      "End-to-end scan latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"source"},
	)

	e.scanDegraded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lotus",
			Subsystem: "scan",
			Name:      "degraded_total",
			Help:      "Scans that fell back to a default assessment due to unparseable LLM output",
		},
	)

	e.ocrLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lotus",
			Subsystem: "scan",
			Name:      "ocr_latency_seconds",
			Help:      "Ingredient extraction latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.searchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lotus",
			Subsystem: "scan",
			Name:      "search_latency_seconds",
			Help:      "Vector library search latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lotus",
			Subsystem: "ai",
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	e.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lotus",
			Subsystem: "ai",
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	e.llmTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lotus",
			Subsystem: "ai",
			Name:      "llm_tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"model", "token_type"},
	)

	e.llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lotus",
			Subsystem: "ai",
			Name:      "llm_latency_seconds",
			Help:      "LLM request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"model", "provider"},
	)

	registry.MustRegister(
		e.scanRequests,
		e.scanLatency,
		e.scanDegraded,
		e.ocrLatency,
		e.searchLatency,
		e.cacheHits,
		e.cacheMisses,
		e.llmTokensUsed,
		e.llmLatency,
	)

	return e
}

// RecordScan records a completed scan request.
func (e *PrometheusExporter) RecordScan(source, riskLevel string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}

	e.scanRequests.WithLabelValues(source, riskLevel, status).Inc()
	e.scanLatency.WithLabelValues(source).Observe(latency.Seconds())
}

// RecordDegradedScan records a scan that used the fallback assessment.
func (e *PrometheusExporter) RecordDegradedScan() {
	e.scanDegraded.Inc()
}

// RecordOCRLatency records ingredient extraction latency.
func (e *PrometheusExporter) RecordOCRLatency(latency time.Duration) {
	e.ocrLatency.Observe(latency.Seconds())
}

// RecordSearchLatency records vector search latency.
func (e *PrometheusExporter) RecordSearchLatency(latency time.Duration) {
	e.searchLatency.Observe(latency.Seconds())
}

// RecordCacheHit records a cache hit.
func (e *PrometheusExporter) RecordCacheHit(cacheType string) {
	e.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (e *PrometheusExporter) RecordCacheMiss(cacheType string) {
	e.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordLLMTokens records LLM token usage.
func (e *PrometheusExporter) RecordLLMTokens(model, tokenType string, count int) {
	e.llmTokensUsed.WithLabelValues(model, tokenType).Add(float64(count))
}

// RecordLLMLatency records LLM request latency.
func (e *PrometheusExporter) RecordLLMLatency(model, provider string, latency time.Duration) {
	e.llmLatency.WithLabelValues(model, provider).Observe(latency.Seconds())
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
