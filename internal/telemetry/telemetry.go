// Package telemetry provides OpenTelemetry instrumentation for the attribution service.
// It exports Prometheus metrics and provides tracing capabilities.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "attribution"

// Metrics holds all attribution Prometheus metrics
type Metrics struct {
	// Evaluation metrics
	SessionsEvaluated *prometheus.CounterVec
	SessionsFailed    *prometheus.CounterVec
	MatchDuration     prometheus.Histogram
	BatchSize         prometheus.Histogram

	// Match outcome metrics
	AmbiguousMatches prometheus.Counter
	UnmatchedTotal   prometheus.Counter
	SourceTotal      *prometheus.CounterVec

	// Config lifecycle metrics
	ConfigSaves        prometheus.Counter
	ConfigSaveRejected prometheus.Counter
	ConfigFallbacks    prometheus.Counter

	// Report cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Diagnostics scan metrics
	ScanDuration prometheus.Histogram
	ScanThrottle prometheus.Counter
}

// Provider wraps telemetry providers
type Provider struct {
	Tracer  trace.Tracer
	Metrics *Metrics
}

// NewProvider initializes telemetry with Prometheus metrics
func NewProvider() *Provider {
	metrics := initMetrics()
	tracer := otel.Tracer(serviceName)

	return &Provider{
		Tracer:  tracer,
		Metrics: metrics,
	}
}

// Handler returns the Prometheus HTTP handler for /metrics endpoint
func (p *Provider) Handler() http.Handler {
	return promhttp.Handler()
}

func initMetrics() *Metrics {
	m := &Metrics{}
	initEvaluationMetrics(m)
	initOutcomeMetrics(m)
	initConfigMetrics(m)
	initCacheMetrics(m)
	initScanMetrics(m)
	return m
}

func initEvaluationMetrics(m *Metrics) {
	m.SessionsEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attribution_sessions_evaluated_total",
		Help: "Total sessions evaluated against the rule config",
	}, []string{"outcome"})

	m.SessionsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attribution_sessions_failed_total",
		Help: "Total sessions that failed evaluation",
	}, []string{"error_code"})

	m.MatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "attribution_match_duration_seconds",
		Help:    "Time spent matching one session against the config",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	m.BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "attribution_batch_size",
		Help:    "Number of sessions per evaluated batch",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 500},
	})
}

func initOutcomeMetrics(m *Metrics) {
	m.AmbiguousMatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_ambiguous_matches_total",
		Help: "Total matches resolved by display-order tie-break",
	})

	m.UnmatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_unmatched_total",
		Help: "Total sessions no source rule matched",
	})

	m.SourceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attribution_source_total",
		Help: "Total sessions attributed per source key",
	}, []string{"source"})
}

func initConfigMetrics(m *Metrics) {
	m.ConfigSaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_config_saves_total",
		Help: "Total rule configs saved",
	})

	m.ConfigSaveRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_config_save_rejected_total",
		Help: "Total rule config saves rejected by validation",
	})

	m.ConfigFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_config_fallbacks_total",
		Help: "Total reads that fell back to the default config",
	})
}

func initCacheMetrics(m *Metrics) {
	m.CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_report_cache_hits_total",
		Help: "Total report cache hits",
	})

	m.CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_report_cache_misses_total",
		Help: "Total report cache misses",
	})
}

func initScanMetrics(m *Metrics) {
	m.ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "attribution_scan_duration_seconds",
		Help:    "Time spent scanning sessions for a diagnostics report",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	m.ScanThrottle = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_scan_throttle_total",
		Help: "Number of times a diagnostics scan waited on the rate limiter",
	})
}

// RecordMatch records metrics for a single session evaluation
func (p *Provider) RecordMatch(ctx context.Context, sourceKey string, ambiguous bool, duration time.Duration) {
	p.Metrics.MatchDuration.Observe(duration.Seconds())
	if sourceKey == "" {
		p.Metrics.SessionsEvaluated.WithLabelValues("unmatched").Inc()
		p.Metrics.UnmatchedTotal.Inc()
		return
	}
	p.Metrics.SessionsEvaluated.WithLabelValues("matched").Inc()
	p.Metrics.SourceTotal.WithLabelValues(sourceKey).Inc()
	if ambiguous {
		p.Metrics.AmbiguousMatches.Inc()
	}
}

// RecordMatchFailure records a failed evaluation with error code
func (p *Provider) RecordMatchFailure(ctx context.Context, errorCode string) {
	p.Metrics.SessionsFailed.WithLabelValues(errorCode).Inc()
}

// RecordBatchSize records the size of an evaluated batch
func (p *Provider) RecordBatchSize(size int) {
	p.Metrics.BatchSize.Observe(float64(size))
}

// RecordConfigSave records a save attempt outcome
func (p *Provider) RecordConfigSave(ctx context.Context, accepted bool) {
	if accepted {
		p.Metrics.ConfigSaves.Inc()
		return
	}
	p.Metrics.ConfigSaveRejected.Inc()
}

// RecordConfigFallback records a read that fell back to defaults
func (p *Provider) RecordConfigFallback(ctx context.Context) {
	p.Metrics.ConfigFallbacks.Inc()
}

// RecordCacheLookup records a report cache hit or miss
func (p *Provider) RecordCacheLookup(ctx context.Context, hit bool) {
	if hit {
		p.Metrics.CacheHits.Inc()
		return
	}
	p.Metrics.CacheMisses.Inc()
}

// RecordScan records a completed diagnostics scan
func (p *Provider) RecordScan(ctx context.Context, duration time.Duration) {
	p.Metrics.ScanDuration.Observe(duration.Seconds())
}

// IncrementScanThrottle increments the scan throttle counter
func (p *Provider) IncrementScanThrottle() {
	p.Metrics.ScanThrottle.Inc()
}

// StartSpan starts a new trace span.
// The caller is responsible for ending the span with span.End().
//
//nolint:spancheck // Caller is responsible for ending the span
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := p.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, span
}
