package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives the outcome of each instrumented operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// CacheRecorder receives QC cache lookups.
type CacheRecorder interface {
	CacheLookup(hit bool)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}
func (noopMetrics) CacheLookup(bool)                                     {}

// Recorder combines operation and cache metrics.
type Recorder interface {
	MetricsRecorder
	CacheRecorder
}

// NopMetrics discards observations.
func NopMetrics() Recorder { return noopMetrics{} }

// PrometheusRecorder implements MetricsRecorder and CacheRecorder on a
// dedicated registry.
type PrometheusRecorder struct {
	registry  *prometheus.Registry
	results   *prometheus.CounterVec
	durations *prometheus.HistogramVec
	cache     *prometheus.CounterVec
}

// NewPrometheusRecorder registers the multipatch collectors on a fresh registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	r := &PrometheusRecorder{
		registry: reg,
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multipatch",
			Name:      "operations_total",
			Help:      "Instrumented operations by outcome",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "multipatch",
			Name:      "operation_duration_seconds",
			Help:      "Duration of instrumented operations",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"operation"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multipatch",
			Name:      "qc_cache_lookups_total",
			Help:      "Cell QC cache lookups by result",
		}, []string{"result"}),
	}
	reg.MustRegister(r.results, r.durations, r.cache)
	return r
}

// Observe records one operation outcome.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.results.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// CacheLookup counts a QC cache hit or miss.
func (r *PrometheusRecorder) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cache.WithLabelValues(result).Inc()
}

// Gatherer exposes the registry for export.
func (r *PrometheusRecorder) Gatherer() prometheus.Gatherer { return r.registry }

// WriteTextfile writes the current metrics in the text exposition format.
func (r *PrometheusRecorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
