package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CompileMetrics tracks policy compilation.
type CompileMetrics struct {
	total           *prometheus.CounterVec
	duration        prometheus.Histogram
	conflicts       prometheus.Counter
	dropped         prometheus.Counter
	publishFailures *prometheus.CounterVec
	locksReaped     prometheus.Counter
}

// NewCompileMetrics creates and registers compile metrics.
func NewCompileMetrics(namespace string, registry prometheus.Registerer) *CompileMetrics {
	m := &CompileMetrics{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compile_total",
				Help:      "Total number of policy compiles by outcome",
			},
			[]string{"status"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compile_duration_seconds",
				Help:      "Duration of policy compiles in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
			},
		),
		conflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compile_conflicts_total",
				Help:      "Total number of rule conflicts detected and auto-resolved",
			},
		),
		dropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compile_dropped_rules_total",
				Help:      "Total number of malformed rules dropped during compilation",
			},
		),
		publishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_failures_total",
				Help:      "Total number of failed best-effort compile side effects",
			},
			[]string{"operation"},
		),
		locksReaped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "locks_reaped_total",
				Help:      "Total number of stale compile locks cleared",
			},
		),
	}

	registry.MustRegister(m.total, m.duration, m.conflicts, m.dropped, m.publishFailures, m.locksReaped)
	return m
}

func (m *CompileMetrics) record(status string, duration time.Duration, conflicts, dropped int) {
	m.total.WithLabelValues(status).Inc()
	m.duration.Observe(duration.Seconds())
	if conflicts > 0 {
		m.conflicts.Add(float64(conflicts))
	}
	if dropped > 0 {
		m.dropped.Add(float64(dropped))
	}
}
