package metrics

import "github.com/prometheus/client_golang/prometheus"

// TurnMetrics tracks routing and turn handling.
type TurnMetrics struct {
	routes        *prometheus.CounterVec
	turns         *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	overrides     *prometheus.CounterVec
	handlerErrors *prometheus.CounterVec
	artifactLoads *prometheus.CounterVec
}

// NewTurnMetrics creates and registers turn metrics.
func NewTurnMetrics(namespace string, registry prometheus.Registerer) *TurnMetrics {
	m := &TurnMetrics{
		routes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routes_total",
				Help:      "Total number of router decisions by route and matching tier",
			},
			[]string{"route", "tier"},
		),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of handled call turns",
			},
			[]string{"phase", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Duration of call turn handling in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"outcome"},
		),
		overrides: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "overrides_total",
				Help:      "Total number of router decisions overridden by call state",
			},
			[]string{"kind"},
		),
		handlerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handler_errors_total",
				Help:      "Total number of route handler failures",
			},
			[]string{"route"},
		),
		artifactLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifact_loads_total",
				Help:      "Total number of active artifact lookups by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(m.routes, m.turns, m.duration, m.overrides, m.handlerErrors, m.artifactLoads)
	return m
}
