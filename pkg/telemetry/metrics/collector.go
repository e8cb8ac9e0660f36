package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/switchboard/pkg/config"
)

// Collector owns every Switchboard metric and the registry they are
// registered on.
type Collector struct {
	registry *prometheus.Registry

	compile *CompileMetrics
	turns   *TurnMetrics
}

// NewCollector creates a collector and registers its metrics. If registry
// is nil a new one is created. When cfg.Enabled is false it returns nil.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if cfg != nil && !cfg.Enabled {
		return nil
	}

	namespace := config.DefaultMetricsNamespace
	if cfg != nil && cfg.Namespace != "" {
		namespace = cfg.Namespace
	}

	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &Collector{
		registry: registry,
		compile:  NewCompileMetrics(namespace, registry),
		turns:    NewTurnMetrics(namespace, registry),
	}
}

// Registry returns the registry metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordCompile records a finished compile.
func (c *Collector) RecordCompile(status string, duration time.Duration, conflicts, dropped int) {
	if c == nil {
		return
	}
	c.compile.record(status, duration, conflicts, dropped)
}

// RecordPublishFailure records a failed best-effort side effect.
func (c *Collector) RecordPublishFailure(operation string) {
	if c == nil {
		return
	}
	c.compile.publishFailures.WithLabelValues(operation).Inc()
}

// RecordLocksReaped records stale locks cleared by the reaper.
func (c *Collector) RecordLocksReaped(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.compile.locksReaped.Add(float64(n))
}

// RecordRoute records a router decision.
func (c *Collector) RecordRoute(route, tier string) {
	if c == nil {
		return
	}
	c.turns.routes.WithLabelValues(route, tier).Inc()
}

// RecordTurn records a handled turn.
func (c *Collector) RecordTurn(phase, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.turns.turns.WithLabelValues(phase, outcome).Inc()
	c.turns.duration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordOverride records the state machine replacing the router's choice.
func (c *Collector) RecordOverride(kind string) {
	if c == nil {
		return
	}
	c.turns.overrides.WithLabelValues(kind).Inc()
}

// RecordHandlerError records a terminal handler failure.
func (c *Collector) RecordHandlerError(route string) {
	if c == nil {
		return
	}
	c.turns.handlerErrors.WithLabelValues(route).Inc()
}

// RecordArtifactLoad records an active-artifact lookup ("hit", "load",
// "missing", "error").
func (c *Collector) RecordArtifactLoad(result string) {
	if c == nil {
		return
	}
	c.turns.artifactLoads.WithLabelValues(result).Inc()
}
