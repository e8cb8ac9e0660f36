// Package metrics exposes Prometheus metrics for policy compilation and
// call turn handling.
//
// Metrics (namespace "switchboard" by default):
//
//   - compile_total{status}: compiles by outcome (success, contention, invalid, error)
//   - compile_duration_seconds: compile latency
//   - compile_conflicts_total: conflicts detected and auto-resolved
//   - compile_dropped_rules_total: rules dropped for bad patterns or actions
//   - publish_failures_total{operation}: best-effort side effects that failed
//   - locks_reaped_total: stale compile locks cleared by the reaper
//   - routes_total{route,tier}: router decisions
//   - turns_total{phase,outcome}: handled turns
//   - turn_duration_seconds{outcome}: turn latency
//   - overrides_total{kind}: state machine overrides of the router
//   - handler_errors_total{route}: terminal handler failures
//   - artifact_loads_total{result}: active artifact lookups
//
// A nil *Collector is valid and records nothing, so components can be
// constructed without metrics in tests.
package metrics
