// Package tracing wraps OpenTelemetry tracing for Switchboard.
//
// When tracing is disabled a noop tracer is used, so components can start
// spans unconditionally. When enabled, spans are exported over OTLP/gRPC
// with a parent-based sampler.
//
// Spans emitted:
//
//   - policy.compile (tenant_id, checksum, conflicts, dropped)
//   - policy.activate (tenant_id, cache_key)
//   - call.turn (call_id, tenant_id, phase, route, outcome)
package tracing
