// Package telemetry groups Switchboard's observability packages.
//
//   - logging: slog logger with caller PII redaction and call/tenant context
//   - metrics: Prometheus collectors for compiles, routing and turns
//   - tracing: OpenTelemetry spans, noop when disabled
//   - health: liveness, readiness and version endpoints
package telemetry
