// Package health serves liveness, readiness and version endpoints.
//
// Readiness runs every registered probe (tenant store, cache, audit store)
// concurrently under a per-probe timeout. Any failing probe reports the
// service as degraded with HTTP 503 so a load balancer stops sending turns.
package health
