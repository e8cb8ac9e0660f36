// Package server exposes the switchboard HTTP API.
//
// The API has two halves. The admin half saves, compiles and activates
// tenant policies:
//
//	PUT  /v1/tenants/{tenantID}/policy    save a raw policy (JSON or YAML) and compile it
//	POST /v1/tenants/{tenantID}/compile   recompile the stored policy
//	PUT  /v1/tenants/{tenantID}/active    point the tenant at a published artifact
//	GET  /v1/tenants/{tenantID}/artifact  the active artifact, or ?key= for any published one
//
// The call half is invoked once per caller utterance by the telephony layer:
//
//	POST   /v1/calls/{callID}/turns       handle one turn
//	GET    /v1/calls/{callID}             current call state
//	DELETE /v1/calls/{callID}             end the call and discard its state
//
// GET /v1/audit lists audit records. /healthz, /readyz, /version and the
// metrics path are served outside /v1.
//
// # Errors
//
// Errors are JSON objects with a machine-readable code:
//
//	{"code": "COMPILE_IN_PROGRESS", "error": "..."}
//
// A compile that finds the tenant lock held answers 409. For PUT .../policy
// the policy has already been saved when the 409 is returned; retry with
// POST .../compile to compile the saved copy. Structural policy
// problems answer 400 with the offending fields. A turn never answers 5xx
// because a terminal handler failed; the turn result carries the fallback
// line instead.
package server
