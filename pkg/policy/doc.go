// Package policy defines the tenant routing policy model for Switchboard.
//
// A tenant configures four families of rules and a handful of flag lists:
//
//   - Edge-case rules: a trigger pattern mapped to a scripted response.
//   - Transfer rules: a trigger pattern (or classifier intent tag) mapped to a
//     human transfer target.
//   - Triage cards (RoutingRule): AND-matched must-have keywords and
//     OR-matched exclude keywords mapped to one of five call actions.
//   - Behavior flags, guardrail names and allowed actions.
//
// The raw form (RawPolicy) is what an admin saves. The compiler in
// pkg/policy/compiler turns it into an Artifact: an immutable, sorted,
// checksummed snapshot that the router reads at turn time.
//
// # Checksums
//
// Artifact checksums are computed over a canonical JSON encoding in which
// object keys are sorted and the checksum field itself is omitted. Rules are
// ordered by (priority, id) before encoding, so two logically identical
// policies hash identically regardless of the order the admin listed them in.
//
// # Policy Files
//
// Policies can also be stored as YAML files (see LoadFile):
//
//	version: "2024-06"
//	status: active
//	triage_cards:
//	  - id: ac-tuneup
//	    priority: 10
//	    must_have_keywords: [ac, tuneup]
//	    exclude_keywords: [emergency]
//	    action: START_BOOKING
//	    lane: maintenance
//	guardrails: [no_prices]
package policy
