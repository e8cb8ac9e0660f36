package policy

import (
	"encoding/json"
	"errors"
	"testing"
)

func testArtifact() *Artifact {
	return &Artifact{
		TenantID: "acme",
		Version:  "v1",
		Status:   StatusActive,
		EdgeCases: []CompiledEdgeCase{
			{ID: "hours", Priority: 1, Pattern: `open (today|tomorrow)`, Response: "We're open 8 to 5."},
		},
		TransferRules: []CompiledTransfer{
			{ID: "manager", Priority: 1, Pattern: `speak .*manager`, Target: "front-desk"},
			{ID: "billing", Priority: 2, IntentTag: "billing_dispute", Target: "billing"},
		},
		TriageCards: []RoutingRule{
			{ID: "tuneup", Priority: 10, MustHaveKeywords: []string{"ac", "tuneup"}, Action: ActionStartBooking},
		},
		BehaviorFlags:     NewFlagSet("confirm_escalate"),
		GuardrailFlags:    NewFlagSet(GuardrailNoPrices),
		AllowedActions:    NewFlagSet(),
		GuardrailPatterns: map[string]string{GuardrailNoPrices: guardrailPatterns[GuardrailNoPrices]},
	}
}

func TestArtifact_Prepare(t *testing.T) {
	a := testArtifact()
	if errs := a.Prepare(); len(errs) != 0 {
		t.Fatalf("Prepare() errors = %v, want none", errs)
	}

	if !a.EdgeCases[0].Match("Are you OPEN today?") {
		t.Error("edge case did not match case-insensitively")
	}
	if !a.TransferRules[0].Match("", "can I speak to your manager") {
		t.Error("transfer pattern did not match")
	}
	if !a.TransferRules[1].Match("BILLING_DISPUTE", "whatever") {
		t.Error("transfer intent tag did not match")
	}
	if a.TransferRules[1].Match("", "billing dispute") {
		t.Error("intent-only transfer matched on text")
	}
}

func TestArtifact_Prepare_DropsBadPattern(t *testing.T) {
	a := testArtifact()
	a.EdgeCases = append(a.EdgeCases, CompiledEdgeCase{ID: "broken", Priority: 2, Pattern: "(unclosed"})

	errs := a.Prepare()
	if len(errs) != 1 {
		t.Fatalf("Prepare() returned %d errors, want 1", len(errs))
	}

	var cfgErr *ConfigurationError
	if !errors.As(errs[0], &cfgErr) {
		t.Fatalf("error type = %T, want *ConfigurationError", errs[0])
	}
	if cfgErr.RuleID != "broken" {
		t.Errorf("RuleID = %q, want %q", cfgErr.RuleID, "broken")
	}
	if len(a.EdgeCases) != 1 {
		t.Errorf("len(EdgeCases) = %d, want 1", len(a.EdgeCases))
	}
}

func TestArtifact_ViolatedGuardrail(t *testing.T) {
	a := testArtifact()
	a.Prepare()

	if name, ok := a.ViolatedGuardrail("A tune-up is $89 this month."); !ok || name != GuardrailNoPrices {
		t.Errorf("ViolatedGuardrail() = %q, %v, want %q, true", name, ok, GuardrailNoPrices)
	}
	if _, ok := a.ViolatedGuardrail("We can get you on the schedule."); ok {
		t.Error("ViolatedGuardrail() matched clean text")
	}
}

func TestArtifact_ActionAllowed(t *testing.T) {
	a := testArtifact()
	if !a.ActionAllowed(ActionEndCall) {
		t.Error("empty allow-list should permit every action")
	}

	a.AllowedActions = NewFlagSet(string(ActionStartBooking))
	if !a.ActionAllowed(ActionStartBooking) {
		t.Error("START_BOOKING should be allowed")
	}
	if a.ActionAllowed(ActionEscalate) {
		t.Error("ESCALATE should not be allowed")
	}
}

func TestArtifact_Checksum(t *testing.T) {
	a := testArtifact()
	sum1, err := a.ComputeChecksum()
	if err != nil {
		t.Fatalf("ComputeChecksum() error = %v", err)
	}

	// The checksum field never feeds the hash.
	a.Checksum = sum1
	sum2, _ := a.ComputeChecksum()
	if sum1 != sum2 {
		t.Errorf("checksum changed after setting Checksum field: %s != %s", sum1, sum2)
	}

	ok, err := a.VerifyChecksum()
	if err != nil || !ok {
		t.Errorf("VerifyChecksum() = %v, %v, want true, nil", ok, err)
	}

	a.TriageCards[0].Priority = 11
	sum3, _ := a.ComputeChecksum()
	if sum3 == sum1 {
		t.Error("checksum unchanged after priority change")
	}
}

func TestArtifact_ChecksumSurvivesRoundTrip(t *testing.T) {
	a := testArtifact()
	sum, _ := a.ComputeChecksum()
	a.Checksum = sum

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded Artifact
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	ok, err := decoded.VerifyChecksum()
	if err != nil || !ok {
		t.Errorf("decoded VerifyChecksum() = %v, %v, want true, nil", ok, err)
	}
}

func TestArtifactCacheKey(t *testing.T) {
	if got := ArtifactCacheKey("acme", "v2", "abc"); got != "policy:artifact:acme:v2:abc" {
		t.Errorf("ArtifactCacheKey() = %q", got)
	}
	if got := ActivePointerKey("acme"); got != "policy:active:acme" {
		t.Errorf("ActivePointerKey() = %q", got)
	}
}
