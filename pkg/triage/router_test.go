package triage

import (
	"context"
	"testing"

	"mercator-hq/switchboard/pkg/policy"
)

func testArtifact(t *testing.T) *policy.Artifact {
	t.Helper()

	a := &policy.Artifact{
		TenantID: "acme",
		Version:  "v1",
		Status:   policy.StatusActive,
		EdgeCases: []policy.CompiledEdgeCase{
			{ID: "hours", Priority: 1, Pattern: `\bopen (today|tomorrow)\b`, Response: "We're open 8 to 6."},
		},
		TransferRules: []policy.CompiledTransfer{
			{ID: "billing-transfer", Priority: 1, IntentTag: "billing_dispute", Target: "billing-desk"},
			{ID: "lawyer", Priority: 2, Pattern: `attorney|lawyer`, Target: "legal"},
		},
		TriageCards: []policy.RoutingRule{
			{ID: "tuneup", Priority: 10, MustHaveKeywords: []string{"ac", "tuneup"}, Action: policy.ActionStartBooking, Lane: "hvac"},
			{ID: "bye", Priority: 20, MustHaveKeywords: []string{"goodbye"}, Action: policy.ActionEndCall},
		},
		AllowedActions: policy.NewFlagSet("START_BOOKING", "ESCALATE", "ROUTE_TO_SCENARIO_ENGINE"),
	}
	if errs := a.Prepare(); len(errs) != 0 {
		t.Fatalf("Prepare() errors = %v", errs)
	}
	return a
}

func TestRouter_RouteArtifact(t *testing.T) {
	r := NewRouter(nil, nil)
	a := testArtifact(t)

	tests := []struct {
		name       string
		decision   Decision
		utterance  string
		wantRoute  policy.Action
		wantRule   string
		wantTier   Tier
		wantReason string
	}{
		{
			name:       "edge case before everything",
			decision:   Decision{IntentTag: "billing_dispute"},
			utterance:  "are you open today for an ac tuneup",
			wantRoute:  policy.ActionScenario,
			wantRule:   "hours",
			wantTier:   TierEdgeCase,
			wantReason: ReasonEdgeCase,
		},
		{
			name:       "transfer by intent tag",
			decision:   Decision{IntentTag: "Billing_Dispute"},
			utterance:  "you charged me twice for the ac tuneup",
			wantRoute:  policy.ActionEscalate,
			wantRule:   "billing-transfer",
			wantTier:   TierTransfer,
			wantReason: ReasonTransferIntent,
		},
		{
			name:       "transfer by pattern",
			utterance:  "my LAWYER will call you",
			wantRoute:  policy.ActionEscalate,
			wantRule:   "lawyer",
			wantTier:   TierTransfer,
			wantReason: ReasonTransferPattern,
		},
		{
			name:       "triage card",
			utterance:  "I need an ac tuneup",
			wantRoute:  policy.ActionStartBooking,
			wantRule:   "tuneup",
			wantTier:   TierTriageCard,
			wantReason: ReasonCardMatch,
		},
		{
			name:       "disallowed action downgraded",
			utterance:  "ok goodbye",
			wantRoute:  policy.ActionScenario,
			wantRule:   "bye",
			wantTier:   TierTriageCard,
			wantReason: ReasonActionNotAllowed,
		},
		{
			name:       "fallback",
			decision:   Decision{Action: "TRANSFER"},
			utterance:  "can I talk to someone",
			wantRoute:  policy.ActionEscalate,
			wantTier:   TierFallback,
			wantReason: ReasonFallbackHint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.RouteArtifact(context.Background(), tt.decision, tt.utterance, a)
			if got.Route != tt.wantRoute || got.MatchedRuleID != tt.wantRule || got.Tier != tt.wantTier || got.Reason != tt.wantReason {
				t.Errorf("RouteArtifact() = %+v", got)
			}
		})
	}
}

func TestRouter_EdgeCaseCarriesResponse(t *testing.T) {
	got := NewRouter(nil, nil).RouteArtifact(context.Background(), Decision{}, "Open tomorrow?", testArtifact(t))
	if got.Response != "We're open 8 to 6." {
		t.Errorf("Response = %q", got.Response)
	}
}

func TestRouter_TransferCarriesTarget(t *testing.T) {
	got := NewRouter(nil, nil).RouteArtifact(context.Background(), Decision{IntentTag: "billing_dispute"}, "hi", testArtifact(t))
	if got.TransferTarget != "billing-desk" {
		t.Errorf("TransferTarget = %q", got.TransferTarget)
	}
}

func TestRouter_NilArtifact(t *testing.T) {
	got := NewRouter(nil, nil).RouteArtifact(context.Background(), Decision{Action: "hangup"}, "bye", nil)
	if got.Route != policy.ActionEndCall || got.Tier != TierFallback {
		t.Errorf("RouteArtifact(nil) = %+v", got)
	}
}
