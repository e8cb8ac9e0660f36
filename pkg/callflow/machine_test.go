package callflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"mercator-hq/switchboard/pkg/cache"
	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/policy"
	"mercator-hq/switchboard/pkg/policy/compiler"
	"mercator-hq/switchboard/pkg/tenant"
	"mercator-hq/switchboard/pkg/triage"
)

func testPolicy() *policy.RawPolicy {
	return &policy.RawPolicy{
		EdgeCases: []policy.EdgeCaseRule{
			{ID: "hours", Priority: 1, Trigger: `\bhours\b`, Response: "We're open 8 to 6, Monday through Saturday."},
		},
		TransferRules: []policy.TransferRule{
			{ID: "billing", Priority: 1, IntentTag: "billing_dispute", Target: "billing-desk"},
		},
		TriageCards: []policy.RoutingRule{
			{ID: "book", Priority: 10, MustHaveKeywords: []string{"appointment"}, Action: policy.ActionStartBooking},
			{ID: "bye", Priority: 20, MustHaveKeywords: []string{"goodbye"}, Action: policy.ActionEndCall},
		},
		Guardrails: []string{"no_prices"},
	}
}

type fixture struct {
	m     *Machine
	store *cache.MemoryStore

	mu     sync.Mutex
	booked []map[string]string
	served []*Request
}

func newFixture(t *testing.T, raw *policy.RawPolicy, h Handlers) *fixture {
	t.Helper()

	store := cache.NewMemoryStore(0, 0)
	t.Cleanup(func() { store.Close() })

	if raw != nil {
		c := compiler.New(tenant.NewMemoryRepository(), store, compiler.Options{})
		if _, err := c.Compile(context.Background(), "acme", raw); err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
	}

	f := &fixture{store: store}
	if h.Booking == nil {
		h.Booking = HandlerFunc(func(_ context.Context, req *Request) (string, error) {
			f.mu.Lock()
			f.booked = append(f.booked, req.Slots)
			f.mu.Unlock()
			return "You're booked.", nil
		})
	}
	if h.Transfer == nil {
		h.Transfer = HandlerFunc(func(_ context.Context, req *Request) (string, error) {
			f.mu.Lock()
			f.served = append(f.served, req)
			f.mu.Unlock()
			return "Transferring you now.", nil
		})
	}

	source := triage.NewActiveSource(store, nil, nil)
	f.m = NewMachine(source, NewStateStore(store, 0), Options{Handlers: h})
	return f
}

func (f *fixture) turn(t *testing.T, callID, utterance string, d triage.Decision) *TurnResult {
	t.Helper()
	res, err := f.m.HandleTurn(context.Background(), TurnRequest{
		TenantID:  "acme",
		CallID:    callID,
		Utterance: utterance,
		Decision:  d,
	})
	if err != nil {
		t.Fatalf("HandleTurn(%q) error = %v", utterance, err)
	}
	return res
}

func (f *fixture) state(t *testing.T, callID string) *CallTurnState {
	t.Helper()
	s, err := f.m.State(context.Background(), callID)
	if err != nil {
		t.Fatalf("State(%q) error = %v", callID, err)
	}
	return s
}

func sure() triage.Decision {
	return triage.Decision{Confidence: 0.95}
}

func hasOverride(res *TurnResult, kind string) bool {
	for _, o := range res.Overrides {
		if o == kind {
			return true
		}
	}
	return false
}

func TestHandleTurn_InvalidRequest(t *testing.T) {
	f := newFixture(t, nil, Handlers{})
	_, err := f.m.HandleTurn(context.Background(), TurnRequest{TenantID: "acme"})
	if !errors.Is(err, ErrInvalidTurn) {
		t.Errorf("HandleTurn() error = %v, want ErrInvalidTurn", err)
	}
}

func TestHandleTurn_BookingFlow(t *testing.T) {
	f := newFixture(t, testPolicy(), Handlers{})

	res := f.turn(t, "c1", "I need an appointment", sure())
	if res.Route != policy.ActionStartBooking || !res.BookingLocked {
		t.Fatalf("first turn = %+v", res)
	}
	if res.Response != defaultPrompts[SlotName] || res.BookingStep != SlotName {
		t.Errorf("response = %q, step = %q", res.Response, res.BookingStep)
	}

	// The lock is honored over the classifier's END_CALL.
	res = f.turn(t, "c1", "Jane Doe", triage.Decision{Action: "END_CALL", Confidence: 0.99})
	if res.Ended || res.Route != policy.ActionStartBooking || res.Reason != ReasonBookingInProgress {
		t.Fatalf("locked turn = %+v", res)
	}
	if res.Response != defaultPrompts[SlotPhone] {
		t.Errorf("response = %q, want phone prompt", res.Response)
	}

	// Unparseable answers are re-asked verbatim.
	res = f.turn(t, "c1", "hmm let me check", sure())
	if res.Response != defaultPrompts[SlotPhone] || !hasOverride(res, "slot_reasked") {
		t.Errorf("re-ask = %+v", res)
	}

	f.turn(t, "c1", "It's 555-123-4567", sure())
	f.turn(t, "c1", "12 Main Street", sure())
	res = f.turn(t, "c1", "tomorrow morning works", sure())

	if res.BookingLocked || res.Phase != PhasePostBooking || res.Response != "You're booked." {
		t.Fatalf("final turn = %+v", res)
	}
	if len(f.booked) != 1 {
		t.Fatalf("booking handler called %d times", len(f.booked))
	}
	want := map[string]string{
		SlotName:    "Jane Doe",
		SlotPhone:   "5551234567",
		SlotAddress: "12 Main Street",
		SlotTime:    "tomorrow morning works",
	}
	for k, v := range want {
		if f.booked[0][k] != v {
			t.Errorf("slot %s = %q, want %q", k, f.booked[0][k], v)
		}
	}

	// Follow-ups after booking never restart it or reset the slots.
	res = f.turn(t, "c1", "can I get another appointment", sure())
	if res.BookingLocked || !hasOverride(res, "post_booking_followup") {
		t.Errorf("post-booking turn = %+v", res)
	}
	if got := f.state(t, "c1").CollectedSlots[SlotName]; got != "Jane Doe" {
		t.Errorf("slots reset after booking: name = %q", got)
	}
}

func TestHandleTurn_EntityPrefill(t *testing.T) {
	f := newFixture(t, testPolicy(), Handlers{})

	res := f.turn(t, "c1", "can you send someone out", triage.Decision{
		Action:     "BOOK",
		Confidence: 0.9,
		Entities:   map[string]string{"name": "jane doe", "phone": "(555) 123-4567", "address": "nowhere"},
	})
	if res.BookingStep != SlotAddress {
		t.Fatalf("step = %q, want address (invalid address entity must be ignored)", res.BookingStep)
	}
	s := f.state(t, "c1")
	if s.CollectedSlots[SlotName] != "Jane Doe" || s.CollectedSlots[SlotPhone] != "5551234567" {
		t.Errorf("prefilled slots = %v", s.CollectedSlots)
	}
}

func TestHandleTurn_BookingReadBack(t *testing.T) {
	raw := testPolicy()
	raw.BehaviorFlags = []string{BehaviorConfirmBooking}
	f := newFixture(t, raw, Handlers{})

	fill := func() *TurnResult {
		f.turn(t, "c1", "555 123 4567", sure())
		f.turn(t, "c1", "40 Elm Ave", sure())
		return f.turn(t, "c1", "Friday at 3pm", sure())
	}

	f.turn(t, "c1", "book an appointment", sure())
	f.turn(t, "c1", "Sam Lee", sure())
	res := fill()
	if !res.AwaitingConfirmation || !res.BookingLocked || !strings.HasPrefix(res.Response, "Let me read that back") {
		t.Fatalf("read-back turn = %+v", res)
	}

	res = f.turn(t, "c1", "maybe", sure())
	if !res.AwaitingConfirmation || !hasOverride(res, "confirmation_reasked") {
		t.Errorf("ambiguous reply = %+v", res)
	}

	res = f.turn(t, "c1", "no, that's wrong", sure())
	if res.AwaitingConfirmation || res.BookingStep != SlotPhone {
		t.Fatalf("deny = %+v", res)
	}
	if res.Response != recoveryLead+" "+defaultPrompts[SlotPhone] {
		t.Errorf("deny response = %q", res.Response)
	}
	s := f.state(t, "c1")
	if s.CollectedSlots[SlotName] != "Sam Lee" {
		t.Error("slot before the recovery step was cleared")
	}
	for _, slot := range []string{SlotPhone, SlotAddress, SlotTime} {
		if _, ok := s.CollectedSlots[slot]; ok {
			t.Errorf("slot %s kept after deny", slot)
		}
	}

	fill()
	res = f.turn(t, "c1", "yes, that's correct", sure())
	if res.BookingLocked || res.Phase != PhasePostBooking || len(f.booked) != 1 {
		t.Errorf("confirm = %+v, bookings = %d", res, len(f.booked))
	}
}

func TestHandleTurn_UnlockSignals(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		decision  triage.Decision
		wantPhase Phase
		wantKind  string
	}{
		{
			name:      "frustration with problem",
			utterance: "ugh this is ridiculous, my water heater is leaking everywhere",
			wantPhase: PhaseRescue,
			wantKind:  "booking_unlocked:frustration",
		},
		{
			name:      "classifier frustration flag with problem",
			utterance: "the furnace is broken",
			decision:  triage.Decision{Flags: []string{"frustrated"}},
			wantPhase: PhaseRescue,
			wantKind:  "booking_unlocked:frustration",
		},
		{
			name:      "refusal with problem",
			utterance: "I don't want to book anything, the AC is not working",
			wantPhase: PhaseTriage,
			wantKind:  "booking_unlocked:refusal",
		},
		{
			name:      "feels ignored",
			utterance: "you're not listening to me",
			wantPhase: PhaseTriage,
			wantKind:  "booking_unlocked:ignored",
		},
		{
			name:      "trust concern",
			utterance: "wait, is this a scam?",
			wantPhase: PhaseTriage,
			wantKind:  "booking_unlocked:trust_concern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testPolicy(), Handlers{})
			f.turn(t, "c1", "I need an appointment", sure())

			res := f.turn(t, "c1", tt.utterance, tt.decision)
			if res.BookingLocked || res.Phase != tt.wantPhase || !hasOverride(res, tt.wantKind) {
				t.Fatalf("turn = %+v", res)
			}
			if res.Route == policy.ActionStartBooking {
				t.Error("unlocked turn routed back into booking")
			}

			next := f.turn(t, "c1", "ok", sure())
			if next.Phase == PhaseRescue {
				t.Error("RESCUE lasted beyond its turn")
			}
		})
	}

	t.Run("frustration alone keeps the lock", func(t *testing.T) {
		f := newFixture(t, testPolicy(), Handlers{})
		f.turn(t, "c1", "I need an appointment", sure())
		res := f.turn(t, "c1", "ugh this is ridiculous", sure())
		if !res.BookingLocked {
			t.Error("lock released without a problem description")
		}
	})
}

func TestHandleTurn_ConfirmationGate(t *testing.T) {
	raw := testPolicy()
	raw.BehaviorFlags = []string{"confirm_escalate"}
	billing := triage.Decision{IntentTag: "billing_dispute", Confidence: 0.99}

	t.Run("confirm executes deferred action", func(t *testing.T) {
		f := newFixture(t, raw, Handlers{})

		res := f.turn(t, "c1", "I was double charged", billing)
		if !res.AwaitingConfirmation || res.Ended || len(f.served) != 0 {
			t.Fatalf("gated turn = %+v", res)
		}
		question := res.Response

		res = f.turn(t, "c1", "hmm I guess", sure())
		if res.Response != question || !res.AwaitingConfirmation {
			t.Errorf("ambiguous reply = %+v", res)
		}
		if p := f.state(t, "c1").PendingConfirmation; p == nil || p.Action != policy.ActionEscalate {
			t.Errorf("pending confirmation changed: %+v", p)
		}

		res = f.turn(t, "c1", "yeah please", sure())
		if !res.Ended || res.Phase != PhaseComplete || res.Reason != ReasonConfirmed {
			t.Fatalf("confirm = %+v", res)
		}
		if len(f.served) != 1 || f.served[0].Route.TransferTarget != "billing-desk" {
			t.Errorf("transfer handler requests = %+v", f.served)
		}
		if _, err := f.m.State(context.Background(), "c1"); !errors.Is(err, ErrCallNotFound) {
			t.Errorf("state kept after call ended: %v", err)
		}
	})

	t.Run("deny clears without executing", func(t *testing.T) {
		f := newFixture(t, raw, Handlers{})
		f.turn(t, "c1", "I was double charged", billing)

		res := f.turn(t, "c1", "no, never mind", sure())
		if res.AwaitingConfirmation || res.Ended || res.Response != declinedLine {
			t.Errorf("deny = %+v", res)
		}
		if len(f.served) != 0 {
			t.Error("transfer ran after deny")
		}
	})

	t.Run("severity gated by confidence", func(t *testing.T) {
		f := newFixture(t, testPolicy(), Handlers{})

		res := f.turn(t, "c1", "ok", triage.Decision{Action: "GOODBYE", Confidence: 0.4})
		if !res.AwaitingConfirmation || res.Ended {
			t.Errorf("low confidence hangup = %+v", res)
		}

		res = f.turn(t, "c2", "ok", triage.Decision{Action: "GOODBYE", Confidence: 0.9})
		if !res.Ended || res.Route != policy.ActionEndCall {
			t.Errorf("confident hangup = %+v", res)
		}
	})
}

func TestHandleTurn_Spam(t *testing.T) {
	f := newFixture(t, testPolicy(), Handlers{})
	f.turn(t, "c1", "I need an appointment", sure())

	res := f.turn(t, "c1", "congratulations you won", triage.Decision{Flags: []string{"SPAM"}})
	if !res.Ended || res.Outcome != OutcomeSpam || res.Route != policy.ActionEndCall {
		t.Fatalf("spam turn = %+v", res)
	}
	if _, err := f.store.Get(context.Background(), StateKey("c1")); !errors.Is(err, cache.ErrNotFound) {
		t.Error("state kept after spam dismissal")
	}
}

func TestHandleTurn_HandlerErrors(t *testing.T) {
	failing := HandlerFunc(func(context.Context, *Request) (string, error) {
		return "", errors.New("upstream timeout")
	})
	f := newFixture(t, testPolicy(), Handlers{Scenario: failing, Hangup: failing})

	res := f.turn(t, "c1", "what do you do", sure())
	if res.Response != config.DefaultFallbackResponse || res.Outcome != OutcomeHandlerError || res.Ended {
		t.Errorf("scenario failure = %+v", res)
	}

	res = f.turn(t, "c1", "goodbye", sure())
	if !res.Ended || res.Response != goodbyeLine || res.Outcome != OutcomeHandlerError {
		t.Errorf("hangup failure = %+v", res)
	}
}

func TestHandleTurn_HandlerPanics(t *testing.T) {
	crashing := HandlerFunc(func(context.Context, *Request) (string, error) {
		panic("scenario engine crashed")
	})
	f := newFixture(t, testPolicy(), Handlers{Scenario: crashing, Hangup: crashing})

	res := f.turn(t, "c1", "what do you do", sure())
	if res.Response != config.DefaultFallbackResponse || res.Outcome != OutcomeHandlerError || res.Ended {
		t.Errorf("scenario panic = %+v", res)
	}
	if s := f.state(t, "c1"); s.TurnCount != 1 {
		t.Errorf("TurnCount = %d, want 1 after a recovered panic", s.TurnCount)
	}

	res = f.turn(t, "c1", "goodbye", sure())
	if !res.Ended || res.Response != goodbyeLine {
		t.Errorf("hangup panic = %+v", res)
	}
}

func TestHandleTurn_EdgeCaseAndGuardrail(t *testing.T) {
	f := newFixture(t, testPolicy(), Handlers{
		Scenario: HandlerFunc(func(context.Context, *Request) (string, error) {
			return "A tune-up is $89 this month.", nil
		}),
	})

	res := f.turn(t, "c1", "what are your hours", sure())
	if res.Tier != triage.TierEdgeCase || !strings.HasPrefix(res.Response, "We're open 8 to 6") {
		t.Errorf("edge case turn = %+v", res)
	}

	res = f.turn(t, "c2", "how much is a tune-up", sure())
	if res.Response != config.DefaultGuardrailResponse || !hasOverride(res, "guardrail:no_prices") {
		t.Errorf("guardrail turn = %+v", res)
	}
}

func TestHandleTurn_ReturnLane(t *testing.T) {
	raw := testPolicy()
	raw.ReturnLane.ForceAction = "START_BOOKING"
	f := newFixture(t, raw, Handlers{})

	var results []*TurnResult
	for i := 0; i < 4; i++ {
		results = append(results, f.turn(t, "c1", "tell me about your company", sure()))
	}

	if strings.Contains(results[0].Response, bookingOffer) {
		t.Error("push during warm-up")
	}
	if results[0].ReturnLane == nil || results[0].ReturnLane.Action != "NONE" {
		t.Errorf("turn 1 return lane = %+v", results[0].ReturnLane)
	}
	if !strings.HasSuffix(results[1].Response, bookingOffer) {
		t.Errorf("turn 2 response = %q, want booking offer", results[1].Response)
	}
	last := results[3]
	if !last.BookingLocked || !hasOverride(last, "return_lane:forced") {
		t.Errorf("turn 4 = %+v, want forced booking", last)
	}
	if !strings.HasSuffix(last.Response, defaultPrompts[SlotName]) {
		t.Errorf("turn 4 response = %q", last.Response)
	}
}

func TestHandleTurn_ReturnLaneKillSwitch(t *testing.T) {
	raw := testPolicy()
	raw.ReturnLane.Enabled = policy.Bool(false)
	f := newFixture(t, raw, Handlers{})

	for i := 0; i < 5; i++ {
		res := f.turn(t, "c1", "tell me about your company", sure())
		if res.BookingLocked || res.ReturnLane.Reason != "disabled" {
			t.Fatalf("turn %d = %+v", i+1, res)
		}
	}
	if f.state(t, "c1").LaneContext.TurnsInLane != 0 {
		t.Error("disabled policy advanced the lane counter")
	}
}

func TestHandleTurn_NoActiveArtifact(t *testing.T) {
	f := newFixture(t, nil, Handlers{})

	res := f.turn(t, "c1", "I need an appointment", triage.Decision{Action: "SCHEDULE", Confidence: 0.9})
	if res.Tier != triage.TierFallback || res.Route != policy.ActionStartBooking {
		t.Errorf("turn = %+v", res)
	}
}

func TestHandleTurn_SerializesPerCall(t *testing.T) {
	f := newFixture(t, testPolicy(), Handlers{})

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.m.HandleTurn(context.Background(), TurnRequest{
				TenantID:  "acme",
				CallID:    "c1",
				Utterance: "what are your hours",
				Decision:  sure(),
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := f.state(t, "c1").TurnCount; got != n {
		t.Errorf("TurnCount = %d, want %d", got, n)
	}
	if f.m.locks.len() != 0 {
		t.Errorf("%d call locks leaked", f.m.locks.len())
	}
}

func TestEndCall(t *testing.T) {
	f := newFixture(t, testPolicy(), Handlers{})
	f.turn(t, "c1", "hello", sure())

	if err := f.m.EndCall(context.Background(), "c1"); err != nil {
		t.Fatalf("EndCall() error = %v", err)
	}
	if _, err := f.m.State(context.Background(), "c1"); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("State() error = %v, want ErrCallNotFound", err)
	}
	if err := f.m.EndCall(context.Background(), "unknown"); err != nil {
		t.Errorf("EndCall(unknown) error = %v", err)
	}
}
