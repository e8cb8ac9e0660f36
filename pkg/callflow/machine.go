package callflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/switchboard/pkg/audit"
	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/policy"
	"mercator-hq/switchboard/pkg/returnlane"
	"mercator-hq/switchboard/pkg/telemetry/logging"
	"mercator-hq/switchboard/pkg/telemetry/metrics"
	"mercator-hq/switchboard/pkg/telemetry/tracing"
	"mercator-hq/switchboard/pkg/triage"
)

var (
	// ErrInvalidTurn is returned for a turn without a call or tenant ID.
	ErrInvalidTurn = errors.New("turn requires a call ID and a tenant ID")

	// ErrCallNotFound is returned by State for a call without stored state.
	ErrCallNotFound = errors.New("call not found")
)

// Turn outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeHandlerError = "handler_error"
	OutcomeSpam         = "spam"
)

// Route reasons added by the machine on top of the router's.
const (
	ReasonBookingInProgress = "booking_in_progress"
	ReasonConfirmed         = "confirmed"
	ReasonSpam              = "spam_dismissed"
	ReasonReturnLane        = "return_lane"
)

const (
	bookingOffer = "If you'd like, I can get you on the schedule right now."
	declinedLine = "No problem. What else can I help you with?"
	recoveryLead = "No problem, let's fix that."
	rescueLead   = "I'm sorry for the trouble."
)

// ArtifactSource returns a tenant's active artifact. *triage.ActiveSource
// implements it.
type ArtifactSource interface {
	Active(ctx context.Context, tenantID string) (*policy.Artifact, error)
}

// TurnRequest is one caller utterance with the classifier's decision.
type TurnRequest struct {
	TenantID  string          `json:"tenantId"`
	CallID    string          `json:"callId"`
	Utterance string          `json:"utterance"`
	Decision  triage.Decision `json:"decision"`
}

// TurnResult is what the caller hears and why.
type TurnResult struct {
	CallID   string `json:"callId"`
	Response string `json:"response"`
	Phase    Phase  `json:"phase"`

	Route          policy.Action `json:"route,omitempty"`
	MatchedRuleID  string        `json:"matchedRuleId,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	Tier           triage.Tier   `json:"tier,omitempty"`
	TransferTarget string        `json:"transferTarget,omitempty"`

	ReturnLane *returnlane.Result `json:"returnLane,omitempty"`

	// Overrides lists every point where the machine departed from the
	// routed action, e.g. "booking_unlocked:frustration".
	Overrides []string `json:"overrides,omitempty"`

	AwaitingConfirmation bool   `json:"awaitingConfirmation"`
	BookingLocked        bool   `json:"bookingLocked"`
	BookingStep          string `json:"bookingStep,omitempty"`
	Ended                bool   `json:"ended"`
	Outcome              string `json:"outcome"`
}

// Options configures a Machine.
type Options struct {
	// Calls holds the turn settings; zero fields take the service defaults.
	Calls config.CallsConfig

	Handlers Handlers

	// Extractors override the built-in slot extractors by field name.
	Extractors map[string]Extractor

	// Router defaults to a router sharing Logger and Metrics.
	Router *triage.Router

	Logger  *slog.Logger
	Metrics *metrics.Collector
	Tracer  *tracing.Tracer
	Audit   *audit.Recorder
}

// Machine runs turns.
type Machine struct {
	source   ArtifactSource
	states   *StateStore
	router   *triage.Router
	handlers Handlers
	gate     *Gate
	booking  *bookingFlow
	cfg      config.CallsConfig
	locks    *callLocks

	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer
	audit   *audit.Recorder

	now func() time.Time
}

// NewMachine creates a turn state machine.
func NewMachine(source ArtifactSource, states *StateStore, opts Options) *Machine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Router == nil {
		opts.Router = triage.NewRouter(opts.Logger, opts.Metrics)
	}

	full := &config.Config{Calls: opts.Calls}
	config.ApplyDefaults(full)
	cfg := full.Calls

	return &Machine{
		source:   source,
		states:   states,
		router:   opts.Router,
		handlers: opts.Handlers.withDefaults(),
		gate:     NewGate(cfg.Confirmation),
		booking:  newBookingFlow(cfg.Booking, opts.Extractors),
		cfg:      cfg,
		locks:    newCallLocks(),
		logger:   opts.Logger.With("component", "callflow"),
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		audit:    opts.Audit,
		now:      time.Now,
	}
}

// turn is the working set of one HandleTurn call.
type turn struct {
	req      TurnRequest
	state    *CallTurnState
	artifact *policy.Artifact
	result   *TurnResult
	ended    bool
	detail   string
}

func (t *turn) respond(text string) {
	t.result.Response = text
}

func (t *turn) appendResponse(text string) {
	if t.result.Response == "" {
		t.result.Response = text
		return
	}
	t.result.Response += " " + text
}

func (t *turn) override(kind string) {
	t.result.Overrides = append(t.result.Overrides, kind)
}

func (t *turn) setRoute(r triage.Result) {
	t.result.Route = r.Route
	t.result.MatchedRuleID = r.MatchedRuleID
	t.result.Reason = r.Reason
	t.result.Tier = r.Tier
	t.result.TransferTarget = r.TransferTarget
}

// HandleTurn processes one utterance for a call. Turns of the same call are
// serialized. The only errors returned are for malformed requests; every
// downstream failure degrades to a spoken fallback.
func (m *Machine) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if strings.TrimSpace(req.CallID) == "" || strings.TrimSpace(req.TenantID) == "" {
		return nil, ErrInvalidTurn
	}

	start := m.now()
	ctx = logging.WithCallID(logging.WithTenantID(ctx, req.TenantID), req.CallID)
	ctx, span := m.tracer.Start(ctx, "call.turn",
		attribute.String("tenant_id", req.TenantID),
		attribute.String("call_id", req.CallID))
	defer span.End()

	unlock := m.locks.lock(req.CallID)
	defer unlock()

	t := &turn{
		req:    req,
		state:  m.loadState(ctx, req, start),
		result: &TurnResult{CallID: req.CallID, Outcome: OutcomeOK},
	}
	t.state.TurnCount++
	t.state.UpdatedAt = start
	t.artifact = m.activeArtifact(ctx, req.TenantID)

	m.step(ctx, t)
	m.applyGuardrails(ctx, t)
	m.persist(ctx, t)

	s := t.state
	t.result.Phase = s.Phase
	t.result.AwaitingConfirmation = s.PendingConfirmation != nil
	t.result.BookingLocked = s.BookingLocked
	t.result.BookingStep = s.BookingStep
	t.result.Ended = t.ended

	m.observe(ctx, t, start)
	span.SetAttributes(
		attribute.String("phase", string(s.Phase)),
		attribute.String("route", string(t.result.Route)),
		attribute.String("outcome", t.result.Outcome),
	)

	return t.result, nil
}

// step applies the turn rules in order.
func (m *Machine) step(ctx context.Context, t *turn) {
	s := t.state
	d := &t.req.Decision

	if d.HasFlag(triage.FlagSpam) {
		m.dismissSpam(ctx, t)
		return
	}

	if s.BookingLocked {
		sig := DetectUnlock(d, t.req.Utterance)
		if sig == UnlockNone {
			m.continueBooking(ctx, t)
			return
		}
		s.BookingLocked = false
		s.BookingStep = ""
		s.PendingConfirmation = nil
		s.Phase = PhaseTriage
		if sig == UnlockFrustration {
			s.Phase = PhaseRescue
		}
		t.override("booking_unlocked:" + string(sig))
		m.logger.InfoContext(ctx, "booking lock released",
			"call_id", s.CallID,
			"signal", sig)
	}

	if p := s.PendingConfirmation; p != nil {
		m.resolveConfirmation(ctx, t, p)
		return
	}

	if s.Phase == PhaseFree {
		s.Phase = PhaseTriage
	}

	r := m.router.RouteArtifact(ctx, *d, t.req.Utterance, t.artifact)
	switch {
	case s.Phase == PhasePostBooking && r.Route == policy.ActionStartBooking:
		r.Route = policy.ActionScenario
		t.override("post_booking_followup")
	case s.Phase == PhaseRescue && r.Route == policy.ActionStartBooking:
		r.Route = policy.ActionScenario
		t.override("rescue_no_booking")
	}

	if p := m.gate.Check(t.artifact, r.Route, d.Confidence); p != nil {
		p.RuleID = r.MatchedRuleID
		p.TransferTarget = r.TransferTarget
		s.PendingConfirmation = p
		t.setRoute(r)
		t.respond(p.Question)
		t.override("confirmation_requested")
		return
	}

	m.execute(ctx, t, r)
}

func (m *Machine) dismissSpam(ctx context.Context, t *turn) {
	r := triage.Result{Route: policy.ActionEndCall, Reason: ReasonSpam}
	t.setRoute(r)
	text, _ := m.callHandler(ctx, t, r)
	t.respond(text)
	t.ended = true
	t.result.Outcome = OutcomeSpam
	t.override("spam_dismissed")
}

// resolveConfirmation handles a reply to a deferred action. Booking
// read-backs are handled by continueBooking.
func (m *Machine) resolveConfirmation(ctx context.Context, t *turn, p *PendingConfirmation) {
	s := t.state
	switch ClassifyReply(t.req.Utterance) {
	case ReplyConfirm:
		s.PendingConfirmation = nil
		t.override("confirmation_accepted")
		m.execute(ctx, t, triage.Result{
			Route:          p.Action,
			MatchedRuleID:  p.RuleID,
			Reason:         ReasonConfirmed,
			TransferTarget: p.TransferTarget,
		})
	case ReplyDeny:
		// The recovery step is a booking field; a declined action has no
		// field to restart at, so the call goes back to triage.
		s.PendingConfirmation = nil
		if s.Phase == PhaseFree || s.Phase == PhaseRescue {
			s.Phase = PhaseTriage
		}
		t.override("confirmation_denied")
		t.respond(declinedLine)
	default:
		t.override("confirmation_reasked")
		t.respond(p.Question)
	}
}

// execute runs the chosen route.
func (m *Machine) execute(ctx context.Context, t *turn, r triage.Result) {
	s := t.state
	t.setRoute(r)

	switch r.Route {
	case policy.ActionStartBooking:
		m.booking.start(s, t.req.Decision.Entities)
		m.advanceBooking(ctx, t)

	case policy.ActionEscalate, policy.ActionTakeMessage, policy.ActionEndCall:
		text, ok := m.callHandler(ctx, t, r)
		t.respond(text)
		if ok || r.Route == policy.ActionEndCall {
			t.ended = true
		}

	default:
		text := r.Response
		if text == "" {
			text, _ = m.callHandler(ctx, t, r)
		}
		if s.Phase == PhaseRescue {
			text = rescueLead + " " + text
		}
		t.respond(text)
		if s.Phase == PhaseTriage {
			m.applyReturnLane(ctx, t, r)
		}
	}
}

// applyReturnLane post-processes a scenario turn.
func (m *Machine) applyReturnLane(ctx context.Context, t *turn, r triage.Result) {
	var settings policy.ReturnLaneSettings
	if t.artifact != nil {
		settings = t.artifact.ReturnLane
	}

	lane := returnlane.New(settings, m.cfg.ReturnLane)
	lr := lane.Apply(&t.state.LaneContext, returnlane.Input{
		Lane:         r.Lane,
		Action:       r.ReturnAction,
		RuleDisabled: r.ReturnLaneDisabled,
		FromFallback: r.Tier == triage.TierFallback,
	})
	t.result.ReturnLane = &lr
	if lr.Reason == returnlane.ReasonDisabled {
		return
	}

	if lr.Reason == returnlane.ReasonForced || lr.Reason == returnlane.ReasonFallbackDowngrade {
		t.override("return_lane:" + string(lr.Reason))
	}

	switch lr.Action {
	case returnlane.ActionNone:
	case returnlane.ActionPushBooking:
		t.appendResponse(bookingOffer)
	case returnlane.ActionStartBooking:
		m.booking.start(t.state, t.req.Decision.Entities)
		m.logger.DebugContext(ctx, "return lane started booking", "call_id", t.state.CallID)
		m.advanceBooking(ctx, t)
	default:
		push := triage.Result{Route: policy.Action(lr.Action), Reason: ReasonReturnLane}
		text, ok := m.callHandler(ctx, t, push)
		t.appendResponse(text)
		if ok || push.Route == policy.ActionEndCall {
			t.ended = true
		}
	}
}

// continueBooking handles a turn while the booking lock is held. The
// classifier's decision is ignored.
func (m *Machine) continueBooking(ctx context.Context, t *turn) {
	s := t.state
	s.Phase = PhaseBooking
	t.setRoute(triage.Result{Route: policy.ActionStartBooking, Reason: ReasonBookingInProgress})

	if p := s.PendingConfirmation; p != nil && p.Kind == ConfirmBooking {
		switch ClassifyReply(t.req.Utterance) {
		case ReplyConfirm:
			s.PendingConfirmation = nil
			m.finishBooking(ctx, t)
		case ReplyDeny:
			s.PendingConfirmation = nil
			m.booking.restart(s)
			t.override("booking_recovery")
			t.respond(recoveryLead + " " + m.booking.prompt(s.BookingStep))
		default:
			t.override("confirmation_reasked")
			t.respond(p.Question)
		}
		return
	}

	if !m.booking.fill(s, t.req.Utterance) {
		t.override("slot_reasked")
		t.respond(m.booking.prompt(s.BookingStep))
		return
	}
	m.advanceBooking(ctx, t)
}

// advanceBooking asks for the next missing slot, or completes the booking.
func (m *Machine) advanceBooking(ctx context.Context, t *turn) {
	s := t.state
	s.BookingStep = m.booking.next(s)
	if s.BookingStep != "" {
		t.appendResponse(m.booking.prompt(s.BookingStep))
		return
	}

	if t.artifact != nil && t.artifact.HasBehavior(BehaviorConfirmBooking) {
		q := m.booking.readBack(s)
		s.PendingConfirmation = &PendingConfirmation{Kind: ConfirmBooking, Severity: SeverityLow, Question: q}
		t.appendResponse(q)
		return
	}
	m.finishBooking(ctx, t)
}

func (m *Machine) finishBooking(ctx context.Context, t *turn) {
	s := t.state
	text, ok := m.callHandler(ctx, t, triage.Result{Route: policy.ActionStartBooking, Reason: t.result.Reason})
	s.BookingLocked = false
	s.BookingStep = ""
	s.Phase = PhaseTriage
	if ok {
		s.Phase = PhasePostBooking
	}
	t.appendResponse(text)
}

// callHandler runs the route's handler. On failure it returns the fallback
// line (or the goodbye line for hangups) and false.
func (m *Machine) callHandler(ctx context.Context, t *turn, r triage.Result) (string, bool) {
	req := &Request{
		TenantID:  t.req.TenantID,
		CallID:    t.req.CallID,
		Utterance: t.req.Utterance,
		Decision:  t.req.Decision,
		Route:     r,
		Slots:     t.state.Slots(),
	}

	text, err := runHandler(ctx, m.handlers.forAction(r.Route), req)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, true
	}
	if err == nil {
		err = errors.New("empty response")
	}

	herr := &HandlerError{Route: r.Route, CallID: t.req.CallID, Cause: err}
	m.logger.ErrorContext(ctx, "handler failed, using fallback response",
		"call_id", t.req.CallID,
		"tenant_id", t.req.TenantID,
		"route", r.Route,
		"error", herr)
	m.metrics.RecordHandlerError(string(r.Route))
	t.result.Outcome = OutcomeHandlerError
	t.detail = herr.Error()

	if r.Route == policy.ActionEndCall {
		return goodbyeLine, false
	}
	return m.cfg.FallbackResponse, false
}

// runHandler calls h and turns a panic into an error, so a crashing
// collaborator degrades like a failing one.
func runHandler(ctx context.Context, h Handler, req *Request) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h.Handle(ctx, req)
}

func (m *Machine) applyGuardrails(ctx context.Context, t *turn) {
	if t.artifact == nil || t.result.Response == "" {
		return
	}
	name, hit := t.artifact.ViolatedGuardrail(t.result.Response)
	if !hit {
		return
	}
	m.logger.WarnContext(ctx, "response replaced by guardrail",
		"call_id", t.req.CallID,
		"guardrail", name)
	t.respond(m.cfg.GuardrailResponse)
	t.override("guardrail:" + name)
}

func (m *Machine) loadState(ctx context.Context, req TurnRequest, now time.Time) *CallTurnState {
	state, found, err := m.states.Load(ctx, req.CallID)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to load call state, starting fresh",
			"call_id", req.CallID,
			"error", err)
	}
	if !found || err != nil {
		return NewCallTurnState(req.CallID, req.TenantID, now)
	}
	if state.TenantID != req.TenantID {
		m.logger.WarnContext(ctx, "call state belongs to another tenant, starting fresh",
			"call_id", req.CallID,
			"stored_tenant_id", state.TenantID)
		return NewCallTurnState(req.CallID, req.TenantID, now)
	}
	// RESCUE only lasts for the turn that entered it.
	if state.Phase == PhaseRescue {
		state.Phase = PhaseTriage
	}
	return state
}

func (m *Machine) activeArtifact(ctx context.Context, tenantID string) *policy.Artifact {
	a, err := m.source.Active(ctx, tenantID)
	if err == nil {
		return a
	}
	if errors.Is(err, triage.ErrNoActiveArtifact) {
		m.logger.DebugContext(ctx, "no active artifact, routing by fallback", "tenant_id", tenantID)
	} else {
		m.logger.WarnContext(ctx, "failed to load active artifact, routing by fallback",
			"tenant_id", tenantID,
			"error", err)
	}
	return nil
}

func (m *Machine) persist(ctx context.Context, t *turn) {
	if t.ended {
		t.state.Phase = PhaseComplete
		t.state.BookingLocked = false
		t.state.PendingConfirmation = nil
		if err := m.states.Delete(ctx, t.req.CallID); err != nil {
			m.logger.WarnContext(ctx, "failed to discard call state", "call_id", t.req.CallID, "error", err)
		}
		return
	}
	if err := m.states.Save(ctx, t.state); err != nil {
		m.logger.ErrorContext(ctx, "failed to save call state", "call_id", t.req.CallID, "error", err)
	}
}

func (m *Machine) observe(ctx context.Context, t *turn, start time.Time) {
	m.metrics.RecordTurn(string(t.state.Phase), t.result.Outcome, m.now().Sub(start))
	for _, o := range t.result.Overrides {
		kind, _, _ := strings.Cut(o, ":")
		m.metrics.RecordOverride(kind)
	}

	var checksum string
	if t.artifact != nil {
		checksum = t.artifact.Checksum
	}
	m.audit.Record(ctx, audit.Record{
		Kind:      audit.KindTurn,
		TenantID:  t.req.TenantID,
		CallID:    t.req.CallID,
		Phase:     string(t.state.Phase),
		Route:     string(t.result.Route),
		RuleID:    t.result.MatchedRuleID,
		Reason:    t.result.Reason,
		Overrides: t.result.Overrides,
		Checksum:  checksum,
		Outcome:   t.result.Outcome,
		Detail:    t.detail,
	})

	m.logger.DebugContext(ctx, "turn handled",
		"call_id", t.req.CallID,
		"phase", t.state.Phase,
		"route", t.result.Route,
		"rule_id", t.result.MatchedRuleID,
		"outcome", t.result.Outcome)
}

// State returns a copy of the call's stored state.
func (m *Machine) State(ctx context.Context, callID string) (*CallTurnState, error) {
	unlock := m.locks.lock(callID)
	defer unlock()

	state, found, err := m.states.Load(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrCallNotFound
	}
	return state, nil
}

// EndCall discards the call's state.
func (m *Machine) EndCall(ctx context.Context, callID string) error {
	unlock := m.locks.lock(callID)
	defer unlock()

	if err := m.states.Delete(ctx, callID); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "call ended", "call_id", callID)
	return nil
}
