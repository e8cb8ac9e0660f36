package returnlane

import (
	"fmt"
	"strings"

	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/policy"
)

// Action is a post-response push.
type Action string

const (
	// ActionNone suppresses any push this turn.
	ActionNone Action = "NONE"

	// ActionPushBooking offers to book without locking the call.
	ActionPushBooking Action = "PUSH_BOOKING"

	ActionStartBooking Action = "START_BOOKING"
	ActionEscalate     Action = "ESCALATE"
	ActionTakeMessage  Action = "TAKE_MESSAGE"
	ActionEndCall      Action = "END_CALL"
)

// ParseAction parses a push action name. An empty name is PUSH_BOOKING.
func ParseAction(s string) (Action, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch Action(s) {
	case "":
		return ActionPushBooking, nil
	case ActionNone, ActionPushBooking, ActionStartBooking, ActionEscalate, ActionTakeMessage, ActionEndCall:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown return-lane action %q", s)
}

// IsHard reports whether the push takes the caller out of the conversation.
func (a Action) IsHard() bool {
	return policy.Action(a).IsHard()
}

// Reason explains a Result.
type Reason string

const (
	ReasonDisabled          Reason = "disabled"
	ReasonWarmup            Reason = "warmup"
	ReasonRuleAction        Reason = "rule_action"
	ReasonForced            Reason = "forced"
	ReasonFallbackDowngrade Reason = "fallback_downgrade"
)

// Thresholds are the resolved turn counts for a lane.
type Thresholds struct {
	MaxTurnsBeforePush    int    `json:"maxTurnsBeforePush"`
	ForceActionAfterTurns int    `json:"forceActionAfterTurns"`
	ForceAction           Action `json:"forceAction"`
}

// LaneContext is the per-call lane tracking state.
type LaneContext struct {
	CurrentLane string     `json:"currentLane"`
	TurnsInLane int        `json:"turnsInLane"`
	PushCount   int        `json:"pushCount"`
	Thresholds  Thresholds `json:"thresholds"`
}

// Input describes the turn being post-processed.
type Input struct {
	// Lane is the matched card's lane. Turns without a card use "".
	Lane string

	// Action is the card's return action; empty means PUSH_BOOKING.
	Action string

	// RuleDisabled is the card-level kill switch.
	RuleDisabled bool

	// FromFallback is set when the response came from the fallback tier.
	FromFallback bool
}

// Result is the push decided for the turn.
type Result struct {
	Action Action `json:"action"`
	Reason Reason `json:"reason"`

	// Overridden is set when the result differs from the candidate action.
	Overridden bool `json:"overridden"`
}

// Policy applies a tenant's return-lane settings.
type Policy struct {
	settings   policy.ReturnLaneSettings
	thresholds Thresholds
}

// New resolves the tenant's settings against the service defaults. Zero
// tenant thresholds fall back to defaults; an unknown force action falls
// back to PUSH_BOOKING.
func New(settings policy.ReturnLaneSettings, defaults config.ReturnLaneConfig) *Policy {
	t := Thresholds{
		MaxTurnsBeforePush:    defaults.MaxTurnsBeforePush,
		ForceActionAfterTurns: defaults.ForceActionAfterTurns,
	}
	if settings.MaxTurnsBeforePush > 0 {
		t.MaxTurnsBeforePush = settings.MaxTurnsBeforePush
	}
	if settings.ForceActionAfterTurns > 0 {
		t.ForceActionAfterTurns = settings.ForceActionAfterTurns
	}

	force := defaults.ForceAction
	if settings.ForceAction != "" {
		force = settings.ForceAction
	}
	action, err := ParseAction(force)
	if err != nil || action == ActionNone {
		action = ActionPushBooking
	}
	t.ForceAction = action

	return &Policy{settings: settings, thresholds: t}
}

// Thresholds returns the resolved thresholds.
func (p *Policy) Thresholds() Thresholds {
	return p.thresholds
}

// Enabled reports whether the tenant switch is on.
func (p *Policy) Enabled() bool {
	return p.settings.IsEnabled()
}

// Apply advances lc for this turn and decides the push. lc is modified in
// place.
func (p *Policy) Apply(lc *LaneContext, in Input) Result {
	candidate, err := ParseAction(in.Action)
	if err != nil {
		candidate = ActionPushBooking
	}

	if !p.Enabled() || in.RuleDisabled {
		return Result{Action: candidate, Reason: ReasonDisabled}
	}

	// A fresh context sits in lane "", so the first carded turn resets.
	if lc.CurrentLane != in.Lane {
		lc.CurrentLane = in.Lane
		lc.TurnsInLane = 0
	} else {
		lc.TurnsInLane++
	}
	lc.Thresholds = p.thresholds

	res := Decide(lc.TurnsInLane, p.thresholds, candidate)
	if in.FromFallback && res.Action.IsHard() && !p.settings.AllowHardActionsOnFallback {
		res = Result{Action: ActionPushBooking, Reason: ReasonFallbackDowngrade}
	}

	res.Overridden = res.Action != candidate
	if res.Action != ActionNone {
		lc.PushCount++
	}
	return res
}

// Decide maps a lane turn count to a push. Below MaxTurnsBeforePush the
// push is suppressed; at or beyond ForceActionAfterTurns the force action
// replaces the candidate. A zero ForceActionAfterTurns never forces.
func Decide(turnsInLane int, t Thresholds, candidate Action) Result {
	if turnsInLane < t.MaxTurnsBeforePush {
		return Result{Action: ActionNone, Reason: ReasonWarmup}
	}
	if t.ForceActionAfterTurns > 0 && turnsInLane >= t.ForceActionAfterTurns {
		return Result{Action: t.ForceAction, Reason: ReasonForced}
	}
	return Result{Action: candidate, Reason: ReasonRuleAction}
}
