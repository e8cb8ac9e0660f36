package callflow

import (
	"strings"

	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/policy"
)

// BehaviorConfirmBooking asks the caller to confirm the collected booking
// details before they are submitted.
const BehaviorConfirmBooking = "confirm_booking_details"

// SeverityOf returns how disruptive an action is.
func SeverityOf(a policy.Action) Severity {
	switch a {
	case policy.ActionEscalate, policy.ActionEndCall:
		return SeverityHigh
	case policy.ActionTakeMessage:
		return SeverityMedium
	case policy.ActionStartBooking:
		return SeverityLow
	}
	return SeverityNone
}

// BehaviorFlagFor returns the behavior flag that forces confirmation of a,
// e.g. "confirm_escalate".
func BehaviorFlagFor(a policy.Action) string {
	return "confirm_" + strings.ToLower(string(a))
}

var confirmQuestions = map[policy.Action]string{
	policy.ActionStartBooking: "Would you like me to go ahead and get you on the schedule?",
	policy.ActionEscalate:     "Just to confirm, would you like me to transfer you to someone on our team?",
	policy.ActionTakeMessage:  "Just to confirm, would you like to leave a message so we can call you back?",
	policy.ActionEndCall:      "Just to confirm, are you all set for today?",
}

// Gate decides whether a routed action must be confirmed before it runs.
type Gate struct {
	minConfidence float64
	severities    map[Severity]bool
}

// NewGate builds a gate from the service configuration.
func NewGate(cfg config.ConfirmationConfig) *Gate {
	g := &Gate{minConfidence: cfg.MinConfidence, severities: make(map[Severity]bool)}
	for _, s := range cfg.Severities {
		g.severities[Severity(strings.ToLower(s))] = true
	}
	return g
}

// Check returns the pending confirmation for action, or nil when the action
// can run immediately. The scenario route is never gated. Otherwise a
// tenant behavior flag always gates its action, and configured severities
// are gated below the confidence threshold.
func (g *Gate) Check(a *policy.Artifact, action policy.Action, confidence float64) *PendingConfirmation {
	sev := SeverityOf(action)
	if sev == SeverityNone {
		return nil
	}

	required := a != nil && a.HasBehavior(BehaviorFlagFor(action))
	if !required && g.severities[sev] && confidence < g.minConfidence {
		required = true
	}
	if !required {
		return nil
	}

	return &PendingConfirmation{
		Kind:     ConfirmAction,
		Action:   action,
		Severity: sev,
		Question: confirmQuestions[action],
	}
}
