package policy

import (
	"fmt"
	"strings"
)

// Action is the handling path a routed turn is sent down.
type Action string

const (
	// ActionScenario hands the turn to the scripted-response / FAQ engine.
	ActionScenario Action = "ROUTE_TO_SCENARIO_ENGINE"

	// ActionStartBooking starts the booking slot-fill flow.
	ActionStartBooking Action = "START_BOOKING"

	// ActionEscalate transfers the caller to a human.
	ActionEscalate Action = "ESCALATE"

	// ActionTakeMessage records a message for a callback.
	ActionTakeMessage Action = "TAKE_MESSAGE"

	// ActionEndCall terminates the call.
	ActionEndCall Action = "END_CALL"
)

// Actions lists every valid Action in declaration order.
var Actions = []Action{ActionScenario, ActionStartBooking, ActionEscalate, ActionTakeMessage, ActionEndCall}

// Valid reports whether a is one of the five known actions.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// IsHard reports whether the action takes the caller out of the conversation
// (transfer, message-taking or hangup).
func (a Action) IsHard() bool {
	return a == ActionEscalate || a == ActionTakeMessage || a == ActionEndCall
}

// ParseAction parses an action name case-insensitively.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}

// Status controls whether a compiled artifact becomes the live one.
type Status string

const (
	// StatusActive artifacts move the tenant's active pointer on publish.
	StatusActive Status = "active"

	// StatusDraft artifacts are published but not activated.
	StatusDraft Status = "draft"
)

// RoutingRule is a triage card: a tenant-defined keyword rule mapping caller
// text to an action.
type RoutingRule struct {
	// ID uniquely identifies the card within its tenant.
	ID string `json:"id" yaml:"id"`

	// Priority orders evaluation; lower values are evaluated first.
	Priority int `json:"priority" yaml:"priority"`

	// MustHaveKeywords must all be present in the utterance.
	MustHaveKeywords []string `json:"mustHaveKeywords" yaml:"must_have_keywords"`

	// ExcludeKeywords disqualify the card if any of them is present.
	ExcludeKeywords []string `json:"excludeKeywords,omitempty" yaml:"exclude_keywords"`

	// Action is the handling path selected when the card matches.
	Action Action `json:"action" yaml:"action"`

	// Enabled is nil when unset; cards are enabled by default.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled"`

	// Lane groups cards for return-lane turn counting.
	Lane string `json:"lane,omitempty" yaml:"lane"`

	// ReturnAction is the return-lane push used after this card's response.
	// Empty means the tenant default (PUSH_BOOKING).
	ReturnAction string `json:"returnAction,omitempty" yaml:"return_action"`

	// ReturnLaneDisabled is the rule-level return-lane kill switch.
	ReturnLaneDisabled bool `json:"returnLaneDisabled,omitempty" yaml:"return_lane_disabled"`
}

// IsEnabled returns true unless the card was explicitly disabled.
func (r *RoutingRule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// EdgeCaseRule maps a trigger pattern to a fixed scripted response.
type EdgeCaseRule struct {
	ID       string `json:"id" yaml:"id"`
	Priority int    `json:"priority" yaml:"priority"`
	Enabled  *bool  `json:"enabled,omitempty" yaml:"enabled"`

	// Trigger is a regular expression matched case-insensitively against
	// the caller's utterance.
	Trigger  string `json:"trigger" yaml:"trigger"`
	Response string `json:"response" yaml:"response"`
}

// IsEnabled returns true unless the rule was explicitly disabled.
func (r *EdgeCaseRule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// TransferRule maps a trigger pattern or classifier intent tag to a human
// transfer target.
type TransferRule struct {
	ID        string `json:"id" yaml:"id"`
	Priority  int    `json:"priority" yaml:"priority"`
	Enabled   *bool  `json:"enabled,omitempty" yaml:"enabled"`
	Trigger   string `json:"trigger" yaml:"trigger"`
	IntentTag string `json:"intentTag,omitempty" yaml:"intent_tag"`
	Target    string `json:"target" yaml:"target"`
}

// IsEnabled returns true unless the rule was explicitly disabled.
func (r *TransferRule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// ReturnLaneSettings are the tenant-level return-lane knobs.
type ReturnLaneSettings struct {
	// Enabled is the tenant-level kill switch; nil means enabled.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled"`

	MaxTurnsBeforePush    int    `json:"maxTurnsBeforePush,omitempty" yaml:"max_turns_before_push"`
	ForceActionAfterTurns int    `json:"forceActionAfterTurns,omitempty" yaml:"force_action_after_turns"`
	ForceAction           string `json:"forceAction,omitempty" yaml:"force_action"`

	// AllowHardActionsOnFallback keeps escalate/end-call/take-message pushes
	// when the response came from the lowest-confidence fallback tier.
	AllowHardActionsOnFallback bool `json:"allowHardActionsOnFallback,omitempty" yaml:"allow_hard_actions_on_fallback"`
}

// IsEnabled returns true unless the tenant switched the policy off.
func (s ReturnLaneSettings) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// RawPolicy is a tenant's rule set as saved by the admin workflow.
type RawPolicy struct {
	Version        string             `json:"version" yaml:"version"`
	Status         Status             `json:"status,omitempty" yaml:"status"`
	EdgeCases      []EdgeCaseRule     `json:"edgeCases,omitempty" yaml:"edge_cases"`
	TransferRules  []TransferRule     `json:"transferRules,omitempty" yaml:"transfer_rules"`
	TriageCards    []RoutingRule      `json:"triageCards,omitempty" yaml:"triage_cards"`
	BehaviorFlags  []string           `json:"behaviorFlags,omitempty" yaml:"behavior_flags"`
	Guardrails     []string           `json:"guardrails,omitempty" yaml:"guardrails"`
	AllowedActions []string           `json:"allowedActions,omitempty" yaml:"allowed_actions"`
	ReturnLane     ReturnLaneSettings `json:"returnLane,omitempty" yaml:"return_lane"`
}

// EffectiveStatus returns the policy status, defaulting to active.
func (p *RawPolicy) EffectiveStatus() Status {
	if p.Status == "" {
		return StatusActive
	}
	return p.Status
}

// EffectiveVersion returns the policy version, defaulting to "v1".
func (p *RawPolicy) EffectiveVersion() string {
	if strings.TrimSpace(p.Version) == "" {
		return "v1"
	}
	return strings.TrimSpace(p.Version)
}

// Clone returns a deep copy of the policy. The compiler demotes priorities
// on a copy so the caller's rule set is never mutated.
func (p *RawPolicy) Clone() *RawPolicy {
	if p == nil {
		return nil
	}
	out := *p
	out.EdgeCases = append([]EdgeCaseRule(nil), p.EdgeCases...)
	out.TransferRules = append([]TransferRule(nil), p.TransferRules...)
	out.TriageCards = nil
	for _, card := range p.TriageCards {
		card.MustHaveKeywords = append([]string(nil), card.MustHaveKeywords...)
		card.ExcludeKeywords = append([]string(nil), card.ExcludeKeywords...)
		out.TriageCards = append(out.TriageCards, card)
	}
	out.BehaviorFlags = append([]string(nil), p.BehaviorFlags...)
	out.Guardrails = append([]string(nil), p.Guardrails...)
	out.AllowedActions = append([]string(nil), p.AllowedActions...)
	return &out
}

// ConflictType classifies a detected rule conflict.
type ConflictType string

const (
	// ConflictEdgeCaseOverlap is two same-priority edge-case rules whose
	// triggers share significant words.
	ConflictEdgeCaseOverlap ConflictType = "edge_case_overlap"

	// ConflictTransferOverlap is two same-priority transfer rules whose
	// triggers share significant words.
	ConflictTransferOverlap ConflictType = "transfer_overlap"

	// ConflictTransferIntent is two same-priority transfer rules with the
	// same intent tag.
	ConflictTransferIntent ConflictType = "transfer_intent_duplicate"
)

// ConflictRecord describes one conflict found and resolved during a compile.
// It is never persisted.
type ConflictRecord struct {
	Type         ConflictType `json:"type"`
	RuleIDA      string       `json:"ruleIdA"`
	RuleIDB      string       `json:"ruleIdB"`
	OverlapScore float64      `json:"overlapScore"`
	Resolution   string       `json:"resolution"`
}

// Bool returns a pointer to b, for the optional Enabled fields.
func Bool(b bool) *bool {
	return &b
}
