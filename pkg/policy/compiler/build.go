package compiler

import (
	"strings"

	"mercator-hq/switchboard/pkg/policy"
	"mercator-hq/switchboard/pkg/returnlane"
)

// buildArtifact assembles the artifact from a sorted, conflict-resolved
// clone. Rules that cannot be used are dropped and returned as
// ConfigurationErrors.
func buildArtifact(tenantID string, raw *policy.RawPolicy) (*policy.Artifact, []error) {
	var warnings []error

	a := &policy.Artifact{
		TenantID:          tenantID,
		Version:           raw.EffectiveVersion(),
		Status:            raw.EffectiveStatus(),
		EdgeCases:         []policy.CompiledEdgeCase{},
		TransferRules:     []policy.CompiledTransfer{},
		TriageCards:       []policy.RoutingRule{},
		BehaviorFlags:     policy.NewFlagSet(raw.BehaviorFlags...),
		GuardrailPatterns: map[string]string{},
		ReturnLane:        raw.ReturnLane,
	}

	for _, r := range raw.EdgeCases {
		if !r.IsEnabled() {
			continue
		}
		a.EdgeCases = append(a.EdgeCases, policy.CompiledEdgeCase{
			ID:       r.ID,
			Priority: r.Priority,
			Pattern:  r.Trigger,
			Response: r.Response,
		})
	}

	for _, r := range raw.TransferRules {
		if !r.IsEnabled() {
			continue
		}
		if r.Trigger == "" && r.IntentTag == "" {
			warnings = append(warnings, &policy.ConfigurationError{RuleID: r.ID, Field: "trigger", Message: "transfer rule needs a trigger or an intent tag"})
			continue
		}
		if r.Target == "" {
			warnings = append(warnings, &policy.ConfigurationError{RuleID: r.ID, Field: "target", Message: "transfer rule has no target"})
			continue
		}
		a.TransferRules = append(a.TransferRules, policy.CompiledTransfer{
			ID:        r.ID,
			Priority:  r.Priority,
			Pattern:   r.Trigger,
			IntentTag: r.IntentTag,
			Target:    r.Target,
		})
	}

	for _, card := range raw.TriageCards {
		if !card.IsEnabled() {
			continue
		}
		action, err := policy.ParseAction(string(card.Action))
		if err != nil {
			warnings = append(warnings, &policy.ConfigurationError{RuleID: card.ID, Field: "action", Message: "unknown action", Cause: err})
			continue
		}
		must := normalizeKeywords(card.MustHaveKeywords)
		if len(must) == 0 {
			warnings = append(warnings, &policy.ConfigurationError{RuleID: card.ID, Field: "mustHaveKeywords", Message: "card has no usable keywords"})
			continue
		}
		card.Action = action
		card.MustHaveKeywords = must
		card.ExcludeKeywords = normalizeKeywords(card.ExcludeKeywords)
		card.Enabled = nil
		a.TriageCards = append(a.TriageCards, card)
	}

	var guardrails []string
	for _, name := range raw.Guardrails {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		pattern, ok := policy.GuardrailPattern(name)
		if !ok {
			warnings = append(warnings, &policy.ConfigurationError{RuleID: name, Field: "guardrails", Message: "unknown guardrail category"})
			continue
		}
		guardrails = append(guardrails, name)
		a.GuardrailPatterns[name] = pattern
	}
	a.GuardrailFlags = policy.NewFlagSet(guardrails...)

	var allowed []string
	for _, name := range raw.AllowedActions {
		action, err := policy.ParseAction(name)
		if err != nil {
			warnings = append(warnings, &policy.ConfigurationError{RuleID: name, Field: "allowedActions", Message: "unknown action", Cause: err})
			continue
		}
		allowed = append(allowed, string(action))
	}
	a.AllowedActions = policy.NewFlagSet(allowed...)

	if raw.ReturnLane.ForceAction != "" {
		force, err := returnlane.ParseAction(raw.ReturnLane.ForceAction)
		if err != nil {
			warnings = append(warnings, &policy.ConfigurationError{
				RuleID:  "returnLane",
				Field:   "forceAction",
				Message: "unknown force action, using the service default",
				Cause:   err,
			})
			a.ReturnLane.ForceAction = ""
		} else {
			a.ReturnLane.ForceAction = string(force)
		}
	}

	// Demotions may have reordered rules.
	sortCompiled(a)

	warnings = append(warnings, a.Prepare()...)
	return a, warnings
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if n := policy.NormalizeText(kw); n != "" {
			out = append(out, n)
		}
	}
	return out
}
