package triage

import (
	"sort"
	"strings"

	"mercator-hq/switchboard/pkg/policy"
)

// Tier identifies which layer of the router produced a result.
type Tier string

const (
	TierEdgeCase   Tier = "edge_case"
	TierTransfer   Tier = "transfer"
	TierTriageCard Tier = "triage_card"
	TierFallback   Tier = "fallback"
)

// Result is the route selected for a turn.
type Result struct {
	Route         policy.Action `json:"route"`
	MatchedRuleID string        `json:"matchedRuleId,omitempty"`
	Reason        string        `json:"reason"`
	Tier          Tier          `json:"tier"`

	// Response is the scripted reply of a matched edge-case rule.
	Response string `json:"response,omitempty"`

	// TransferTarget is set for transfer-rule matches.
	TransferTarget string `json:"transferTarget,omitempty"`

	// Lane, ReturnAction and ReturnLaneDisabled are copied from the
	// matched triage card for the return-lane policy.
	Lane               string `json:"lane,omitempty"`
	ReturnAction       string `json:"returnAction,omitempty"`
	ReturnLaneDisabled bool   `json:"returnLaneDisabled,omitempty"`
}

// Route reasons.
const (
	ReasonEdgeCase         = "edge_case_match"
	ReasonTransferIntent   = "transfer_intent_match"
	ReasonTransferPattern  = "transfer_pattern_match"
	ReasonCardMatch        = "triage_card_match"
	ReasonFallbackHint     = "fallback_action_hint"
	ReasonFallbackDefault  = "fallback_default"
	ReasonActionNotAllowed = "action_not_allowed"
)

// fallbackRoutes maps classifier action hints to routes.
var fallbackRoutes = map[string]policy.Action{
	"ROUTE_TO_SCENARIO_ENGINE": policy.ActionScenario,
	"SCENARIO":                 policy.ActionScenario,
	"ANSWER":                   policy.ActionScenario,
	"FAQ":                      policy.ActionScenario,
	"START_BOOKING":            policy.ActionStartBooking,
	"BOOK":                     policy.ActionStartBooking,
	"BOOKING":                  policy.ActionStartBooking,
	"SCHEDULE":                 policy.ActionStartBooking,
	"ESCALATE":                 policy.ActionEscalate,
	"TRANSFER":                 policy.ActionEscalate,
	"HUMAN":                    policy.ActionEscalate,
	"TAKE_MESSAGE":             policy.ActionTakeMessage,
	"MESSAGE":                  policy.ActionTakeMessage,
	"CALLBACK":                 policy.ActionTakeMessage,
	"END_CALL":                 policy.ActionEndCall,
	"HANGUP":                   policy.ActionEndCall,
	"GOODBYE":                  policy.ActionEndCall,
}

// Fallback maps the classifier's action hint to a route. Unknown hints go
// to the scenario engine.
func Fallback(hint string) Result {
	key := strings.ToUpper(strings.TrimSpace(hint))
	if route, ok := fallbackRoutes[key]; ok {
		return Result{Route: route, Reason: ReasonFallbackHint, Tier: TierFallback}
	}
	return Result{Route: policy.ActionScenario, Reason: ReasonFallbackDefault, Tier: TierFallback}
}

// SortRules orders cards by ascending priority, breaking ties by rule ID.
func SortRules(rules []policy.RoutingRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

// MatchCard reports whether a card fires for an utterance. A card without
// must-have keywords never fires.
func MatchCard(rule *policy.RoutingRule, utterance string) bool {
	return matchNormalized(rule, " "+policy.NormalizeText(utterance)+" ")
}

func matchNormalized(rule *policy.RoutingRule, padded string) bool {
	if len(rule.MustHaveKeywords) == 0 {
		return false
	}
	for _, kw := range rule.MustHaveKeywords {
		if !containsKeyword(padded, kw) {
			return false
		}
	}
	for _, kw := range rule.ExcludeKeywords {
		if containsKeyword(padded, kw) {
			return false
		}
	}
	return true
}

// containsKeyword matches kw as a whole-word phrase inside a space-padded
// normalized utterance.
func containsKeyword(padded, kw string) bool {
	kw = policy.NormalizeText(kw)
	if kw == "" {
		return false
	}
	return strings.Contains(padded, " "+kw+" ")
}

// Route picks the first enabled card matching the decision's utterance, or
// the fallback route for the decision's action hint.
func Route(d Decision, utterance string, rules []policy.RoutingRule) Result {
	enabled := make([]policy.RoutingRule, 0, len(rules))
	for _, r := range rules {
		if r.IsEnabled() {
			enabled = append(enabled, r)
		}
	}
	SortRules(enabled)

	if res, ok := matchCards(utterance, enabled); ok {
		return res
	}
	return Fallback(d.Action)
}

// matchCards assumes cards are enabled and already sorted.
func matchCards(utterance string, cards []policy.RoutingRule) (Result, bool) {
	padded := " " + policy.NormalizeText(utterance) + " "
	for i := range cards {
		card := &cards[i]
		if !card.Action.Valid() || !matchNormalized(card, padded) {
			continue
		}
		return Result{
			Route:              card.Action,
			MatchedRuleID:      card.ID,
			Reason:             ReasonCardMatch,
			Tier:               TierTriageCard,
			Lane:               card.Lane,
			ReturnAction:       card.ReturnAction,
			ReturnLaneDisabled: card.ReturnLaneDisabled,
		}, true
	}
	return Result{}, false
}
