package triage

import (
	"context"
	"log/slog"
	"strings"

	"mercator-hq/switchboard/pkg/policy"
	"mercator-hq/switchboard/pkg/telemetry/metrics"
)

// Router routes turns against compiled artifacts.
type Router struct {
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewRouter creates a router. A nil logger uses slog.Default; a nil
// collector disables metrics.
func NewRouter(logger *slog.Logger, collector *metrics.Collector) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:  logger.With("component", "triage"),
		metrics: collector,
	}
}

// RouteArtifact selects the route for a turn.
//
// Routing precedence:
//  1. Edge-case rules (scripted response)
//  2. Transfer rules (equal intent tag or matching trigger)
//  3. Triage cards
//  4. Fallback table keyed by the decision's action hint
//
// A route outside the artifact's allowed actions is downgraded to the
// scenario engine. A nil artifact routes by fallback only.
func (r *Router) RouteArtifact(ctx context.Context, d Decision, utterance string, a *policy.Artifact) Result {
	res := r.route(d, utterance, a)

	if a != nil && !a.ActionAllowed(res.Route) {
		r.logger.DebugContext(ctx, "route not allowed for tenant, downgrading",
			"tenant_id", a.TenantID,
			"route", res.Route,
			"rule_id", res.MatchedRuleID)
		res.Route = policy.ActionScenario
		res.Reason = ReasonActionNotAllowed
	}

	r.metrics.RecordRoute(string(res.Route), string(res.Tier))
	return res
}

func (r *Router) route(d Decision, utterance string, a *policy.Artifact) Result {
	if a == nil {
		return Fallback(d.Action)
	}

	for i := range a.EdgeCases {
		rule := &a.EdgeCases[i]
		if rule.Match(utterance) {
			return Result{
				Route:         policy.ActionScenario,
				MatchedRuleID: rule.ID,
				Reason:        ReasonEdgeCase,
				Tier:          TierEdgeCase,
				Response:      rule.Response,
			}
		}
	}

	for i := range a.TransferRules {
		rule := &a.TransferRules[i]
		if !rule.Match(d.IntentTag, utterance) {
			continue
		}
		reason := ReasonTransferPattern
		if rule.IntentTag != "" && strings.EqualFold(rule.IntentTag, d.IntentTag) {
			reason = ReasonTransferIntent
		}
		return Result{
			Route:          policy.ActionEscalate,
			MatchedRuleID:  rule.ID,
			Reason:         reason,
			Tier:           TierTransfer,
			TransferTarget: rule.Target,
		}
	}

	if res, ok := matchCards(utterance, a.TriageCards); ok {
		return res
	}
	return Fallback(d.Action)
}
