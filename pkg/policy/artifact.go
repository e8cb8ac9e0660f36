package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// CompiledEdgeCase is an enabled edge-case rule with its trigger compiled.
type CompiledEdgeCase struct {
	ID       string `json:"id"`
	Priority int    `json:"priority"`
	Pattern  string `json:"pattern"`
	Response string `json:"response"`

	re *regexp.Regexp
}

// Match reports whether the trigger matches text. An unprepared rule never
// matches.
func (r *CompiledEdgeCase) Match(text string) bool {
	return r.re != nil && r.re.MatchString(text)
}

// CompiledTransfer is an enabled transfer rule with its trigger compiled.
type CompiledTransfer struct {
	ID        string `json:"id"`
	Priority  int    `json:"priority"`
	Pattern   string `json:"pattern,omitempty"`
	IntentTag string `json:"intentTag,omitempty"`
	Target    string `json:"target"`

	re *regexp.Regexp
}

// Match reports whether the rule applies to a turn, either because the
// classifier's intent tag equals the rule's tag or because the trigger
// matches the utterance.
func (r *CompiledTransfer) Match(intentTag, text string) bool {
	if r.IntentTag != "" && strings.EqualFold(r.IntentTag, intentTag) {
		return true
	}
	return r.re != nil && r.re.MatchString(text)
}

// Artifact is the compiled, immutable snapshot of a tenant policy.
//
// Invariants: every rule list is sorted ascending by (priority, id) and
// contains only enabled rules. Once published an artifact is never modified;
// a new compile produces a new artifact.
type Artifact struct {
	TenantID string `json:"tenantId"`
	Version  string `json:"version"`
	Status   Status `json:"status"`

	// Checksum is excluded from the hashed payload.
	Checksum string `json:"checksum,omitempty"`

	EdgeCases     []CompiledEdgeCase `json:"edgeCases"`
	TransferRules []CompiledTransfer `json:"transferRules"`
	TriageCards   []RoutingRule      `json:"triageCards"`

	BehaviorFlags  FlagSet `json:"behaviorFlags"`
	GuardrailFlags FlagSet `json:"guardrailFlags"`
	AllowedActions FlagSet `json:"allowedActions"`

	// GuardrailPatterns maps each enabled guardrail category to its fixed
	// pattern.
	GuardrailPatterns map[string]string `json:"guardrailPatterns"`

	ReturnLane ReturnLaneSettings `json:"returnLane"`

	guardrails map[string]*regexp.Regexp
}

// CompilePattern compiles a tenant trigger. Triggers are case-insensitive.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	if !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

// Prepare compiles every pattern held by the artifact. It must be called on
// artifacts decoded from a cache before they are used for matching. Rules
// whose pattern fails to compile are removed and reported as
// ConfigurationErrors; the remaining rules stay usable.
func (a *Artifact) Prepare() []error {
	var errs []error

	edges := a.EdgeCases[:0:0]
	for _, rule := range a.EdgeCases {
		re, err := CompilePattern(rule.Pattern)
		if err != nil {
			errs = append(errs, &ConfigurationError{RuleID: rule.ID, Field: "trigger", Message: "invalid pattern", Cause: err})
			continue
		}
		rule.re = re
		edges = append(edges, rule)
	}
	a.EdgeCases = edges

	transfers := a.TransferRules[:0:0]
	for _, rule := range a.TransferRules {
		if rule.Pattern != "" {
			re, err := CompilePattern(rule.Pattern)
			if err != nil {
				errs = append(errs, &ConfigurationError{RuleID: rule.ID, Field: "trigger", Message: "invalid pattern", Cause: err})
				continue
			}
			rule.re = re
		}
		transfers = append(transfers, rule)
	}
	a.TransferRules = transfers

	a.guardrails = make(map[string]*regexp.Regexp, len(a.GuardrailPatterns))
	for name, pattern := range a.GuardrailPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			errs = append(errs, &ConfigurationError{RuleID: name, Field: "guardrail", Message: "invalid pattern", Cause: err})
			continue
		}
		a.guardrails[name] = re
	}

	return errs
}

// ViolatedGuardrail returns the first guardrail (in name order) whose pattern
// matches text.
func (a *Artifact) ViolatedGuardrail(text string) (string, bool) {
	for _, name := range a.GuardrailFlags.Sorted() {
		re, ok := a.guardrails[name]
		if ok && re.MatchString(text) {
			return name, true
		}
	}
	return "", false
}

// ActionAllowed reports whether action may be executed. An empty allow-list
// permits every action.
func (a *Artifact) ActionAllowed(action Action) bool {
	if a.AllowedActions.Len() == 0 {
		return true
	}
	return a.AllowedActions.Has(string(action))
}

// HasBehavior reports whether a behavior flag is set.
func (a *Artifact) HasBehavior(flag string) bool {
	return a.BehaviorFlags.Has(flag)
}

// CacheKey returns the immutable cache key for this artifact.
func (a *Artifact) CacheKey() string {
	return ArtifactCacheKey(a.TenantID, a.Version, a.Checksum)
}

// ArtifactCacheKey builds the cache key for an artifact.
func ArtifactCacheKey(tenantID, version, checksum string) string {
	return fmt.Sprintf("%s%s:%s", ArtifactKeyPrefix(tenantID), version, checksum)
}

// ArtifactKeyPrefix is the prefix shared by every artifact key of a tenant.
func ArtifactKeyPrefix(tenantID string) string {
	return "policy:artifact:" + tenantID + ":"
}

// ActivePointerKey returns the cache key holding the tenant's active artifact
// key.
func ActivePointerKey(tenantID string) string {
	return fmt.Sprintf("policy:active:%s", tenantID)
}
