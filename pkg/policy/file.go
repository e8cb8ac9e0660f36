package policy

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxPolicyFileSize bounds policy files read from disk.
const MaxPolicyFileSize = 1 << 20

// Parse decodes a YAML policy document. Unknown fields are rejected.
func Parse(data []byte) (*RawPolicy, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var raw RawPolicy
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	return &raw, nil
}

// LoadFile reads and parses a YAML policy file.
func LoadFile(path string) (*RawPolicy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy file %q: %w", path, err)
	}
	if info.Size() > MaxPolicyFileSize {
		return nil, fmt.Errorf("policy file %q exceeds %d bytes", path, MaxPolicyFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %q: %w", path, err)
	}

	raw, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return raw, nil
}

// Marshal encodes a raw policy as YAML.
func Marshal(raw *RawPolicy) ([]byte, error) {
	return yaml.Marshal(raw)
}

// Validate checks the structural problems that make a policy uncompilable:
// a missing tenant, an unknown status and duplicate rule IDs within a family.
// Problems confined to a single rule (bad pattern, unknown action, unknown
// guardrail) are not reported here; the compiler drops those rules and
// returns them as warnings.
func Validate(tenantID string, raw *RawPolicy) error {
	verr := &ValidationError{TenantID: tenantID}

	if strings.TrimSpace(tenantID) == "" {
		verr.Add("tenantId", "must not be empty")
	}
	if raw == nil {
		verr.Add("policy", "must not be nil")
		return verr
	}

	switch raw.EffectiveStatus() {
	case StatusActive, StatusDraft:
	default:
		verr.Add("status", fmt.Sprintf("must be %q or %q, got %q", StatusActive, StatusDraft, raw.Status))
	}

	checkIDs := func(family string, ids []string) {
		seen := make(map[string]bool, len(ids))
		for i, id := range ids {
			field := fmt.Sprintf("%s[%d].id", family, i)
			if strings.TrimSpace(id) == "" {
				verr.Add(field, "must not be empty")
				continue
			}
			if seen[id] {
				verr.Add(field, fmt.Sprintf("duplicate id %q", id))
			}
			seen[id] = true
		}
	}

	ids := make([]string, 0, len(raw.EdgeCases))
	for _, r := range raw.EdgeCases {
		ids = append(ids, r.ID)
	}
	checkIDs("edgeCases", ids)

	ids = ids[:0]
	for _, r := range raw.TransferRules {
		ids = append(ids, r.ID)
	}
	checkIDs("transferRules", ids)

	ids = ids[:0]
	for _, r := range raw.TriageCards {
		ids = append(ids, r.ID)
	}
	checkIDs("triageCards", ids)

	rl := raw.ReturnLane
	if rl.MaxTurnsBeforePush < 0 {
		verr.Add("returnLane.maxTurnsBeforePush", "must not be negative")
	}
	if rl.ForceActionAfterTurns < 0 {
		verr.Add("returnLane.forceActionAfterTurns", "must not be negative")
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}
