package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"mercator-hq/switchboard/pkg/policy"
)

// OverlapThreshold is the Jaccard similarity above which two triggers at
// the same priority conflict.
const OverlapThreshold = 0.3

// regexEscapes strips escapes like \b or \d so they do not glue letters
// onto neighbouring words.
var regexEscapes = regexp.MustCompile(`\\[A-Za-z]`)

// triggerWords returns the significant words of a trigger pattern.
func triggerWords(pattern string) map[string]struct{} {
	return policy.SignificantWords(regexEscapes.ReplaceAllString(pattern, " "))
}

// detectConflicts finds conflicts between enabled rules of equal priority.
// raw must already be sorted; within each pair, B is the later rule.
func detectConflicts(raw *policy.RawPolicy) []policy.ConflictRecord {
	var conflicts []policy.ConflictRecord

	edges := make([]policy.EdgeCaseRule, 0, len(raw.EdgeCases))
	for _, r := range raw.EdgeCases {
		if r.IsEnabled() {
			edges = append(edges, r)
		}
	}
	for i := 0; i < len(edges); i++ {
		wi := triggerWords(edges[i].Trigger)
		for j := i + 1; j < len(edges) && edges[j].Priority == edges[i].Priority; j++ {
			score := policy.Jaccard(wi, triggerWords(edges[j].Trigger))
			if score > OverlapThreshold {
				conflicts = append(conflicts, policy.ConflictRecord{
					Type:         policy.ConflictEdgeCaseOverlap,
					RuleIDA:      edges[i].ID,
					RuleIDB:      edges[j].ID,
					OverlapScore: score,
				})
			}
		}
	}

	transfers := make([]policy.TransferRule, 0, len(raw.TransferRules))
	for _, r := range raw.TransferRules {
		if r.IsEnabled() {
			transfers = append(transfers, r)
		}
	}
	for i := 0; i < len(transfers); i++ {
		a := transfers[i]
		wa := triggerWords(a.Trigger)
		for j := i + 1; j < len(transfers) && transfers[j].Priority == a.Priority; j++ {
			b := transfers[j]
			if a.IntentTag != "" && strings.EqualFold(a.IntentTag, b.IntentTag) {
				conflicts = append(conflicts, policy.ConflictRecord{
					Type:         policy.ConflictTransferIntent,
					RuleIDA:      a.ID,
					RuleIDB:      b.ID,
					OverlapScore: 1.0,
				})
				continue
			}
			score := policy.Jaccard(wa, triggerWords(b.Trigger))
			if score > OverlapThreshold {
				conflicts = append(conflicts, policy.ConflictRecord{
					Type:         policy.ConflictTransferOverlap,
					RuleIDA:      a.ID,
					RuleIDB:      b.ID,
					OverlapScore: score,
				})
			}
		}
	}

	return conflicts
}

// resolveConflicts demotes each conflict's B rule by one priority step, once
// per flagged conflict, so a rule that is B in two conflicts ends two steps
// down. The demoted priorities are not re-checked for new collisions. The
// resolution text is filled in on each record.
func resolveConflicts(raw *policy.RawPolicy, conflicts []policy.ConflictRecord) {
	for i := range conflicts {
		c := &conflicts[i]
		family := "edge"
		if c.Type != policy.ConflictEdgeCaseOverlap {
			family = "transfer"
		}

		prio, ok := demote(raw, family, c.RuleIDB)
		if !ok {
			continue
		}
		c.Resolution = fmt.Sprintf("demoted rule %q to priority %d", c.RuleIDB, prio)
	}
}

func demote(raw *policy.RawPolicy, family, id string) (int, bool) {
	switch family {
	case "edge":
		for i := range raw.EdgeCases {
			if raw.EdgeCases[i].ID == id {
				raw.EdgeCases[i].Priority++
				return raw.EdgeCases[i].Priority, true
			}
		}
	case "transfer":
		for i := range raw.TransferRules {
			if raw.TransferRules[i].ID == id {
				raw.TransferRules[i].Priority++
				return raw.TransferRules[i].Priority, true
			}
		}
	}
	return 0, false
}
