package compiler

import (
	"sort"

	"mercator-hq/switchboard/pkg/policy"
)

// sortFamilies orders every rule family by ascending priority, breaking
// ties by rule ID so that input order never affects the result.
func sortFamilies(raw *policy.RawPolicy) {
	sort.SliceStable(raw.EdgeCases, func(i, j int) bool {
		return less(raw.EdgeCases[i].Priority, raw.EdgeCases[i].ID, raw.EdgeCases[j].Priority, raw.EdgeCases[j].ID)
	})
	sort.SliceStable(raw.TransferRules, func(i, j int) bool {
		return less(raw.TransferRules[i].Priority, raw.TransferRules[i].ID, raw.TransferRules[j].Priority, raw.TransferRules[j].ID)
	})
	sort.SliceStable(raw.TriageCards, func(i, j int) bool {
		return less(raw.TriageCards[i].Priority, raw.TriageCards[i].ID, raw.TriageCards[j].Priority, raw.TriageCards[j].ID)
	})
}

func less(pi int, idi string, pj int, idj string) bool {
	if pi != pj {
		return pi < pj
	}
	return idi < idj
}

func sortCompiled(a *policy.Artifact) {
	sort.SliceStable(a.EdgeCases, func(i, j int) bool {
		return less(a.EdgeCases[i].Priority, a.EdgeCases[i].ID, a.EdgeCases[j].Priority, a.EdgeCases[j].ID)
	})
	sort.SliceStable(a.TransferRules, func(i, j int) bool {
		return less(a.TransferRules[i].Priority, a.TransferRules[i].ID, a.TransferRules[j].Priority, a.TransferRules[j].ID)
	})
	sort.SliceStable(a.TriageCards, func(i, j int) bool {
		return less(a.TriageCards[i].Priority, a.TriageCards[i].ID, a.TriageCards[j].Priority, a.TriageCards[j].ID)
	})
}
