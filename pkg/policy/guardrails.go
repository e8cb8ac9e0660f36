package policy

import "sort"

// Guardrail category names. The vocabulary is fixed; tenants can switch
// categories on but cannot supply their own patterns.
const (
	GuardrailNoPrices         = "no_prices"
	GuardrailNoPhoneNumbers   = "no_phone_numbers"
	GuardrailNoMedicalAdvice  = "no_medical_advice"
	GuardrailNoLegalAdvice    = "no_legal_advice"
	GuardrailNoCompetitorTalk = "no_competitor_mentions"
)

var guardrailPatterns = map[string]string{
	GuardrailNoPrices:         `(?i)(\$\s?\d[\d,]*(\.\d{2})?|\b\d+\s?(dollars|bucks)\b)`,
	GuardrailNoPhoneNumbers:   `\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`,
	GuardrailNoMedicalAdvice:  `(?i)\b(diagnos\w*|prescri\w*|dosage|medication|you should take)\b`,
	GuardrailNoLegalAdvice:    `(?i)\b(legal advice|lawsuit|sue them|liable|liability)\b`,
	GuardrailNoCompetitorTalk: `(?i)\b(competitor|other compan(y|ies)|cheaper elsewhere)\b`,
}

// GuardrailPattern returns the fixed pattern for a guardrail category.
func GuardrailPattern(name string) (string, bool) {
	p, ok := guardrailPatterns[name]
	return p, ok
}

// GuardrailNames returns the known guardrail categories in sorted order.
func GuardrailNames() []string {
	names := make([]string, 0, len(guardrailPatterns))
	for n := range guardrailPatterns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
