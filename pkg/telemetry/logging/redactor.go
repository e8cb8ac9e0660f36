package logging

import "regexp"

// Redactor masks caller PII in free text.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternEmail      = "email"
	PatternCreditCard = "credit_card"
	PatternPhone      = "phone"
)

// NewRedactor returns a redactor with the built-in patterns. Patterns are
// applied in order; card numbers run before phone numbers so a card is not
// partially masked as a phone number.
func NewRedactor() *Redactor {
	return &Redactor{patterns: []redactPattern{
		{
			name:        PatternEmail,
			regex:       regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
			replacement: "[email]",
		},
		{
			name:        PatternCreditCard,
			regex:       regexp.MustCompile(`\b(?:\d[ -]?){12,15}\d\b`),
			replacement: "[card]",
		},
		{
			name:        PatternPhone,
			regex:       regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\b\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
			replacement: "[phone]",
		},
	}}
}

// Redact returns s with every PII match replaced.
func (r *Redactor) Redact(s string) string {
	for _, p := range r.patterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}
