package triage

import "strings"

// Decision is the upstream classifier's verdict for one turn. Switchboard
// never classifies; it only consumes this.
type Decision struct {
	// Action is the classifier's action hint, e.g. "BOOK" or "TRANSFER".
	Action string `json:"action"`

	// IntentTag is matched against transfer rules' intent tags.
	IntentTag string `json:"intentTag,omitempty"`

	// Entities are extracted values such as "name" or "phone".
	Entities map[string]string `json:"entities,omitempty"`

	// Flags are classifier signals such as "spam" or "frustrated".
	Flags []string `json:"flags,omitempty"`

	Confidence float64 `json:"confidence"`

	// NextPrompt is the classifier's suggested reply, used by the scenario
	// engine when it has nothing better.
	NextPrompt string `json:"nextPrompt,omitempty"`
}

// Classifier signal flags.
const (
	FlagSpam       = "spam"
	FlagFrustrated = "frustrated"
)

// HasFlag reports whether the classifier raised flag.
func (d *Decision) HasFlag(flag string) bool {
	for _, f := range d.Flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}
