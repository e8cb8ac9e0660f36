package policy

import (
	"encoding/json"
	"sort"
	"strings"
)

// FlagSet is a set of flag names with O(1) membership. It encodes to JSON
// as a sorted array so artifacts serialize deterministically.
type FlagSet map[string]struct{}

// NewFlagSet builds a set from names, trimming and lowercasing each one and
// skipping blanks.
func NewFlagSet(names ...string) FlagSet {
	s := make(FlagSet, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set.
func (s FlagSet) Has(name string) bool {
	_, ok := s[strings.ToLower(name)]
	return ok
}

// Len returns the number of flags in the set.
func (s FlagSet) Len() int {
	return len(s)
}

// Sorted returns the flag names in ascending order.
func (s FlagSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON implements json.Marshaler.
func (s FlagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlagSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewFlagSet(names...)
	return nil
}
