package policy

import (
	"strings"
	"unicode"
)

// NormalizeText lowercases s, replaces every run of non-alphanumeric
// characters with a single space and trims the result. Utterances and
// keywords are both normalized this way before matching.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens splits s into normalized words.
func Tokens(s string) []string {
	return strings.Fields(NormalizeText(s))
}

// SignificantWords returns the set of normalized words in s longer than two
// characters. Shorter tokens are treated as noise for overlap scoring.
func SignificantWords(s string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, tok := range Tokens(s) {
		if len([]rune(tok)) <= 2 {
			continue
		}
		words[tok] = struct{}{}
	}
	return words
}

// Jaccard returns |a ∩ b| / |a ∪ b|, or 0 when both sets are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
