package callflow

import (
	"regexp"
	"strings"
	"unicode"
)

// Extractor validates one booking slot. It returns the cleaned value and
// whether the input contained a usable one.
type Extractor func(input string) (string, bool)

// DefaultExtractors returns the built-in extractor for every slot.
func DefaultExtractors() map[string]Extractor {
	return map[string]Extractor{
		SlotName:    ExtractName,
		SlotPhone:   ExtractPhone,
		SlotAddress: ExtractAddress,
		SlotTime:    ExtractTime,
	}
}

var (
	namePrefix = regexp.MustCompile(`(?i)^\s*(?:(?:hi|hello|hey|yeah|yes|sure|ok|okay)\b)?[,.!\s]*(?:(?:my name is|my name's|name is|this is|it's|it is|i'm|i am|call me)\b)?\s*`)

	nonPhoneDigit = regexp.MustCompile(`\D`)

	streetNumber = regexp.MustCompile(`\b\d{1,6}[a-zA-Z]?\b`)
	streetSuffix = regexp.MustCompile(`(?i)\b(st|street|ave|avenue|rd|road|blvd|boulevard|dr|drive|ln|lane|ct|court|way|pl|place|pkwy|parkway|cir|circle|ter|terrace|hwy|highway|trl|trail)\b`)

	timeExpr = regexp.MustCompile(`(?i)\b(asap|as soon as possible|today|tonight|tomorrow|this (morning|afternoon|evening|week|weekend)|next (week|monday|tuesday|wednesday|thursday|friday|saturday|sunday)|monday|tuesday|wednesday|thursday|friday|saturday|sunday|weekend|morning|afternoon|evening|noon|\d{1,2}(:\d{2})?\s?(a\.?m|p\.?m)|\d{1,2}/\d{1,2})\b`)
)

// nameStopWords are answers that are clearly not a name.
var nameStopWords = map[string]bool{
	"no": true, "nope": true, "why": true, "what": true, "idk": true,
	"unknown": true, "skip": true, "none": true, "nothing": true,
}

// ExtractName accepts one to four alphabetic words after stripping common
// lead-ins such as "my name is".
func ExtractName(input string) (string, bool) {
	s := namePrefix.ReplaceAllString(input, "")
	s = strings.Trim(s, " .,!?")
	words := strings.Fields(s)
	if len(words) == 0 || len(words) > 4 {
		return "", false
	}
	for i, w := range words {
		for _, r := range w {
			if !unicode.IsLetter(r) && r != '\'' && r != '-' && r != '.' {
				return "", false
			}
		}
		if nameStopWords[strings.ToLower(w)] {
			return "", false
		}
		words[i] = capitalize(w)
	}
	return strings.Join(words, " "), true
}

func capitalize(w string) string {
	r := []rune(strings.ToLower(w))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// ExtractPhone accepts a ten digit North American number, optionally with a
// leading 1, and returns its ten digits.
func ExtractPhone(input string) (string, bool) {
	digits := nonPhoneDigit.ReplaceAllString(input, "")
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", false
	}
	return digits, true
}

// ExtractAddress accepts input with a street number and a street suffix.
func ExtractAddress(input string) (string, bool) {
	s := strings.Trim(strings.TrimSpace(input), ".!?")
	if !streetNumber.MatchString(s) || !streetSuffix.MatchString(s) {
		return "", false
	}
	if i := streetNumber.FindStringIndex(s); i != nil {
		s = s[i[0]:]
	}
	return s, true
}

// ExtractTime accepts input naming a day, a part of day or a clock time.
// The matched phrase is returned; resolving it to a slot is the booking
// backend's job.
func ExtractTime(input string) (string, bool) {
	loc := timeExpr.FindStringIndex(input)
	if loc == nil {
		return "", false
	}
	return strings.Trim(strings.TrimSpace(input[loc[0]:]), ".!?"), true
}
