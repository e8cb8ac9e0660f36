package callflow

import (
	"regexp"

	"mercator-hq/switchboard/pkg/triage"
)

// Reply is the classification of an answer to a confirmation question.
type Reply string

const (
	ReplyConfirm   Reply = "confirm"
	ReplyDeny      Reply = "deny"
	ReplyAmbiguous Reply = "ambiguous"
)

var (
	confirmPhrases = regexp.MustCompile(`(?i)\b(yes|yeah|yep|yup|correct|right|sure|ok|okay|absolutely|please do|go ahead|sounds good)\b`)
	denyPhrases    = regexp.MustCompile(`(?i)\b(no|nope|nah|wrong|incorrect|don't|do not|cancel)\b`)

	// Courtesy phrases that contain a deny word but do not deny.
	courtesyPhrases = regexp.MustCompile(`(?i)\b(no (problem|problems|worries|rush|changes?)|don't worry)\b`)
	negatedConfirms = regexp.MustCompile(`(?i)\b(not|isn't|is not|that's not) (right|correct)\b`)
)

// ClassifyReply classifies a reply to a confirmation question. Courtesy
// phrases such as "no problem" are ignored and "not right" denies. A reply
// that still both confirms and denies ("yes, but the phone is wrong") is
// ambiguous.
func ClassifyReply(input string) Reply {
	s := courtesyPhrases.ReplaceAllString(input, " ")
	no := negatedConfirms.MatchString(s)
	s = negatedConfirms.ReplaceAllString(s, " ")
	yes := confirmPhrases.MatchString(s)
	no = no || denyPhrases.MatchString(s)
	switch {
	case no && !yes:
		return ReplyDeny
	case yes && !no:
		return ReplyConfirm
	}
	return ReplyAmbiguous
}

// UnlockSignal names why a booking lock was released.
type UnlockSignal string

const (
	UnlockNone         UnlockSignal = ""
	UnlockFrustration  UnlockSignal = "frustration"
	UnlockRefusal      UnlockSignal = "refusal"
	UnlockIgnored      UnlockSignal = "ignored"
	UnlockTrustConcern UnlockSignal = "trust_concern"
)

var (
	frustrationPhrases = regexp.MustCompile(`(?i)\b(ridiculous|frustrat\w*|annoy\w*|fed up|sick of|this is crazy|unbelievable|come on|ugh)\b`)
	refusalPhrases     = regexp.MustCompile(`(?i)\b(i don't want to (book|schedule)|don't want an appointment|not (booking|scheduling)|stop asking|i'm not giving you|won't give you|rather not say)\b`)
	problemPhrases     = regexp.MustCompile(`(?i)\b(leak\w*|broken|broke|not working|doesn't work|won't (start|turn on)|stopped working|no (heat|hot water|power|ac|air)|flood\w*|smell\w*|noise|problem|issue|emergency)\b`)
	ignoredPhrases     = regexp.MustCompile(`(?i)(you're not listening|you are not listening|you aren't listening|not listening to me|you keep asking|i already told you|i just told you|are you even listening)`)
	trustPhrases       = regexp.MustCompile(`(?i)(is this a scam|are you a scam|how do i know (you|this)|is this legit|are you a real person|am i talking to a (robot|machine|bot)|don't trust|why do you need my)`)
)

// DetectUnlock returns the signal that should release a booking lock, or
// UnlockNone. Frustration and refusal only unlock when the caller is also
// describing a problem; feeling ignored and trust concerns unlock on
// their own.
func DetectUnlock(d *triage.Decision, input string) UnlockSignal {
	switch {
	case ignoredPhrases.MatchString(input):
		return UnlockIgnored
	case trustPhrases.MatchString(input):
		return UnlockTrustConcern
	}

	if !problemPhrases.MatchString(input) {
		return UnlockNone
	}
	if d.HasFlag(triage.FlagFrustrated) || frustrationPhrases.MatchString(input) {
		return UnlockFrustration
	}
	if refusalPhrases.MatchString(input) {
		return UnlockRefusal
	}
	return UnlockNone
}
