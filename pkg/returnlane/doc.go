// Package returnlane implements the return-lane policy: after a
// non-booking response it decides whether to nudge the caller toward a
// conversion action.
//
// The policy counts consecutive turns spent in one lane (a tag carried by
// the matched triage card). Early in a lane it suppresses any push, after
// enough turns it allows the card's return action, and once the caller has
// lingered long enough it forces the configured action regardless of what
// the card asked for. Responses from the fallback tier never trigger hard
// actions unless the tenant allows it.
//
// Either the tenant or an individual card can switch the policy off, in
// which case Apply leaves the lane context untouched and returns the
// candidate action unchanged.
package returnlane
