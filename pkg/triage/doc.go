// Package triage selects a handling route for one caller turn.
//
// Route evaluates triage cards on their own: enabled cards are tried in
// ascending (priority, id) order and the first card whose must-have
// keywords are all present, and none of whose exclude keywords are, wins.
// Keywords match whole words of the normalized utterance, so "ac" does not
// match "each".
//
// Router.RouteArtifact layers a compiled artifact over that: edge-case
// rules, then transfer rules, then triage cards, then the fallback table
// keyed by the classifier's action hint. ActiveSource resolves a tenant's
// live artifact through the cache's active pointer.
package triage
