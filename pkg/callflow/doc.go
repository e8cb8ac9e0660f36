// Package callflow implements the per-call turn state machine.
//
// Each caller utterance is one turn. A turn is evaluated in a fixed order:
//
//  1. Spam check: a spam-flagged turn is dismissed and the call ends.
//  2. Booking hard lock: a locked call goes straight to slot-filling,
//     ignoring the classifier, unless an unlock signal fires.
//  3. Pending confirmation: the reply is classified as confirm, deny or
//     ambiguous.
//  4. Confirmation gate: a routed action that needs confirmation is
//     deferred and the question is asked instead.
//  5. Execution: the route's handler runs, then the return-lane policy
//     post-processes the turn.
//
// Call state is kept in a cache.Store between turns. Turns of the same call
// are serialized in-process; turns of different calls never share state.
// A turn never fails because of a handler: handler errors degrade to the
// configured fallback line.
package callflow
