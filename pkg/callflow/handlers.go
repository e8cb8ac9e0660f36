package callflow

import (
	"context"
	"fmt"

	"mercator-hq/switchboard/pkg/policy"
	"mercator-hq/switchboard/pkg/triage"
)

// Request is what a terminal handler receives for a turn.
type Request struct {
	TenantID  string
	CallID    string
	Utterance string
	Decision  triage.Decision
	Route     triage.Result

	// Slots holds the collected booking details. It is a copy.
	Slots map[string]string
}

// Handler executes a chosen route and returns the caller-facing text. The
// scenario engine, booking backend and telephony layer sit behind it.
type Handler interface {
	Handle(ctx context.Context, req *Request) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) (string, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (string, error) {
	return f(ctx, req)
}

// Handlers are the terminal collaborators. Nil entries use built-in
// handlers that only produce a fixed line.
type Handlers struct {
	// Scenario answers FAQ-style turns.
	Scenario Handler

	// Booking submits a completed booking.
	Booking Handler

	// Transfer hands the caller to a human.
	Transfer Handler

	// Message records a message for a callback.
	Message Handler

	// Hangup ends the call. It also dismisses spam.
	Hangup Handler
}

func (h Handlers) withDefaults() Handlers {
	if h.Scenario == nil {
		h.Scenario = HandlerFunc(func(_ context.Context, req *Request) (string, error) {
			if req.Decision.NextPrompt != "" {
				return req.Decision.NextPrompt, nil
			}
			return "Sure, I can help with that. What else can you tell me?", nil
		})
	}
	if h.Booking == nil {
		h.Booking = HandlerFunc(func(_ context.Context, req *Request) (string, error) {
			return fmt.Sprintf("You're all set, %s. We'll see you %s.", req.Slots[SlotName], req.Slots[SlotTime]), nil
		})
	}
	if h.Transfer == nil {
		h.Transfer = HandlerFunc(func(context.Context, *Request) (string, error) {
			return "Please hold while I connect you with someone on our team.", nil
		})
	}
	if h.Message == nil {
		h.Message = HandlerFunc(func(context.Context, *Request) (string, error) {
			return "I'll make sure the team gets your message and calls you back.", nil
		})
	}
	if h.Hangup == nil {
		h.Hangup = HandlerFunc(func(context.Context, *Request) (string, error) {
			return goodbyeLine, nil
		})
	}
	return h
}

const goodbyeLine = "Thanks for calling. Goodbye!"

func (h Handlers) forAction(a policy.Action) Handler {
	switch a {
	case policy.ActionStartBooking:
		return h.Booking
	case policy.ActionEscalate:
		return h.Transfer
	case policy.ActionTakeMessage:
		return h.Message
	case policy.ActionEndCall:
		return h.Hangup
	}
	return h.Scenario
}

// HandlerError wraps a handler failure. The machine never returns it to
// the caller; it is logged and recorded, and the turn falls back.
type HandlerError struct {
	Route  policy.Action
	CallID string
	Cause  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for route %s failed on call %q: %v", e.Route, e.CallID, e.Cause)
}

func (e *HandlerError) Unwrap() error {
	return e.Cause
}
