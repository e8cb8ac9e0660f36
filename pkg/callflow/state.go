package callflow

import (
	"time"

	"mercator-hq/switchboard/pkg/policy"
	"mercator-hq/switchboard/pkg/returnlane"
)

// Phase is the coarse state of a call.
type Phase string

const (
	PhaseFree        Phase = "FREE"
	PhaseTriage      Phase = "TRIAGE"
	PhaseBooking     Phase = "BOOKING"
	PhasePostBooking Phase = "POST_BOOKING"
	PhaseComplete    Phase = "COMPLETE"

	// PhaseRescue is entered for a turn when a frustrated caller breaks out
	// of the booking lock.
	PhaseRescue Phase = "RESCUE"
)

// Booking slot names.
const (
	SlotName    = "name"
	SlotPhone   = "phone"
	SlotAddress = "address"
	SlotTime    = "time"
)

// Severity grades how disruptive an action is for the caller.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ConfirmationKind says what a pending confirmation is guarding.
type ConfirmationKind string

const (
	// ConfirmAction defers a routed action.
	ConfirmAction ConfirmationKind = "action"

	// ConfirmBooking is the read-back of collected booking details.
	ConfirmBooking ConfirmationKind = "booking"
)

// PendingConfirmation is a question waiting for a yes or no.
type PendingConfirmation struct {
	Kind     ConfirmationKind `json:"kind"`
	Action   policy.Action    `json:"action,omitempty"`
	Severity Severity         `json:"severity"`
	Question string           `json:"question"`

	// RuleID and TransferTarget carry the deferred route.
	RuleID         string `json:"ruleId,omitempty"`
	TransferTarget string `json:"transferTarget,omitempty"`
}

// CallTurnState is the mutable record of one call. It is created on the
// call's first turn and discarded when the call ends.
type CallTurnState struct {
	CallID   string `json:"callId"`
	TenantID string `json:"tenantId"`
	Phase    Phase  `json:"phase"`

	BookingLocked bool `json:"bookingLocked"`

	// BookingStep is the slot currently being collected. It is empty when
	// no slot is outstanding.
	BookingStep    string            `json:"bookingStep,omitempty"`
	CollectedSlots map[string]string `json:"collectedSlots"`

	PendingConfirmation *PendingConfirmation   `json:"pendingConfirmation,omitempty"`
	LaneContext         returnlane.LaneContext `json:"laneContext"`

	TurnCount int       `json:"turnCount"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewCallTurnState returns the state of a call that has not had a turn yet.
func NewCallTurnState(callID, tenantID string, now time.Time) *CallTurnState {
	return &CallTurnState{
		CallID:         callID,
		TenantID:       tenantID,
		Phase:          PhaseFree,
		CollectedSlots: make(map[string]string),
		StartedAt:      now,
		UpdatedAt:      now,
	}
}

// Slots returns a copy of the collected slots.
func (s *CallTurnState) Slots() map[string]string {
	out := make(map[string]string, len(s.CollectedSlots))
	for k, v := range s.CollectedSlots {
		out[k] = v
	}
	return out
}
