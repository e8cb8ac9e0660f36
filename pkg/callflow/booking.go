package callflow

import (
	"fmt"
	"strings"

	"mercator-hq/switchboard/pkg/config"
)

var defaultPrompts = map[string]string{
	SlotName:    "Can I get your full name?",
	SlotPhone:   "What's the best phone number to reach you?",
	SlotAddress: "What's the address where you need service?",
	SlotTime:    "When would be a good time for us to come out?",
}

// bookingFlow collects booking slots in a fixed order.
type bookingFlow struct {
	fields     []string
	prompts    map[string]string
	recovery   string
	extractors map[string]Extractor
}

func newBookingFlow(cfg config.BookingConfig, extractors map[string]Extractor) *bookingFlow {
	b := &bookingFlow{
		fields:     append([]string(nil), cfg.Fields...),
		prompts:    make(map[string]string, len(defaultPrompts)),
		recovery:   cfg.RecoveryStep,
		extractors: DefaultExtractors(),
	}
	for k, v := range defaultPrompts {
		b.prompts[k] = v
	}
	for k, v := range cfg.Prompts {
		b.prompts[k] = v
	}
	for k, v := range extractors {
		b.extractors[k] = v
	}
	return b
}

func (b *bookingFlow) prompt(field string) string {
	if p, ok := b.prompts[field]; ok {
		return p
	}
	return fmt.Sprintf("Can I get your %s?", field)
}

func (b *bookingFlow) extract(field, input string) (string, bool) {
	if ex, ok := b.extractors[field]; ok {
		return ex(input)
	}
	v := strings.TrimSpace(input)
	return v, v != ""
}

// start locks the call into booking and prefills slots from classifier
// entities. Slots collected earlier in the call are kept.
func (b *bookingFlow) start(s *CallTurnState, entities map[string]string) {
	s.BookingLocked = true
	s.Phase = PhaseBooking
	for _, f := range b.fields {
		if _, ok := s.CollectedSlots[f]; ok {
			continue
		}
		raw, ok := entities[f]
		if !ok {
			continue
		}
		if v, ok := b.extract(f, raw); ok {
			s.CollectedSlots[f] = v
		}
	}
	s.BookingStep = b.next(s)
}

// next returns the first field without a value, or "" when all are filled.
func (b *bookingFlow) next(s *CallTurnState) string {
	for _, f := range b.fields {
		if _, ok := s.CollectedSlots[f]; !ok {
			return f
		}
	}
	return ""
}

// fill validates input for the current step. It reports whether the value
// was accepted; a rejected value leaves the state untouched.
func (b *bookingFlow) fill(s *CallTurnState, input string) bool {
	if s.BookingStep == "" {
		return true
	}
	v, ok := b.extract(s.BookingStep, input)
	if !ok {
		return false
	}
	s.CollectedSlots[s.BookingStep] = v
	return true
}

// restart clears the recovery slot and every slot after it, and resumes
// collection there.
func (b *bookingFlow) restart(s *CallTurnState) {
	from := 0
	for i, f := range b.fields {
		if f == b.recovery {
			from = i
			break
		}
	}
	for _, f := range b.fields[from:] {
		delete(s.CollectedSlots, f)
	}
	s.BookingStep = b.next(s)
}

// readBack is the booking confirmation question.
func (b *bookingFlow) readBack(s *CallTurnState) string {
	parts := make([]string, 0, len(b.fields))
	for _, f := range b.fields {
		parts = append(parts, fmt.Sprintf("%s %s", f, s.CollectedSlots[f]))
	}
	return fmt.Sprintf("Let me read that back: %s. Is that correct?", strings.Join(parts, ", "))
}
