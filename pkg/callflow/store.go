package callflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mercator-hq/switchboard/pkg/cache"
)

// DefaultStateTTL bounds how long an idle call's state is kept.
const DefaultStateTTL = 2 * time.Hour

// StateKey returns the cache key holding a call's state.
func StateKey(callID string) string {
	return fmt.Sprintf("call:state:%s", callID)
}

// StateStore persists CallTurnState as JSON in a cache.Store.
type StateStore struct {
	store cache.Store
	ttl   time.Duration
}

// NewStateStore creates a state store. A non-positive ttl uses
// DefaultStateTTL.
func NewStateStore(store cache.Store, ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{store: store, ttl: ttl}
}

// Load returns the call's state. found is false when the call has no
// stored state.
func (s *StateStore) Load(ctx context.Context, callID string) (state *CallTurnState, found bool, err error) {
	state = &CallTurnState{}
	if err := cache.GetJSON(ctx, s.store, StateKey(callID), state); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load state for call %q: %w", callID, err)
	}
	if state.CollectedSlots == nil {
		state.CollectedSlots = make(map[string]string)
	}
	return state, true, nil
}

// Save writes the state, refreshing its TTL.
func (s *StateStore) Save(ctx context.Context, state *CallTurnState) error {
	if err := cache.SetJSON(ctx, s.store, StateKey(state.CallID), state, s.ttl); err != nil {
		return fmt.Errorf("failed to save state for call %q: %w", state.CallID, err)
	}
	return nil
}

// Delete discards the call's state. Deleting an unknown call is not an
// error.
func (s *StateStore) Delete(ctx context.Context, callID string) error {
	if err := s.store.Delete(ctx, StateKey(callID)); err != nil && !errors.Is(err, cache.ErrNotFound) {
		return fmt.Errorf("failed to delete state for call %q: %w", callID, err)
	}
	return nil
}
