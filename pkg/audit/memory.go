package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record
	byID    map[string]*Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Record)}
}

// Append stores a copy of r.
func (s *MemoryStore) Append(ctx context.Context, r *Record) error {
	rec := *r
	rec.Overrides = append([]string(nil), r.Overrides...)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, &rec)
	s.byID[rec.ID] = &rec
	return nil
}

// Get returns the record with the given ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r
	return &out, nil
}

// Query returns matching records, oldest first.
func (s *MemoryStore) Query(ctx context.Context, q *Query) ([]*Record, error) {
	if q == nil {
		q = &Query{}
	}

	s.mu.RLock()
	var out []*Record
	for _, r := range s.records {
		if q.Matches(r) {
			rec := *r
			out = append(out, &rec)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// DeleteBefore removes records older than cutoff.
func (s *MemoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var deleted int64
	for _, r := range s.records {
		if r.Timestamp.Before(cutoff) {
			delete(s.byID, r.ID)
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return deleted, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
