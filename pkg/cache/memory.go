package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value          []byte
	expiresAt      time.Time // zero = no expiry
	lastAccessedAt time.Time
}

// MemoryStore is a thread-safe in-process Store with TTL expiry and LRU
// eviction. When the store holds maxEntries entries, inserting a new key
// evicts the least recently accessed one.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]*memoryEntry
	maxEntries int

	now func() time.Time

	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore creates a memory store. maxEntries of 0 means unlimited.
// A background goroutine removes expired entries every cleanupInterval; pass
// 0 to disable it (expired entries are still hidden from Get).
func NewMemoryStore(maxEntries int, cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries:    make(map[string]*memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go s.cleanupExpired(cleanupInterval)
	}

	return s
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}

	now := s.now()
	if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
		delete(s.entries, key)
		return nil, ErrNotFound
	}
	entry.lastAccessedAt = now

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		if _, exists := s.entries[key]; !exists {
			s.evictLRU()
		}
	}

	now := s.now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	s.entries[key] = &memoryEntry{
		value:          stored,
		expiresAt:      expiresAt,
		lastAccessedAt: now,
	}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Len returns the number of stored entries, including expired entries not
// yet cleaned up.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopCh) })
	return nil
}

// evictLRU must be called with the write lock held.
func (s *MemoryStore) evictLRU() {
	var oldestKey string
	var oldest time.Time

	for key, entry := range s.entries {
		if oldestKey == "" || entry.lastAccessedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.lastAccessedAt
		}
	}

	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}

func (s *MemoryStore) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stopCh:
			return
		}
	}
}

func (s *MemoryStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, entry := range s.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}
