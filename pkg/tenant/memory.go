package tenant

import (
	"context"
	"sort"
	"sync"
	"time"

	"mercator-hq/switchboard/pkg/policy"
)

type memoryRecord struct {
	policy   *policy.RawPolicy
	lock     string
	lockedAt time.Time
	meta     CompileMetadata
}

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu      sync.Mutex
	tenants map[string]*memoryRecord
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tenants: make(map[string]*memoryRecord)}
}

// record must be called with mu held.
func (r *MemoryRepository) record(tenantID string, create bool) *memoryRecord {
	rec, ok := r.tenants[tenantID]
	if !ok && create {
		rec = &memoryRecord{}
		r.tenants[tenantID] = rec
	}
	return rec
}

// LoadPolicy implements Repository.
func (r *MemoryRepository) LoadPolicy(_ context.Context, tenantID string) (*policy.RawPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(tenantID, false)
	if rec == nil || rec.policy == nil {
		return nil, ErrTenantNotFound
	}
	return rec.policy.Clone(), nil
}

// SavePolicy implements Repository.
func (r *MemoryRepository) SavePolicy(_ context.Context, tenantID string, raw *policy.RawPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record(tenantID, true).policy = raw.Clone()
	return nil
}

// AcquireCompileLock implements Repository.
func (r *MemoryRepository) AcquireCompileLock(_ context.Context, tenantID, token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(tenantID, true)
	if rec.lock != "" {
		return ErrLockHeld
	}
	rec.lock = token
	rec.lockedAt = at
	return nil
}

// ReleaseCompileLock implements Repository.
func (r *MemoryRepository) ReleaseCompileLock(_ context.Context, tenantID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(tenantID, false)
	if rec == nil || rec.lock == "" || rec.lock != token {
		return ErrLockNotHeld
	}
	rec.lock = ""
	rec.lockedAt = time.Time{}
	return nil
}

// UpdateCompileMetadata implements Repository.
func (r *MemoryRepository) UpdateCompileMetadata(_ context.Context, tenantID string, meta CompileMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record(tenantID, true).meta = meta
	return nil
}

// GetCompileMetadata implements Repository.
func (r *MemoryRepository) GetCompileMetadata(_ context.Context, tenantID string) (*CompileMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(tenantID, false)
	if rec == nil {
		return nil, ErrTenantNotFound
	}
	meta := rec.meta
	return &meta, nil
}

// ReapStaleLocks implements Repository.
func (r *MemoryRepository) ReapStaleLocks(_ context.Context, olderThan time.Time) ([]LockInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reaped []LockInfo
	for id, rec := range r.tenants {
		if rec.lock == "" || !rec.lockedAt.Before(olderThan) {
			continue
		}
		reaped = append(reaped, LockInfo{TenantID: id, Token: rec.lock, LockedAt: rec.lockedAt})
		rec.lock = ""
		rec.lockedAt = time.Time{}
	}
	sort.Slice(reaped, func(i, j int) bool { return reaped[i].TenantID < reaped[j].TenantID })
	return reaped, nil
}

// ListTenants implements Repository.
func (r *MemoryRepository) ListTenants(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.tenants))
	for id := range r.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close implements Repository.
func (r *MemoryRepository) Close() error {
	return nil
}
