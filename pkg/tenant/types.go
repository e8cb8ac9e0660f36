package tenant

import (
	"context"
	"errors"
	"time"

	"mercator-hq/switchboard/pkg/policy"
)

var (
	// ErrTenantNotFound is returned when no record exists for a tenant.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrLockHeld is returned by AcquireCompileLock when the slot is taken.
	ErrLockHeld = errors.New("compile lock already held")

	// ErrLockNotHeld is returned by ReleaseCompileLock when the slot is
	// empty or holds a different token.
	ErrLockNotHeld = errors.New("compile lock not held by caller")
)

// CompileMetadata describes the last successful compile of a tenant.
type CompileMetadata struct {
	Version    string    `json:"version"`
	Checksum   string    `json:"checksum"`
	CacheKey   string    `json:"cacheKey"`
	CompiledAt time.Time `json:"compiledAt"`
	Conflicts  int       `json:"conflicts"`
}

// LockInfo describes a held compile lock.
type LockInfo struct {
	TenantID string
	Token    string
	LockedAt time.Time
}

// Repository is the tenant configuration store.
type Repository interface {
	// LoadPolicy returns the tenant's saved raw policy.
	LoadPolicy(ctx context.Context, tenantID string) (*policy.RawPolicy, error)

	// SavePolicy creates or replaces the tenant's raw policy.
	SavePolicy(ctx context.Context, tenantID string, raw *policy.RawPolicy) error

	// AcquireCompileLock stores token in the tenant's empty lock slot,
	// creating the tenant record if needed. It returns ErrLockHeld when the
	// slot is already occupied.
	AcquireCompileLock(ctx context.Context, tenantID, token string, at time.Time) error

	// ReleaseCompileLock clears the lock slot if it holds token.
	ReleaseCompileLock(ctx context.Context, tenantID, token string) error

	// UpdateCompileMetadata records the result of a successful compile.
	UpdateCompileMetadata(ctx context.Context, tenantID string, meta CompileMetadata) error

	// GetCompileMetadata returns the last compile's metadata. A tenant that
	// has never compiled returns a zero CompileMetadata.
	GetCompileMetadata(ctx context.Context, tenantID string) (*CompileMetadata, error)

	// ReapStaleLocks clears every lock acquired before olderThan and returns
	// the affected locks.
	ReapStaleLocks(ctx context.Context, olderThan time.Time) ([]LockInfo, error)

	// ListTenants returns every tenant ID in ascending order.
	ListTenants(ctx context.Context) ([]string, error)

	// Close releases the repository's resources.
	Close() error
}
