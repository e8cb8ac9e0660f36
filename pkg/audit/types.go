package audit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind distinguishes turn records from compile records.
type Kind string

const (
	KindTurn    Kind = "turn"
	KindCompile Kind = "compile"
)

// ErrNotFound is returned by Get when no record has the requested ID.
var ErrNotFound = errors.New("audit record not found")

// Record is one audit entry.
type Record struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	TenantID  string    `json:"tenantId"`
	CallID    string    `json:"callId,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Turn fields
	Phase     string   `json:"phase,omitempty"`
	Route     string   `json:"route,omitempty"`
	RuleID    string   `json:"ruleId,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Overrides []string `json:"overrides,omitempty"`

	// Compile fields
	Checksum  string `json:"checksum,omitempty"`
	Conflicts int    `json:"conflicts,omitempty"`

	// Outcome is "ok", "handler_error", "contention", "invalid", etc.
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// Query filters records. Zero fields match everything.
type Query struct {
	Kind     Kind
	TenantID string
	CallID   string

	// Since is inclusive, Until is exclusive.
	Since *time.Time
	Until *time.Time

	// Limit caps the result; 0 means no limit. Results are ordered oldest
	// first.
	Limit int
}

// Matches reports whether r satisfies q.
func (q *Query) Matches(r *Record) bool {
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.TenantID != "" && r.TenantID != q.TenantID {
		return false
	}
	if q.CallID != "" && r.CallID != q.CallID {
		return false
	}
	if q.Since != nil && r.Timestamp.Before(*q.Since) {
		return false
	}
	if q.Until != nil && !r.Timestamp.Before(*q.Until) {
		return false
	}
	return true
}

// Store persists audit records.
type Store interface {
	Append(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Query(ctx context.Context, q *Query) ([]*Record, error)

	// DeleteBefore removes records older than cutoff and returns how many
	// were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// StorageError is a failure inside a storage backend.
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("audit storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}
