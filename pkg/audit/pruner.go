package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pruner deletes records older than the retention period.
type Pruner struct {
	store         Store
	retentionDays int
	logger        *slog.Logger
	now           func() time.Time
}

// NewPruner creates a pruner. A retention of 0 keeps records forever.
func NewPruner(store Store, retentionDays int, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		store:         store,
		retentionDays: retentionDays,
		logger:        logger.With("component", "audit.pruner"),
		now:           time.Now,
	}
}

// Prune removes expired records and returns how many were deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.retentionDays <= 0 {
		return 0, nil
	}

	cutoff := p.now().AddDate(0, 0, -p.retentionDays)
	deleted, err := p.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audit records older than %d days: %w", p.retentionDays, err)
	}

	if deleted > 0 {
		p.logger.InfoContext(ctx, "pruned audit records",
			"deleted_count", deleted,
			"retention_days", p.retentionDays,
			"cutoff", cutoff)
	}
	return deleted, nil
}
