package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/switchboard/pkg/audit"
	"mercator-hq/switchboard/pkg/telemetry/metrics"
	"mercator-hq/switchboard/pkg/tenant"
)

// Job names.
const (
	JobAuditPrune = "audit_prune"
	JobLockReaper = "lock_reaper"
)

// AuditPruneJob prunes audit records on schedule.
func AuditPruneJob(p *audit.Pruner, schedule string) Job {
	return Job{
		Name:     JobAuditPrune,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			_, err := p.Prune(ctx)
			return err
		},
	}
}

// LockReaper clears compile locks held longer than a threshold.
type LockReaper struct {
	repo       tenant.Repository
	staleAfter time.Duration
	metrics    *metrics.Collector
	logger     *slog.Logger
	now        func() time.Time
}

// NewLockReaper creates a reaper for locks older than staleAfter.
func NewLockReaper(repo tenant.Repository, staleAfter time.Duration, collector *metrics.Collector, logger *slog.Logger) *LockReaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &LockReaper{
		repo:       repo,
		staleAfter: staleAfter,
		metrics:    collector,
		logger:     logger.With("component", "jobs.lock_reaper"),
		now:        time.Now,
	}
}

// Reap clears stale locks and returns them.
func (r *LockReaper) Reap(ctx context.Context) ([]tenant.LockInfo, error) {
	if r.staleAfter <= 0 {
		return nil, nil
	}

	cutoff := r.now().Add(-r.staleAfter)
	reaped, err := r.repo.ReapStaleLocks(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("reap compile locks older than %s: %w", r.staleAfter, err)
	}

	for _, l := range reaped {
		r.logger.WarnContext(ctx, "reaped stale compile lock",
			"tenant_id", l.TenantID,
			"locked_at", l.LockedAt,
			"held_for", r.now().Sub(l.LockedAt).Round(time.Second))
	}
	r.metrics.RecordLocksReaped(len(reaped))
	return reaped, nil
}

// Job returns the reaper as a scheduled job.
func (r *LockReaper) Job(schedule string) Job {
	return Job{
		Name:     JobLockReaper,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			_, err := r.Reap(ctx)
			return err
		},
	}
}
