package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/switchboard/pkg/audit"
	"mercator-hq/switchboard/pkg/cache"
	"mercator-hq/switchboard/pkg/policy"
	"mercator-hq/switchboard/pkg/telemetry/metrics"
	"mercator-hq/switchboard/pkg/telemetry/tracing"
	"mercator-hq/switchboard/pkg/tenant"
)

// DefaultArtifactTTL is how long published artifacts live in the cache.
const DefaultArtifactTTL = 24 * time.Hour

// ErrArtifactNotFound is returned by Activate when the cache no longer
// holds the requested artifact.
var ErrArtifactNotFound = errors.New("artifact not found")

// ErrForeignArtifact is returned by Activate for a cache key that belongs to
// another tenant.
var ErrForeignArtifact = errors.New("artifact belongs to another tenant")

// Options configures a Compiler. Every field is optional.
type Options struct {
	// ArtifactTTL defaults to DefaultArtifactTTL.
	ArtifactTTL time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Collector
	Tracer  *tracing.Tracer
	Audit   *audit.Recorder
}

// Result is the outcome of a successful compile.
type Result struct {
	Artifact  *policy.Artifact
	Checksum  string
	CacheKey  string
	Conflicts []policy.ConflictRecord

	// Warnings holds dropped-rule ConfigurationErrors and best-effort
	// DependencyErrors.
	Warnings []error

	// Published is false when the artifact could not be written to the
	// cache; Activated is true when the active pointer was moved.
	Published bool
	Activated bool
}

// Compiler compiles and publishes tenant policies.
type Compiler struct {
	repo    tenant.Repository
	store   cache.Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer
	audit   *audit.Recorder

	now      func() time.Time
	newToken func() string
}

// New creates a compiler over a tenant repository and a cache.
func New(repo tenant.Repository, store cache.Store, opts Options) *Compiler {
	if opts.ArtifactTTL <= 0 {
		opts.ArtifactTTL = DefaultArtifactTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Compiler{
		repo:     repo,
		store:    store,
		ttl:      opts.ArtifactTTL,
		logger:   opts.Logger.With("component", "compiler"),
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		audit:    opts.Audit,
		now:      time.Now,
		newToken: func() string { return uuid.New().String() },
	}
}

// Compile builds, checksums and publishes the tenant's artifact. raw is
// never modified.
//
// It returns a *policy.ValidationError for structurally invalid policies
// and a *policy.ContentionError when another compile holds the tenant's
// lock. Cache and metadata failures do not fail the compile; they are
// returned in Result.Warnings.
func (c *Compiler) Compile(ctx context.Context, tenantID string, raw *policy.RawPolicy) (result *Result, err error) {
	start := c.now()
	ctx, span := c.tracer.Start(ctx, "policy.compile", attribute.String("tenant_id", tenantID))
	defer func() {
		tracing.SetStatus(span, err)
		span.End()
	}()

	if err := policy.Validate(tenantID, raw); err != nil {
		c.finish(ctx, tenantID, "invalid", start, nil, err)
		return nil, err
	}

	token := c.newToken()
	if err := c.repo.AcquireCompileLock(ctx, tenantID, token, c.now()); err != nil {
		if errors.Is(err, tenant.ErrLockHeld) {
			cerr := &policy.ContentionError{TenantID: tenantID, Cause: err}
			c.logger.WarnContext(ctx, "compile rejected, lock held", "tenant_id", tenantID)
			c.finish(ctx, tenantID, "contention", start, nil, cerr)
			return nil, cerr
		}
		err = fmt.Errorf("failed to acquire compile lock for tenant %q: %w", tenantID, err)
		c.finish(ctx, tenantID, "error", start, nil, err)
		return nil, err
	}
	defer c.release(ctx, tenantID, token)

	result, err = c.build(ctx, tenantID, raw)
	if err != nil {
		c.finish(ctx, tenantID, "error", start, nil, err)
		return nil, err
	}

	c.publish(ctx, result)
	c.recordMetadata(ctx, tenantID, result)

	span.SetAttributes(
		attribute.String("checksum", result.Checksum),
		attribute.Int("conflicts", len(result.Conflicts)),
		attribute.Int("warnings", len(result.Warnings)),
	)
	c.finish(ctx, tenantID, "success", start, result, nil)
	return result, nil
}

// build runs the pure part of a compile: ordering, conflict resolution,
// artifact assembly and checksum.
func (c *Compiler) build(ctx context.Context, tenantID string, raw *policy.RawPolicy) (*Result, error) {
	clone := raw.Clone()
	sortFamilies(clone)

	conflicts := detectConflicts(clone)
	resolveConflicts(clone, conflicts)
	for _, conflict := range conflicts {
		c.logger.InfoContext(ctx, "rule conflict resolved",
			"tenant_id", tenantID,
			"type", conflict.Type,
			"rule_a", conflict.RuleIDA,
			"rule_b", conflict.RuleIDB,
			"overlap", conflict.OverlapScore,
			"resolution", conflict.Resolution)
	}

	artifact, warnings := buildArtifact(tenantID, clone)
	for _, w := range warnings {
		var cerr *policy.ConfigurationError
		ruleID := ""
		if errors.As(w, &cerr) {
			ruleID = cerr.RuleID
		}
		c.logger.WarnContext(ctx, "dropping rule", "tenant_id", tenantID, "rule_id", ruleID, "error", w)
	}

	checksum, err := artifact.ComputeChecksum()
	if err != nil {
		return nil, fmt.Errorf("failed to checksum artifact for tenant %q: %w", tenantID, err)
	}
	artifact.Checksum = checksum

	return &Result{
		Artifact:  artifact,
		Checksum:  checksum,
		CacheKey:  artifact.CacheKey(),
		Conflicts: conflicts,
		Warnings:  warnings,
	}, nil
}

// publish writes the artifact and, for active policies, the active
// pointer. The pointer is only moved once the artifact itself is stored.
func (c *Compiler) publish(ctx context.Context, res *Result) {
	if err := cache.SetJSON(ctx, c.store, res.CacheKey, res.Artifact, c.ttl); err != nil {
		c.dependencyFailure(ctx, res, "publish_artifact", err)
		return
	}
	res.Published = true

	if res.Artifact.Status != policy.StatusActive {
		return
	}

	if err := c.store.Set(ctx, policy.ActivePointerKey(res.Artifact.TenantID), []byte(res.CacheKey), c.ttl); err != nil {
		c.dependencyFailure(ctx, res, "publish_active_pointer", err)
		return
	}
	res.Activated = true
}

func (c *Compiler) recordMetadata(ctx context.Context, tenantID string, res *Result) {
	meta := tenant.CompileMetadata{
		Version:    res.Artifact.Version,
		Checksum:   res.Checksum,
		CacheKey:   res.CacheKey,
		CompiledAt: c.now().UTC(),
		Conflicts:  len(res.Conflicts),
	}
	if err := c.repo.UpdateCompileMetadata(ctx, tenantID, meta); err != nil {
		c.dependencyFailure(ctx, res, "update_metadata", err)
	}
}

func (c *Compiler) dependencyFailure(ctx context.Context, res *Result, op string, err error) {
	derr := &policy.DependencyError{Operation: op, Cause: err}
	res.Warnings = append(res.Warnings, derr)
	c.metrics.RecordPublishFailure(op)
	c.logger.ErrorContext(ctx, "best-effort compile step failed",
		"tenant_id", res.Artifact.TenantID,
		"operation", op,
		"cache_key", res.CacheKey,
		"error", err)
}

// release clears the lock. It runs on a context detached from the
// caller's cancellation so that a cancelled request still unlocks.
func (c *Compiler) release(ctx context.Context, tenantID, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := c.repo.ReleaseCompileLock(ctx, tenantID, token); err != nil {
		c.logger.ErrorContext(ctx, "failed to release compile lock",
			"tenant_id", tenantID,
			"error", err)
	}
}

func (c *Compiler) finish(ctx context.Context, tenantID, status string, start time.Time, res *Result, err error) {
	conflicts, dropped := 0, 0
	rec := audit.Record{Kind: audit.KindCompile, TenantID: tenantID, Outcome: status}
	if res != nil {
		conflicts = len(res.Conflicts)
		for _, w := range res.Warnings {
			var cerr *policy.ConfigurationError
			if errors.As(w, &cerr) {
				dropped++
			}
		}
		rec.Checksum = res.Checksum
		rec.Conflicts = conflicts
	}
	if err != nil {
		rec.Detail = err.Error()
	}

	c.metrics.RecordCompile(status, c.now().Sub(start), conflicts, dropped)
	c.audit.Record(ctx, rec)
}

// SaveAndCompile validates and stores the raw policy, then compiles it.
func (c *Compiler) SaveAndCompile(ctx context.Context, tenantID string, raw *policy.RawPolicy) (*Result, error) {
	if err := policy.Validate(tenantID, raw); err != nil {
		return nil, err
	}
	if err := c.repo.SavePolicy(ctx, tenantID, raw); err != nil {
		return nil, fmt.Errorf("failed to save policy for tenant %q: %w", tenantID, err)
	}
	return c.Compile(ctx, tenantID, raw)
}

// CompileSaved recompiles the tenant's stored policy.
func (c *Compiler) CompileSaved(ctx context.Context, tenantID string) (*Result, error) {
	raw, err := c.repo.LoadPolicy(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return c.Compile(ctx, tenantID, raw)
}

// Activate points the tenant's active pointer at an already published
// artifact, for staged activation of draft compiles and for rollbacks.
func (c *Compiler) Activate(ctx context.Context, tenantID, cacheKey string) (err error) {
	ctx, span := c.tracer.Start(ctx, "policy.activate",
		attribute.String("tenant_id", tenantID),
		attribute.String("cache_key", cacheKey))
	defer func() {
		tracing.SetStatus(span, err)
		span.End()
	}()

	if !strings.HasPrefix(cacheKey, policy.ArtifactKeyPrefix(tenantID)) {
		return fmt.Errorf("%w: cache key %q, tenant %q", ErrForeignArtifact, cacheKey, tenantID)
	}

	var artifact policy.Artifact
	if err := cache.GetJSON(ctx, c.store, cacheKey, &artifact); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrArtifactNotFound, cacheKey)
		}
		return fmt.Errorf("failed to read artifact %q: %w", cacheKey, err)
	}
	if ok, err := artifact.VerifyChecksum(); err != nil || !ok {
		return fmt.Errorf("artifact %q failed checksum verification", cacheKey)
	}

	if err := c.store.Set(ctx, policy.ActivePointerKey(tenantID), []byte(cacheKey), c.ttl); err != nil {
		return &policy.DependencyError{Operation: "publish_active_pointer", Cause: err}
	}

	c.logger.InfoContext(ctx, "artifact activated",
		"tenant_id", tenantID,
		"cache_key", cacheKey,
		"version", artifact.Version)
	return nil
}
