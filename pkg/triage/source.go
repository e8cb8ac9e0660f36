package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"mercator-hq/switchboard/pkg/cache"
	"mercator-hq/switchboard/pkg/policy"
	"mercator-hq/switchboard/pkg/telemetry/metrics"
)

// ErrNoActiveArtifact is returned when a tenant has no live artifact, either
// because nothing was activated or because the artifact expired.
var ErrNoActiveArtifact = errors.New("no active policy artifact")

type loaded struct {
	key      string
	artifact *policy.Artifact
}

// ActiveSource resolves tenants' live artifacts. Each tenant's prepared
// artifact is memoized against the cache key the active pointer names and
// swapped atomically when the pointer moves.
type ActiveSource struct {
	store   cache.Store
	logger  *slog.Logger
	metrics *metrics.Collector

	mu    sync.Mutex
	slots map[string]*atomic.Pointer[loaded]
}

// NewActiveSource creates a source reading from store.
func NewActiveSource(store cache.Store, logger *slog.Logger, collector *metrics.Collector) *ActiveSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActiveSource{
		store:   store,
		logger:  logger.With("component", "triage.source"),
		metrics: collector,
		slots:   make(map[string]*atomic.Pointer[loaded]),
	}
}

func (s *ActiveSource) slot(tenantID string) *atomic.Pointer[loaded] {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.slots[tenantID]
	if !ok {
		p = &atomic.Pointer[loaded]{}
		s.slots[tenantID] = p
	}
	return p
}

// Active returns the tenant's live artifact. The returned artifact is shared
// and must not be modified.
func (s *ActiveSource) Active(ctx context.Context, tenantID string) (*policy.Artifact, error) {
	raw, err := s.store.Get(ctx, policy.ActivePointerKey(tenantID))
	if errors.Is(err, cache.ErrNotFound) {
		s.metrics.RecordArtifactLoad("missing")
		return nil, ErrNoActiveArtifact
	}
	if err != nil {
		s.metrics.RecordArtifactLoad("error")
		return nil, fmt.Errorf("failed to read active pointer for tenant %q: %w", tenantID, err)
	}
	key := strings.TrimSpace(string(raw))

	p := s.slot(tenantID)
	if cur := p.Load(); cur != nil && cur.key == key {
		s.metrics.RecordArtifactLoad("hit")
		return cur.artifact, nil
	}

	artifact, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}

	p.Store(&loaded{key: key, artifact: artifact})
	s.metrics.RecordArtifactLoad("load")
	s.logger.InfoContext(ctx, "loaded active artifact",
		"tenant_id", tenantID,
		"cache_key", key,
		"checksum", artifact.Checksum)
	return artifact, nil
}

// Load fetches, verifies and prepares the artifact stored under key.
func (s *ActiveSource) Load(ctx context.Context, key string) (*policy.Artifact, error) {
	return s.load(ctx, key)
}

func (s *ActiveSource) load(ctx context.Context, key string) (*policy.Artifact, error) {
	var artifact policy.Artifact
	err := cache.GetJSON(ctx, s.store, key, &artifact)
	if errors.Is(err, cache.ErrNotFound) {
		s.metrics.RecordArtifactLoad("missing")
		return nil, ErrNoActiveArtifact
	}
	if err != nil {
		s.metrics.RecordArtifactLoad("error")
		return nil, fmt.Errorf("failed to load artifact %q: %w", key, err)
	}

	ok, err := artifact.VerifyChecksum()
	if err != nil || !ok {
		s.metrics.RecordArtifactLoad("error")
		return nil, fmt.Errorf("artifact %q failed checksum verification", key)
	}

	for _, perr := range artifact.Prepare() {
		s.logger.WarnContext(ctx, "dropping rule from cached artifact",
			"cache_key", key,
			"error", perr)
	}
	return &artifact, nil
}
