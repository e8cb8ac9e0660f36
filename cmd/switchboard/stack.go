package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mercator-hq/switchboard/pkg/audit"
	"mercator-hq/switchboard/pkg/cache"
	"mercator-hq/switchboard/pkg/callflow"
	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/policy/compiler"
	"mercator-hq/switchboard/pkg/telemetry/health"
	"mercator-hq/switchboard/pkg/telemetry/metrics"
	"mercator-hq/switchboard/pkg/telemetry/tracing"
	"mercator-hq/switchboard/pkg/tenant"
	"mercator-hq/switchboard/pkg/triage"
)

// stack holds every long-lived component, wired from configuration.
type stack struct {
	cfg    *config.Config
	logger *slog.Logger

	repo       tenant.Repository
	cache      cache.Store
	metrics    *metrics.Collector
	tracer     *tracing.Tracer
	auditStore audit.Store
	recorder   *audit.Recorder

	compiler *compiler.Compiler
	source   *triage.ActiveSource
	machine  *callflow.Machine

	closers []func() error
}

// openStack connects the configured backends. On error everything opened
// so far is closed.
func openStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (s *stack, err error) {
	s = &stack{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if s.tracer, err = tracing.New(&cfg.Telemetry.Tracing); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.closers = append(s.closers, func() error { return s.tracer.Shutdown(context.Background()) })

	s.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	if s.repo, err = openRepository(ctx, &cfg.Store, logger); err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.repo.Close)

	if s.cache, err = openCache(&cfg.Cache); err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.cache.Close)

	if cfg.Audit.Enabled {
		if s.auditStore, err = openAudit(&cfg.Audit, logger); err != nil {
			return nil, err
		}
		s.closers = append(s.closers, s.auditStore.Close)
		s.recorder = audit.NewRecorder(s.auditStore, audit.RecorderConfig{}, logger)
		s.closers = append(s.closers, s.recorder.Close)
	}

	s.compiler = compiler.New(s.repo, s.cache, compiler.Options{
		ArtifactTTL: cfg.Compiler.ArtifactTTL,
		Logger:      logger,
		Metrics:     s.metrics,
		Tracer:      s.tracer,
		Audit:       s.recorder,
	})
	s.source = triage.NewActiveSource(s.cache, logger, s.metrics)
	s.machine = callflow.NewMachine(s.source, callflow.NewStateStore(s.cache, cfg.Calls.StateTTL), callflow.Options{
		Calls:   cfg.Calls,
		Logger:  logger,
		Metrics: s.metrics,
		Tracer:  s.tracer,
		Audit:   s.recorder,
	})

	return s, nil
}

// probes registers a readiness probe per backend.
func (s *stack) probes(checker *health.Checker) {
	checker.Register("tenant_store", func(ctx context.Context) error {
		_, err := s.repo.ListTenants(ctx)
		return err
	})
	checker.Register("cache", func(ctx context.Context) error {
		_, err := s.cache.Get(ctx, "health:probe")
		if errors.Is(err, cache.ErrNotFound) {
			return nil
		}
		return err
	})
	if s.auditStore != nil {
		checker.Register("audit", s.auditStore.Ping)
	}
}

// Close releases components in reverse order of opening. The recorder is
// drained before its store closes.
func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func openRepository(ctx context.Context, cfg *config.StoreConfig, logger *slog.Logger) (tenant.Repository, error) {
	switch cfg.Backend {
	case "memory":
		return tenant.NewMemoryRepository(), nil
	case "sqlite":
		repo, err := tenant.NewSQLiteRepository(tenant.SQLiteConfig{
			Path:        cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open tenant store: %w", err)
		}
		return repo, nil
	case "postgres":
		if cfg.Postgres.RunMigrations {
			logger.Info("applying tenant store migrations")
			if err := tenant.RunMigrations(cfg.Postgres.URL); err != nil {
				return nil, err
			}
		}
		repo, err := tenant.NewPostgresRepository(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open tenant store: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}

func openCache(cfg *config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "memory":
		return cache.NewMemoryStore(cfg.Memory.MaxEntries, cfg.Memory.CleanupInterval), nil
	case "redis":
		store, err := cache.NewRedisStore(cache.RedisConfig{
			URL:       cfg.Redis.URL,
			Host:      cfg.Redis.Host,
			Port:      cfg.Redis.Port,
			Password:  cfg.Redis.Password,
			Database:  cfg.Redis.Database,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}

func openAudit(cfg *config.AuditConfig, logger *slog.Logger) (audit.Store, error) {
	switch cfg.Backend {
	case "memory":
		return audit.NewMemoryStore(), nil
	case "sqlite":
		store, err := audit.NewSQLiteStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported audit backend: %s", cfg.Backend)
	}
}
