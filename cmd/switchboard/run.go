package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/switchboard/pkg/audit"
	"mercator-hq/switchboard/pkg/cli"
	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/jobs"
	"mercator-hq/switchboard/pkg/policy/watch"
	"mercator-hq/switchboard/pkg/server"
	"mercator-hq/switchboard/pkg/telemetry/health"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	watch         bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Switchboard API server",
	Long: `Start the Switchboard HTTP API with the specified configuration.

The server exposes the compile and turn endpoints, runs the scheduled audit
pruning and stale-lock reaper jobs, and, when enabled, watches the policy
directory and recompiles a tenant whenever its file is saved.

Examples:
  # Start with default config
  switchboard run

  # Start with custom config
  switchboard run --config /etc/switchboard/config.yaml

  # Override listen address and enable the policy watcher
  switchboard run --listen 0.0.0.0:8080 --watch

  # Validate config without starting server
  switchboard run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", false, "watch the policy directory for changes")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if runFlags.watch {
		cfg.Watch.Enabled = true
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger, err := newLogger(&cfg.Telemetry.Logging)
	if err != nil {
		return err
	}

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	printBanner(cmd, cfg)

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	st, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed to close components", "error", err)
		}
	}()

	checker := health.New(0)
	st.probes(checker)

	scheduler, err := newScheduler(cfg, st, logger)
	if err != nil {
		return err
	}
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer scheduler.Stop()

	if cfg.Watch.Enabled {
		w, err := startWatcher(ctx, cfg, st, logger)
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	srv := server.New(cfg, server.Deps{
		Compiler:  st.compiler,
		Calls:     st.machine,
		Artifacts: st.source,
		Audit:     st.auditStore,
		Health:    checker,
		Metrics:   st.metrics,
		Logger:    logger,
		Build:     server.BuildInfo{Version: Version, Commit: GitCommit, BuildTime: BuildDate},
	})
	return srv.Start(ctx)
}

// newScheduler registers the background jobs the configuration enables.
func newScheduler(cfg *config.Config, st *stack, logger *slog.Logger) (*jobs.Scheduler, error) {
	scheduler := jobs.NewScheduler(logger)

	if st.auditStore != nil && cfg.Audit.RetentionDays > 0 {
		pruner := audit.NewPruner(st.auditStore, cfg.Audit.RetentionDays, logger)
		if err := scheduler.Add(jobs.AuditPruneJob(pruner, cfg.Audit.PruneSchedule)); err != nil {
			return nil, err
		}
	}

	if cfg.Compiler.LockStaleAfter > 0 {
		reaper := jobs.NewLockReaper(st.repo, cfg.Compiler.LockStaleAfter, st.metrics, logger)
		if err := scheduler.Add(reaper.Job(cfg.Compiler.LockReaperSchedule)); err != nil {
			return nil, err
		}
	}

	return scheduler, nil
}

// startWatcher compiles every file in the policy directory once, then
// watches it in the background.
func startWatcher(ctx context.Context, cfg *config.Config, st *stack, logger *slog.Logger) (*watch.Watcher, error) {
	w, err := watch.New(watch.Config{Dir: cfg.Watch.Dir, Debounce: cfg.Watch.Debounce}, st.compiler, logger)
	if err != nil {
		return nil, err
	}

	if err := w.Sync(ctx); err != nil {
		logger.Warn("initial policy sync incomplete", "dir", cfg.Watch.Dir, "error", err)
	}

	go func() {
		if err := w.Watch(ctx); err != nil {
			logger.Error("policy watcher stopped", "error", err)
		}
	}()
	return w, nil
}

func printBanner(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Switchboard v%s\n", Version)
	fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)
	fmt.Fprintln(out, "✓ Configuration loaded")

	slog.Debug("backends",
		"store", cfg.Store.Backend,
		"cache", cfg.Cache.Backend,
		"audit", cfg.Audit.Enabled,
		"watch", cfg.Watch.Enabled)
}
