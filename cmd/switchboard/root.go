package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/switchboard/pkg/cli"
	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "switchboard",
	Short: "Switchboard - call-turn triage and tenant policy compilation",
	Long: `Switchboard decides, for every caller utterance on a live phone call, which
handling path the voice agent takes: scripted answer, booking, transfer to a
human, message-taking or hangup.

It also compiles each tenant's routing rules into a versioned, checksummed
artifact, detects and resolves rule conflicts, and publishes the artifact to a
cache where live calls read it.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads the process configuration with environment overrides.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return config.GetConfig(), nil
}

// newLogger builds the process logger and installs it as the slog default.
func newLogger(cfg *config.LoggingConfig) (*slog.Logger, error) {
	level := cfg.Level
	if verbose {
		level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:     level,
		Format:    cfg.Format,
		AddSource: cfg.AddSource,
		RedactPII: cfg.RedactPII,
		Writer:    os.Stderr,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
