package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config contains configuration for the process logger.
type Config struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string

	// Format is the output format ("json", "text").
	Format string

	// AddSource includes file and line number in logs.
	AddSource bool

	// RedactPII masks caller PII in messages and string attributes.
	RedactPII bool

	// Writer is the output writer (defaults to os.Stdout).
	Writer io.Writer
}

// New creates a logger from cfg.
func New(cfg Config) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var base slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json", "":
		base = slog.NewJSONHandler(writer, opts)
	case "text":
		base = slog.NewTextHandler(writer, opts)
	default:
		return nil, fmt.Errorf("invalid log format: unknown log format: %s", cfg.Format)
	}

	var redactor *Redactor
	if cfg.RedactPII {
		redactor = NewRedactor()
	}

	return slog.New(NewHandler(base, redactor)), nil
}

// ParseLevel parses a log level string into slog.Level.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", levelStr)
	}
}
