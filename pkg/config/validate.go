package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateCompiler(&cfg.Compiler)...)
	errs = append(errs, validateCalls(&cfg.Calls)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateWatch(&cfg.Watch)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func oneOf(field, value string, allowed ...string) []FieldError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return []FieldError{{
		Field:   field,
		Message: fmt.Sprintf("invalid value %q: must be one of %s", value, strings.Join(allowed, ", ")),
	}}
}

func validSchedule(field, schedule string) []FieldError {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return []FieldError{{Field: field, Message: fmt.Sprintf("invalid cron schedule %q: %v", schedule, err)}}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.ListenAddress, err),
		})
	}
	if cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 || cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server", Message: "timeouts must not be negative"})
	}
	if cfg.CORS.MaxAge < 0 {
		errs = append(errs, FieldError{Field: "server.cors.max_age", Message: "must not be negative"})
	}

	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	errs := oneOf("store.backend", cfg.Backend, "memory", "sqlite", "postgres")

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "store.sqlite.path", Message: "path is required for the sqlite backend"})
		}
	case "postgres":
		if cfg.Postgres.URL == "" {
			errs = append(errs, FieldError{Field: "store.postgres.url", Message: "url is required for the postgres backend"})
		}
	}

	return errs
}

func validateCache(cfg *CacheConfig) []FieldError {
	errs := oneOf("cache.backend", cfg.Backend, "memory", "redis")

	if cfg.Memory.MaxEntries < 0 {
		errs = append(errs, FieldError{Field: "cache.memory.max_entries", Message: "must not be negative"})
	}
	if cfg.Backend == "redis" && cfg.Redis.URL == "" && (cfg.Redis.Port <= 0 || cfg.Redis.Port > 65535) {
		errs = append(errs, FieldError{Field: "cache.redis.port", Message: fmt.Sprintf("invalid port %d", cfg.Redis.Port)})
	}

	return errs
}

func validateCompiler(cfg *CompilerConfig) []FieldError {
	var errs []FieldError

	if cfg.ArtifactTTL <= 0 {
		errs = append(errs, FieldError{Field: "compiler.artifact_ttl", Message: "must be positive"})
	}
	if cfg.LockStaleAfter < 0 {
		errs = append(errs, FieldError{Field: "compiler.lock_stale_after", Message: "must not be negative"})
	}
	if cfg.LockStaleAfter > 0 {
		errs = append(errs, validSchedule("compiler.lock_reaper_schedule", cfg.LockReaperSchedule)...)
	}

	return errs
}

func validateCalls(cfg *CallsConfig) []FieldError {
	var errs []FieldError

	if cfg.StateTTL <= 0 {
		errs = append(errs, FieldError{Field: "calls.state_ttl", Message: "must be positive"})
	}
	if cfg.Confirmation.MinConfidence < 0 || cfg.Confirmation.MinConfidence > 1 {
		errs = append(errs, FieldError{Field: "calls.confirmation.min_confidence", Message: "must be between 0.0 and 1.0"})
	}
	for i, sev := range cfg.Confirmation.Severities {
		errs = append(errs, oneOf(fmt.Sprintf("calls.confirmation.severities[%d]", i), sev, "low", "medium", "high")...)
	}

	known := map[string]bool{"name": true, "phone": true, "address": true, "time": true}
	seen := make(map[string]bool)
	for i, f := range cfg.Booking.Fields {
		field := fmt.Sprintf("calls.booking.fields[%d]", i)
		if !known[f] {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("unknown booking field %q", f)})
		}
		if seen[f] {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("duplicate booking field %q", f)})
		}
		seen[f] = true
	}
	if !seen[cfg.Booking.RecoveryStep] {
		errs = append(errs, FieldError{
			Field:   "calls.booking.recovery_step",
			Message: fmt.Sprintf("recovery step %q is not one of the booking fields", cfg.Booking.RecoveryStep),
		})
	}

	rl := cfg.ReturnLane
	if rl.MaxTurnsBeforePush < 0 || rl.ForceActionAfterTurns < 0 {
		errs = append(errs, FieldError{Field: "calls.return_lane", Message: "turn thresholds must not be negative"})
	}
	errs = append(errs, oneOf("calls.return_lane.force_action", rl.ForceAction,
		"PUSH_BOOKING", "START_BOOKING", "ESCALATE", "TAKE_MESSAGE", "END_CALL")...)

	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}

	errs := oneOf("audit.backend", cfg.Backend, "memory", "sqlite")
	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{Field: "audit.retention_days", Message: "must not be negative"})
	}
	if cfg.RetentionDays > 0 {
		errs = append(errs, validSchedule("audit.prune_schedule", cfg.PruneSchedule)...)
	}

	return errs
}

func validateWatch(cfg *WatchConfig) []FieldError {
	var errs []FieldError

	if cfg.Enabled && cfg.Dir == "" {
		errs = append(errs, FieldError{Field: "watch.dir", Message: "dir is required when the watcher is enabled"})
	}
	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{Field: "watch.debounce", Message: "must not be negative"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	errs = append(errs, oneOf("telemetry.logging.level", cfg.Logging.Level, "debug", "info", "warn", "error")...)
	errs = append(errs, oneOf("telemetry.logging.format", cfg.Logging.Format, "json", "text")...)

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/'",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	errs = append(errs, oneOf("telemetry.tracing.sampler", cfg.Tracing.Sampler, "always", "never", "ratio")...)
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	return errs
}
