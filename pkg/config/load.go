package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SWITCHBOARD_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. An empty path yields the defaults. Environment variables are not
// consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Variables are read from the process
// environment and from a .env file in the working directory when one exists;
// the process environment wins. Names follow SWITCHBOARD_SECTION_FIELD
// (e.g. SWITCHBOARD_SERVER_LISTEN_ADDRESS).
//
// The loading sequence is:
// 1. Load .env (if present)
// 2. Load YAML from file and apply defaults
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envFloat(name string, dst *float64) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func envList(name string, dst *[]string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst = out
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envBool("SERVER_CORS_ENABLED", &cfg.Server.CORS.Enabled)
	envList("SERVER_CORS_ALLOWED_ORIGINS", &cfg.Server.CORS.AllowedOrigins)

	// Store overrides
	envString("STORE_BACKEND", &cfg.Store.Backend)
	envString("STORE_SQLITE_PATH", &cfg.Store.SQLite.Path)
	envString("STORE_POSTGRES_URL", &cfg.Store.Postgres.URL)
	envBool("STORE_POSTGRES_RUN_MIGRATIONS", &cfg.Store.Postgres.RunMigrations)

	// Cache overrides
	envString("CACHE_BACKEND", &cfg.Cache.Backend)
	envInt("CACHE_MEMORY_MAX_ENTRIES", &cfg.Cache.Memory.MaxEntries)
	envString("CACHE_REDIS_URL", &cfg.Cache.Redis.URL)
	envString("CACHE_REDIS_HOST", &cfg.Cache.Redis.Host)
	envInt("CACHE_REDIS_PORT", &cfg.Cache.Redis.Port)
	envString("CACHE_REDIS_PASSWORD", &cfg.Cache.Redis.Password)
	envInt("CACHE_REDIS_DATABASE", &cfg.Cache.Redis.Database)
	envString("CACHE_REDIS_KEY_PREFIX", &cfg.Cache.Redis.KeyPrefix)

	// Compiler overrides
	envDuration("COMPILER_ARTIFACT_TTL", &cfg.Compiler.ArtifactTTL)
	envDuration("COMPILER_LOCK_STALE_AFTER", &cfg.Compiler.LockStaleAfter)
	envString("COMPILER_LOCK_REAPER_SCHEDULE", &cfg.Compiler.LockReaperSchedule)

	// Call overrides
	envDuration("CALLS_STATE_TTL", &cfg.Calls.StateTTL)
	envString("CALLS_FALLBACK_RESPONSE", &cfg.Calls.FallbackResponse)
	envString("CALLS_GUARDRAIL_RESPONSE", &cfg.Calls.GuardrailResponse)
	envFloat("CALLS_CONFIRMATION_MIN_CONFIDENCE", &cfg.Calls.Confirmation.MinConfidence)
	envList("CALLS_CONFIRMATION_SEVERITIES", &cfg.Calls.Confirmation.Severities)
	envList("CALLS_BOOKING_FIELDS", &cfg.Calls.Booking.Fields)
	envString("CALLS_BOOKING_RECOVERY_STEP", &cfg.Calls.Booking.RecoveryStep)
	envInt("CALLS_RETURN_LANE_MAX_TURNS_BEFORE_PUSH", &cfg.Calls.ReturnLane.MaxTurnsBeforePush)
	envInt("CALLS_RETURN_LANE_FORCE_ACTION_AFTER_TURNS", &cfg.Calls.ReturnLane.ForceActionAfterTurns)
	envString("CALLS_RETURN_LANE_FORCE_ACTION", &cfg.Calls.ReturnLane.ForceAction)

	// Audit overrides
	envBool("AUDIT_ENABLED", &cfg.Audit.Enabled)
	envString("AUDIT_BACKEND", &cfg.Audit.Backend)
	envString("AUDIT_SQLITE_PATH", &cfg.Audit.SQLitePath)
	envInt("AUDIT_RETENTION_DAYS", &cfg.Audit.RetentionDays)
	envString("AUDIT_PRUNE_SCHEDULE", &cfg.Audit.PruneSchedule)

	// Watch overrides
	envBool("WATCH_ENABLED", &cfg.Watch.Enabled)
	envString("WATCH_DIR", &cfg.Watch.Dir)
	envDuration("WATCH_DEBOUNCE", &cfg.Watch.Debounce)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_LOGGING_REDACT_PII", &cfg.Telemetry.Logging.RedactPII)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envString("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	envFloat("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)
}
