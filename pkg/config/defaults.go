package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultCORSMaxAge      = 300

	// Store defaults
	DefaultStoreBackend      = "sqlite"
	DefaultStoreSQLitePath   = "data/tenants.db"
	DefaultSQLiteBusyTimeout = 5 * time.Second
	DefaultRunMigrations     = true

	// Cache defaults
	DefaultCacheBackend         = "memory"
	DefaultCacheMaxEntries      = 100000
	DefaultCacheCleanupInterval = time.Minute
	DefaultRedisHost            = "127.0.0.1"
	DefaultRedisPort            = 6379
	DefaultRedisKeyPrefix       = "switchboard:"

	// Compiler defaults
	DefaultArtifactTTL        = 24 * time.Hour
	DefaultLockReaperSchedule = "*/5 * * * *"

	// Call defaults
	DefaultCallStateTTL          = 2 * time.Hour
	DefaultFallbackResponse      = "I'm here to help. Could you tell me a bit more about what you need?"
	DefaultGuardrailResponse     = "I'm not able to go into that on this call, but I can have someone follow up with you."
	DefaultConfirmMinConfidence  = 0.75
	DefaultBookingRecoveryStep   = "phone"
	DefaultMaxTurnsBeforePush    = 2
	DefaultForceActionAfterTurns = 4
	DefaultReturnLaneForceAction = "PUSH_BOOKING"

	// Audit defaults
	DefaultAuditEnabled       = true
	DefaultAuditBackend       = "sqlite"
	DefaultAuditSQLitePath    = "data/audit.db"
	DefaultAuditRetentionDays = 30
	DefaultAuditPruneSchedule = "0 3 * * *"

	// Watch defaults
	DefaultWatchDir      = "policies"
	DefaultWatchDebounce = 250 * time.Millisecond

	// Telemetry defaults
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultRedactPII          = true
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "switchboard"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingInsecure    = true
	DefaultTracingTimeout     = 10 * time.Second
	DefaultTracingServiceName = "switchboard"
)

var (
	// DefaultBookingFields is the slot-fill order.
	DefaultBookingFields = []string{"name", "phone", "address", "time"}

	// DefaultConfirmSeverities are the severities gated by confidence.
	DefaultConfirmSeverities = []string{"high"}

	DefaultCORSAllowedOrigins = []string{"*"}
	DefaultCORSAllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	DefaultCORSAllowedHeaders = []string{"Content-Type", "Authorization"}
)

// DefaultConfig returns a configuration with every default applied,
// including the boolean fields whose default is true. LoadConfig decodes
// YAML over this value so that an explicit "false" in a file is kept.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Store.Postgres.RunMigrations = DefaultRunMigrations
	cfg.Audit.Enabled = DefaultAuditEnabled
	cfg.Telemetry.Logging.RedactPII = DefaultRedactPII
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Tracing.Insecure = DefaultTracingInsecure
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued non-boolean field with its default.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if len(cfg.Server.CORS.AllowedOrigins) == 0 {
		cfg.Server.CORS.AllowedOrigins = append([]string(nil), DefaultCORSAllowedOrigins...)
	}
	if len(cfg.Server.CORS.AllowedMethods) == 0 {
		cfg.Server.CORS.AllowedMethods = append([]string(nil), DefaultCORSAllowedMethods...)
	}
	if len(cfg.Server.CORS.AllowedHeaders) == 0 {
		cfg.Server.CORS.AllowedHeaders = append([]string(nil), DefaultCORSAllowedHeaders...)
	}
	if cfg.Server.CORS.MaxAge == 0 {
		cfg.Server.CORS.MaxAge = DefaultCORSMaxAge
	}

	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = DefaultStoreSQLitePath
	}
	if cfg.Store.SQLite.BusyTimeout == 0 {
		cfg.Store.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	// Cache defaults
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = DefaultCacheBackend
	}
	if cfg.Cache.Memory.MaxEntries == 0 {
		cfg.Cache.Memory.MaxEntries = DefaultCacheMaxEntries
	}
	if cfg.Cache.Memory.CleanupInterval == 0 {
		cfg.Cache.Memory.CleanupInterval = DefaultCacheCleanupInterval
	}
	if cfg.Cache.Redis.URL == "" && cfg.Cache.Redis.Host == "" {
		cfg.Cache.Redis.Host = DefaultRedisHost
	}
	if cfg.Cache.Redis.Port == 0 {
		cfg.Cache.Redis.Port = DefaultRedisPort
	}
	if cfg.Cache.Redis.KeyPrefix == "" {
		cfg.Cache.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// Compiler defaults
	if cfg.Compiler.ArtifactTTL == 0 {
		cfg.Compiler.ArtifactTTL = DefaultArtifactTTL
	}
	if cfg.Compiler.LockReaperSchedule == "" {
		cfg.Compiler.LockReaperSchedule = DefaultLockReaperSchedule
	}

	// Call defaults
	if cfg.Calls.StateTTL == 0 {
		cfg.Calls.StateTTL = DefaultCallStateTTL
	}
	if cfg.Calls.FallbackResponse == "" {
		cfg.Calls.FallbackResponse = DefaultFallbackResponse
	}
	if cfg.Calls.GuardrailResponse == "" {
		cfg.Calls.GuardrailResponse = DefaultGuardrailResponse
	}
	if cfg.Calls.Confirmation.MinConfidence == 0 {
		cfg.Calls.Confirmation.MinConfidence = DefaultConfirmMinConfidence
	}
	if cfg.Calls.Confirmation.Severities == nil {
		cfg.Calls.Confirmation.Severities = append([]string(nil), DefaultConfirmSeverities...)
	}
	if len(cfg.Calls.Booking.Fields) == 0 {
		cfg.Calls.Booking.Fields = append([]string(nil), DefaultBookingFields...)
	}
	if cfg.Calls.Booking.RecoveryStep == "" {
		cfg.Calls.Booking.RecoveryStep = DefaultBookingRecoveryStep
	}
	if cfg.Calls.ReturnLane.MaxTurnsBeforePush == 0 {
		cfg.Calls.ReturnLane.MaxTurnsBeforePush = DefaultMaxTurnsBeforePush
	}
	if cfg.Calls.ReturnLane.ForceActionAfterTurns == 0 {
		cfg.Calls.ReturnLane.ForceActionAfterTurns = DefaultForceActionAfterTurns
	}
	if cfg.Calls.ReturnLane.ForceAction == "" {
		cfg.Calls.ReturnLane.ForceAction = DefaultReturnLaneForceAction
	}

	// Audit defaults
	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}
	if cfg.Audit.SQLitePath == "" {
		cfg.Audit.SQLitePath = DefaultAuditSQLitePath
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = DefaultAuditRetentionDays
	}
	if cfg.Audit.PruneSchedule == "" {
		cfg.Audit.PruneSchedule = DefaultAuditPruneSchedule
	}

	// Watch defaults
	if cfg.Watch.Dir == "" {
		cfg.Watch.Dir = DefaultWatchDir
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultWatchDebounce
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
}
