package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8085"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Rules defaults
	DefaultRulesMode        = "file"
	DefaultRulesPath        = "./rules"
	DefaultRulesWatch       = false
	DefaultDebounceInterval = 100 * time.Millisecond
	DefaultMaxFileSize      = int64(1048576) // 1MB

	// Git defaults
	DefaultGitBranch       = "main"
	DefaultGitAuthType     = "none"
	DefaultGitPollInterval = 30 * time.Second
	DefaultGitPollTimeout  = 10 * time.Second
	DefaultGitCloneDepth   = 1

	// Pipeline defaults
	DefaultStaleScanSchedule = "@every 10m"
	DefaultMaxStageAge       = 24 * time.Hour

	// Registry defaults
	DefaultRegistryTTL     = 4 * time.Hour
	DefaultHardExpiry      = 4 * time.Hour
	DefaultSpinUpBudget    = 10 * time.Minute
	DefaultSweepSchedule   = "@every 60s"
	DefaultRegistryBackend = "memory"

	// Limiter defaults
	DefaultRefillInterval  = time.Minute
	DefaultMaxIdleTime     = time.Hour
	DefaultCleanupInterval = 10 * time.Minute

	// Redaction defaults
	DefaultEnvironment = "production"

	// Audit defaults
	DefaultAuditBackend           = "sqlite"
	DefaultAuditSQLitePath        = "data/audit.db"
	DefaultRecorderMode           = "sync"
	DefaultSQLiteMaxOpenConns     = 10
	DefaultSQLiteMaxIdleConns     = 5
	DefaultSQLiteBusyTimeout      = 5 * time.Second
	DefaultRecorderAsyncBuffer    = 1000
	DefaultRecorderWriteTimeout   = 5 * time.Second
	DefaultRetentionDays          = 90
	DefaultRetentionPruneSchedule = "0 3 * * *"
	DefaultRetentionArchivePath   = "data/archives/"
	DefaultQueryDefaultLimit      = 100
	DefaultQueryMaxLimit          = 10000
	DefaultQueryTimeout           = 30 * time.Second
	DefaultExportMaxSize          = 1000000
	DefaultPostgresPort           = 5432
	DefaultPostgresSSLMode        = "require"

	// Registry storage defaults
	DefaultRegistrySQLitePath = "data/registry.db"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "ganymede"
	DefaultMetricsSubsystem   = "engine"
	DefaultLivenessPath       = "/health"
	DefaultReadinessPath      = "/ready"
	DefaultVersionPath        = "/version"
	DefaultHealthCheckTimeout = 5 * time.Second

	// Security defaults
	DefaultTLSMinVersion = "1.3"
	DefaultAuthHeader    = "X-API-Key"
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyRulesDefaults(&cfg.Rules)
	applyPipelineDefaults(&cfg.Pipeline)
	applyRegistryDefaults(&cfg.Registry)
	applyLimiterDefaults(&cfg.Limiter)

	if cfg.Redaction.Environment == "" {
		cfg.Redaction.Environment = DefaultEnvironment
	}

	applyAuditDefaults(&cfg.Audit)
	applyTelemetryDefaults(&cfg.Telemetry)
	applySecurityDefaults(&cfg.Security)
}

// applyServerDefaults applies default values to server configuration.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
}

// applyRulesDefaults applies default values to rules configuration.
func applyRulesDefaults(cfg *RulesConfig) {
	if cfg.Mode == "" {
		cfg.Mode = DefaultRulesMode
	}
	if cfg.Path == "" {
		cfg.Path = DefaultRulesPath
	}
	if cfg.DebounceInterval == 0 {
		cfg.DebounceInterval = DefaultDebounceInterval
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}

	// Git defaults
	if cfg.Git.Branch == "" {
		cfg.Git.Branch = DefaultGitBranch
	}
	if cfg.Git.Auth.Type == "" {
		cfg.Git.Auth.Type = DefaultGitAuthType
	}
	if cfg.Git.Poll.Interval == 0 {
		cfg.Git.Poll.Interval = DefaultGitPollInterval
	}
	if cfg.Git.Poll.Timeout == 0 {
		cfg.Git.Poll.Timeout = DefaultGitPollTimeout
	}
	if cfg.Git.Clone.Depth == 0 {
		cfg.Git.Clone.Depth = DefaultGitCloneDepth
	}
}

// applyPipelineDefaults applies default values to pipeline configuration.
func applyPipelineDefaults(cfg *PipelineConfig) {
	if cfg.StaleScanSchedule == "" {
		cfg.StaleScanSchedule = DefaultStaleScanSchedule
	}
	if cfg.MaxStageAge == 0 {
		cfg.MaxStageAge = DefaultMaxStageAge
	}
}

// applyRegistryDefaults applies default values to registry configuration.
func applyRegistryDefaults(cfg *RegistryConfig) {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultRegistryTTL
	}
	if cfg.HardExpiry == 0 {
		cfg.HardExpiry = DefaultHardExpiry
	}
	if cfg.SpinUpBudget == 0 {
		cfg.SpinUpBudget = DefaultSpinUpBudget
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = DefaultSweepSchedule
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultRegistryBackend
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultRegistrySQLitePath
	}
	applySQLiteDefaults(&cfg.Storage.SQLite)
}

// applyLimiterDefaults applies default values to limiter configuration.
func applyLimiterDefaults(cfg *LimiterConfig) {
	if cfg.DefaultRefillInterval == 0 {
		cfg.DefaultRefillInterval = DefaultRefillInterval
	}
	if cfg.MaxIdleTime == 0 {
		cfg.MaxIdleTime = DefaultMaxIdleTime
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	// DefaultCapacity stays at zero: actions without a rate limit rule
	// are unlimited unless the operator opts in.
}

// applyAuditDefaults applies default values to audit configuration.
func applyAuditDefaults(cfg *AuditConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultAuditBackend
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DefaultAuditSQLitePath
	}
	applySQLiteDefaults(&cfg.SQLite)

	// Postgres defaults
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = DefaultPostgresPort
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = DefaultPostgresSSLMode
	}

	// Recorder defaults. Sync mode keeps every decision durable before
	// the evaluation returns; async is opt-in.
	if cfg.Recorder.Mode == "" {
		cfg.Recorder.Mode = DefaultRecorderMode
	}
	if cfg.Recorder.AsyncBuffer == 0 {
		cfg.Recorder.AsyncBuffer = DefaultRecorderAsyncBuffer
	}
	if cfg.Recorder.WriteTimeout == 0 {
		cfg.Recorder.WriteTimeout = DefaultRecorderWriteTimeout
	}

	// Retention defaults
	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = DefaultRetentionDays
	}
	if cfg.Retention.PruneSchedule == "" {
		cfg.Retention.PruneSchedule = DefaultRetentionPruneSchedule
	}
	if cfg.Retention.ArchivePath == "" {
		cfg.Retention.ArchivePath = DefaultRetentionArchivePath
	}

	// Query defaults
	if cfg.Query.DefaultLimit == 0 {
		cfg.Query.DefaultLimit = DefaultQueryDefaultLimit
	}
	if cfg.Query.MaxLimit == 0 {
		cfg.Query.MaxLimit = DefaultQueryMaxLimit
	}
	if cfg.Query.Timeout == 0 {
		cfg.Query.Timeout = DefaultQueryTimeout
	}

	// Export defaults
	if !cfg.Export.JSONPretty {
		cfg.Export.JSONPretty = true
	}
	if !cfg.Export.CSVIncludeHeader {
		cfg.Export.CSVIncludeHeader = true
	}
	if cfg.Export.MaxExportSize == 0 {
		cfg.Export.MaxExportSize = DefaultExportMaxSize
	}
}

// applySQLiteDefaults applies default values to a SQLite configuration.
func applySQLiteDefaults(cfg *SQLiteConfig) {
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if !cfg.WALMode {
		cfg.WALMode = true
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = DefaultSQLiteBusyTimeout
	}
}

// applyTelemetryDefaults applies default values to telemetry configuration.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if !cfg.Metrics.Enabled {
		cfg.Metrics.Enabled = true
	}
	if !cfg.Health.Enabled {
		cfg.Health.Enabled = true
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if cfg.Health.LivenessPath == "" {
		cfg.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Health.ReadinessPath == "" {
		cfg.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Health.VersionPath == "" {
		cfg.Health.VersionPath = DefaultVersionPath
	}
	if cfg.Health.CheckTimeout == 0 {
		cfg.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}

// applySecurityDefaults applies default values to security configuration.
func applySecurityDefaults(cfg *SecurityConfig) {
	if cfg.TLS.MinVersion == "" {
		cfg.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.Authentication.HeaderName == "" {
		cfg.Authentication.HeaderName = DefaultAuthHeader
	}
	// TLS and authentication enabled default to false (zero values).
}
