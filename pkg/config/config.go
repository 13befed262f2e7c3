package config

import "time"

// Config is the root configuration structure for Ganymede.
// It contains all configuration sections for the API server, rule
// loading, the pipeline evaluator, the resource registry, rate
// limiting, error redaction, audit storage, telemetry, and security.
type Config struct {
	// Server contains HTTP API server configuration including listen
	// address, timeouts, and header limits.
	Server ServerConfig `yaml:"server"`

	// Rules contains configuration for rule loading including the rule
	// source (file or git), watch mode, and git repository settings.
	Rules RulesConfig `yaml:"rules"`

	// Pipeline contains configuration for the pipeline evaluator
	// including stale-run detection.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Registry contains configuration for the ephemeral resource
	// registry including TTLs, sweep scheduling, and storage.
	Registry RegistryConfig `yaml:"registry"`

	// Limiter contains fallback token bucket settings used for actions
	// that no rate limit rule covers.
	Limiter LimiterConfig `yaml:"limiter"`

	// Redaction contains error redaction configuration, principally the
	// deployment environment name.
	Redaction RedactionConfig `yaml:"redaction"`

	// Audit contains configuration for decision recording and storage
	// including backend selection, retention, and export settings.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry contains configuration for observability including
	// logging, metrics, and health checks.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Security contains security-related configuration including TLS
	// settings and API key authentication.
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig contains configuration for the HTTP API server.
type ServerConfig struct {
	// ListenAddress is the address and port for the server to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8085", "0.0.0.0:8085").
	// Default: "127.0.0.1:8085"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means no timeout.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of
	// the response. A zero or negative value means no timeout.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next
	// request when keep-alives are enabled. If IdleTimeout is zero,
	// ReadTimeout is used.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown. If requests are still in-flight after this timeout, the
	// server will force shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server
	// will read parsing the request header's keys and values, including
	// the request line. It does not limit the size of the request body.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// RulesConfig contains configuration for rule loading.
type RulesConfig struct {
	// Mode specifies how rules are loaded.
	// Options: "file" (local directory), "git" (Git repository)
	// Default: "file"
	Mode string `yaml:"mode"`

	// Path is the directory containing rule files when Mode is "file".
	// All .yaml and .yml files under this directory are loaded in
	// lexical order and merged into one rule set.
	// Default: "./rules"
	Path string `yaml:"path"`

	// Watch enables automatic reloading when rule files change.
	// In file mode this uses a filesystem watcher; in git mode it
	// enables commit polling.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval is how long the watcher waits after the last
	// filesystem event before triggering a reload. Editors often write
	// files in several steps; debouncing collapses those into one reload.
	// Default: 100ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// MaxFileSize is the maximum size in bytes of a single rule file.
	// Files larger than this are rejected during loading.
	// Default: 1048576 (1MB)
	MaxFileSize int64 `yaml:"max_file_size"`

	// Git contains Git repository configuration.
	// Used when Mode is "git".
	Git GitRulesConfig `yaml:"git"`
}

// GitRulesConfig configures Git-based rule loading.
type GitRulesConfig struct {
	// Repository URL (HTTPS or SSH).
	// Example: "https://github.com/company/release-rules.git"
	// Example: "git@github.com:company/release-rules.git"
	Repository string `yaml:"repository"`

	// Branch to track.
	// Example: "main", "staging"
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path within the repository to the rule files.
	// Example: "rules/", "config/rules/"
	// Default: "" (repository root)
	Path string `yaml:"path"`

	// Auth configures Git authentication.
	Auth GitAuthConfig `yaml:"auth"`

	// Poll configures change detection.
	Poll GitPollConfig `yaml:"poll"`

	// Clone configures repository cloning.
	Clone GitCloneConfig `yaml:"clone"`
}

// GitAuthConfig configures Git authentication.
type GitAuthConfig struct {
	// Type: "token", "basic", "ssh", "none"
	// - "token": HTTPS with personal access token
	// - "basic": HTTPS with username and password
	// - "ssh": SSH with public key
	// - "none": public repositories
	// Default: "none"
	Type string `yaml:"type"`

	// Token for HTTPS token authentication.
	// Required when Type is "token".
	Token string `yaml:"token"`

	// Username for HTTPS basic authentication.
	// Required when Type is "basic".
	Username string `yaml:"username"`

	// Password for HTTPS basic authentication.
	// Required when Type is "basic".
	Password string `yaml:"password"`

	// SSHKeyPath for SSH authentication.
	// Example: "/home/user/.ssh/id_ed25519"
	// Required when Type is "ssh".
	SSHKeyPath string `yaml:"ssh_key_path"`

	// SSHKeyPassphrase for encrypted SSH keys.
	// Optional, leave empty if the key is not encrypted.
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// GitPollConfig configures change detection. Polling runs only when
// rules.watch is true; without it, rules are loaded once at startup.
type GitPollConfig struct {
	// Interval between polls (e.g., "30s", "1m", "5m").
	// Lower values mean faster change detection but more load.
	// Default: 30s
	Interval time.Duration `yaml:"interval"`

	// Timeout for Git operations.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// GitCloneConfig configures repository cloning.
type GitCloneConfig struct {
	// Depth for shallow clones (0 = full clone).
	// Shallow clones are faster but don't include full history.
	// Default: 1
	Depth int `yaml:"depth"`

	// LocalPath where the repository is cloned.
	// Example: "/var/lib/ganymede/rules"
	// Default: system temp directory
	LocalPath string `yaml:"local_path"`

	// CleanOnStart removes the local repository before cloning.
	// Useful for ensuring clean state on restart.
	// Default: false
	CleanOnStart bool `yaml:"clean_on_start"`
}

// PipelineConfig contains configuration for the pipeline evaluator.
type PipelineConfig struct {
	// StaleScanSchedule is a cron expression for the stale-run scan.
	// Runs sitting in a non-terminal stage longer than their stage age
	// limit are surfaced as advisory decisions.
	// Default: "@every 10m"
	StaleScanSchedule string `yaml:"stale_scan_schedule"`

	// MaxStageAge is the fallback stage age limit for stages without a
	// max_stage_age rule. Zero disables the fallback so only rule-covered
	// stages are checked.
	// Default: 24h
	MaxStageAge time.Duration `yaml:"max_stage_age"`
}

// RegistryConfig contains configuration for the resource registry.
type RegistryConfig struct {
	// DefaultTTL is the idle expiry applied to resources provisioned
	// without an explicit TTL. Heartbeats reset the idle clock.
	// Default: 4h
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// HardExpiry is the maximum lifetime of a resource regardless of
	// heartbeats. Zero disables the cap.
	// Default: 4h
	HardExpiry time.Duration `yaml:"hard_expiry"`

	// SpinUpBudget is the fallback provisioning latency budget for
	// resource kinds without a spin_up_within rule. Resources that take
	// longer than this to become ready generate an advisory decision.
	// Default: 10m
	SpinUpBudget time.Duration `yaml:"spin_up_budget"`

	// DefaultQuota is the fallback concurrent-resource quota for kinds
	// without a max_concurrent rule. Zero means unlimited.
	// Default: 0
	DefaultQuota int `yaml:"default_quota"`

	// SweepSchedule is a cron expression for the expiry sweep.
	// Default: "@every 60s"
	SweepSchedule string `yaml:"sweep_schedule"`

	// Storage contains registry persistence configuration.
	Storage RegistryStorageConfig `yaml:"storage"`
}

// RegistryStorageConfig contains registry persistence configuration.
type RegistryStorageConfig struct {
	// Backend specifies the storage backend for resource state.
	// Options: "memory", "sqlite"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// LimiterConfig contains fallback token bucket settings.
type LimiterConfig struct {
	// DefaultCapacity is the bucket capacity for actions without a
	// rate_limit rule. Zero means such actions are not limited.
	// Default: 0
	DefaultCapacity float64 `yaml:"default_capacity"`

	// DefaultRefillInterval is the refill interval paired with
	// DefaultCapacity.
	// Default: 1m
	DefaultRefillInterval time.Duration `yaml:"default_refill_interval"`

	// MaxIdleTime is how long an untouched bucket is kept before it is
	// dropped. Dropping an idle bucket is harmless: a fresh bucket
	// starts full.
	// Default: 1h
	MaxIdleTime time.Duration `yaml:"max_idle_time"`

	// CleanupInterval is how often idle buckets are evicted.
	// Default: 10m
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// RedactionConfig contains error redaction configuration.
type RedactionConfig struct {
	// Environment is the deployment environment name. Errors surfaced in
	// "production" are reduced to generic public messages; other known
	// environments receive full diagnostic detail. Unknown names are
	// treated as production.
	// Options: "production", "staging", "development"
	// Default: "production"
	Environment string `yaml:"environment"`
}

// AuditConfig contains configuration for decision recording and storage.
type AuditConfig struct {
	// Backend specifies the storage backend for decision records.
	// Options: "memory", "sqlite", "postgres"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Postgres contains PostgreSQL-specific configuration.
	Postgres PostgresConfig `yaml:"postgres"`

	// Recorder contains decision recorder configuration.
	Recorder RecorderConfig `yaml:"recorder"`

	// Retention contains retention policy configuration.
	Retention RetentionConfig `yaml:"retention"`

	// Query contains query configuration.
	Query QueryConfig `yaml:"query"`

	// Export contains export configuration.
	Export ExportConfig `yaml:"export"`

	// Archive contains object-store archival configuration.
	Archive ArchiveConfig `yaml:"archive"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the file path for the SQLite database.
	// Default: "data/audit.db" (audit), "data/registry.db" (registry)
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle database connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `yaml:"host"`

	// Port is the PostgreSQL server port.
	// Default: 5432
	Port int `yaml:"port"`

	// Database is the name of the database to use.
	Database string `yaml:"database"`

	// User is the PostgreSQL user for authentication.
	User string `yaml:"user"`

	// Password is the PostgreSQL password for authentication.
	// This should typically be loaded from an environment variable.
	Password string `yaml:"password"`

	// SSLMode controls SSL/TLS connection mode.
	// Options: "disable", "require", "verify-ca", "verify-full"
	// Default: "require"
	SSLMode string `yaml:"ssl_mode"`
}

// RecorderConfig contains decision recorder configuration.
type RecorderConfig struct {
	// Mode controls how decisions reach storage.
	// Options: "sync" (written before the evaluation call returns),
	// "async" (buffered and written by a background worker)
	// Default: "sync"
	Mode string `yaml:"mode"`

	// AsyncBuffer is the size of the async write channel buffer.
	// Only used when Mode is "async".
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout is the timeout for writing a decision to storage.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RetentionConfig contains retention policy configuration.
type RetentionConfig struct {
	// Days is the number of days to retain decision records.
	// Records older than this are eligible for deletion.
	// 0 means keep decisions forever (no pruning).
	// Default: 90
	Days int `yaml:"days"`

	// PruneSchedule is a cron expression for scheduling pruning.
	// Default: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `yaml:"prune_schedule"`

	// ArchiveBeforeDelete enables archiving decisions before deletion.
	// Requires the archive section to be configured.
	// Default: false
	ArchiveBeforeDelete bool `yaml:"archive_before_delete"`

	// ArchivePath is the directory to store local archive files when no
	// object store is configured.
	// Default: "data/archives/"
	ArchivePath string `yaml:"archive_path"`

	// MaxRecords is the maximum number of records to keep.
	// 0 means unlimited.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`
}

// QueryConfig contains query configuration.
type QueryConfig struct {
	// DefaultLimit is the default number of records to return if not
	// specified.
	// Default: 100
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit is the maximum number of records that can be returned in
	// a single query.
	// Default: 10000
	MaxLimit int `yaml:"max_limit"`

	// Timeout is the query execution timeout.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`
}

// ExportConfig contains export configuration.
type ExportConfig struct {
	// JSONPretty enables pretty-printing for JSON exports.
	// Default: true
	JSONPretty bool `yaml:"json_pretty"`

	// CSVIncludeHeader includes a header row in CSV exports.
	// Default: true
	CSVIncludeHeader bool `yaml:"csv_include_header"`

	// MaxExportSize is the maximum number of records per export.
	// Default: 1000000 (1 million)
	MaxExportSize int `yaml:"max_export_size"`
}

// ArchiveConfig contains object-store archival configuration.
// Archives are written to any S3-compatible endpoint.
type ArchiveConfig struct {
	// Enabled controls whether object-store archival is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the object store endpoint.
	// Example: "minio.internal:9000", "s3.amazonaws.com"
	Endpoint string `yaml:"endpoint"`

	// Bucket is the bucket name for archived decisions.
	Bucket string `yaml:"bucket"`

	// Region is the bucket region.
	Region string `yaml:"region"`

	// Prefix is an optional key prefix for all archive objects.
	Prefix string `yaml:"prefix"`

	// AccessKey is the object store access key.
	// This should typically be loaded from an environment variable.
	AccessKey string `yaml:"access_key"`

	// SecretKey is the object store secret key.
	// This should typically be loaded from an environment variable.
	SecretKey string `yaml:"secret_key"`

	// UseSSL controls whether the endpoint is contacted over TLS.
	// Default: false
	UseSSL bool `yaml:"use_ssl"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Port is an optional separate port for metrics (0 = use server port).
	// Default: 0
	Port int `yaml:"port"`

	// Namespace is the metric name prefix.
	// Default: "ganymede"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "engine"
	Subsystem string `yaml:"subsystem"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// Enabled controls whether health check endpoints are enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// VersionPath is the path for the version information endpoint.
	// Default: "/version"
	VersionPath string `yaml:"version_path"`

	// CheckTimeout is the timeout for individual component health checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// SecurityConfig contains security-related configuration.
type SecurityConfig struct {
	// TLS contains TLS configuration for the API server.
	TLS TLSConfig `yaml:"tls"`

	// Authentication contains API key authentication configuration.
	Authentication AuthenticationConfig `yaml:"authentication"`
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	// Enabled controls whether TLS is enabled for the API server.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the path to the TLS certificate file.
	// Required when Enabled is true.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the TLS private key file.
	// Required when Enabled is true.
	KeyFile string `yaml:"key_file"`

	// MinVersion is the minimum TLS version to accept.
	// Options: "1.2", "1.3"
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`
}

// AuthenticationConfig contains API key authentication configuration.
type AuthenticationConfig struct {
	// Enabled controls whether API key authentication is required.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// HeaderName is the HTTP header carrying the API key.
	// Default: "X-API-Key"
	HeaderName string `yaml:"header_name"`

	// APIKeys is the list of accepted API keys.
	// These should typically be loaded from environment variables.
	APIKeys []string `yaml:"api_keys"`
}
