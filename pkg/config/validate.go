package config

import (
	"fmt"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a
// configuration. It implements the error interface and provides access to
// all field errors.
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
// if any validation rules fail. It returns nil if the configuration is
// valid. All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateRules(&cfg.Rules)...)
	errs = append(errs, validatePipeline(&cfg.Pipeline)...)
	errs = append(errs, validateRegistry(&cfg.Registry)...)
	errs = append(errs, validateLimiter(&cfg.Limiter)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must be positive",
		})
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes exceeds reasonable limit (10MB)",
		})
	}

	return errs
}

// validateRules validates rules configuration.
func validateRules(cfg *RulesConfig) []FieldError {
	var errs []FieldError

	validModes := map[string]bool{"file": true, "git": true}
	if cfg.Mode == "" {
		errs = append(errs, FieldError{
			Field:   "rules.mode",
			Message: "mode is required",
		})
	} else if !validModes[cfg.Mode] {
		errs = append(errs, FieldError{
			Field:   "rules.mode",
			Message: fmt.Sprintf("invalid mode %q: must be 'file' or 'git'", cfg.Mode),
		})
	}

	if cfg.Mode == "file" && cfg.Path == "" {
		errs = append(errs, FieldError{
			Field:   "rules.path",
			Message: "path is required when mode is 'file'",
		})
	}

	if cfg.MaxFileSize < 0 {
		errs = append(errs, FieldError{
			Field:   "rules.max_file_size",
			Message: "max file size must be non-negative",
		})
	}
	if cfg.DebounceInterval < 0 {
		errs = append(errs, FieldError{
			Field:   "rules.debounce_interval",
			Message: "debounce interval must be non-negative",
		})
	}

	if cfg.Mode == "git" {
		errs = append(errs, validateGitRules(&cfg.Git)...)
	}

	return errs
}

// validateGitRules validates git rules configuration.
func validateGitRules(cfg *GitRulesConfig) []FieldError {
	var errs []FieldError

	if cfg.Repository == "" {
		errs = append(errs, FieldError{
			Field:   "rules.git.repository",
			Message: "repository URL is required when mode is 'git'",
		})
	}
	if cfg.Branch == "" {
		errs = append(errs, FieldError{
			Field:   "rules.git.branch",
			Message: "branch is required when mode is 'git'",
		})
	}

	switch cfg.Auth.Type {
	case "none", "":
	case "token":
		if cfg.Auth.Token == "" {
			errs = append(errs, FieldError{
				Field:   "rules.git.auth.token",
				Message: "token is required when auth type is 'token'",
			})
		}
	case "basic":
		if cfg.Auth.Username == "" {
			errs = append(errs, FieldError{
				Field:   "rules.git.auth.username",
				Message: "username is required when auth type is 'basic'",
			})
		}
		if cfg.Auth.Password == "" {
			errs = append(errs, FieldError{
				Field:   "rules.git.auth.password",
				Message: "password is required when auth type is 'basic'",
			})
		}
	case "ssh":
		if cfg.Auth.SSHKeyPath == "" {
			errs = append(errs, FieldError{
				Field:   "rules.git.auth.ssh_key_path",
				Message: "ssh key path is required when auth type is 'ssh'",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "rules.git.auth.type",
			Message: fmt.Sprintf("invalid auth type %q: must be 'token', 'basic', 'ssh' or 'none'", cfg.Auth.Type),
		})
	}

	if cfg.Poll.Interval < 0 {
		errs = append(errs, FieldError{
			Field:   "rules.git.poll.interval",
			Message: "poll interval must be positive",
		})
	}
	if cfg.Poll.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   "rules.git.poll.timeout",
			Message: "poll timeout must be positive",
		})
	}
	if cfg.Clone.Depth < 0 {
		errs = append(errs, FieldError{
			Field:   "rules.git.clone.depth",
			Message: "clone depth must be non-negative",
		})
	}

	return errs
}

// validatePipeline validates pipeline configuration.
func validatePipeline(cfg *PipelineConfig) []FieldError {
	var errs []FieldError

	if cfg.StaleScanSchedule == "" {
		errs = append(errs, FieldError{
			Field:   "pipeline.stale_scan_schedule",
			Message: "stale scan schedule is required",
		})
	}
	if cfg.MaxStageAge < 0 {
		errs = append(errs, FieldError{
			Field:   "pipeline.max_stage_age",
			Message: "max stage age must be non-negative",
		})
	}

	return errs
}

// validateRegistry validates registry configuration.
func validateRegistry(cfg *RegistryConfig) []FieldError {
	var errs []FieldError

	if cfg.DefaultTTL <= 0 {
		errs = append(errs, FieldError{
			Field:   "registry.default_ttl",
			Message: "default TTL must be positive",
		})
	}
	if cfg.HardExpiry < 0 {
		errs = append(errs, FieldError{
			Field:   "registry.hard_expiry",
			Message: "hard expiry must be non-negative",
		})
	}
	if cfg.HardExpiry > 0 && cfg.HardExpiry < cfg.DefaultTTL {
		errs = append(errs, FieldError{
			Field:   "registry.hard_expiry",
			Message: "hard expiry must not be shorter than the default TTL",
		})
	}
	if cfg.SpinUpBudget < 0 {
		errs = append(errs, FieldError{
			Field:   "registry.spin_up_budget",
			Message: "spin-up budget must be non-negative",
		})
	}
	if cfg.DefaultQuota < 0 {
		errs = append(errs, FieldError{
			Field:   "registry.default_quota",
			Message: "default quota must be non-negative",
		})
	}
	if cfg.SweepSchedule == "" {
		errs = append(errs, FieldError{
			Field:   "registry.sweep_schedule",
			Message: "sweep schedule is required",
		})
	}

	validBackends := map[string]bool{"memory": true, "sqlite": true}
	if !validBackends[cfg.Storage.Backend] {
		errs = append(errs, FieldError{
			Field:   "registry.storage.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory' or 'sqlite'", cfg.Storage.Backend),
		})
	}
	if cfg.Storage.Backend == "sqlite" && cfg.Storage.SQLite.Path == "" {
		errs = append(errs, FieldError{
			Field:   "registry.storage.sqlite.path",
			Message: "path is required when backend is 'sqlite'",
		})
	}

	return errs
}

// validateLimiter validates limiter configuration.
func validateLimiter(cfg *LimiterConfig) []FieldError {
	var errs []FieldError

	if cfg.DefaultCapacity < 0 {
		errs = append(errs, FieldError{
			Field:   "limiter.default_capacity",
			Message: "default capacity must be non-negative",
		})
	}
	if cfg.DefaultRefillInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "limiter.default_refill_interval",
			Message: "default refill interval must be positive",
		})
	}
	if cfg.MaxIdleTime <= 0 {
		errs = append(errs, FieldError{
			Field:   "limiter.max_idle_time",
			Message: "max idle time must be positive",
		})
	}
	if cfg.CleanupInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "limiter.cleanup_interval",
			Message: "cleanup interval must be positive",
		})
	}

	return errs
}

// validateAudit validates audit configuration.
func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	validBackends := map[string]bool{"memory": true, "sqlite": true, "postgres": true}
	if !validBackends[cfg.Backend] {
		errs = append(errs, FieldError{
			Field:   "audit.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory', 'sqlite' or 'postgres'", cfg.Backend),
		})
	}

	if cfg.Backend == "sqlite" && cfg.SQLite.Path == "" {
		errs = append(errs, FieldError{
			Field:   "audit.sqlite.path",
			Message: "path is required when backend is 'sqlite'",
		})
	}

	if cfg.Backend == "postgres" {
		if cfg.Postgres.Host == "" {
			errs = append(errs, FieldError{
				Field:   "audit.postgres.host",
				Message: "host is required when backend is 'postgres'",
			})
		}
		if cfg.Postgres.Database == "" {
			errs = append(errs, FieldError{
				Field:   "audit.postgres.database",
				Message: "database is required when backend is 'postgres'",
			})
		}
		if cfg.Postgres.Port < 1 || cfg.Postgres.Port > 65535 {
			errs = append(errs, FieldError{
				Field:   "audit.postgres.port",
				Message: "port must be between 1 and 65535",
			})
		}
		validSSLModes := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
		if !validSSLModes[cfg.Postgres.SSLMode] {
			errs = append(errs, FieldError{
				Field:   "audit.postgres.ssl_mode",
				Message: fmt.Sprintf("invalid ssl mode %q", cfg.Postgres.SSLMode),
			})
		}
	}

	validModes := map[string]bool{"sync": true, "async": true}
	if !validModes[cfg.Recorder.Mode] {
		errs = append(errs, FieldError{
			Field:   "audit.recorder.mode",
			Message: fmt.Sprintf("invalid mode %q: must be 'sync' or 'async'", cfg.Recorder.Mode),
		})
	}
	if cfg.Recorder.AsyncBuffer < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.recorder.async_buffer",
			Message: "async buffer must be non-negative",
		})
	}

	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.retention.days",
			Message: "retention days must be non-negative",
		})
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.retention.max_records",
			Message: "max records must be non-negative",
		})
	}

	if cfg.Query.DefaultLimit <= 0 {
		errs = append(errs, FieldError{
			Field:   "audit.query.default_limit",
			Message: "default limit must be positive",
		})
	}
	if cfg.Query.MaxLimit < cfg.Query.DefaultLimit {
		errs = append(errs, FieldError{
			Field:   "audit.query.max_limit",
			Message: "max limit must not be smaller than the default limit",
		})
	}

	if cfg.Archive.Enabled {
		if cfg.Archive.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "audit.archive.endpoint",
				Message: "endpoint is required when archival is enabled",
			})
		}
		if cfg.Archive.Bucket == "" {
			errs = append(errs, FieldError{
				Field:   "audit.archive.bucket",
				Message: "bucket is required when archival is enabled",
			})
		}
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid level %q: must be 'debug', 'info', 'warn' or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Path == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "path is required when metrics are enabled",
		})
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.port",
			Message: "port must be between 0 and 65535",
		})
	}

	return errs
}

// validateSecurity validates security configuration.
func validateSecurity(cfg *SecurityConfig) []FieldError {
	var errs []FieldError

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.cert_file",
				Message: "cert file is required when TLS is enabled",
			})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.key_file",
				Message: "key file is required when TLS is enabled",
			})
		}
		validVersions := map[string]bool{"1.2": true, "1.3": true}
		if !validVersions[cfg.TLS.MinVersion] {
			errs = append(errs, FieldError{
				Field:   "security.tls.min_version",
				Message: fmt.Sprintf("invalid TLS version %q: must be '1.2' or '1.3'", cfg.TLS.MinVersion),
			})
		}
	}

	if cfg.Authentication.Enabled && len(cfg.Authentication.APIKeys) == 0 {
		errs = append(errs, FieldError{
			Field:   "security.authentication.api_keys",
			Message: "at least one API key is required when authentication is enabled",
		})
	}

	return errs
}
