package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration populated entirely from defaults.
// It is used when no configuration file is provided.
func DefaultConfig() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Environment variables follow the
// naming convention GANYMEDE_SECTION_FIELD (e.g., GANYMEDE_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	// First load from file (this already applies defaults)
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	// Re-validate after overrides
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format GANYMEDE_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("GANYMEDE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("GANYMEDE_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("GANYMEDE_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("GANYMEDE_SERVER_IDLE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.IdleTimeout = d
		}
	}
	if val := os.Getenv("GANYMEDE_SERVER_MAX_HEADER_BYTES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Server.MaxHeaderBytes = i
		}
	}

	// Rules overrides
	if val := os.Getenv("GANYMEDE_RULES_MODE"); val != "" {
		cfg.Rules.Mode = val
	}
	if val := os.Getenv("GANYMEDE_RULES_PATH"); val != "" {
		cfg.Rules.Path = val
	}
	if val := os.Getenv("GANYMEDE_RULES_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Rules.Watch = b
		}
	}
	if val := os.Getenv("GANYMEDE_RULES_GIT_REPOSITORY"); val != "" {
		cfg.Rules.Git.Repository = val
	}
	if val := os.Getenv("GANYMEDE_RULES_GIT_BRANCH"); val != "" {
		cfg.Rules.Git.Branch = val
	}
	if val := os.Getenv("GANYMEDE_RULES_GIT_PATH"); val != "" {
		cfg.Rules.Git.Path = val
	}
	if val := os.Getenv("GANYMEDE_RULES_GIT_AUTH_TYPE"); val != "" {
		cfg.Rules.Git.Auth.Type = val
	}
	if val := os.Getenv("GANYMEDE_RULES_GIT_AUTH_TOKEN"); val != "" {
		cfg.Rules.Git.Auth.Token = val
	}
	if val := os.Getenv("GANYMEDE_RULES_GIT_AUTH_USERNAME"); val != "" {
		cfg.Rules.Git.Auth.Username = val
	}
	if val := os.Getenv("GANYMEDE_RULES_GIT_AUTH_PASSWORD"); val != "" {
		cfg.Rules.Git.Auth.Password = val
	}
	if val := os.Getenv("GANYMEDE_RULES_GIT_AUTH_SSH_KEY_PATH"); val != "" {
		cfg.Rules.Git.Auth.SSHKeyPath = val
	}
	if val := os.Getenv("GANYMEDE_RULES_GIT_AUTH_SSH_KEY_PASSPHRASE"); val != "" {
		cfg.Rules.Git.Auth.SSHKeyPassphrase = val
	}
	if val := os.Getenv("GANYMEDE_RULES_GIT_POLL_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Rules.Git.Poll.Interval = d
		}
	}
	if val := os.Getenv("GANYMEDE_RULES_GIT_CLONE_LOCAL_PATH"); val != "" {
		cfg.Rules.Git.Clone.LocalPath = val
	}

	// Pipeline overrides
	if val := os.Getenv("GANYMEDE_PIPELINE_STALE_SCAN_SCHEDULE"); val != "" {
		cfg.Pipeline.StaleScanSchedule = val
	}
	if val := os.Getenv("GANYMEDE_PIPELINE_MAX_STAGE_AGE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Pipeline.MaxStageAge = d
		}
	}

	// Registry overrides
	if val := os.Getenv("GANYMEDE_REGISTRY_DEFAULT_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Registry.DefaultTTL = d
		}
	}
	if val := os.Getenv("GANYMEDE_REGISTRY_HARD_EXPIRY"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Registry.HardExpiry = d
		}
	}
	if val := os.Getenv("GANYMEDE_REGISTRY_SWEEP_SCHEDULE"); val != "" {
		cfg.Registry.SweepSchedule = val
	}
	if val := os.Getenv("GANYMEDE_REGISTRY_STORAGE_BACKEND"); val != "" {
		cfg.Registry.Storage.Backend = val
	}
	if val := os.Getenv("GANYMEDE_REGISTRY_SQLITE_PATH"); val != "" {
		cfg.Registry.Storage.SQLite.Path = val
	}

	// Redaction overrides
	if val := os.Getenv("GANYMEDE_REDACTION_ENVIRONMENT"); val != "" {
		cfg.Redaction.Environment = val
	}

	// Audit overrides
	if val := os.Getenv("GANYMEDE_AUDIT_BACKEND"); val != "" {
		cfg.Audit.Backend = val
	}
	if val := os.Getenv("GANYMEDE_AUDIT_SQLITE_PATH"); val != "" {
		cfg.Audit.SQLite.Path = val
	}
	if val := os.Getenv("GANYMEDE_AUDIT_POSTGRES_HOST"); val != "" {
		cfg.Audit.Postgres.Host = val
	}
	if val := os.Getenv("GANYMEDE_AUDIT_POSTGRES_PORT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Audit.Postgres.Port = i
		}
	}
	if val := os.Getenv("GANYMEDE_AUDIT_POSTGRES_DATABASE"); val != "" {
		cfg.Audit.Postgres.Database = val
	}
	if val := os.Getenv("GANYMEDE_AUDIT_POSTGRES_USER"); val != "" {
		cfg.Audit.Postgres.User = val
	}
	if val := os.Getenv("GANYMEDE_AUDIT_POSTGRES_PASSWORD"); val != "" {
		cfg.Audit.Postgres.Password = val
	}
	if val := os.Getenv("GANYMEDE_AUDIT_POSTGRES_SSL_MODE"); val != "" {
		cfg.Audit.Postgres.SSLMode = val
	}
	if val := os.Getenv("GANYMEDE_AUDIT_RETENTION_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Audit.Retention.Days = i
		}
	}
	if val := os.Getenv("GANYMEDE_AUDIT_ARCHIVE_ENDPOINT"); val != "" {
		cfg.Audit.Archive.Endpoint = val
	}
	if val := os.Getenv("GANYMEDE_AUDIT_ARCHIVE_BUCKET"); val != "" {
		cfg.Audit.Archive.Bucket = val
	}
	if val := os.Getenv("GANYMEDE_AUDIT_ARCHIVE_ACCESS_KEY"); val != "" {
		cfg.Audit.Archive.AccessKey = val
	}
	if val := os.Getenv("GANYMEDE_AUDIT_ARCHIVE_SECRET_KEY"); val != "" {
		cfg.Audit.Archive.SecretKey = val
	}

	// Telemetry overrides
	if val := os.Getenv("GANYMEDE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}

	// Security overrides
	if val := os.Getenv("GANYMEDE_SECURITY_TLS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Security.TLS.Enabled = b
		}
	}
	if val := os.Getenv("GANYMEDE_SECURITY_TLS_CERT_FILE"); val != "" {
		cfg.Security.TLS.CertFile = val
	}
	if val := os.Getenv("GANYMEDE_SECURITY_TLS_KEY_FILE"); val != "" {
		cfg.Security.TLS.KeyFile = val
	}
	if val := os.Getenv("GANYMEDE_SECURITY_AUTH_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Security.Authentication.Enabled = b
		}
	}
	if val := os.Getenv("GANYMEDE_SECURITY_AUTH_API_KEY"); val != "" {
		cfg.Security.Authentication.APIKeys = append(cfg.Security.Authentication.APIKeys, val)
	}
}
