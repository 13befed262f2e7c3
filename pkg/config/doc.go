// Package config provides configuration management for Ganymede.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. It provides a type-safe
// configuration system with comprehensive validation and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// When no file is available, DefaultConfig returns a configuration built
// entirely from defaults.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention GANYMEDE_SECTION_FIELD.
// For example:
//
//   - GANYMEDE_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - GANYMEDE_RULES_PATH overrides rules.path
//   - GANYMEDE_RULES_GIT_AUTH_TOKEN overrides rules.git.auth.token
//   - GANYMEDE_REDACTION_ENVIRONMENT overrides redaction.environment
//
// Environment variables always take precedence over file-based configuration.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides
// earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Validation
//
// All configuration is validated automatically during loading. Validation
// errors include field paths and helpful messages:
//
//	configuration validation failed with 2 errors:
//	  - rules.git.repository: repository URL is required when mode is 'git'
//	  - audit.postgres.host: host is required when backend is 'postgres'
//
// # Example Configuration
//
// Here is a minimal configuration file:
//
//	server:
//	  listen_address: "127.0.0.1:8085"
//
//	rules:
//	  mode: "file"
//	  path: "./rules"
//	  watch: true
//
//	redaction:
//	  environment: "production"
//
//	audit:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "data/audit.db"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
//
// # Thread Safety
//
// All configuration access through the singleton is thread-safe. The
// singleton uses read-write locks to allow concurrent reads while
// protecting against concurrent writes during reload operations.
package config
