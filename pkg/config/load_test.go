package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_ValidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  listen_address: "0.0.0.0:9090"
  read_timeout: "60s"

rules:
  mode: "file"
  path: "./testdata/rules"
  watch: true

registry:
  default_ttl: "15m"
  hard_expiry: "2h"

redaction:
  environment: "staging"

audit:
  backend: "sqlite"
  sqlite:
    path: "./test-audit.db"

telemetry:
  logging:
    level: "debug"
    format: "text"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:9090", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("expected read timeout %v, got %v", 60*time.Second, cfg.Server.ReadTimeout)
	}
	if !cfg.Rules.Watch {
		t.Error("expected rules watch to be true")
	}
	if cfg.Registry.DefaultTTL != 15*time.Minute {
		t.Errorf("expected default TTL %v, got %v", 15*time.Minute, cfg.Registry.DefaultTTL)
	}
	if cfg.Registry.HardExpiry != 2*time.Hour {
		t.Errorf("expected hard expiry %v, got %v", 2*time.Hour, cfg.Registry.HardExpiry)
	}
	if cfg.Redaction.Environment != "staging" {
		t.Errorf("expected environment %q, got %q", "staging", cfg.Redaction.Environment)
	}
	if cfg.Audit.SQLite.Path != "./test-audit.db" {
		t.Errorf("expected sqlite path %q, got %q", "./test-audit.db", cfg.Audit.SQLite.Path)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected logging level %q, got %q", "debug", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
	if !strings.Contains(err.Error(), "no such file or directory") {
		t.Errorf("expected file not found error, got: %v", err)
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	malformedContent := `
server:
  listen_address: "0.0.0.0:8085"
  invalid yaml here: [
`

	if err := os.WriteFile(configPath, []byte(malformedContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := LoadConfig(configPath)
	if err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestLoadConfig_ValidationFailure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Git mode without a repository URL plus a bad logging level.
	invalidContent := `
rules:
  mode: "git"

telemetry:
  logging:
    level: "invalid"
    format: "json"
`

	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := LoadConfig(configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var validationErr ValidationError
	if !errors.As(err, &validationErr) {
		t.Errorf("expected ValidationError in error chain, got %T: %v", err, err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("expected default listen address %q, got %q", DefaultListenAddress, cfg.Server.ListenAddress)
	}
	if cfg.Rules.Mode != DefaultRulesMode {
		t.Errorf("expected default rules mode %q, got %q", DefaultRulesMode, cfg.Rules.Mode)
	}
	if cfg.Redaction.Environment != DefaultEnvironment {
		t.Errorf("expected default environment %q, got %q", DefaultEnvironment, cfg.Redaction.Environment)
	}

	// The all-defaults config must itself validate.
	if err := Validate(cfg); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestLoadConfigWithEnvOverrides_BasicOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  listen_address: "127.0.0.1:8085"

redaction:
  environment: "development"

telemetry:
  logging:
    level: "info"
    format: "json"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv("GANYMEDE_SERVER_LISTEN_ADDRESS", "0.0.0.0:9090")
	os.Setenv("GANYMEDE_REDACTION_ENVIRONMENT", "production")
	os.Setenv("GANYMEDE_TELEMETRY_LOGGING_LEVEL", "debug")
	defer func() {
		os.Unsetenv("GANYMEDE_SERVER_LISTEN_ADDRESS")
		os.Unsetenv("GANYMEDE_REDACTION_ENVIRONMENT")
		os.Unsetenv("GANYMEDE_TELEMETRY_LOGGING_LEVEL")
	}()

	cfg, err := LoadConfigWithEnvOverrides(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("expected listen address %q from env, got %q", "0.0.0.0:9090", cfg.Server.ListenAddress)
	}
	if cfg.Redaction.Environment != "production" {
		t.Errorf("expected environment %q from env, got %q", "production", cfg.Redaction.Environment)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected logging level %q from env, got %q", "debug", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_DurationParsing(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  listen_address: "127.0.0.1:8085"
  read_timeout: "30s"

registry:
  default_ttl: "30m"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv("GANYMEDE_SERVER_READ_TIMEOUT", "120s")
	os.Setenv("GANYMEDE_REGISTRY_DEFAULT_TTL", "45m")
	defer func() {
		os.Unsetenv("GANYMEDE_SERVER_READ_TIMEOUT")
		os.Unsetenv("GANYMEDE_REGISTRY_DEFAULT_TTL")
	}()

	cfg, err := LoadConfigWithEnvOverrides(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ReadTimeout != 120*time.Second {
		t.Errorf("expected read timeout %v, got %v", 120*time.Second, cfg.Server.ReadTimeout)
	}
	if cfg.Registry.DefaultTTL != 45*time.Minute {
		t.Errorf("expected default TTL %v, got %v", 45*time.Minute, cfg.Registry.DefaultTTL)
	}
}

func TestLoadConfigWithEnvOverrides_BooleanParsing(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
rules:
  mode: "file"
  path: "./rules"
  watch: false

telemetry:
  metrics:
    enabled: false
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv("GANYMEDE_RULES_WATCH", "true")
	os.Setenv("GANYMEDE_TELEMETRY_METRICS_ENABLED", "true")
	defer func() {
		os.Unsetenv("GANYMEDE_RULES_WATCH")
		os.Unsetenv("GANYMEDE_TELEMETRY_METRICS_ENABLED")
	}()

	cfg, err := LoadConfigWithEnvOverrides(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !cfg.Rules.Watch {
		t.Error("expected rules watch to be true from env")
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("expected metrics enabled to be true from env")
	}
}

func TestLoadConfigWithEnvOverrides_GitCredentials(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
rules:
  mode: "git"
  git:
    repository: "https://example.com/org/rules.git"
    auth:
      type: "token"
      token: "file-token"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv("GANYMEDE_RULES_GIT_AUTH_TOKEN", "env-token-override")
	os.Setenv("GANYMEDE_RULES_GIT_BRANCH", "staging")
	defer func() {
		os.Unsetenv("GANYMEDE_RULES_GIT_AUTH_TOKEN")
		os.Unsetenv("GANYMEDE_RULES_GIT_BRANCH")
	}()

	cfg, err := LoadConfigWithEnvOverrides(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Rules.Git.Auth.Token != "env-token-override" {
		t.Errorf("expected token %q from env, got %q", "env-token-override", cfg.Rules.Git.Auth.Token)
	}
	if cfg.Rules.Git.Branch != "staging" {
		t.Errorf("expected branch %q from env, got %q", "staging", cfg.Rules.Git.Branch)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidEnvValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
telemetry:
  logging:
    level: "info"
    format: "json"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	// Unparseable numbers are ignored; the bad level must fail validation.
	os.Setenv("GANYMEDE_SERVER_MAX_HEADER_BYTES", "not-a-number")
	os.Setenv("GANYMEDE_TELEMETRY_LOGGING_LEVEL", "invalid-level")
	defer func() {
		os.Unsetenv("GANYMEDE_SERVER_MAX_HEADER_BYTES")
		os.Unsetenv("GANYMEDE_TELEMETRY_LOGGING_LEVEL")
	}()

	_, err := LoadConfigWithEnvOverrides(configPath)
	if err == nil {
		t.Error("expected validation error for invalid env values")
	}
}
