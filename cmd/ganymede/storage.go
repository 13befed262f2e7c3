package main

import (
	"context"
	"fmt"
	"net/url"

	"mercator-hq/ganymede/pkg/audit"
	auditstorage "mercator-hq/ganymede/pkg/audit/storage"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/registry"
	registrystorage "mercator-hq/ganymede/pkg/registry/storage"
)

// openAuditStorage opens the configured decision log backend for offline
// inspection. The memory backend is rejected: it holds no data outside a
// running engine, so querying it from the CLI would only ever show an
// empty log.
func openAuditStorage(ctx context.Context, cfg *config.AuditConfig) (audit.Storage, error) {
	switch cfg.Backend {
	case "sqlite":
		return auditstorage.NewSQLiteStorage(&auditstorage.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
	case "postgres":
		return auditstorage.NewPostgresStorage(ctx, &auditstorage.PostgresConfig{
			URL: postgresURL(&cfg.Postgres),
		})
	case "", "memory":
		return nil, fmt.Errorf("audit backend %q holds no data outside a running engine; configure sqlite or postgres", "memory")
	}
	return nil, fmt.Errorf("unknown audit backend: %q", cfg.Backend)
}

// openRegistryStorage opens the configured resource state backend for
// offline inspection. Same memory rule as openAuditStorage.
func openRegistryStorage(cfg *config.RegistryStorageConfig) (registry.Storage, error) {
	switch cfg.Backend {
	case "sqlite":
		return registrystorage.NewSQLiteStorageWithConfig(registrystorage.SQLiteStorageConfig{
			DBPath:      cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
	case "", "memory":
		return nil, fmt.Errorf("registry backend %q holds no data outside a running engine; configure sqlite", "memory")
	}
	return nil, fmt.Errorf("unknown registry backend: %q", cfg.Backend)
}

// postgresURL assembles a connection URL from the discrete config fields.
func postgresURL(cfg *config.PostgresConfig) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   cfg.Database,
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	if cfg.SSLMode != "" {
		q := url.Values{}
		q.Set("sslmode", cfg.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String()
}
