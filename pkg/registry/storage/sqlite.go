package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/ganymede/pkg/registry"
)

// SQLiteStorage implements registry.Storage using SQLite. It gives the
// registry durable lifecycle state, which is what makes the
// destroy-exactly-once guarantee hold across a crash and restart: the
// expiring transition written before a teardown call survives the
// process, and the next sweep resumes from it.
//
// The driver is pure Go, so the backend builds without cgo. WAL mode
// is enabled for concurrent readers against the single writer.
type SQLiteStorage struct {
	db        *sql.DB
	dbPath    string
	mu        sync.RWMutex
	closeOnce sync.Once

	createStmt *sql.Stmt
	getStmt    *sql.Stmt
	updateStmt *sql.Stmt
	deleteStmt *sql.Stmt
	countStmt  *sql.Stmt
}

// SQLiteStorageConfig configures the SQLite backend.
type SQLiteStorageConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteStorage creates a SQLite backend with default settings.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	return NewSQLiteStorageWithConfig(SQLiteStorageConfig{DBPath: dbPath})
}

// NewSQLiteStorageWithConfig creates a SQLite backend with custom
// configuration.
func NewSQLiteStorageWithConfig(cfg SQLiteStorageConfig) (*SQLiteStorage, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStorage{
		db:     db,
		dbPath: cfg.DBPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return s, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		ready_at INTEGER NOT NULL DEFAULT 0,
		last_activity_at INTEGER NOT NULL,
		hard_expiry INTEGER NOT NULL DEFAULT 0,
		destroyed_at INTEGER NOT NULL DEFAULT 0,
		spin_up_ns INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_resources_state ON resources(state);
	CREATE INDEX IF NOT EXISTS idx_resources_kind_state ON resources(kind, state);
	`

	_, err := s.db.Exec(schema)
	return err
}

const resourceColumns = "id, kind, state, created_at, ready_at, last_activity_at, hard_expiry, destroyed_at, spin_up_ns"

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteStorage) prepareStatements() error {
	var err error

	s.createStmt, err = s.db.Prepare(`
		INSERT INTO resources (` + resourceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare create statement: %w", err)
	}

	s.getStmt, err = s.db.Prepare(`
		SELECT ` + resourceColumns + ` FROM resources WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.updateStmt, err = s.db.Prepare(`
		UPDATE resources SET
			kind = ?, state = ?, created_at = ?, ready_at = ?,
			last_activity_at = ?, hard_expiry = ?, destroyed_at = ?, spin_up_ns = ?
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare update statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`DELETE FROM resources WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.countStmt, err = s.db.Prepare(`
		SELECT COUNT(*) FROM resources WHERE kind = ? AND state != ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare count statement: %w", err)
	}

	return nil
}

// Create persists a new resource record.
func (s *SQLiteStorage) Create(ctx context.Context, res *registry.EphemeralResource) error {
	if res == nil {
		return fmt.Errorf("resource cannot be nil")
	}
	if res.ID == "" {
		return fmt.Errorf("resource id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.createStmt.ExecContext(ctx,
		res.ID,
		res.Kind,
		string(res.State),
		encodeTime(res.CreatedAt),
		encodeTime(res.ReadyAt),
		encodeTime(res.LastActivityAt),
		encodeTime(res.HardExpiry),
		encodeTime(res.DestroyedAt),
		int64(res.SpinUpLatency),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("resource %s already exists", res.ID)
		}
		return fmt.Errorf("failed to create resource: %w", err)
	}
	return nil
}

// Get retrieves the resource by id, or nil when absent.
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*registry.EphemeralResource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, err := scanResource(s.getStmt.QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load resource: %w", err)
	}
	return res, nil
}

// Update replaces the stored record.
func (s *SQLiteStorage) Update(ctx context.Context, res *registry.EphemeralResource) error {
	if res == nil {
		return fmt.Errorf("resource cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.updateStmt.ExecContext(ctx,
		res.Kind,
		string(res.State),
		encodeTime(res.CreatedAt),
		encodeTime(res.ReadyAt),
		encodeTime(res.LastActivityAt),
		encodeTime(res.HardExpiry),
		encodeTime(res.DestroyedAt),
		int64(res.SpinUpLatency),
		res.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update resource: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("resource %s does not exist", res.ID)
	}
	return nil
}

// Delete removes the record. No-op if the id is absent.
func (s *SQLiteStorage) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.deleteStmt.ExecContext(ctx, id); err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return nil
}

// List returns resources in any of the given states, or all resources
// when no states are given.
func (s *SQLiteStorage) List(ctx context.Context, states ...registry.ResourceState) ([]*registry.EphemeralResource, error) {
	query := "SELECT " + resourceColumns + " FROM resources"
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(states)), ",")
		query += " WHERE state IN (" + placeholders + ")"
		for _, state := range states {
			args = append(args, string(state))
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var out []*registry.EphemeralResource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resources: %w", err)
	}
	if out == nil {
		out = []*registry.EphemeralResource{}
	}
	return out, nil
}

// CountLive returns the number of non-destroyed resources of the kind.
func (s *SQLiteStorage) CountLive(ctx context.Context, kind string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.countStmt.QueryRowContext(ctx, kind, string(registry.StateDestroyed)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count resources: %w", err)
	}
	return count, nil
}

// Close releases the prepared statements and the database handle.
func (s *SQLiteStorage) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{s.createStmt, s.getStmt, s.updateStmt, s.deleteStmt, s.countStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		closeErr = s.db.Close()
	})
	return closeErr
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanResource(row scanner) (*registry.EphemeralResource, error) {
	var (
		res                                                  registry.EphemeralResource
		state                                                string
		createdAt, readyAt, lastActivity, hardExp, destroyed int64
		spinUp                                               int64
	)
	err := row.Scan(&res.ID, &res.Kind, &state, &createdAt, &readyAt, &lastActivity, &hardExp, &destroyed, &spinUp)
	if err != nil {
		return nil, err
	}
	res.State = registry.ResourceState(state)
	res.CreatedAt = decodeTime(createdAt)
	res.ReadyAt = decodeTime(readyAt)
	res.LastActivityAt = decodeTime(lastActivity)
	res.HardExpiry = decodeTime(hardExp)
	res.DestroyedAt = decodeTime(destroyed)
	res.SpinUpLatency = time.Duration(spinUp)
	return &res, nil
}

// encodeTime stores timestamps as UnixNano so durations derived from
// them round-trip exactly. Zero time maps to 0.
func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func decodeTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
