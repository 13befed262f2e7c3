package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/ganymede/pkg/audit"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/decisions.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage creates a new SQLite storage backend.
// It initializes the database schema and enables WAL mode if configured.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "audit.storage.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize sets up the database schema and enables WAL mode.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		_, err := s.db.Exec("PRAGMA journal_mode=WAL;")
		if err != nil {
			return audit.NewStorageError("sqlite", "enable_wal", err)
		}
		s.logger.Debug("WAL mode enabled")
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	_, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs))
	if err != nil {
		return audit.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	_, err = s.db.Exec(Schema)
	if err != nil {
		return audit.NewStorageError("sqlite", "create_schema", err)
	}
	s.logger.Debug("database schema created")

	_, err = s.db.Exec(InsertSchemaVersion, SchemaVersion)
	if err != nil {
		return audit.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err = s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return audit.NewStorageError("sqlite", "get_schema_version", err)
	}

	if version != SchemaVersion {
		return audit.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)

	return nil
}

const insertDecision = `
	INSERT INTO decisions (
		id, event_id,
		rule_id, ruleset_version,
		outcome, reason,
		run_id, resource_id, action_name, subject_id,
		stage, target_stage, resource_kind,
		component,
		prev_hash, hash,
		timestamp, recorded_time
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Store appends a decision record to the log.
func (s *SQLiteStorage) Store(ctx context.Context, d *audit.Decision) error {
	_, err := s.db.ExecContext(ctx, insertDecision,
		d.ID, d.EventID,
		nullable(d.RuleID), nullable(d.RuleSetVersion),
		string(d.Outcome), d.Reason,
		nullable(d.RunID), nullable(d.ResourceID), nullable(d.ActionName), nullable(d.SubjectID),
		nullable(d.Stage), nullable(d.TargetStage), nullable(d.ResourceKind),
		string(d.Component),
		nullable(d.PrevHash), nullable(d.Hash),
		d.Timestamp, d.RecordedTime,
	)
	if err != nil {
		return audit.NewStorageError("sqlite", "store", err)
	}

	return nil
}

// Query retrieves decisions matching the query filters.
func (s *SQLiteStorage) Query(ctx context.Context, q *audit.Query) ([]*audit.Decision, error) {
	sqlQuery, args := s.buildSelect(q, selectColumns)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	decisions := []*audit.Decision{}
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, audit.NewStorageError("sqlite", "scan", err)
		}
		decisions = append(decisions, d)
	}

	if err := rows.Err(); err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}

	return decisions, nil
}

// QueryStream streams matching decisions over a channel for large result
// sets. Both channels are closed when the query completes or errors.
func (s *SQLiteStorage) QueryStream(ctx context.Context, q *audit.Query) (<-chan *audit.Decision, <-chan error, error) {
	decisionCh := make(chan *audit.Decision, 100)
	errCh := make(chan error, 1)

	sqlQuery, args := s.buildSelect(q, selectColumns)

	go func() {
		defer close(decisionCh)
		defer close(errCh)

		rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
		if err != nil {
			errCh <- audit.NewStorageError("sqlite", "query_stream", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}

			d, err := scanDecision(rows)
			if err != nil {
				errCh <- audit.NewStorageError("sqlite", "scan", err)
				return
			}

			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case decisionCh <- d:
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- audit.NewStorageError("sqlite", "query_stream", err)
		}
	}()

	return decisionCh, errCh, nil
}

// Count returns the number of decisions matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, q *audit.Query) (int64, error) {
	whereClause, args := buildWhereClause(q)

	sqlQuery := "SELECT COUNT(*) FROM decisions"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	var count int64
	err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count)
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "count", err)
	}

	return count, nil
}

// LastHash returns the integrity hash of the most recently appended decision.
func (s *SQLiteStorage) LastHash(ctx context.Context) (string, error) {
	var hash sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT hash FROM decisions ORDER BY seq DESC LIMIT 1").Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", audit.NewStorageError("sqlite", "last_hash", err)
	}

	return hash.String, nil
}

// Prune removes decisions older than the cutoff. Returns the number removed.
func (s *SQLiteStorage) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM decisions WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "prune", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "prune", err)
	}

	return count, nil
}

// Close releases resources held by the storage backend.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return audit.NewStorageError("sqlite", "close", err)
	}

	s.logger.Info("SQLite storage closed")
	return nil
}

const selectColumns = `
	id, event_id,
	rule_id, ruleset_version,
	outcome, reason,
	run_id, resource_id, action_name, subject_id,
	stage, target_stage, resource_kind,
	component,
	prev_hash, hash,
	timestamp, recorded_time
`

// buildSelect assembles the full SELECT with filters, ordering, and
// pagination. Sort columns come from an allowlist; user input never reaches
// the ORDER BY clause directly.
func (s *SQLiteStorage) buildSelect(q *audit.Query, columns string) (string, []interface{}) {
	whereClause, args := buildWhereClause(q)

	sqlQuery := "SELECT " + columns + " FROM decisions"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	sortBy := "timestamp"
	if q.SortBy == "recorded_time" {
		sortBy = "recorded_time"
	}
	sortOrder := "ASC"
	if q.SortOrder == "desc" {
		sortOrder = "DESC"
	}
	sqlQuery += fmt.Sprintf(" ORDER BY %s %s, seq %s", sortBy, sortOrder, sortOrder)

	if q.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", q.Limit)
	} else if q.Offset > 0 {
		// SQLite only accepts OFFSET after a LIMIT; -1 means unbounded.
		sqlQuery += " LIMIT -1"
	}

	if q.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", q.Offset)
	}

	return sqlQuery, args
}

// buildWhereClause builds a SQL WHERE clause from query filters.
// Returns the clause (without the "WHERE" keyword) and its arguments.
func buildWhereClause(q *audit.Query) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if q.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *q.StartTime)
	}
	if q.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *q.EndTime)
	}

	if q.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, q.RunID)
	}
	if q.ResourceID != "" {
		conditions = append(conditions, "resource_id = ?")
		args = append(args, q.ResourceID)
	}
	if q.ActionName != "" {
		conditions = append(conditions, "action_name = ?")
		args = append(args, q.ActionName)
	}
	if q.SubjectID != "" {
		conditions = append(conditions, "subject_id = ?")
		args = append(args, q.SubjectID)
	}

	if q.RuleID != "" {
		conditions = append(conditions, "rule_id = ?")
		args = append(args, q.RuleID)
	}
	if q.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, string(q.Outcome))
	}
	if q.Component != "" {
		conditions = append(conditions, "component = ?")
		args = append(args, string(q.Component))
	}

	whereClause := ""
	for i, condition := range conditions {
		if i > 0 {
			whereClause += " AND "
		}
		whereClause += condition
	}

	return whereClause, args
}

// scanDecision scans a database row into a Decision.
func scanDecision(rows *sql.Rows) (*audit.Decision, error) {
	var d audit.Decision
	var outcome, component string
	var ruleID, rulesetVersion, runID, resourceID, actionName, subjectID sql.NullString
	var stage, targetStage, resourceKind, prevHash, hash sql.NullString

	err := rows.Scan(
		&d.ID, &d.EventID,
		&ruleID, &rulesetVersion,
		&outcome, &d.Reason,
		&runID, &resourceID, &actionName, &subjectID,
		&stage, &targetStage, &resourceKind,
		&component,
		&prevHash, &hash,
		&d.Timestamp, &d.RecordedTime,
	)
	if err != nil {
		return nil, err
	}

	d.Outcome = audit.Outcome(outcome)
	d.Component = audit.Component(component)
	d.RuleID = ruleID.String
	d.RuleSetVersion = rulesetVersion.String
	d.RunID = runID.String
	d.ResourceID = resourceID.String
	d.ActionName = actionName.String
	d.SubjectID = subjectID.String
	d.Stage = stage.String
	d.TargetStage = targetStage.String
	d.ResourceKind = resourceKind.String
	d.PrevHash = prevHash.String
	d.Hash = hash.String

	return &d, nil
}

// nullable converts empty strings to NULL for optional columns.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
