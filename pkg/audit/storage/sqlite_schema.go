package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the decision log schema.
// seq gives the log its append order independent of decision timestamps.
const Schema = `
-- Decision log table
CREATE TABLE IF NOT EXISTS decisions (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    event_id TEXT NOT NULL,

    -- Rule provenance
    rule_id TEXT,
    ruleset_version TEXT,

    -- Verdict
    outcome TEXT NOT NULL,
    reason TEXT NOT NULL,

    -- Subject key
    run_id TEXT,
    resource_id TEXT,
    action_name TEXT,
    subject_id TEXT,

    -- Domain detail
    stage TEXT,
    target_stage TEXT,
    resource_kind TEXT,

    component TEXT NOT NULL,

    -- Integrity chain
    prev_hash TEXT,
    hash TEXT,

    -- Timestamps
    timestamp TIMESTAMP NOT NULL,
    recorded_time TIMESTAMP NOT NULL
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions(timestamp);
CREATE INDEX IF NOT EXISTS idx_decisions_run_id ON decisions(run_id);
CREATE INDEX IF NOT EXISTS idx_decisions_resource_id ON decisions(resource_id);
CREATE INDEX IF NOT EXISTS idx_decisions_action_name ON decisions(action_name);
CREATE INDEX IF NOT EXISTS idx_decisions_outcome ON decisions(outcome);
CREATE INDEX IF NOT EXISTS idx_decisions_component ON decisions(component);
CREATE INDEX IF NOT EXISTS idx_decisions_event_id ON decisions(event_id);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
