package audit

import (
	"context"
	"io"
	"time"
)

// Outcome is the verdict carried by a Decision.
type Outcome string

const (
	// OutcomeAdmit permits the event; state was mutated.
	OutcomeAdmit Outcome = "admit"

	// OutcomeDeny refuses the event; no state change occurred.
	OutcomeDeny Outcome = "deny"

	// OutcomeRedact is advisory: the event is surfaced with detail withheld
	// or flagged for attention, without blocking anything.
	OutcomeRedact Outcome = "redact"
)

// Valid reports whether o is one of the defined outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeAdmit, OutcomeDeny, OutcomeRedact:
		return true
	}
	return false
}

// Component identifies which part of the engine produced a Decision.
type Component string

const (
	ComponentPipeline  Component = "pipeline"
	ComponentRegistry  Component = "registry"
	ComponentRateLimit Component = "ratelimit"
	ComponentRedact    Component = "redact"
	ComponentRules     Component = "rules"
)

// Decision is the sole unit appended to the audit log. It is immutable once
// written; no engine code path updates or deletes a stored decision.
type Decision struct {
	// Identity
	ID      string `json:"id"`       // UUID v4, assigned by the recorder
	EventID string `json:"event_id"` // Correlates with the triggering event

	// Rule provenance
	RuleID         string `json:"rule_id,omitempty"`         // Empty when no rule matched
	RuleSetVersion string `json:"ruleset_version,omitempty"` // Version in force at decision time

	// Verdict
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason"`

	// Subject key. Exactly one of RunID, ResourceID, or ActionName is set,
	// matching the component that produced the decision.
	RunID      string `json:"run_id,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
	ActionName string `json:"action_name,omitempty"`
	SubjectID  string `json:"subject_id,omitempty"` // Rate-limit subject, reviewer, or caller

	// Domain detail
	Stage        string `json:"stage,omitempty"`         // Pipeline stage at decision time
	TargetStage  string `json:"target_stage,omitempty"`  // Stage the transition aimed at
	ResourceKind string `json:"resource_kind,omitempty"` // Ephemeral resource kind

	Component Component `json:"component"`

	// Integrity chain
	PrevHash string `json:"prev_hash,omitempty"` // Hash of the preceding decision
	Hash     string `json:"hash,omitempty"`      // SHA-256 over the canonical record

	// Timestamps
	Timestamp    time.Time `json:"timestamp"`     // When the verdict was reached
	RecordedTime time.Time `json:"recorded_time"` // When the record was persisted
}

// SubjectKey returns the populated subject identifier, preferring run over
// resource over action. Empty when the decision carries no subject.
func (d *Decision) SubjectKey() string {
	switch {
	case d.RunID != "":
		return d.RunID
	case d.ResourceID != "":
		return d.ResourceID
	case d.ActionName != "":
		return d.ActionName
	}
	return ""
}

// Query defines filter parameters for retrieving decisions.
type Query struct {
	// Time range
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Subject filters
	RunID      string `json:"run_id,omitempty"`      // Filter by pipeline run
	ResourceID string `json:"resource_id,omitempty"` // Filter by ephemeral resource
	ActionName string `json:"action_name,omitempty"` // Filter by rate-limited action
	SubjectID  string `json:"subject_id,omitempty"`  // Filter by rate-limit subject

	// Verdict filters
	RuleID    string    `json:"rule_id,omitempty"`   // Filter by matched rule
	Outcome   Outcome   `json:"outcome,omitempty"`   // "admit", "deny", "redact"
	Component Component `json:"component,omitempty"` // Producing component

	// Pagination. A zero limit returns all matching records; the engine
	// substitutes its configured default before queries reach storage.
	Limit  int `json:"limit,omitempty"`  // Max records to return
	Offset int `json:"offset,omitempty"` // Skip N records

	// Sorting
	SortBy    string `json:"sort_by,omitempty"`    // "timestamp", "recorded_time"
	SortOrder string `json:"sort_order,omitempty"` // "asc", "desc"
}

// Storage defines the interface for decision storage backends.
// Implementations must be thread-safe and support concurrent access.
type Storage interface {
	// Store persists a decision record.
	// Returns an error if the record cannot be written.
	Store(ctx context.Context, d *Decision) error

	// Query retrieves decisions matching the query filters, ordered by
	// timestamp ascending unless the query says otherwise.
	// Returns an empty slice if no records match.
	Query(ctx context.Context, q *Query) ([]*Decision, error)

	// QueryStream returns a channel of decisions for memory-efficient
	// streaming over large result sets.
	//
	// Returns:
	//   - decisionCh: channel of decisions (buffered)
	//   - errCh: channel for errors (buffered, max 1 error)
	//   - error: immediate error (e.g., invalid query)
	//
	// Both channels are closed when the query completes or errors. Callers
	// should read from both until they are closed.
	QueryStream(ctx context.Context, q *Query) (<-chan *Decision, <-chan error, error)

	// Count returns the number of decisions matching the query filters.
	Count(ctx context.Context, q *Query) (int64, error)

	// LastHash returns the integrity hash of the most recently stored
	// decision, or empty if the log is empty. Recorders use it to seed the
	// hash chain after a restart.
	LastHash(ctx context.Context) (string, error)

	// Prune removes decisions older than the cutoff. Returns the number of
	// records removed. Reserved for the retention collaborator; engine code
	// never calls it.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases any resources held by the storage backend.
	Close() error
}

// Exporter writes decisions to an output stream in a specific format.
type Exporter interface {
	// Export writes the decisions to w in the exporter's format.
	Export(ctx context.Context, decisions []*Decision, w io.Writer) error
}

// StreamExporter writes decisions from a channel, for exports too large
// to hold in memory. The channel is read until it closes.
type StreamExporter interface {
	Exporter
	ExportStream(ctx context.Context, decisionCh <-chan *Decision, w io.Writer) error
}
