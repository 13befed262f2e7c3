package export

import (
	"context"
	"encoding/csv"
	"io"
	"time"

	"mercator-hq/ganymede/pkg/audit"
)

// CSVExporter exports decision records to CSV format.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{
		IncludeHeader: includeHeader,
	}
}

// Export writes decision records to the provided writer in CSV format.
func (e *CSVExporter) Export(ctx context.Context, decisions []*audit.Decision, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(headerRow()); err != nil {
			return audit.NewExportError("csv", len(decisions), err)
		}
	}

	for _, d := range decisions {
		if err := writer.Write(decisionToRow(d)); err != nil {
			return audit.NewExportError("csv", len(decisions), err)
		}
	}

	return nil
}

// ExportStream exports decision records from a channel to CSV format.
// This is memory-efficient for large result sets as it streams records
// one at a time instead of loading all records in memory.
//
// The CSV writer flushes periodically to provide progress feedback
// for long-running exports.
func (e *CSVExporter) ExportStream(ctx context.Context, decisionCh <-chan *audit.Decision, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(headerRow()); err != nil {
			return audit.NewExportError("csv", 0, err)
		}
	}

	recordCount := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case d, ok := <-decisionCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return audit.NewExportError("csv", recordCount, err)
				}
				return nil
			}

			if err := writer.Write(decisionToRow(d)); err != nil {
				return audit.NewExportError("csv", recordCount, err)
			}

			recordCount++

			// Flush every 100 records so long exports show progress
			if recordCount%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return audit.NewExportError("csv", recordCount, err)
				}
			}
		}
	}
}

// headerRow returns the CSV header row. Column order matches decisionToRow.
func headerRow() []string {
	return []string{
		"id", "event_id",
		"rule_id", "rule_set_version",
		"outcome", "reason",
		"run_id", "resource_id", "action_name", "subject_id",
		"stage", "target_stage", "resource_kind",
		"component",
		"prev_hash", "hash",
		"timestamp", "recorded_time",
	}
}

// decisionToRow converts a decision record to a CSV row.
func decisionToRow(d *audit.Decision) []string {
	formatTime := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(time.RFC3339Nano)
	}

	return []string{
		d.ID,
		d.EventID,
		d.RuleID,
		d.RuleSetVersion,
		string(d.Outcome),
		d.Reason,
		d.RunID,
		d.ResourceID,
		d.ActionName,
		d.SubjectID,
		d.Stage,
		d.TargetStage,
		d.ResourceKind,
		string(d.Component),
		d.PrevHash,
		d.Hash,
		formatTime(d.Timestamp),
		formatTime(d.RecordedTime),
	}
}
