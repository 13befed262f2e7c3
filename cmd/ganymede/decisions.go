package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/audit"
	"mercator-hq/ganymede/pkg/audit/export"
	"mercator-hq/ganymede/pkg/audit/recorder"
	"mercator-hq/ganymede/pkg/cli"
)

var decisionsFlags struct {
	timeRange string
	runID     string
	resource  string
	action    string
	subject   string
	rule      string
	outcome   string
	component string
	limit     int
	offset    int
	sortBy    string
	order     string
	format    string
	pretty    bool
	noHeader  bool
	output    string
}

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Inspect the decision log",
	Long: `Inspect the decision log.

Every verdict the engine reaches is appended to the decision log as an
immutable record, hash-chained to its predecessor. These commands read
the configured storage backend directly, so they work against the data
of a stopped engine as well as a running one.

Examples:
  # Recent denials
  ganymede decisions query --outcome deny

  # Every decision for one pipeline run
  ganymede decisions query --run-id run-42 --limit 0

  # Export a day of decisions to CSV
  ganymede decisions export --format csv \
    --time-range "2026-08-21T00:00:00Z/2026-08-22T00:00:00Z" \
    --output decisions.csv

  # Check hash chain integrity
  ganymede decisions verify`,
}

var decisionsQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query decision records",
	Long: `Query decision records with filters.

Time Range Format:
  RFC3339 interval format: "start/end"
  Example: "2026-08-21T00:00:00Z/2026-08-22T00:00:00Z"

Examples:
  # Denials in a time window
  ganymede decisions query --outcome deny \
    --time-range "2026-08-21T00:00:00Z/2026-08-22T00:00:00Z"

  # Rate limiter verdicts for one action
  ganymede decisions query --component ratelimit --action deploy

  # Everything a rule has ever decided, as JSON
  ganymede decisions query --rule review-quorum --limit 0 --format json`,
	RunE: queryDecisions,
}

var decisionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export decision records",
	Long: `Export decision records as JSON or CSV.

Records are streamed from storage, so exports of large logs run in
constant memory. Progress is reported on stderr when writing to a file.

Examples:
  # Full log as pretty JSON
  ganymede decisions export --pretty --output decisions.json

  # One run as CSV
  ganymede decisions export --format csv --run-id run-42 --output run-42.csv`,
	RunE: exportDecisions,
}

var decisionsVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify decision log integrity",
	Long: `Verify the hash chain over the decision log.

Each record carries a SHA-256 hash over its canonical content plus the
hash of the preceding record. Recomputing the chain detects tampering:
any edited, removed, or reordered record breaks every link after it.

Exits non-zero when the chain does not verify.`,
	RunE: verifyDecisions,
}

func init() {
	rootCmd.AddCommand(decisionsCmd)
	decisionsCmd.AddCommand(decisionsQueryCmd)
	decisionsCmd.AddCommand(decisionsExportCmd)
	decisionsCmd.AddCommand(decisionsVerifyCmd)

	for _, c := range []*cobra.Command{decisionsQueryCmd, decisionsExportCmd} {
		c.Flags().StringVar(&decisionsFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
		c.Flags().StringVar(&decisionsFlags.runID, "run-id", "", "filter by pipeline run")
		c.Flags().StringVar(&decisionsFlags.resource, "resource-id", "", "filter by ephemeral resource")
		c.Flags().StringVar(&decisionsFlags.action, "action", "", "filter by rate-limited action")
		c.Flags().StringVar(&decisionsFlags.subject, "subject", "", "filter by subject identifier")
		c.Flags().StringVar(&decisionsFlags.rule, "rule", "", "filter by matched rule ID")
		c.Flags().StringVar(&decisionsFlags.outcome, "outcome", "", "filter by outcome (admit, deny, redact)")
		c.Flags().StringVar(&decisionsFlags.component, "component", "", "filter by component (pipeline, registry, ratelimit, redact, rules)")
	}

	decisionsQueryCmd.Flags().IntVar(&decisionsFlags.limit, "limit", 100, "max results (0 for unlimited)")
	decisionsQueryCmd.Flags().IntVar(&decisionsFlags.offset, "offset", 0, "pagination offset")
	decisionsQueryCmd.Flags().StringVar(&decisionsFlags.sortBy, "sort", "", "sort field (timestamp, recorded_time)")
	decisionsQueryCmd.Flags().StringVar(&decisionsFlags.order, "order", "", "sort order (asc, desc)")
	decisionsQueryCmd.Flags().StringVar(&decisionsFlags.format, "format", "text", "output format (text, json)")
	decisionsQueryCmd.Flags().StringVarP(&decisionsFlags.output, "output", "o", "", "output file (default: stdout)")

	decisionsExportCmd.Flags().StringVar(&decisionsFlags.format, "format", "json", "export format (json, csv)")
	decisionsExportCmd.Flags().BoolVar(&decisionsFlags.pretty, "pretty", false, "indent JSON output")
	decisionsExportCmd.Flags().BoolVar(&decisionsFlags.noHeader, "no-header", false, "omit the CSV header row")
	decisionsExportCmd.Flags().StringVarP(&decisionsFlags.output, "output", "o", "", "output file (default: stdout)")
}

// buildDecisionQuery translates the shared filter flags into a storage
// query.
func buildDecisionQuery() (*audit.Query, error) {
	q := &audit.Query{
		RunID:      decisionsFlags.runID,
		ResourceID: decisionsFlags.resource,
		ActionName: decisionsFlags.action,
		SubjectID:  decisionsFlags.subject,
		RuleID:     decisionsFlags.rule,
	}

	if decisionsFlags.timeRange != "" {
		parts := strings.Split(decisionsFlags.timeRange, "/")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid time range format (expected: start/end)")
		}

		startTime, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid start time: %w", err)
		}
		q.StartTime = &startTime

		endTime, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid end time: %w", err)
		}
		q.EndTime = &endTime
	}

	if decisionsFlags.outcome != "" {
		o := audit.Outcome(decisionsFlags.outcome)
		if !o.Valid() {
			return nil, fmt.Errorf("invalid outcome %q (expected: admit, deny, redact)", decisionsFlags.outcome)
		}
		q.Outcome = o
	}

	if decisionsFlags.component != "" {
		switch c := audit.Component(decisionsFlags.component); c {
		case audit.ComponentPipeline, audit.ComponentRegistry, audit.ComponentRateLimit,
			audit.ComponentRedact, audit.ComponentRules:
			q.Component = c
		default:
			return nil, fmt.Errorf("invalid component %q (expected: pipeline, registry, ratelimit, redact, rules)", decisionsFlags.component)
		}
	}

	return q, nil
}

func queryDecisions(cmd *cobra.Command, args []string) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}

	query, err := buildDecisionQuery()
	if err != nil {
		return err
	}
	query.Limit = decisionsFlags.limit
	query.Offset = decisionsFlags.offset
	query.SortBy = decisionsFlags.sortBy
	query.SortOrder = decisionsFlags.order

	ctx := context.Background()
	store, err := openAuditStorage(ctx, &cfg.Audit)
	if err != nil {
		return cli.NewConfigError("", err)
	}
	defer store.Close()

	decisions, err := store.Query(ctx, query)
	if err != nil {
		return cli.NewCommandError("decisions query", err)
	}

	output := os.Stdout
	if decisionsFlags.output != "" {
		f, err := os.Create(decisionsFlags.output)
		if err != nil {
			return cli.NewCommandError("decisions query", fmt.Errorf("failed to create output file: %w", err))
		}
		defer f.Close()
		output = f
	}

	if decisionsFlags.format == "json" {
		formatter := cli.NewFormatter(cli.FormatJSON)
		return formatter.FormatTo(output, decisions)
	}

	return printDecisionTable(output, decisions)
}

func printDecisionTable(w io.Writer, decisions []*audit.Decision) error {
	fmt.Fprintf(w, "Total records: %d\n", len(decisions))
	if len(decisions) == 0 {
		return nil
	}
	fmt.Fprintln(w)

	table := cli.NewTable(w)
	table.Header("TIME", "COMPONENT", "OUTCOME", "RULE", "SUBJECT", "REASON")
	for _, d := range decisions {
		rule := d.RuleID
		if rule == "" {
			rule = "-"
		}
		subject := d.SubjectKey()
		if subject == "" {
			subject = "-"
		}
		table.Row(
			d.Timestamp.Format(time.RFC3339),
			string(d.Component),
			string(d.Outcome),
			rule,
			subject,
			d.Reason,
		)
	}
	return table.Flush()
}

func exportDecisions(cmd *cobra.Command, args []string) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}

	query, err := buildDecisionQuery()
	if err != nil {
		return err
	}
	query.SortBy = "recorded_time"
	query.SortOrder = "asc"

	var exporter audit.StreamExporter
	switch decisionsFlags.format {
	case "json":
		exporter = export.NewJSONExporter(decisionsFlags.pretty)
	case "csv":
		exporter = export.NewCSVExporter(!decisionsFlags.noHeader)
	default:
		return fmt.Errorf("invalid export format %q (expected: json, csv)", decisionsFlags.format)
	}

	ctx := context.Background()
	store, err := openAuditStorage(ctx, &cfg.Audit)
	if err != nil {
		return cli.NewConfigError("", err)
	}
	defer store.Close()

	output := os.Stdout
	var progress cli.ProgressReporter
	if decisionsFlags.output != "" {
		f, err := os.Create(decisionsFlags.output)
		if err != nil {
			return cli.NewCommandError("decisions export", fmt.Errorf("failed to create output file: %w", err))
		}
		defer f.Close()
		output = f

		total, err := store.Count(ctx, query)
		if err != nil {
			return cli.NewCommandError("decisions export", err)
		}
		progress = cli.NewProgressReporter(os.Stderr)
		progress.Start(total)
	}

	decisionCh, errCh, err := store.QueryStream(ctx, query)
	if err != nil {
		return cli.NewCommandError("decisions export", err)
	}

	exportCh := decisionCh
	if progress != nil {
		counted := make(chan *audit.Decision)
		go func() {
			defer close(counted)
			n := 0
			for d := range decisionCh {
				n++
				progress.Update(int64(n))
				counted <- d
			}
		}()
		exportCh = counted
	}

	if err := exporter.ExportStream(ctx, exportCh, output); err != nil {
		if progress != nil {
			progress.Error(err)
		}
		return cli.NewCommandError("decisions export", err)
	}
	if err := <-errCh; err != nil {
		if progress != nil {
			progress.Error(err)
		}
		return cli.NewCommandError("decisions export", err)
	}

	if progress != nil {
		progress.Finish()
		fmt.Fprintf(os.Stderr, "exported to %s\n", decisionsFlags.output)
	}
	return nil
}

func verifyDecisions(cmd *cobra.Command, args []string) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}

	query, err := buildDecisionQuery()
	if err != nil {
		return err
	}
	query.SortBy = "recorded_time"
	query.SortOrder = "asc"
	query.Limit = 0

	ctx := context.Background()
	store, err := openAuditStorage(ctx, &cfg.Audit)
	if err != nil {
		return cli.NewConfigError("", err)
	}
	defer store.Close()

	decisions, err := store.Query(ctx, query)
	if err != nil {
		return cli.NewCommandError("decisions verify", err)
	}

	if len(decisions) == 0 {
		fmt.Println("decision log is empty, nothing to verify")
		return nil
	}

	if idx := recorder.VerifyChain(decisions); idx >= 0 {
		d := decisions[idx]
		fmt.Printf("✗ chain broken at record %d of %d\n", idx+1, len(decisions))
		fmt.Printf("  id:       %s\n", d.ID)
		fmt.Printf("  recorded: %s\n", d.RecordedTime.Format(time.RFC3339))
		fmt.Printf("  outcome:  %s (%s)\n", d.Outcome, d.Component)
		return cli.NewCommandError("decisions verify", fmt.Errorf("hash chain broken at record %d", idx+1))
	}

	fmt.Printf("✓ hash chain intact over %d records\n", len(decisions))
	span := decisions[len(decisions)-1].RecordedTime.Sub(decisions[0].RecordedTime)
	fmt.Printf("  from %s to %s (%s)\n",
		decisions[0].RecordedTime.Format(time.RFC3339),
		decisions[len(decisions)-1].RecordedTime.Format(time.RFC3339),
		span.Round(time.Second))
	return nil
}
