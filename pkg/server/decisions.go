package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/ganymede/pkg/audit"
	"mercator-hq/ganymede/pkg/audit/export"
)

type decisionListResponse struct {
	Decisions []*audit.Decision `json:"decisions"`
	Count     int64             `json:"count"`
}

// handleListDecisions queries the decision log. Filters, pagination,
// and sorting arrive as query parameters; the count reflects all
// matches, not just the returned page.
func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	q, err := decisionQuery(r)
	if err != nil {
		writeInvalid(w, r, err)
		return
	}

	decisions, err := s.engine.ListDecisions(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	count, err := s.engine.CountDecisions(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if decisions == nil {
		decisions = []*audit.Decision{}
	}
	writeJSON(w, http.StatusOK, decisionListResponse{Decisions: decisions, Count: count})
}

// handleExportDecisions streams matching decisions as a JSON or CSV
// download. The same filters as the query endpoint apply.
func (s *Server) handleExportDecisions(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		writeInvalid(w, r, fmt.Errorf("unknown export format %q, want json or csv", format))
		return
	}

	q, err := decisionQuery(r)
	if err != nil {
		writeInvalid(w, r, err)
		return
	}

	decisions, err := s.engine.ListDecisions(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var exportErr error
	switch format {
	case "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="decisions.json"`)
		exportErr = export.NewJSONExporter(false).Export(r.Context(), decisions, w)
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="decisions.csv"`)
		exportErr = export.NewCSVExporter(true).Export(r.Context(), decisions, w)
	}
	if exportErr != nil {
		// Headers are out, so all that is left is the log.
		s.logger.ErrorContext(r.Context(), "decision export failed",
			"format", format,
			"error", exportErr,
		)
	}
}

// decisionQuery builds an audit query from request parameters.
func decisionQuery(r *http.Request) (*audit.Query, error) {
	vals := r.URL.Query()
	q := &audit.Query{
		RunID:      vals.Get("run_id"),
		ResourceID: vals.Get("resource_id"),
		ActionName: vals.Get("action_name"),
		SubjectID:  vals.Get("subject_id"),
		RuleID:     vals.Get("rule_id"),
		Component:  audit.Component(vals.Get("component")),
		SortBy:     vals.Get("sort_by"),
		SortOrder:  vals.Get("sort_order"),
	}

	if v := vals.Get("outcome"); v != "" {
		outcome := audit.Outcome(v)
		if !outcome.Valid() {
			return nil, fmt.Errorf("unknown outcome %q, want admit, deny, or redact", v)
		}
		q.Outcome = outcome
	}

	if v := vals.Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid start_time: %w", err)
		}
		q.StartTime = &t
	}
	if v := vals.Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid end_time: %w", err)
		}
		q.EndTime = &t
	}

	if v := vals.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid limit %q", v)
		}
		q.Limit = n
	}
	if v := vals.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid offset %q", v)
		}
		q.Offset = n
	}

	return q, nil
}
