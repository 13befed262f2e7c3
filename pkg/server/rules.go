package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"mercator-hq/ganymede/pkg/rules"
	"mercator-hq/ganymede/pkg/rules/parse"
	"mercator-hq/ganymede/pkg/telemetry/logging"
)

type ruleSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	SubjectKind  string `json:"subject_kind"`
	SubjectValue string `json:"subject_value,omitempty"`
	Effect       string `json:"effect"`
	Priority     int    `json:"priority"`
	Reason       string `json:"reason,omitempty"`
}

type rulesetResponse struct {
	Version   string        `json:"version"`
	CreatedAt time.Time     `json:"created_at"`
	RuleCount int           `json:"rule_count"`
	Rules     []ruleSummary `json:"rules"`
}

type publishResponse struct {
	Version   string `json:"version"`
	RuleCount int    `json:"rule_count"`
}

type validationResponse struct {
	Valid     bool        `json:"valid"`
	RuleCount int         `json:"rule_count,omitempty"`
	Errors    []ruleError `json:"errors,omitempty"`
}

type ruleError struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// handleGetRules reports the rule set in force.
func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	set := s.engine.ActiveRuleSet()

	list := set.Rules()
	summaries := make([]ruleSummary, len(list))
	for i, rule := range list {
		summaries[i] = ruleSummary{
			ID:           rule.ID,
			Name:         rule.Name,
			SubjectKind:  string(rule.Subject.Kind),
			SubjectValue: rule.Subject.Value,
			Effect:       string(rule.Effect),
			Priority:     rule.Priority,
			Reason:       rule.Reason,
		}
	}

	writeJSON(w, http.StatusOK, rulesetResponse{
		Version:   set.Version(),
		CreatedAt: set.CreatedAt(),
		RuleCount: len(list),
		Rules:     summaries,
	})
}

// handlePublishRules parses the YAML rule file in the request body and
// publishes it as the new active rule set. Parse and validation
// failures answer 422 with every problem found, line positions
// included.
func (s *Server) handlePublishRules(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.parseRuleBody(w, r)
	if !ok {
		return
	}

	version, err := s.engine.PublishRuleSet(doc.Rules)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: errorDetail{
			Message:   err.Error(),
			Code:      "INVALID_RULESET",
			RequestID: logging.RequestID(r.Context()),
		}})
		return
	}

	s.logger.InfoContext(r.Context(), "rule set published via api",
		"version", version,
		"rule_count", len(doc.Rules),
	)
	writeJSON(w, http.StatusCreated, publishResponse{Version: version, RuleCount: len(doc.Rules)})
}

// handleValidateRules dry-runs the parse and set construction without
// touching the active rules.
func (s *Server) handleValidateRules(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.parseRuleBody(w, r)
	if !ok {
		return
	}

	if _, err := rules.NewRuleSet(doc.Rules); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
			Valid:  false,
			Errors: []ruleError{{Type: string(parse.ErrorTypeSemantic), Message: err.Error()}},
		})
		return
	}

	writeJSON(w, http.StatusOK, validationResponse{Valid: true, RuleCount: len(doc.Rules)})
}

// parseRuleBody reads and parses the YAML body, writing the error
// response itself when the file does not hold a publishable rule set.
func (s *Server) parseRuleBody(w http.ResponseWriter, r *http.Request) (*parse.Document, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeInvalid(w, r, err)
		return nil, false
	}
	if len(body) == 0 {
		writeInvalid(w, r, errors.New("request body is empty"))
		return nil, false
	}

	doc, err := parse.NewParser().ParseBytes(body, "request")
	if err != nil {
		var list *parse.ErrorList
		if errors.As(err, &list) {
			writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
				Valid:  false,
				Errors: parseErrors(list.Errors),
			})
			return nil, false
		}
		var single *parse.Error
		if errors.As(err, &single) {
			writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
				Valid:  false,
				Errors: parseErrors([]*parse.Error{single}),
			})
			return nil, false
		}
		writeInvalid(w, r, err)
		return nil, false
	}
	return doc, true
}

func parseErrors(list []*parse.Error) []ruleError {
	out := make([]ruleError, len(list))
	for i, e := range list {
		out[i] = ruleError{
			Type:       string(e.Type),
			Message:    e.Message,
			Line:       e.Location.Line,
			Column:     e.Location.Column,
			Suggestion: e.Suggestion,
		}
	}
	return out
}
