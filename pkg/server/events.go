package server

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/ganymede/pkg/audit"
	"mercator-hq/ganymede/pkg/engine"
	"mercator-hq/ganymede/pkg/registry"
)

// decisionResponse wraps a recorded decision. The decision is null when
// an event only recorded state, such as a check verdict that left the
// stage's check set incomplete.
type decisionResponse struct {
	Decision *audit.Decision `json:"decision"`
}

type resourceResponse struct {
	Resource *registry.EphemeralResource `json:"resource"`
}

type attemptResponse struct {
	Allowed           bool            `json:"allowed"`
	RetryAfterSeconds float64         `json:"retry_after_seconds,omitempty"`
	Remaining         float64         `json:"remaining"`
	Decision          *audit.Decision `json:"decision"`
}

// handleStageEvent ingests one pipeline progress event: a check verdict
// or an advance request.
func (s *Server) handleStageEvent(w http.ResponseWriter, r *http.Request) {
	var ev engine.StageEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		writeInvalid(w, r, err)
		return
	}
	if err := ev.Validate(); err != nil {
		writeInvalid(w, r, err)
		return
	}

	d, err := s.engine.HandleStageEvent(r.Context(), ev)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{Decision: d})
}

// handleReviewEvent ingests one reviewer verdict.
func (s *Server) handleReviewEvent(w http.ResponseWriter, r *http.Request) {
	var ev engine.ReviewEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		writeInvalid(w, r, err)
		return
	}
	if err := ev.Validate(); err != nil {
		writeInvalid(w, r, err)
		return
	}

	d, err := s.engine.HandleReviewEvent(r.Context(), ev)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{Decision: d})
}

// handleResourceEvent drives one resource lifecycle operation. A
// provision that clears quota answers 201 with the assigned resource;
// a quota refusal maps to 403 with the deny already in the decision
// log.
func (s *Server) handleResourceEvent(w http.ResponseWriter, r *http.Request) {
	var ev engine.ResourceEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		writeInvalid(w, r, err)
		return
	}
	if err := ev.Validate(); err != nil {
		writeInvalid(w, r, err)
		return
	}

	res, err := s.engine.HandleResourceEvent(r.Context(), ev)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if ev.Action == engine.ResourceProvision {
		status = http.StatusCreated
	}
	writeJSON(w, status, resourceResponse{Resource: res})
}

// handleAttempt runs one rate limited request attempt. A denial answers
// 429 with a Retry-After header rounded up to whole seconds.
func (s *Server) handleAttempt(w http.ResponseWriter, r *http.Request) {
	var ev engine.RequestAttempt
	if err := decodeJSON(w, r, &ev); err != nil {
		writeInvalid(w, r, err)
		return
	}
	if err := ev.Validate(); err != nil {
		writeInvalid(w, r, err)
		return
	}

	out, err := s.engine.HandleRequestAttempt(r.Context(), ev)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := attemptResponse{
		Allowed:   out.Allowed,
		Remaining: out.Remaining,
		Decision:  out.Decision,
	}
	if out.Allowed {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.RetryAfterSeconds = out.RetryAfter.Seconds()
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(out.RetryAfter)))
	writeJSON(w, http.StatusTooManyRequests, resp)
}

// retryAfterSeconds rounds d up to whole seconds, with a floor of one
// so clients never retry immediately.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
