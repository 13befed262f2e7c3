package server

import (
	"errors"
	"io"
	"net/http"
	"sort"

	"mercator-hq/ganymede/pkg/pipeline"
)

type runListResponse struct {
	Runs  []*pipeline.PipelineRun `json:"runs"`
	Count int                     `json:"count"`
}

type runResponse struct {
	Run *pipeline.PipelineRun `json:"run"`
}

type abortRequest struct {
	Reason string `json:"reason"`
}

// handleListRuns reports every tracked pipeline run, terminal ones
// included until eviction, sorted by id for stable output.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.engine.Runs(r.Context())
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })

	writeJSON(w, http.StatusOK, runListResponse{Runs: runs, Count: len(runs)})
}

// handleGetRun reports one run by id.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.Run(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run})
}

// handleAbortRun force-terminates a run. The optional body carries the
// reason recorded on the abort decision.
func (s *Server) handleAbortRun(w http.ResponseWriter, r *http.Request) {
	var req abortRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeInvalid(w, r, err)
		return
	}
	if req.Reason == "" {
		req.Reason = "aborted via admin api"
	}

	d, err := s.engine.AbortRun(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{Decision: d})
}
