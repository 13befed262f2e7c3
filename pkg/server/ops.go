package server

import (
	"net/http"
)

type statsResponse struct {
	Pipeline pipelineStats `json:"pipeline"`
	Registry registryStats `json:"registry"`
	Limiter  limiterStats  `json:"limiter"`
	RuleSet  ruleSetStats  `json:"ruleset"`
}

type pipelineStats struct {
	Runs   int    `json:"runs"`
	Active int    `json:"active"`
	Admits uint64 `json:"admits"`
	Denies uint64 `json:"denies"`
	Aborts uint64 `json:"aborts"`
	Scans  uint64 `json:"scans"`
}

type registryStats struct {
	Live        int    `json:"live"`
	Provisioned uint64 `json:"provisioned"`
	Denied      uint64 `json:"denied"`
	Destroyed   uint64 `json:"destroyed"`
	Sweeps      uint64 `json:"sweeps"`
}

type limiterStats struct {
	Buckets int    `json:"buckets"`
	Admits  uint64 `json:"admits"`
	Denies  uint64 `json:"denies"`
}

type ruleSetStats struct {
	Version   string `json:"version"`
	RuleCount int    `json:"rule_count"`
}

type sweepResponse struct {
	Scanned   int  `json:"scanned"`
	Destroyed int  `json:"destroyed"`
	Failed    int  `json:"failed"`
	Skipped   bool `json:"skipped"`
}

type scanResponse struct {
	Scanned int  `json:"scanned"`
	Stale   int  `json:"stale"`
	Skipped bool `json:"skipped"`
}

type pruneResponse struct {
	Pruned int64 `json:"pruned"`
}

// handleStats reports a counter snapshot across all components.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Stats(r.Context())
	writeJSON(w, http.StatusOK, statsResponse{
		Pipeline: pipelineStats{
			Runs:   st.Pipeline.Runs,
			Active: st.Pipeline.Active,
			Admits: st.Pipeline.Admits,
			Denies: st.Pipeline.Denies,
			Aborts: st.Pipeline.Aborts,
			Scans:  st.Pipeline.Scans,
		},
		Registry: registryStats{
			Live:        st.Registry.Live,
			Provisioned: st.Registry.Provisioned,
			Denied:      st.Registry.Denied,
			Destroyed:   st.Registry.Destroyed,
			Sweeps:      st.Registry.Sweeps,
		},
		Limiter: limiterStats{
			Buckets: st.Limiter.Buckets,
			Admits:  st.Limiter.Admits,
			Denies:  st.Limiter.Denies,
		},
		RuleSet: ruleSetStats{
			Version:   st.RuleSetVersion,
			RuleCount: st.RuleCount,
		},
	})
}

// handleSweep runs one resource expiry sweep outside the schedule.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.SweepResources(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{
		Scanned:   res.Scanned,
		Destroyed: res.Destroyed,
		Failed:    res.Failed,
		Skipped:   res.Skipped,
	})
}

// handleScan runs one stale-run scan outside the schedule.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.ScanStaleRuns(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{
		Scanned: res.Scanned,
		Stale:   res.Stale,
		Skipped: res.Skipped,
	})
}

// handlePrune applies the retention policy to the decision log now.
func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.PruneDecisions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pruneResponse{Pruned: n})
}
