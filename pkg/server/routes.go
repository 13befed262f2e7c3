package server

import (
	"net/http"
	"strings"
	"time"

	"mercator-hq/ganymede/pkg/server/middleware"
	"mercator-hq/ganymede/pkg/telemetry/health"
)

// buildHandler assembles the route table and the middleware chain.
// API key authentication guards only the /v1 subtree; probes and the
// scrape endpoint answer unauthenticated.
func (s *Server) buildHandler() http.Handler {
	mux := http.NewServeMux()

	health.Mount(mux, &s.config.Telemetry.Health, s.checker, s.buildInfo)

	mc := s.config.Telemetry.Metrics
	if mc.Enabled && mc.Port == 0 && s.collector != nil {
		mux.Handle(mc.Path, s.collector.Handler())
	}

	api := http.NewServeMux()

	s.route(api, "POST /v1/events/stage", s.handleStageEvent)
	s.route(api, "POST /v1/events/review", s.handleReviewEvent)
	s.route(api, "POST /v1/events/resource", s.handleResourceEvent)
	s.route(api, "POST /v1/attempts", s.handleAttempt)

	s.route(api, "GET /v1/decisions", s.handleListDecisions)
	s.route(api, "GET /v1/decisions/export", s.handleExportDecisions)

	s.route(api, "GET /v1/rules", s.handleGetRules)
	s.route(api, "POST /v1/rules", s.handlePublishRules)
	s.route(api, "POST /v1/rules/validate", s.handleValidateRules)

	s.route(api, "GET /v1/runs", s.handleListRuns)
	s.route(api, "GET /v1/runs/{id}", s.handleGetRun)
	s.route(api, "POST /v1/runs/{id}/abort", s.handleAbortRun)

	s.route(api, "GET /v1/resources", s.handleListResources)
	s.route(api, "GET /v1/resources/{id}", s.handleGetResource)

	s.route(api, "GET /v1/stats", s.handleStats)
	s.route(api, "POST /v1/maintenance/sweep", s.handleSweep)
	s.route(api, "POST /v1/maintenance/scan", s.handleScan)
	s.route(api, "POST /v1/maintenance/prune", s.handlePrune)

	mux.Handle("/v1/", middleware.Auth(&s.config.Security.Authentication)(api))

	var handler http.Handler = mux
	handler = middleware.Timeout(s.config.Server.WriteTimeout)(handler)
	handler = middleware.Logging(s.logger)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(s.logger)(handler)

	return handler
}

// route registers pattern with per-route HTTP metrics. The route label
// is the path part of the pattern, so wildcard segments stay bounded.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(routePath(pattern), h))
}

func (s *Server) instrument(route string, next http.Handler) http.Handler {
	if s.collector == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := middleware.NewResponseRecorder(w)

		next.ServeHTTP(rr, r)

		s.collector.RecordHTTPRequest(r.Method, route, rr.Status(), time.Since(start))
	})
}

// routePath strips the method prefix from a ServeMux pattern.
func routePath(pattern string) string {
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		return pattern[i+1:]
	}
	return pattern
}
