// Package server provides the admin HTTP API in front of the decision
// engine.
//
// The server exposes event ingestion (pipeline stage and review events,
// resource lifecycle events, rate limited request attempts), the
// decision log query and export surface, rule set publication and
// validation, run and resource inspection, and on-demand maintenance
// triggers. Health probes and the Prometheus scrape endpoint mount on
// the same listener unless a separate metrics port is configured.
//
// # Basic Usage
//
//	eng, err := engine.New(ctx, cfg, &engine.Options{Logger: logger})
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	srv := server.NewServer(cfg, eng, &server.Options{Logger: logger})
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//
// Start blocks until the context is cancelled, a SIGINT or SIGTERM
// arrives, or Shutdown is called, then drains in-flight requests within
// the configured shutdown timeout.
//
// # Routes
//
// All API routes live under /v1 and answer JSON. Errors share one
// envelope:
//
//	{"error": {"message": "...", "code": "...", "request_id": "..."}}
//
// When API key authentication is enabled it guards the /v1 subtree
// only; liveness, readiness, version, and metrics endpoints stay open.
package server
