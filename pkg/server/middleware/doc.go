// Package middleware provides the HTTP middleware chain for the admin
// API server: request id propagation, structured request logging, panic
// recovery, per-request deadlines, and API key authentication.
//
// Middleware compose as func(http.Handler) http.Handler and are applied
// by the server from the innermost out, so the recovery layer wraps
// everything else:
//
//	var h http.Handler = mux
//	h = middleware.Timeout(30 * time.Second)(h)
//	h = middleware.Logging(logger)(h)
//	h = middleware.RequestID(h)
//	h = middleware.Recovery(logger)(h)
//
// Request ids ride the context through the scope carriers in
// pkg/telemetry/logging, so any handler logging with a context-aware
// logger picks them up without further plumbing.
package middleware
