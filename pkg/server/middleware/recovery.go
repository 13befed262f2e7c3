package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery converts a handler panic into a 500 response instead of
// tearing down the connection. The panic value and stack land in the
// log; the client sees only a generic message. Recovery belongs at the
// outermost position of the chain so it also covers the other
// middleware.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(r.Context(), "panic in handler",
						"panic", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					writeError(w, r, http.StatusInternalServerError,
						"INTERNAL", "an internal error occurred")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
