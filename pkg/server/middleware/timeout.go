package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout caps the time budget of each request by attaching a deadline
// to its context. Handlers pass that context into the engine and its
// storage backends, so a request that outlives the budget fails with
// context.DeadlineExceeded and surfaces as 503 through the handler's
// error mapping. A non-positive d disables the deadline.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
