package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// ResponseRecorder wraps http.ResponseWriter to capture the status code
// and body size for logging and metrics. The zero status before any
// write reports as 200, matching net/http's implicit WriteHeader.
type ResponseRecorder struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

// NewResponseRecorder wraps w.
func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader records the status code. Only the first call counts.
func (rr *ResponseRecorder) WriteHeader(code int) {
	if !rr.written {
		rr.status = code
		rr.written = true
		rr.ResponseWriter.WriteHeader(code)
	}
}

// Write implicitly commits a 200 status if none was set.
func (rr *ResponseRecorder) Write(b []byte) (int, error) {
	if !rr.written {
		rr.WriteHeader(http.StatusOK)
	}
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	return n, err
}

// Status returns the recorded status code.
func (rr *ResponseRecorder) Status() int {
	return rr.status
}

// BytesWritten returns how many body bytes were written.
func (rr *ResponseRecorder) BytesWritten() int {
	return rr.bytes
}

// Logging logs one line per completed request with method, path,
// status, duration, and body size. Responses in the 4xx range log at
// warn, 5xx at error. The request id is picked up from the context by
// the logger's scope handler, so Logging should sit inside RequestID
// in the chain.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rr := NewResponseRecorder(w)

			logger.DebugContext(r.Context(), "request started",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			next.ServeHTTP(rr, r)

			level := slog.LevelInfo
			switch {
			case rr.Status() >= 500:
				level = slog.LevelError
			case rr.Status() >= 400:
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rr.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes", rr.BytesWritten(),
			)
		})
	}
}
