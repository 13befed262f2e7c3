package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/ganymede/pkg/telemetry/logging"
)

func TestRequestID(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logging.RequestID(r.Context()) == "" {
			t.Error("request id missing from context")
		}
		w.WriteHeader(http.StatusOK)
	})
	wrapped := RequestID(handler)

	t.Run("generates an id when the client sends none", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
		w := httptest.NewRecorder()

		wrapped.ServeHTTP(w, req)

		id := w.Header().Get(RequestIDHeader)
		if id == "" {
			t.Fatal("response is missing the X-Request-ID header")
		}
		if len(id) < 16 {
			t.Errorf("generated id %q looks too short", id)
		}
	})

	t.Run("honors a client-supplied id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
		req.Header.Set(RequestIDHeader, "upstream-7f3a")
		w := httptest.NewRecorder()

		wrapped.ServeHTTP(w, req)

		if got := w.Header().Get(RequestIDHeader); got != "upstream-7f3a" {
			t.Errorf("request id = %q, want upstream-7f3a", got)
		}
	})

	t.Run("ids are unique across requests", func(t *testing.T) {
		ids := make(map[string]bool)
		for i := 0; i < 10; i++ {
			req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
			w := httptest.NewRecorder()
			wrapped.ServeHTTP(w, req)
			ids[w.Header().Get(RequestIDHeader)] = true
		}
		if len(ids) != 10 {
			t.Errorf("expected 10 distinct ids, got %d", len(ids))
		}
	})
}
