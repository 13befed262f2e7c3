package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecovery(t *testing.T) {
	t.Run("panic becomes a 500 with the error envelope", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := slog.New(slog.NewJSONHandler(buf, nil))

		handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("ruleset pointer was nil")
		}))

		req := httptest.NewRequest(http.MethodPost, "/v1/events/stage", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", w.Code)
		}

		var body struct {
			Error struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("response is not the JSON envelope: %v", err)
		}
		if body.Error.Code != "INTERNAL" {
			t.Errorf("code = %q, want INTERNAL", body.Error.Code)
		}
		if strings.Contains(body.Error.Message, "ruleset pointer") {
			t.Error("panic detail leaked into the client response")
		}
	})

	t.Run("panic value and stack are logged", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := slog.New(slog.NewJSONHandler(buf, nil))

		handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

		logged := buf.String()
		if !strings.Contains(logged, "panic in handler") {
			t.Error("panic was not logged")
		}
		if !strings.Contains(logged, "boom") {
			t.Error("panic value missing from log")
		}
		if !strings.Contains(logged, "stack") {
			t.Error("stack trace missing from log")
		}
	})

	t.Run("healthy handlers pass through untouched", func(t *testing.T) {
		logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
		handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/rules", nil))

		if w.Code != http.StatusCreated {
			t.Errorf("status = %d, want 201", w.Code)
		}
	})
}
