package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"mercator-hq/ganymede/pkg/telemetry/logging"
)

// maxBodyBytes caps request bodies. Rule files and events are small;
// anything past this is a client error.
const maxBodyBytes = 1 << 20

// errorResponse is the JSON envelope every refused request carries.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and code and writes the envelope.
// Messages on 5xx responses pass through the engine's redactor first,
// so infrastructure detail stays out of production responses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = s.engine.RedactError(err).Error()
	}
	writeJSON(w, status, errorResponse{Error: errorDetail{
		Message:   message,
		Code:      code,
		RequestID: logging.RequestID(r.Context()),
	}})
}

// writeInvalid rejects a malformed request with a 400.
func writeInvalid(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorDetail{
		Message:   err.Error(),
		Code:      "BAD_REQUEST",
		RequestID: logging.RequestID(r.Context()),
	}})
}

// coded is implemented by the engine's domain errors. The stable codes
// drive the HTTP status mapping without the server knowing each
// concrete type.
type coded interface {
	Code() string
}

func statusFor(err error) (int, string) {
	var c coded
	if errors.As(err, &c) {
		switch c.Code() {
		case "UNKNOWN_RUN", "UNKNOWN_RESOURCE":
			return http.StatusNotFound, c.Code()
		case "QUOTA_EXCEEDED":
			return http.StatusForbidden, c.Code()
		default:
			return http.StatusInternalServerError, c.Code()
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, "TIMEOUT"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// decodeJSON reads one JSON body into v, rejecting unknown fields and
// trailing garbage.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid request body: unexpected trailing data")
	}
	return nil
}
