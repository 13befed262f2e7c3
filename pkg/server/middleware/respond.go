package middleware

import (
	"encoding/json"
	"net/http"

	"mercator-hq/ganymede/pkg/telemetry/logging"
)

// errorBody is the JSON error envelope the middleware writes. It
// matches the shape the server's handlers use so clients see one
// format no matter which layer refused the request.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{
		Message:   message,
		Code:      code,
		RequestID: logging.RequestID(r.Context()),
	}})
}
