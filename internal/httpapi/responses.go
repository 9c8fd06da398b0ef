package httpapi

import (
	"net/http"

	"github.com/goccy/go-json"

	gwerrors "github.com/modelgate/gateway/pkg/errors"
)

// ErrorResponse is the gateway's JSON error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes the error payload.
type ErrorDetail struct {
	Message    string  `json:"message"`
	Type       string  `json:"type"`
	RetryAfter float64 `json:"retry_after,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError reports status as the gateway's closed error taxonomy would,
// keyed by errType (a gwerrors.Kind for anything admission- or
// component-failure related, or a handler-local string for purely
// request-shape problems that don't warrant a Kind of their own).
func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Message: message, Type: errType}})
}

// writeGatewayError renders a GatewayError using its own Kind and
// HTTPStatusCode rather than a status/type pair the caller has to keep in
// sync by hand.
func writeGatewayError(w http.ResponseWriter, err *gwerrors.GatewayError) {
	writeJSON(w, err.HTTPStatusCode(), ErrorResponse{Error: ErrorDetail{
		Message:    err.Message,
		Type:       string(err.Kind),
		RetryAfter: err.RetryAfter,
	}})
}
