package api

import (
	"net/http"

	"github.com/goccy/go-json"
)

// Pagination is the pagination metadata block of a list response.
type Pagination struct {
	Mode       string `json:"mode"` // "offset", "cursor", or "none"
	Page       int    `json:"page,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Total      int    `json:"total,omitempty"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// Envelope is the success response body.
type Envelope struct {
	Data       any            `json:"data"`
	Pagination *Pagination    `json:"pagination,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ErrorBody is the error response body.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code, a client-safe message, and the
// correlation ID. Raw upstream error text never appears here.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
	Details   any    `json:"details,omitempty"`
}

// Error codes surfaced to clients.
const (
	codeRateLimited     = "RATE_LIMITED"
	codeValidation      = "VALIDATION_ERROR"
	codeInvalidCursor   = "INVALID_CURSOR"
	codeNotFound        = "NOT_FOUND"
	codeUpstreamUnavail = "UPSTREAM_UNAVAILABLE"
	codeInternal        = "INTERNAL_ERROR"
)

// writeJSON serializes v with the given status. Headers must already be set.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	writeJSON(w, status, ErrorBody{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			RequestID: RequestID(r.Context()),
			Details:   details,
		},
	})
}
