package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/crypto-assistant/internal/errors"
	"github.com/crypto-assistant/internal/logging"
)

// Envelope is the body of every JSON response
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Query   string      `json:"query,omitempty"`
	Cached  *bool       `json:"cached,omitempty"`
	Count   *int        `json:"count,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Common error codes
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			logging.WithError(err).Warn("Failed to encode response")
		}
	}
}

// respondError sends a failed envelope.
func respondError(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, Envelope{Success: false, Code: code, Message: message})
}

// respondServiceError maps a service error onto 400, 404 or 500.
// Internal details are logged, not returned.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapServiceError(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).Error("Request failed")
	}
	respondError(w, status, code, message)
}

// mapServiceError maps service errors to HTTP status codes.
func mapServiceError(err error) (int, string, string) {
	catErr := apperrors.Categorize(err)
	switch catErr.Category {
	case apperrors.CategoryValidation:
		return http.StatusBadRequest, ErrCodeInvalidInput, catErr.Message
	case apperrors.CategoryNotFound:
		return http.StatusNotFound, ErrCodeNotFound, catErr.Message
	default:
		return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred"
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	return decoder.Decode(v)
}
