// Package errors defines the categorized error type used across the
// service layer and its mapping onto HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents malformed or missing input (400)
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents a missing coin, series or empty listing (404)
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryUpstream represents market data provider failures
	CategoryUpstream ErrorCategory = "upstream"
	// CategoryPersistence represents database failures
	CategoryPersistence ErrorCategory = "persistence"
	// CategorySystem represents anything else
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// NewValidationError reports a bad parameter value
func NewValidationError(param, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewNotFoundError reports a resource that does not exist in storage
func NewNotFoundError(resource, id string) *CategorizedError {
	msg := fmt.Sprintf("%s not found: %s", resource, id)
	if id == "" {
		msg = fmt.Sprintf("no %s available", resource)
	}
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    msg,
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewUpstreamError wraps a provider failure. The status is 500 so that
// callers see one failure class for upstream and internal errors.
func NewUpstreamError(provider, operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusInternalServerError,
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s %s failed", provider, operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"provider":  provider,
			"operation": operation,
		},
	}
}

// NewUpstreamStatusError records a non-2xx provider response
func NewUpstreamStatusError(provider, operation string, status int) *CategorizedError {
	err := NewUpstreamError(provider, operation, fmt.Errorf("unexpected status %d", status))
	err.Details["status"] = status
	return err
}

// NewPersistenceError wraps a database failure
func NewPersistenceError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPersistence,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize finds the first CategorizedError in err's chain,
// treating anything else as internal
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}
	return NewInternalError("unexpected error", err)
}

func hasCategory(err error, category ErrorCategory) bool {
	var catErr *CategorizedError
	return errors.As(err, &catErr) && catErr.Category == category
}

// IsValidation reports whether err is a validation failure
func IsValidation(err error) bool { return hasCategory(err, CategoryValidation) }

// IsNotFound reports whether err is a not-found failure
func IsNotFound(err error) bool { return hasCategory(err, CategoryNotFound) }

// IsUpstream reports whether err came from the market data provider
func IsUpstream(err error) bool { return hasCategory(err, CategoryUpstream) }

// IsPersistence reports whether err came from the database
func IsPersistence(err error) bool { return hasCategory(err, CategoryPersistence) }

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether repeating the operation could succeed
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	switch catErr.Category {
	case CategoryUpstream, CategoryPersistence:
		return true
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
