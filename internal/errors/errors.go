// Package errors defines the structured API error responses the HTTP
// layer renders, plus the mapping from domain failures to status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"

	"sfcli/internal/reconcile"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ValidationError represents validation errors
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Predefined error types for common scenarios
var (
	// 400 Bad Request
	ErrInvalidRequest   = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
	ErrValidationFailed = New(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed")
	ErrMissingParameter = New(http.StatusBadRequest, "MISSING_PARAMETER", "Required parameter is missing")
	ErrInvalidParameter = New(http.StatusBadRequest, "INVALID_PARAMETER", "Invalid parameter value")

	// 401 Unauthorized
	ErrUnauthorized = New(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")

	// 403 Forbidden
	ErrForbidden = New(http.StatusForbidden, "FORBIDDEN", "Access denied")

	// 404 Not Found
	ErrNotFound         = New(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	ErrRunNotFound      = New(http.StatusNotFound, "RUN_NOT_FOUND", "Evaluation run not found")
	ErrArtifactNotFound = New(http.StatusNotFound, "ARTIFACT_NOT_FOUND", "Forecast artifact not found")

	// 409 Conflict
	ErrConflict        = New(http.StatusConflict, "CONFLICT", "Resource conflict")
	ErrPipelineRunning = New(http.StatusConflict, "PIPELINE_RUNNING", "A pipeline run is already in progress")

	// 422 Unprocessable Entity
	ErrUnprocessableEntity = New(http.StatusUnprocessableEntity, "UNPROCESSABLE_ENTITY", "Request could not be processed")
	ErrDimensionMismatch   = New(http.StatusUnprocessableEntity, "DIMENSION_MISMATCH", "Forecast vector does not match the hierarchy")
	ErrSingularMatrix      = New(http.StatusUnprocessableEntity, "SINGULAR_MATRIX", "Reconciliation matrix is singular")

	// 429 Too Many Requests
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")

	// 500 Internal Server Error
	ErrInternalServer = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
	ErrPipelineFailed = New(http.StatusInternalServerError, "PIPELINE_FAILED", "Pipeline execution failed")
	ErrFileSystem     = New(http.StatusInternalServerError, "FILESYSTEM_ERROR", "File system error")

	// 503 Service Unavailable
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable")
)

// InvalidRequestWithError creates an invalid request error with details
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}

// ErrValidation creates a validation error with field details
func ErrValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", ValidationError{
		Field:   field,
		Message: message,
	})
}

// NotFoundError creates a not found error with details
func NotFoundError(resource string) *APIError {
	return NewWithDetails(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource), resource)
}

// FromDomain maps a domain failure onto the matching API error. Unknown
// errors become internal server errors without leaking their text.
func FromDomain(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var dimErr *reconcile.DimensionError
	if errors.As(err, &dimErr) {
		return NewWithDetails(http.StatusUnprocessableEntity, "DIMENSION_MISMATCH",
			"Forecast vector does not match the hierarchy", dimErr.Error())
	}
	if errors.Is(err, reconcile.ErrSingular) {
		return NewWithDetails(http.StatusUnprocessableEntity, "SINGULAR_MATRIX",
			"Reconciliation matrix is singular", err.Error())
	}

	return ErrInternalServer
}
