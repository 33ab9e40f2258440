// Package errors provides the gateway's standardized error type and its
// mapping onto HTTP responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrCodeInvalidPath      ErrorCode = "INVALID_PATH"
	ErrCodePathNotFound     ErrorCode = "PATH_NOT_FOUND"
	ErrCodeShapeChange      ErrorCode = "SHAPE_CHANGE_REJECTED"
	ErrCodeRouteNotFound    ErrorCode = "ROUTE_NOT_FOUND"
	ErrCodeVersionConflict  ErrorCode = "VERSION_CONFLICT"
	ErrCodeDraftNotFound    ErrorCode = "DRAFT_NOT_FOUND"
	ErrCodeDraftSubmitted   ErrorCode = "DRAFT_ALREADY_SUBMITTED"
	ErrCodeSubmitInProgress ErrorCode = "SUBMISSION_IN_PROGRESS"
	ErrCodeValidationFailed ErrorCode = "FORM_VALIDATION_FAILED"

	ErrCodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateInvalid  ErrorCode = "TEMPLATE_INVALID"

	ErrCodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrCodeUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeUpstreamResponse    ErrorCode = "UPSTREAM_BAD_RESPONSE"

	ErrCodeDatabaseFailure ErrorCode = "DATABASE_FAILURE"
	ErrCodeSearchFailed    ErrorCode = "SEARCH_FAILED"
	ErrCodeSearchDisabled  ErrorCode = "SEARCH_DISABLED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata returns e with key set in its metadata map.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewInvalidRequestError creates a non-retryable malformed-request error.
func NewInvalidRequestError(details string) *StandardError {
	return newError(ErrCodeInvalidRequest, "Invalid request", details, false)
}

func NewInvalidPathError(err error) *StandardError {
	return newError(ErrCodeInvalidPath, "Invalid document path", err.Error(), false)
}

func NewPathNotFoundError(err error) *StandardError {
	return newError(ErrCodePathNotFound, "Document path not found", err.Error(), false)
}

func NewShapeChangeError(err error) *StandardError {
	return newError(ErrCodeShapeChange, "Change would restructure the form document", err.Error(), false)
}

func NewRouteNotFoundError(method, path string) *StandardError {
	return newError(ErrCodeRouteNotFound, "Route not found", fmt.Sprintf("%s %s", method, path), false)
}

// NewVersionConflictError reports an optimistic concurrency failure on a draft.
func NewVersionConflictError(draftID string, version int) *StandardError {
	return newError(ErrCodeVersionConflict, "Draft was modified concurrently",
		fmt.Sprintf("draftId: %s, expectedVersion: %d", draftID, version), false)
}

func NewDraftNotFoundError(draftID string) *StandardError {
	return newError(ErrCodeDraftNotFound, "Draft not found", fmt.Sprintf("draftId: %s", draftID), false)
}

func NewDraftSubmittedError(draftID string) *StandardError {
	return newError(ErrCodeDraftSubmitted, "Draft has already been submitted", fmt.Sprintf("draftId: %s", draftID), false)
}

// NewSubmitInProgressError is retryable: the in-flight submission either
// completes or releases the draft.
func NewSubmitInProgressError(draftID string) *StandardError {
	return newError(ErrCodeSubmitInProgress, "Draft is being submitted", fmt.Sprintf("draftId: %s", draftID), true)
}

// NewValidationFailedError carries per-field failures in Metadata["fields"].
func NewValidationFailedError(fieldErrors []string) *StandardError {
	e := newError(ErrCodeValidationFailed, "Form document failed validation", strings.Join(fieldErrors, "; "), false)
	return e.WithMetadata("fields", fieldErrors)
}

func NewTemplateNotFoundError(templateID string) *StandardError {
	return newError(ErrCodeTemplateNotFound, "Template not found in registry", fmt.Sprintf("templateId: %s", templateID), false)
}

func NewTemplateInvalidError(templateID string, err error) *StandardError {
	return newError(ErrCodeTemplateInvalid, "Template definition is invalid",
		fmt.Sprintf("templateId: %s, error: %s", templateID, err.Error()), false)
}

// NewUpstreamUnavailableError creates a retryable backend transport error.
func NewUpstreamUnavailableError(route string, err error) *StandardError {
	return newError(ErrCodeUpstreamUnavailable, fmt.Sprintf("Backend unavailable for route '%s'", route), err.Error(), true)
}

func NewUpstreamTimeoutError(route string, err error) *StandardError {
	return newError(ErrCodeUpstreamTimeout, fmt.Sprintf("Backend timeout for route '%s'", route), err.Error(), true)
}

func NewUpstreamResponseError(route, details string) *StandardError {
	return newError(ErrCodeUpstreamResponse, fmt.Sprintf("Backend returned an unusable response for route '%s'", route), details, false)
}

func NewDatabaseFailureError(operation string, err error) *StandardError {
	return newError(ErrCodeDatabaseFailure, "Database operation failed",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true)
}

func NewSearchFailedError(err error) *StandardError {
	return newError(ErrCodeSearchFailed, "Submission search failed", err.Error(), true)
}

func NewSearchDisabledError() *StandardError {
	return newError(ErrCodeSearchDisabled, "Submission search is not enabled", "", false)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false)
}

// ==========================
// 3. HTTP Mapping
// ==========================

// HTTPStatusMapping maps error codes to the HTTP status written to clients.
var HTTPStatusMapping = map[ErrorCode]int{
	ErrCodeInvalidRequest:      http.StatusBadRequest,
	ErrCodeInvalidPath:         http.StatusBadRequest,
	ErrCodePathNotFound:        http.StatusUnprocessableEntity,
	ErrCodeShapeChange:         http.StatusUnprocessableEntity,
	ErrCodeRouteNotFound:       http.StatusNotFound,
	ErrCodeVersionConflict:     http.StatusConflict,
	ErrCodeDraftNotFound:       http.StatusNotFound,
	ErrCodeDraftSubmitted:      http.StatusConflict,
	ErrCodeSubmitInProgress:    http.StatusConflict,
	ErrCodeValidationFailed:    http.StatusUnprocessableEntity,
	ErrCodeTemplateNotFound:    http.StatusNotFound,
	ErrCodeTemplateInvalid:     http.StatusInternalServerError,
	ErrCodeUpstreamUnavailable: http.StatusInternalServerError,
	ErrCodeUpstreamTimeout:     http.StatusGatewayTimeout,
	ErrCodeUpstreamResponse:    http.StatusBadGateway,
	ErrCodeDatabaseFailure:     http.StatusInternalServerError,
	ErrCodeSearchFailed:        http.StatusBadGateway,
	ErrCodeSearchDisabled:      http.StatusNotImplemented,
	ErrCodeInternal:            http.StatusInternalServerError,
}

// HTTPStatus returns the HTTP status for code, 500 when unmapped.
func HTTPStatus(code ErrorCode) int {
	if status, ok := HTTPStatusMapping[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ==========================
// 4. Utility Functions
// ==========================

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// IsCode reports whether err is a StandardError carrying code.
func IsCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return errors.As(err, &stdErr) && stdErr.Code == code
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "UPSTREAM"):
		return "UPSTREAM"
	case strings.Contains(codeStr, "TEMPLATE"):
		return "TEMPLATE"
	case strings.Contains(codeStr, "DRAFT") || strings.Contains(codeStr, "VERSION") || strings.Contains(codeStr, "SUBMISSION"):
		return "DRAFT"
	case strings.Contains(codeStr, "PATH") || strings.Contains(codeStr, "SHAPE"):
		return "DOCUMENT"
	case strings.Contains(codeStr, "DATABASE"):
		return "STORAGE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
