package types

import (
	"errors"
	"fmt"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Components MUST use these constants instead of
// hardcoded strings so the end-of-run report and logs stay greppable.
const (
	// Validation, rejected before any remote call.
	ErrCodeValidationDateRange    ErrorCode = "validation_invalid_date_range"
	ErrCodeValidationCluster      ErrorCode = "validation_unknown_cluster"
	ErrCodeValidationCategory     ErrorCode = "validation_unknown_category"
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"

	// Upstream source (Ambient Weather API).
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamMalformed   ErrorCode = "upstream_malformed_response"
	ErrCodeUpstreamCooldown    ErrorCode = "upstream_cooldown_active"

	// Cluster (storage engine).
	ErrCodeClusterUnavailable ErrorCode = "cluster_unavailable"
	ErrCodeClusterQuery       ErrorCode = "cluster_query_failed"
	ErrCodeClusterBulk        ErrorCode = "cluster_bulk_failed"

	// Local archive.
	ErrCodeArchiveRead  ErrorCode = "archive_read_failed"
	ErrCodeArchiveWrite ErrorCode = "archive_write_failed"

	// Internal.
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// AppError is the standard application error type. All domain errors are
// expressed as AppError to enable consistent report formatting and error
// chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrTooEarly signals that less than the configured fetch cooldown has
// elapsed since the last successful fetch. It is a normal, expected
// outcome of a live run, not a failure: callers branch on it with
// errors.Is and end the run cleanly with zero commits.
var ErrTooEarly = errors.New("too early: fetch cooldown has not elapsed")

// CodeOf extracts the ErrorCode from an error chain, or
// ErrCodeInternalUnexpected when no AppError is present.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}
