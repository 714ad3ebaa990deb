// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"
)

// Business outcomes - expected, mapped to 4xx responses and logged at info level.
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")

	// Entitlement Errors (403 Forbidden).
	ErrNotAssigned = errors.New("automation not assigned to this client")
	ErrInactive    = errors.New("automation is not active for this client")

	// Data integrity (404 Not Found).
	ErrClientNotFound = errors.New("client not found")

	// Balance (402 Payment Required).
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// System faults - logged with full context, shown to callers as a generic message.
var (
	// ErrMisconfigured indicates the automation cannot be dispatched (500).
	ErrMisconfigured = errors.New("automation is misconfigured")

	// ErrUnreachable indicates the engine could not be reached in time (502).
	ErrUnreachable = errors.New("automation engine unreachable")

	// ErrRejected indicates the engine answered with a non-2xx status (502).
	ErrRejected = errors.New("automation engine rejected the dispatch")

	// ErrInternal indicates an unexpected store or runtime failure (500).
	ErrInternal = errors.New("internal error")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// IsEntitlementError checks if an error means the client may not run the automation (HTTP 403).
func IsEntitlementError(err error) bool {
	return errors.Is(err, ErrNotAssigned) ||
		errors.Is(err, ErrInactive)
}

// IsInactiveError checks if the assignment exists but is disabled.
func IsInactiveError(err error) bool {
	return errors.Is(err, ErrInactive)
}

// IsMisconfiguredError checks if the automation cannot be dispatched (HTTP 500).
func IsMisconfiguredError(err error) bool {
	return errors.Is(err, ErrMisconfigured)
}

// IsNotFoundError checks if an error is a dangling reference that should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrClientNotFound)
}

// IsInsufficientCreditsError checks if an error should return HTTP 402.
func IsInsufficientCreditsError(err error) bool {
	return errors.Is(err, ErrInsufficientCredits)
}

// IsUpstreamError checks if the workflow engine failed the dispatch (HTTP 502).
func IsUpstreamError(err error) bool {
	return errors.Is(err, ErrUnreachable) ||
		errors.Is(err, ErrRejected)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     ErrInvalidRequest,
	}
}

// NewServiceError wraps an outcome sentinel with the operation and reason code.
func NewServiceError(op, code string, sentinel error, cause error) *ServiceError {
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %w", sentinel, cause)
	}

	return &ServiceError{
		Op:   op,
		Code: code,
		Err:  err,
	}
}
