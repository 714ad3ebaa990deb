// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrClientNotFound indicates a client was not found by the given identifier.
	ErrClientNotFound = errors.New("client not found")

	// ErrAutomationNotFound indicates an automation was not found by the given identifier.
	ErrAutomationNotFound = errors.New("automation not found")

	// ErrAssignmentNotFound indicates no assignment exists for the client/automation pair.
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrExecutionNotFound indicates an execution was not found.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionAlreadyExists indicates an append collided with an existing execution.
	ErrExecutionAlreadyExists = errors.New("execution already exists")

	// ErrInsufficientBalance indicates a conditional debit found the balance too low.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount indicates a negative or otherwise unusable debit amount.
	ErrInvalidAmount = errors.New("invalid debit amount")

	// ErrInvalidID indicates an identifier unusable by the backend.
	ErrInvalidID = errors.New("invalid identifier")
)

// LedgerError wraps ledger errors with the entities involved.
type LedgerError struct {
	Op           string // Operation being performed (e.g., "GetByID", "CommitSuccess")
	ClientID     string // Client ID if applicable
	AutomationID string // Automation ID if applicable
	Err          error  // Underlying error
}

func (e *LedgerError) Error() string {
	switch {
	case e.ClientID != "" && e.AutomationID != "":
		return fmt.Sprintf("%s operation failed for client %s and automation %s: %v", e.Op, e.ClientID, e.AutomationID, e.Err)
	case e.AutomationID != "":
		return fmt.Sprintf("%s operation failed for automation %s: %v", e.Op, e.AutomationID, e.Err)
	default:
		return fmt.Sprintf("%s operation failed for client %s: %v", e.Op, e.ClientID, e.Err)
	}
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for ledger errors.
func (e *LedgerError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewClientError creates a new ledger error scoped to a client.
func NewClientError(op, clientID string, err error) *LedgerError {
	return &LedgerError{Op: op, ClientID: clientID, Err: err}
}

// NewAutomationError creates a new ledger error scoped to an automation.
func NewAutomationError(op, automationID string, err error) *LedgerError {
	return &LedgerError{Op: op, AutomationID: automationID, Err: err}
}

// NewAssignmentError creates a new ledger error scoped to a client/automation pair.
func NewAssignmentError(op, clientID, automationID string, err error) *LedgerError {
	return &LedgerError{Op: op, ClientID: clientID, AutomationID: automationID, Err: err}
}

// IsClientNotFound checks if an error indicates a client was not found.
func IsClientNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound)
}

// IsAutomationNotFound checks if an error indicates an automation was not found.
func IsAutomationNotFound(err error) bool {
	return errors.Is(err, ErrAutomationNotFound)
}

// IsAssignmentNotFound checks if an error indicates an assignment was not found.
func IsAssignmentNotFound(err error) bool {
	return errors.Is(err, ErrAssignmentNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsInsufficientBalance checks if an error indicates a failed conditional debit.
func IsInsufficientBalance(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}
