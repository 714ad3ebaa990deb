package models

import (
	"strconv"
	"time"
)

// ExecutionStatus is the lifecycle state of an execution record.
type ExecutionStatus string

const (
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed
}

const manualExecutionPrefix = "manual-"

// NewManualExecutionID synthesizes an external execution id for runs the
// engine did not identify: manual-<epoch ms>-<record id>. The record id keeps
// executions finished in the same millisecond apart.
func NewManualExecutionID(at time.Time, recordID string) ExecutionID {
	return ExecutionID(manualExecutionPrefix + strconv.FormatInt(at.UnixMilli(), 10) + "-" + recordID)
}

// Execution is the immutable audit record of one dispatch attempt.
type Execution struct {
	ID           string          `json:"id"`
	AutomationID AutomationID    `json:"automation_id"`
	ClientID     *ClientID       `json:"client_id,omitempty"`
	ExecutionID  ExecutionID     `json:"execution_id"`
	Status       ExecutionStatus `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	Result       map[string]any  `json:"result,omitempty"`
	CreditsUsed  *int64          `json:"credits_used,omitempty"`
}

// ClientIDValue returns the client id or an empty id for manual runs.
func (e *Execution) ClientIDValue() ClientID {
	if e.ClientID == nil {
		return ""
	}

	return *e.ClientID
}
