// Package events defines the notifications published for recorded executions.
package events

import (
	"time"

	"github.com/dukex/creditflow/pkg/models"
)

type EventType string

// Topic carries every execution event.
const Topic = "creditflow.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionSucceededEvent EventType = "execution.succeeded"
	ExecutionFailedEvent    EventType = "execution.failed"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps an event with its id, type and the current time.
func NewBaseEvent(id string, eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        id,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// ExecutionSucceeded is published after a success execution was committed and
// its credits debited.
type ExecutionSucceeded struct {
	BaseEvent

	ExecutionRecordID string              `json:"execution_record_id"`
	ExecutionID       models.ExecutionID  `json:"execution_id"`
	ClientID          models.ClientID     `json:"client_id"`
	AutomationID      models.AutomationID `json:"automation_id"`
	CreditsUsed       int64               `json:"credits_used"`
}

func (e ExecutionSucceeded) GetType() EventType {
	return ExecutionSucceededEvent
}

// ExecutionFailed is published after a failed execution was appended.
type ExecutionFailed struct {
	BaseEvent

	ExecutionRecordID string              `json:"execution_record_id"`
	ExecutionID       models.ExecutionID  `json:"execution_id"`
	ClientID          models.ClientID     `json:"client_id,omitempty"`
	AutomationID      models.AutomationID `json:"automation_id"`
	Kind              string              `json:"kind"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}
