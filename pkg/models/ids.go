// Package models defines the domain models for credit-gated automation dispatch.
package models

// ClientID identifies a billing client.
type ClientID string

// AutomationID identifies a registered automation.
type AutomationID string

// ExecutionID is the external execution identifier reported by, or synthesized
// for, the workflow engine.
type ExecutionID string

func (id ClientID) String() string     { return string(id) }
func (id AutomationID) String() string { return string(id) }
func (id ExecutionID) String() string  { return string(id) }
