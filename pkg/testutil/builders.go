// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestClient creates a test Client with default values that can be overridden.
func CreateTestClient(overrides ...func(*models.Client)) *models.Client {
	client := &models.Client{
		ID:            models.ClientID("client-" + uuid.NewString()[:8]),
		Name:          "Test Client",
		CreditBalance: 10,
	}

	for _, override := range overrides {
		override(client)
	}

	return client
}

// WithBalance sets the client's credit balance.
func WithBalance(balance int64) func(*models.Client) {
	return func(c *models.Client) {
		c.CreditBalance = balance
	}
}

// CreateTestAutomation creates a test Automation with default values that can be overridden.
func CreateTestAutomation(overrides ...func(*models.Automation)) *models.Automation {
	automation := &models.Automation{
		ID:                  models.AutomationID("automation-" + uuid.NewString()[:8]),
		Name:                "Test Automation",
		Description:         "Sends a lead to the CRM",
		WebhookURL:          "http://engine.invalid/webhook/test",
		CreditsPerExecution: 3,
	}

	for _, override := range overrides {
		override(automation)
	}

	return automation
}

// WithWebhookURL sets the automation webhook endpoint.
func WithWebhookURL(url string) func(*models.Automation) {
	return func(a *models.Automation) {
		a.WebhookURL = url
	}
}

// CreateTestAssignment binds a client to an automation with an active assignment.
func CreateTestAssignment(
	clientID models.ClientID,
	automationID models.AutomationID,
	overrides ...func(*models.Assignment),
) *models.Assignment {
	assignment := &models.Assignment{
		ClientID:            clientID,
		AutomationID:        automationID,
		IsActive:            true,
		CreditsPerExecution: 3,
	}

	for _, override := range overrides {
		override(assignment)
	}

	return assignment
}

// WithCost sets the assignment's credits per execution.
func WithCost(cost int64) func(*models.Assignment) {
	return func(a *models.Assignment) {
		a.CreditsPerExecution = cost
	}
}

// Inactive disables the assignment.
func Inactive() func(*models.Assignment) {
	return func(a *models.Assignment) {
		a.IsActive = false
	}
}

// CreateTestExecution creates a terminal execution for the client and automation.
func CreateTestExecution(
	clientID models.ClientID,
	automationID models.AutomationID,
	status models.ExecutionStatus,
	overrides ...func(*models.Execution),
) *models.Execution {
	startedAt := time.Now().UTC().Truncate(time.Millisecond)
	finishedAt := startedAt.Add(150 * time.Millisecond)

	recordID := uuid.NewString()

	execution := &models.Execution{
		ID:           recordID,
		AutomationID: automationID,
		ExecutionID:  models.NewManualExecutionID(startedAt, recordID),
		Status:       status,
		StartedAt:    startedAt,
		FinishedAt:   &finishedAt,
		Result:       map[string]any{"kind": string(status)},
	}

	if clientID != "" {
		execution.ClientID = &clientID
	}

	for _, override := range overrides {
		override(execution)
	}

	return execution
}

// WithCreditsUsed sets the execution's credits used.
func WithCreditsUsed(credits int64) func(*models.Execution) {
	return func(e *models.Execution) {
		e.CreditsUsed = &credits
	}
}

// StartedAt overrides the execution start time.
func StartedAt(at time.Time) func(*models.Execution) {
	return func(e *models.Execution) {
		e.StartedAt = at
	}
}
