// Package web provides HTTP request and response types for the credit API.
package web

import "github.com/dukex/creditflow/pkg/models"

// CheckCreditsRequest carries the check-credits query parameters.
type CheckCreditsRequest struct {
	ClientID     string `query:"clientId"     validate:"required"`
	AutomationID string `query:"automationId" validate:"required"`
}

// CheckCreditsResponse is returned when the client and assignment exist.
type CheckCreditsResponse struct {
	HasCredits   bool                `json:"hasCredits"`
	Required     int64               `json:"required"`
	Remaining    int64               `json:"remaining"`
	ClientID     models.ClientID     `json:"clientId"`
	AutomationID models.AutomationID `json:"automationId"`
}

// CheckCreditsDenied is returned for 403 and 404 check-credits outcomes.
type CheckCreditsDenied struct {
	HasCredits bool   `json:"hasCredits"`
	Error      string `json:"error"`
}

// DispatchRequest represents the request body for dispatching an automation.
type DispatchRequest struct {
	ClientID     string         `json:"clientId"          validate:"required"`
	AutomationID string         `json:"automationId"      validate:"required"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// DispatchResponse is returned when the automation ran and was charged.
type DispatchResponse struct {
	Success     bool               `json:"success"`
	Message     string             `json:"message"`
	ExecutionID models.ExecutionID `json:"executionId"`
}

// ErrorResponse represents a plain API error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// InsufficientCreditsResponse is returned with 402.
type InsufficientCreditsResponse struct {
	Error     string `json:"error"`
	Required  int64  `json:"required"`
	Available int64  `json:"available"`
}

// ExecutionsResponse lists a client's executions.
type ExecutionsResponse struct {
	Executions []*models.Execution `json:"executions"`
	Count      int                 `json:"count"`
}
