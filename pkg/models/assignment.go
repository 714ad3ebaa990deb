package models

// Assignment grants a client the right to run an automation.
type Assignment struct {
	ClientID            ClientID     `json:"client_id"             validate:"required"`
	AutomationID        AutomationID `json:"automation_id"         validate:"required"`
	IsActive            bool         `json:"is_active"`
	CreditsPerExecution int64        `json:"credits_per_execution" validate:"min=0"`
}
