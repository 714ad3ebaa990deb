package models

// AuthType selects how the dispatcher authenticates against a webhook.
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeBearer AuthType = "bearer" // credentials: token
	AuthTypeBasic  AuthType = "basic"  // credentials: username, password
	AuthTypeHeader AuthType = "header" // credentials: header name -> value
)

// AuthDescriptor carries the credentials used when calling an automation webhook.
type AuthDescriptor struct {
	Type        AuthType          `json:"type"                  validate:"required,oneof=none bearer basic header"`
	Credentials map[string]string `json:"credentials,omitempty"`
}

// Automation is a workflow registered on the external engine.
type Automation struct {
	ID                  AutomationID    `json:"id"                    validate:"required"`
	Name                string          `json:"name"                  validate:"required"`
	Description         string          `json:"description"`
	WebhookURL          string          `json:"webhook_url"           validate:"omitempty,url"`
	Auth                *AuthDescriptor `json:"auth,omitempty"`
	CreditsPerExecution int64           `json:"credits_per_execution" validate:"min=0"`
}

// HasWebhook reports whether the automation can be dispatched at all.
func (a *Automation) HasWebhook() bool {
	return a.WebhookURL != ""
}
