package models

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManualExecutionID(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)

	id := NewManualExecutionID(at, "4f1c2a9e-0b7d-4c3e-9a51-6d2e8f0b1c34")

	assert.Equal(t, ExecutionID("manual-1700000000123-4f1c2a9e-0b7d-4c3e-9a51-6d2e8f0b1c34"), id)
	assert.NotEqual(t, id, NewManualExecutionID(at, "9d0e7b2c-5a4f-4e1b-8c63-2f7a1d9e0b45"))
}

func TestExecutionStatus_IsTerminal(t *testing.T) {
	assert.False(t, ExecutionStatusRunning.IsTerminal())
	assert.True(t, ExecutionStatusSuccess.IsTerminal())
	assert.True(t, ExecutionStatusFailed.IsTerminal())
}

func TestExecution_ClientIDValue(t *testing.T) {
	clientID := ClientID("C1")

	assert.Equal(t, ClientID("C1"), (&Execution{ClientID: &clientID}).ClientIDValue())
	assert.Equal(t, ClientID(""), (&Execution{}).ClientIDValue())
}

func TestClient_CanAfford(t *testing.T) {
	client := &Client{ID: "C1", CreditBalance: 3}

	assert.True(t, client.CanAfford(3))
	assert.True(t, client.CanAfford(0))
	assert.False(t, client.CanAfford(4))
}

func TestClient_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	err := validate.Struct(&Client{ID: "C1", Name: "Acme", CreditBalance: 10})
	require.NoError(t, err)

	err = validate.Struct(&Client{ID: "C1", Name: "Acme", CreditBalance: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CreditBalance")

	err = validate.Struct(&Client{Name: "Acme"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ID")
}

func TestAutomation_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	tests := []struct {
		name       string
		automation *Automation
		wantErr    string
	}{
		{
			name: "valid with webhook and bearer auth",
			automation: &Automation{
				ID:                  "A1",
				Name:                "Lead enrichment",
				WebhookURL:          "https://n8n.example.com/webhook/lead",
				Auth:                &AuthDescriptor{Type: AuthTypeBearer, Credentials: map[string]string{"token": "t"}},
				CreditsPerExecution: 3,
			},
		},
		{
			name:       "valid without webhook",
			automation: &Automation{ID: "A1", Name: "Draft"},
		},
		{
			name:       "invalid webhook url",
			automation: &Automation{ID: "A1", Name: "Broken", WebhookURL: "not a url"},
			wantErr:    "WebhookURL",
		},
		{
			name:       "negative default cost",
			automation: &Automation{ID: "A1", Name: "Broken", CreditsPerExecution: -2},
			wantErr:    "CreditsPerExecution",
		},
		{
			name: "unknown auth type",
			automation: &Automation{
				ID:   "A1",
				Name: "Broken",
				Auth: &AuthDescriptor{Type: "oauth"},
			},
			wantErr: "Type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.automation)
			if tt.wantErr == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAutomation_HasWebhook(t *testing.T) {
	assert.True(t, (&Automation{WebhookURL: "http://engine/hook"}).HasWebhook())
	assert.False(t, (&Automation{}).HasWebhook())
}
