package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/creditflow/pkg/config"
	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence/file"
	"github.com/dukex/creditflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadSchedules(t *testing.T) {
	path := writeFile(t, `
schedules:
  - id: nightly-report
    cron: "0 2 * * *"
    clientId: c1
    automationId: report
    payload:
      format: pdf
  - id: paused
    cron: "*/5 * * * *"
    clientId: c1
    automationId: sync
    enabled: false
`)

	entries, err := config.LoadSchedules(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "nightly-report", entries[0].ID)
	assert.Equal(t, "0 2 * * *", entries[0].Cron)
	assert.Equal(t, models.ClientID("c1"), entries[0].ClientID)
	assert.Equal(t, models.AutomationID("report"), entries[0].AutomationID)
	assert.Equal(t, map[string]any{"format": "pdf"}, entries[0].Payload)
	assert.True(t, entries[0].IsEnabled())
	assert.False(t, entries[1].IsEnabled())
}

func TestLoadSchedules_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "missing client",
			content: "schedules:\n  - id: a\n    cron: '* * * * *'\n    automationId: x\n",
			errMsg:  "clientId is required",
		},
		{
			name:    "unknown field",
			content: "schedules:\n  - id: a\n    cron: '* * * * *'\n    clientId: c\n    automationId: x\n    workflow_id: w\n",
			errMsg:  "schema validation failed",
		},
		{
			name:    "duplicate id",
			content: "schedules:\n  - {id: a, cron: '* * * * *', clientId: c, automationId: x}\n  - {id: a, cron: '* * * * *', clientId: c, automationId: y}\n",
			errMsg:  `duplicate schedule id "a"`,
		},
		{
			name:    "empty",
			content: "",
			errMsg:  "is empty",
		},
		{
			name:    "not yaml",
			content: "schedules: [",
			errMsg:  "failed to parse YAML config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadSchedules(writeFile(t, tt.content))

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadSchedules_MissingFile(t *testing.T) {
	_, err := config.LoadSchedules(filepath.Join(t.TempDir(), "nope.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

const seedYAML = `
clients:
  - id: acme
    name: Acme Corp
    creditBalance: 10
automations:
  - id: lead-sync
    name: Lead sync
    webhookUrl: http://n8n.local/webhook/lead-sync
    creditsPerExecution: 3
    auth:
      type: bearer
      credentials:
        token: s3cret
assignments:
  - clientId: acme
    automationId: lead-sync
  - clientId: acme
    automationId: lead-sync-premium
    creditsPerExecution: 7
    active: false
`

func TestApplySeed(t *testing.T) {
	ctx := t.Context()
	store := file.NewPersistence(t.TempDir())

	seed, err := config.LoadSeed(writeFile(t, seedYAML))
	require.NoError(t, err)

	summary, err := config.ApplySeed(ctx, store, seed)
	require.NoError(t, err)
	assert.Equal(t, config.SeedSummary{Clients: 1, Automations: 1, Assignments: 2}, summary)

	testutil.AssertBalance(t, store, "acme", 10)

	automation, err := store.AutomationRepository().GetByID(ctx, "lead-sync")
	require.NoError(t, err)
	require.NotNil(t, automation.Auth)
	assert.Equal(t, models.AuthTypeBearer, automation.Auth.Type)
	assert.Equal(t, "s3cret", automation.Auth.Credentials["token"])

	inherited, err := store.AssignmentRepository().Get(ctx, "acme", "lead-sync")
	require.NoError(t, err)
	assert.True(t, inherited.IsActive)
	assert.Equal(t, int64(3), inherited.CreditsPerExecution)

	explicit, err := store.AssignmentRepository().Get(ctx, "acme", "lead-sync-premium")
	require.NoError(t, err)
	assert.False(t, explicit.IsActive)
	assert.Equal(t, int64(7), explicit.CreditsPerExecution)
}

func TestApplySeed_UnknownAutomationWithoutCost(t *testing.T) {
	store := file.NewPersistence(t.TempDir())

	seed, err := config.LoadSeed(writeFile(t, "assignments:\n  - clientId: acme\n    automationId: ghost\n"))
	require.NoError(t, err)

	_, err = config.ApplySeed(t.Context(), store, seed)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "assignment acme/ghost")
}

func TestLoadSeed_RejectsNegativeBalance(t *testing.T) {
	_, err := config.LoadSeed(writeFile(t, "clients:\n  - id: acme\n    name: Acme\n    creditBalance: -1\n"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
}

func TestApplySeed_InvalidWebhookURL(t *testing.T) {
	store := file.NewPersistence(t.TempDir())

	seed, err := config.LoadSeed(writeFile(t, "automations:\n  - id: a\n    name: A\n    webhookUrl: not a url\n"))
	require.NoError(t, err)

	_, err = config.ApplySeed(t.Context(), store, seed)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid automation a")
}
