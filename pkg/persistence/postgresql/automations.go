package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
)

// AutomationRepository handles automation-related database operations.
type AutomationRepository struct {
	db *sql.DB
}

// NewAutomationRepository creates a new automation repository.
func NewAutomationRepository(db *sql.DB) *AutomationRepository {
	return &AutomationRepository{db: db}
}

// GetByID retrieves an automation by its ID from the database.
func (ar *AutomationRepository) GetByID(ctx context.Context, id models.AutomationID) (*models.Automation, error) {
	query := `
		SELECT id, name, description, webhook_url, auth, credits_per_execution
		FROM automations
		WHERE id = $1
	`

	var (
		automation models.Automation
		authJSON   []byte
	)

	err := ar.db.QueryRowContext(ctx, query, id).Scan(
		&automation.ID,
		&automation.Name,
		&automation.Description,
		&automation.WebhookURL,
		&authJSON,
		&automation.CreditsPerExecution,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewAutomationError("GetByID", string(id), persistence.ErrAutomationNotFound)
		}

		return nil, fmt.Errorf("failed to get automation: %w", err)
	}

	if len(authJSON) > 0 && string(authJSON) != "null" {
		var auth models.AuthDescriptor

		err = json.Unmarshal(authJSON, &auth)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal automation auth: %w", err)
		}

		automation.Auth = &auth
	}

	return &automation, nil
}

// Save creates or replaces an automation row.
func (ar *AutomationRepository) Save(ctx context.Context, automation *models.Automation) error {
	if automation.CreditsPerExecution < 0 {
		return persistence.NewAutomationError("Save", string(automation.ID), persistence.ErrInvalidAmount)
	}

	var authJSON []byte

	if automation.Auth != nil {
		var err error

		authJSON, err = json.Marshal(automation.Auth)
		if err != nil {
			return fmt.Errorf("failed to marshal automation auth: %w", err)
		}
	}

	query := `
		INSERT INTO automations (id, name, description, webhook_url, auth, credits_per_execution)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			webhook_url = EXCLUDED.webhook_url,
			auth = EXCLUDED.auth,
			credits_per_execution = EXCLUDED.credits_per_execution
	`

	_, err := ar.db.ExecContext(ctx, query,
		automation.ID,
		automation.Name,
		automation.Description,
		automation.WebhookURL,
		authJSON,
		automation.CreditsPerExecution,
	)
	if err != nil {
		return fmt.Errorf("failed to save automation: %w", err)
	}

	return nil
}
