package redis

import (
	"context"
	"fmt"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
)

// AutomationRepository handles automation documents.
type AutomationRepository struct {
	rp *Persistence
}

// GetByID retrieves an automation by its ID.
func (ar *AutomationRepository) GetByID(ctx context.Context, id models.AutomationID) (*models.Automation, error) {
	var automation models.Automation

	found, err := ar.rp.getJSON(ctx, ar.rp.keys.automation(string(id)), &automation)
	if err != nil {
		return nil, fmt.Errorf("failed to get automation: %w", err)
	}

	if !found {
		return nil, persistence.NewAutomationError("GetByID", string(id), persistence.ErrAutomationNotFound)
	}

	return &automation, nil
}

// Save creates or replaces an automation document.
func (ar *AutomationRepository) Save(ctx context.Context, automation *models.Automation) error {
	if automation.CreditsPerExecution < 0 {
		return persistence.NewAutomationError("Save", string(automation.ID), persistence.ErrInvalidAmount)
	}

	err := ar.rp.setJSON(ctx, ar.rp.keys.automation(string(automation.ID)), automation)
	if err != nil {
		return fmt.Errorf("failed to save automation: %w", err)
	}

	return nil
}
