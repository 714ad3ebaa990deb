package file

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
)

// AutomationRepository handles automation-related file operations.
type AutomationRepository struct {
	fp *Persistence
}

// GetByID retrieves an automation by its ID from the file system.
func (ar *AutomationRepository) GetByID(_ context.Context, id models.AutomationID) (*models.Automation, error) {
	err := validateID(string(id))
	if err != nil {
		return nil, persistence.NewAutomationError("GetByID", string(id), err)
	}

	ar.fp.mu.RLock()
	defer ar.fp.mu.RUnlock()

	var automation models.Automation

	err = readJSON(ar.fp.path(automationsDir, string(id)+".json"), &automation)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewAutomationError("GetByID", string(id), persistence.ErrAutomationNotFound)
		}

		return nil, fmt.Errorf("failed to read automation %s: %w", id, err)
	}

	return &automation, nil
}

// Save creates or replaces an automation document.
func (ar *AutomationRepository) Save(_ context.Context, automation *models.Automation) error {
	err := validateID(string(automation.ID))
	if err != nil {
		return persistence.NewAutomationError("Save", string(automation.ID), err)
	}

	ar.fp.mu.Lock()
	defer ar.fp.mu.Unlock()

	err = writeJSON(ar.fp.path(automationsDir, string(automation.ID)+".json"), automation)
	if err != nil {
		return fmt.Errorf("failed to save automation %s: %w", automation.ID, err)
	}

	return nil
}
