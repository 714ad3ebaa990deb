package file

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
)

// AssignmentRepository stores assignments as assignments/<client>/<automation>.json.
type AssignmentRepository struct {
	fp *Persistence
}

// Get retrieves the assignment binding a client to an automation.
func (ar *AssignmentRepository) Get(
	_ context.Context,
	clientID models.ClientID,
	automationID models.AutomationID,
) (*models.Assignment, error) {
	err := errors.Join(validateID(string(clientID)), validateID(string(automationID)))
	if err != nil {
		return nil, persistence.NewAssignmentError("Get", string(clientID), string(automationID), err)
	}

	ar.fp.mu.RLock()
	defer ar.fp.mu.RUnlock()

	var assignment models.Assignment

	err = readJSON(ar.fp.path(assignmentsDir, string(clientID), string(automationID)+".json"), &assignment)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewAssignmentError(
				"Get", string(clientID), string(automationID), persistence.ErrAssignmentNotFound,
			)
		}

		return nil, fmt.Errorf("failed to read assignment %s/%s: %w", clientID, automationID, err)
	}

	return &assignment, nil
}

// Save creates or replaces an assignment.
func (ar *AssignmentRepository) Save(_ context.Context, assignment *models.Assignment) error {
	clientID, automationID := string(assignment.ClientID), string(assignment.AutomationID)

	err := errors.Join(validateID(clientID), validateID(automationID))
	if err != nil {
		return persistence.NewAssignmentError("Save", clientID, automationID, err)
	}

	if assignment.CreditsPerExecution < 0 {
		return persistence.NewAssignmentError("Save", clientID, automationID, persistence.ErrInvalidAmount)
	}

	ar.fp.mu.Lock()
	defer ar.fp.mu.Unlock()

	err = writeJSON(ar.fp.path(assignmentsDir, clientID, automationID+".json"), assignment)
	if err != nil {
		return fmt.Errorf("failed to save assignment %s/%s: %w", clientID, automationID, err)
	}

	return nil
}
