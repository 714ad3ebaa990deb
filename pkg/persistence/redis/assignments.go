package redis

import (
	"context"
	"fmt"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
)

// AssignmentRepository handles client/automation assignment documents.
type AssignmentRepository struct {
	rp *Persistence
}

// Get retrieves the assignment binding a client to an automation.
func (ar *AssignmentRepository) Get(
	ctx context.Context,
	clientID models.ClientID,
	automationID models.AutomationID,
) (*models.Assignment, error) {
	var assignment models.Assignment

	found, err := ar.rp.getJSON(ctx, ar.rp.keys.assignment(string(clientID), string(automationID)), &assignment)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	if !found {
		return nil, persistence.NewAssignmentError("Get", string(clientID), string(automationID), persistence.ErrAssignmentNotFound)
	}

	return &assignment, nil
}

// Save creates or replaces the assignment for its client/automation pair.
func (ar *AssignmentRepository) Save(ctx context.Context, assignment *models.Assignment) error {
	if assignment.CreditsPerExecution < 0 {
		return persistence.NewAssignmentError(
			"Save", string(assignment.ClientID), string(assignment.AutomationID), persistence.ErrInvalidAmount,
		)
	}

	key := ar.rp.keys.assignment(string(assignment.ClientID), string(assignment.AutomationID))

	err := ar.rp.setJSON(ctx, key, assignment)
	if err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}

	return nil
}
