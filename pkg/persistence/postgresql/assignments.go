package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
)

// AssignmentRepository handles client/automation assignment database operations.
type AssignmentRepository struct {
	db *sql.DB
}

// NewAssignmentRepository creates a new assignment repository.
func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Get retrieves the assignment binding a client to an automation.
func (ar *AssignmentRepository) Get(
	ctx context.Context,
	clientID models.ClientID,
	automationID models.AutomationID,
) (*models.Assignment, error) {
	query := `
		SELECT client_id, automation_id, is_active, credits_per_execution
		FROM client_automation_assignments
		WHERE client_id = $1 AND automation_id = $2
	`

	var assignment models.Assignment

	err := ar.db.QueryRowContext(ctx, query, clientID, automationID).Scan(
		&assignment.ClientID,
		&assignment.AutomationID,
		&assignment.IsActive,
		&assignment.CreditsPerExecution,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewAssignmentError("Get", string(clientID), string(automationID), persistence.ErrAssignmentNotFound)
		}

		return nil, fmt.Errorf("failed to get assignment: %w", err)
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

	query := `
		INSERT INTO client_automation_assignments (client_id, automation_id, is_active, credits_per_execution)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_id, automation_id) DO UPDATE SET
			is_active = EXCLUDED.is_active,
			credits_per_execution = EXCLUDED.credits_per_execution
	`

	_, err := ar.db.ExecContext(ctx, query,
		assignment.ClientID,
		assignment.AutomationID,
		assignment.IsActive,
		assignment.CreditsPerExecution,
	)
	if err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}

	return nil
}
