// Package persistence provides the ledger store abstraction for clients,
// automations, assignments and executions.
package persistence

import (
	"context"

	"github.com/dukex/creditflow/pkg/models"
)

type Persistence interface {
	ClientRepository() ClientRepository
	AutomationRepository() AutomationRepository
	AssignmentRepository() AssignmentRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ClientRepository reads clients. Save exists for provisioning only; balance
// debits go through ExecutionRepository.CommitSuccess.
type ClientRepository interface {
	GetByID(ctx context.Context, id models.ClientID) (*models.Client, error)
	Save(ctx context.Context, client *models.Client) error
}

type AutomationRepository interface {
	GetByID(ctx context.Context, id models.AutomationID) (*models.Automation, error)
	Save(ctx context.Context, automation *models.Automation) error
}

type AssignmentRepository interface {
	Get(ctx context.Context, clientID models.ClientID, automationID models.AutomationID) (*models.Assignment, error)
	Save(ctx context.Context, assignment *models.Assignment) error
}

// ExecutionRepository is append-only: executions are never updated or deleted.
type ExecutionRepository interface {
	// Append inserts an execution without touching any balance.
	Append(ctx context.Context, execution *models.Execution) error

	// CommitSuccess debits execution.CreditsUsed from the execution's client and
	// inserts the execution as one atomic unit. The debit is conditional on the
	// balance covering the amount; otherwise nothing is written and
	// ErrInsufficientBalance is returned.
	CommitSuccess(ctx context.Context, execution *models.Execution) error

	GetByID(ctx context.Context, id string) (*models.Execution, error)

	// ListByClient returns the client's executions, newest first. A limit <= 0
	// returns all of them.
	ListByClient(ctx context.Context, clientID models.ClientID, limit int) ([]*models.Execution, error)
}
