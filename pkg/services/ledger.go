package services

import (
	"context"
	"log/slog"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
)

const (
	DefaultExecutionsLimit = 50
	MaxExecutionsLimit     = 500
)

// Ledger serves read-only views of clients and their executions.
type Ledger struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

// NewLedger creates a new ledger service.
func NewLedger(persistence persistence.Persistence, logger *slog.Logger) *Ledger {
	return &Ledger{
		persistence: persistence,
		logger:      logger.With("module", "ledger"),
	}
}

// HealthCheck checks the health of the persistence layer. The store error is
// logged, never returned, since it can carry connection details.
func (l *Ledger) HealthCheck(ctx context.Context) (string, bool) {
	if l.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := l.persistence.HealthCheck(ctx)
	if err != nil {
		l.logger.ErrorContext(ctx, "persistence health check failed", "error", err)

		return "Persistence layer is unhealthy", false
	}

	return "Persistence layer is healthy", true
}

// GetClient returns a client and its current balance.
func (l *Ledger) GetClient(ctx context.Context, clientID models.ClientID) (*models.Client, error) {
	if clientID == "" {
		return nil, NewValidationError("GetClient", string(ReasonValidation), "clientId required")
	}

	client, err := l.persistence.ClientRepository().GetByID(ctx, clientID)
	if err != nil {
		if persistence.IsClientNotFound(err) {
			return nil, NewServiceError("GetClient", string(ReasonClientNotFound), ErrClientNotFound, nil)
		}

		return nil, NewServiceError("GetClient", string(ReasonInternal), ErrInternal, err)
	}

	return client, nil
}

// ListExecutions returns the client's executions, newest first. The limit
// defaults to DefaultExecutionsLimit and must not exceed MaxExecutionsLimit.
func (l *Ledger) ListExecutions(ctx context.Context, clientID models.ClientID, limit int) ([]*models.Execution, error) {
	switch {
	case limit == 0:
		limit = DefaultExecutionsLimit
	case limit < 0 || limit > MaxExecutionsLimit:
		return nil, NewValidationError("ListExecutions", string(ReasonValidation), "limit must be between 1 and 500")
	}

	_, err := l.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	list, err := l.persistence.ExecutionRepository().ListByClient(ctx, clientID, limit)
	if err != nil {
		return nil, NewServiceError("ListExecutions", string(ReasonInternal), ErrInternal, err)
	}

	return list, nil
}
