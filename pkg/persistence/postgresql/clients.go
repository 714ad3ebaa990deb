package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
)

// ClientRepository handles client-related database operations.
type ClientRepository struct {
	db *sql.DB
}

// NewClientRepository creates a new client repository.
func NewClientRepository(db *sql.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// GetByID retrieves a client by its ID from the database.
func (cr *ClientRepository) GetByID(ctx context.Context, id models.ClientID) (*models.Client, error) {
	query := `
		SELECT id, name, credit_balance, created_at, updated_at
		FROM clients
		WHERE id = $1
	`

	var client models.Client

	err := cr.db.QueryRowContext(ctx, query, id).Scan(
		&client.ID,
		&client.Name,
		&client.CreditBalance,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewClientError("GetByID", string(id), persistence.ErrClientNotFound)
		}

		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	return &client, nil
}

// Save creates or replaces a client row.
func (cr *ClientRepository) Save(ctx context.Context, client *models.Client) error {
	if client.CreditBalance < 0 {
		return persistence.NewClientError("Save", string(client.ID), persistence.ErrInvalidAmount)
	}

	now := time.Now().UTC()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}

	client.UpdatedAt = now

	query := `
		INSERT INTO clients (id, name, credit_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			credit_balance = EXCLUDED.credit_balance,
			updated_at = EXCLUDED.updated_at
	`

	_, err := cr.db.ExecContext(ctx, query,
		client.ID,
		client.Name,
		client.CreditBalance,
		client.CreatedAt,
		client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	return nil
}
