package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
)

const (
	fieldName          = "name"
	fieldCreditBalance = "credit_balance"
	fieldCreatedAt     = "created_at"
	fieldUpdatedAt     = "updated_at"
)

// ClientRepository handles client hashes.
type ClientRepository struct {
	rp *Persistence
}

// GetByID retrieves a client by its ID.
func (cr *ClientRepository) GetByID(ctx context.Context, id models.ClientID) (*models.Client, error) {
	fields, err := cr.rp.client.HGetAll(ctx, cr.rp.keys.client(string(id))).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	if len(fields) == 0 {
		return nil, persistence.NewClientError("GetByID", string(id), persistence.ErrClientNotFound)
	}

	balance, err := strconv.ParseInt(fields[fieldCreditBalance], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance of client %s: %w", id, err)
	}

	client := &models.Client{
		ID:            id,
		Name:          fields[fieldName],
		CreditBalance: balance,
	}

	client.CreatedAt, err = time.Parse(time.RFC3339Nano, fields[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at of client %s: %w", id, err)
	}

	client.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields[fieldUpdatedAt])
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at of client %s: %w", id, err)
	}

	return client, nil
}

// Save creates or replaces a client hash.
func (cr *ClientRepository) Save(ctx context.Context, client *models.Client) error {
	if client.CreditBalance < 0 {
		return persistence.NewClientError("Save", string(client.ID), persistence.ErrInvalidAmount)
	}

	now := time.Now().UTC()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}

	client.UpdatedAt = now

	err := cr.rp.client.HSet(ctx, cr.rp.keys.client(string(client.ID)), map[string]any{
		fieldName:          client.Name,
		fieldCreditBalance: client.CreditBalance,
		fieldCreatedAt:     client.CreatedAt.Format(time.RFC3339Nano),
		fieldUpdatedAt:     client.UpdatedAt.Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	return nil
}
