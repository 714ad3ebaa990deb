package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
)

// ClientRepository handles client-related file operations.
type ClientRepository struct {
	fp *Persistence
}

// GetByID retrieves a client by its ID from the file system.
func (cr *ClientRepository) GetByID(_ context.Context, id models.ClientID) (*models.Client, error) {
	cr.fp.mu.RLock()
	defer cr.fp.mu.RUnlock()

	return cr.read(id)
}

// Save creates or replaces a client document.
func (cr *ClientRepository) Save(_ context.Context, client *models.Client) error {
	err := validateID(string(client.ID))
	if err != nil {
		return persistence.NewClientError("Save", string(client.ID), err)
	}

	if client.CreditBalance < 0 {
		return persistence.NewClientError("Save", string(client.ID), persistence.ErrInvalidAmount)
	}

	cr.fp.mu.Lock()
	defer cr.fp.mu.Unlock()

	now := time.Now().UTC()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}

	client.UpdatedAt = now

	return cr.write(client)
}

// read loads a client; callers hold the lock.
func (cr *ClientRepository) read(id models.ClientID) (*models.Client, error) {
	err := validateID(string(id))
	if err != nil {
		return nil, persistence.NewClientError("GetByID", string(id), err)
	}

	var client models.Client

	err = readJSON(cr.fp.path(clientsDir, string(id)+".json"), &client)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewClientError("GetByID", string(id), persistence.ErrClientNotFound)
		}

		return nil, fmt.Errorf("failed to read client %s: %w", id, err)
	}

	return &client, nil
}

// write stores a client; callers hold the write lock.
func (cr *ClientRepository) write(client *models.Client) error {
	err := writeJSON(cr.fp.path(clientsDir, string(client.ID)+".json"), client)
	if err != nil {
		return fmt.Errorf("failed to save client %s: %w", client.ID, err)
	}

	return nil
}
