package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
)

// ExecutionRepository handles execution-related file operations.
type ExecutionRepository struct {
	fp *Persistence
}

func (er *ExecutionRepository) executionPath(id string) string {
	return er.fp.path(executionsDir, id+".json")
}

// Append writes a new execution file. Existing executions are never overwritten.
func (er *ExecutionRepository) Append(_ context.Context, execution *models.Execution) error {
	err := validateID(execution.ID)
	if err != nil {
		return fmt.Errorf("invalid execution ID: %w", err)
	}

	er.fp.mu.Lock()
	defer er.fp.mu.Unlock()

	return er.appendLocked(execution)
}

func (er *ExecutionRepository) appendLocked(execution *models.Execution) error {
	path := er.executionPath(execution.ID)

	found, err := exists(path)
	if err != nil {
		return fmt.Errorf("failed to stat execution %s: %w", execution.ID, err)
	}

	if found {
		return fmt.Errorf("%w: %s", persistence.ErrExecutionAlreadyExists, execution.ID)
	}

	err = writeJSON(path, execution)
	if err != nil {
		return fmt.Errorf("failed to write execution %s: %w", execution.ID, err)
	}

	return nil
}

// CommitSuccess debits the client and appends the execution under the write lock.
func (er *ExecutionRepository) CommitSuccess(_ context.Context, execution *models.Execution) error {
	if execution.ClientID == nil || execution.CreditsUsed == nil || *execution.CreditsUsed < 0 {
		return persistence.NewClientError("CommitSuccess", string(execution.ClientIDValue()), persistence.ErrInvalidAmount)
	}

	err := validateID(execution.ID)
	if err != nil {
		return fmt.Errorf("invalid execution ID: %w", err)
	}

	clientID := *execution.ClientID
	amount := *execution.CreditsUsed

	er.fp.mu.Lock()
	defer er.fp.mu.Unlock()

	client, err := er.fp.clientRepo.read(clientID)
	if err != nil {
		return err
	}

	if !client.CanAfford(amount) {
		return persistence.NewClientError("CommitSuccess", string(clientID), persistence.ErrInsufficientBalance)
	}

	err = er.appendLocked(execution)
	if err != nil {
		return err
	}

	client.CreditBalance -= amount
	client.UpdatedAt = time.Now().UTC()

	err = er.fp.clientRepo.write(client)
	if err != nil {
		// Keep the ledger consistent: no debit, no success record.
		_ = os.Remove(er.executionPath(execution.ID))

		return err
	}

	return nil
}

// GetByID retrieves an execution by its ID from the file system.
func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	err := validateID(id)
	if err != nil {
		return nil, fmt.Errorf("invalid execution ID: %w", err)
	}

	er.fp.mu.RLock()
	defer er.fp.mu.RUnlock()

	return er.read(id)
}

func (er *ExecutionRepository) read(id string) (*models.Execution, error) {
	var execution models.Execution

	err := readJSON(er.executionPath(id), &execution)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrExecutionNotFound, id)
		}

		return nil, fmt.Errorf("failed to read execution %s: %w", id, err)
	}

	return &execution, nil
}

// ListByClient scans the executions directory for the client's executions.
func (er *ExecutionRepository) ListByClient(
	_ context.Context,
	clientID models.ClientID,
	limit int,
) ([]*models.Execution, error) {
	er.fp.mu.RLock()
	defer er.fp.mu.RUnlock()

	dir := er.fp.path(executionsDir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.Execution{}, nil
		}

		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	executions := make([]*models.Execution, 0)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		execution, err := er.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// Skip invalid files
			continue
		}

		if execution.ClientIDValue() == clientID {
			executions = append(executions, execution)
		}
	}

	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}
