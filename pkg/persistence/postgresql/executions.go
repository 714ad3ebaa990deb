package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const executionColumns = `id, automation_id, client_id, execution_id, status, started_at, finished_at, result, credits_used`

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Append inserts a new execution row. Existing rows are never updated.
func (er *ExecutionRepository) Append(ctx context.Context, execution *models.Execution) error {
	return er.insert(ctx, er.db, execution)
}

// CommitSuccess debits the client and inserts the execution in one transaction.
// The debit is conditional on the balance covering the amount, so concurrent
// commits against the same client serialize on the row lock and never overdraw.
func (er *ExecutionRepository) CommitSuccess(ctx context.Context, execution *models.Execution) error {
	if execution.ClientID == nil || execution.CreditsUsed == nil || *execution.CreditsUsed < 0 {
		return persistence.NewClientError("CommitSuccess", string(execution.ClientIDValue()), persistence.ErrInvalidAmount)
	}

	clientID := *execution.ClientID
	amount := *execution.CreditsUsed

	tx, err := er.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false

	defer func() {
		if committed {
			return
		}

		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			er.logger.ErrorContext(ctx, "failed to rollback transaction", "error", rbErr)
		}
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE clients
		SET credit_balance = credit_balance - $2, updated_at = $3
		WHERE id = $1 AND credit_balance >= $2
	`, clientID, amount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to debit client: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read debit result: %w", err)
	}

	if affected == 0 {
		var exists bool

		err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM clients WHERE id = $1)`, clientID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check client existence: %w", err)
		}

		if !exists {
			return persistence.NewClientError("CommitSuccess", string(clientID), persistence.ErrClientNotFound)
		}

		return persistence.NewClientError("CommitSuccess", string(clientID), persistence.ErrInsufficientBalance)
	}

	err = er.insert(ctx, tx, execution)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	committed = true

	return nil
}

func (er *ExecutionRepository) insert(ctx context.Context, db execer, execution *models.Execution) error {
	var resultJSON []byte

	if execution.Result != nil {
		var err error

		resultJSON, err = json.Marshal(execution.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal execution result: %w", err)
		}
	}

	var clientID sql.NullString
	if execution.ClientID != nil {
		clientID = sql.NullString{String: string(*execution.ClientID), Valid: true}
	}

	var creditsUsed sql.NullInt64
	if execution.CreditsUsed != nil {
		creditsUsed = sql.NullInt64{Int64: *execution.CreditsUsed, Valid: true}
	}

	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := db.ExecContext(ctx, query,
		execution.ID,
		execution.AutomationID,
		clientID,
		execution.ExecutionID,
		execution.Status,
		execution.StartedAt,
		execution.FinishedAt,
		resultJSON,
		creditsUsed,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", persistence.ErrExecutionAlreadyExists, execution.ID)
		}

		return fmt.Errorf("failed to insert execution: %w", err)
	}

	return nil
}

// GetByID retrieves an execution by its ID from the database.
func (er *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := er.scanExecution(er.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrExecutionNotFound, id)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// ListByClient returns the client's executions, newest first. A limit <= 0 returns all.
func (er *ExecutionRepository) ListByClient(
	ctx context.Context,
	clientID models.ClientID,
	limit int,
) ([]*models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE client_id = $1
		ORDER BY started_at DESC, id
	`
	args := []any{clientID}

	if limit > 0 {
		query += ` LIMIT $2`

		args = append(args, limit)
	}

	rows, err := er.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			er.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := er.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// scanExecution scans an execution from a database row.
func (er *ExecutionRepository) scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.Execution, error) {
	var (
		execution   models.Execution
		clientID    sql.NullString
		finishedAt  sql.NullTime
		resultJSON  []byte
		creditsUsed sql.NullInt64
	)

	err := scanner.Scan(
		&execution.ID,
		&execution.AutomationID,
		&clientID,
		&execution.ExecutionID,
		&execution.Status,
		&execution.StartedAt,
		&finishedAt,
		&resultJSON,
		&creditsUsed,
	)
	if err != nil {
		return nil, err
	}

	if clientID.Valid {
		id := models.ClientID(clientID.String)
		execution.ClientID = &id
	}

	if finishedAt.Valid {
		at := finishedAt.Time
		execution.FinishedAt = &at
	}

	if creditsUsed.Valid {
		credits := creditsUsed.Int64
		execution.CreditsUsed = &credits
	}

	if len(resultJSON) > 0 {
		err = json.Unmarshal(resultJSON, &execution.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution result: %w", err)
		}
	}

	return &execution, nil
}
