package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
	goredis "github.com/redis/go-redis/v9"
)

// KEYS: execution, [client executions index]
// ARGV: execution json, score, execution id
var appendScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1])
if #KEYS > 1 then
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
end
return 1
`)

// KEYS: client hash, execution, client executions index
// ARGV: amount, execution json, score, updated_at, execution id
var commitScript = goredis.NewScript(`
local balance = redis.call('HGET', KEYS[1], 'credit_balance')
if not balance then
	return -1
end
local amount = tonumber(ARGV[1])
if tonumber(balance) < amount then
	return -2
end
if redis.call('EXISTS', KEYS[2]) == 1 then
	return -3
end
redis.call('HINCRBY', KEYS[1], 'credit_balance', -amount)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[4])
redis.call('SET', KEYS[2], ARGV[2])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[5])
return tonumber(balance) - amount
`)

const (
	commitClientMissing = -1
	commitInsufficient  = -2
	commitAlreadyExists = -3
)

// ExecutionRepository handles execution documents and per-client indexes.
type ExecutionRepository struct {
	rp *Persistence
}

// Append stores a new execution. Existing executions are never overwritten.
func (er *ExecutionRepository) Append(ctx context.Context, execution *models.Execution) error {
	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	keys := []string{er.rp.keys.execution(execution.ID)}
	if execution.ClientID != nil {
		keys = append(keys, er.rp.keys.clientExecutions(string(*execution.ClientID)))
	}

	inserted, err := appendScript.Run(ctx, er.rp.client, keys,
		data, execution.StartedAt.UnixMilli(), execution.ID,
	).Int64()
	if err != nil {
		return fmt.Errorf("failed to append execution: %w", err)
	}

	if inserted == 0 {
		return fmt.Errorf("%w: %s", persistence.ErrExecutionAlreadyExists, execution.ID)
	}

	return nil
}

// CommitSuccess debits the client and stores the execution in one script run.
// Redis executes scripts atomically, so concurrent commits never overdraw.
func (er *ExecutionRepository) CommitSuccess(ctx context.Context, execution *models.Execution) error {
	if execution.ClientID == nil || execution.CreditsUsed == nil || *execution.CreditsUsed < 0 {
		return persistence.NewClientError("CommitSuccess", string(execution.ClientIDValue()), persistence.ErrInvalidAmount)
	}

	clientID := string(*execution.ClientID)

	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	keys := []string{
		er.rp.keys.client(clientID),
		er.rp.keys.execution(execution.ID),
		er.rp.keys.clientExecutions(clientID),
	}

	remaining, err := commitScript.Run(ctx, er.rp.client, keys,
		*execution.CreditsUsed,
		data,
		execution.StartedAt.UnixMilli(),
		time.Now().UTC().Format(time.RFC3339Nano),
		execution.ID,
	).Int64()
	if err != nil {
		return fmt.Errorf("failed to commit execution: %w", err)
	}

	switch remaining {
	case commitClientMissing:
		return persistence.NewClientError("CommitSuccess", clientID, persistence.ErrClientNotFound)
	case commitInsufficient:
		return persistence.NewClientError("CommitSuccess", clientID, persistence.ErrInsufficientBalance)
	case commitAlreadyExists:
		return fmt.Errorf("%w: %s", persistence.ErrExecutionAlreadyExists, execution.ID)
	}

	er.rp.logger.DebugContext(ctx, "committed execution",
		"execution_id", execution.ID,
		"client_id", clientID,
		"remaining", remaining,
	)

	return nil
}

// GetByID retrieves an execution by its ID.
func (er *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	var execution models.Execution

	found, err := er.rp.getJSON(ctx, er.rp.keys.execution(id), &execution)
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	if !found {
		return nil, fmt.Errorf("%w: %s", persistence.ErrExecutionNotFound, id)
	}

	return &execution, nil
}

// ListByClient returns the client's executions, newest first. A limit <= 0 returns all.
func (er *ExecutionRepository) ListByClient(
	ctx context.Context,
	clientID models.ClientID,
	limit int,
) ([]*models.Execution, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	ids, err := er.rp.client.ZRevRange(ctx, er.rp.keys.clientExecutions(string(clientID)), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	executions := make([]*models.Execution, 0, len(ids))
	if len(ids) == 0 {
		return executions, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = er.rp.keys.execution(id)
	}

	values, err := er.rp.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			er.rp.logger.WarnContext(ctx, "indexed execution is missing", "execution_id", ids[i])

			continue
		}

		var execution models.Execution

		err = json.Unmarshal([]byte(raw), &execution)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution %s: %w", ids[i], err)
		}

		executions = append(executions, &execution)
	}

	return executions, nil
}
