package testutil

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LedgerFactory returns an empty store for a single test.
type LedgerFactory func(t *testing.T) persistence.Persistence

// RunLedgerSuite exercises the persistence contract every backend must honor.
func RunLedgerSuite(t *testing.T, newStore LedgerFactory) {
	t.Helper()

	t.Run("client round trip", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		client := CreateTestClient(WithBalance(42))
		require.NoError(t, store.ClientRepository().Save(ctx, client))

		got, err := store.ClientRepository().GetByID(ctx, client.ID)
		require.NoError(t, err)
		assert.Equal(t, client.ID, got.ID)
		assert.Equal(t, client.Name, got.Name)
		assert.Equal(t, int64(42), got.CreditBalance)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("missing client", func(t *testing.T) {
		store := newStore(t)

		_, err := store.ClientRepository().GetByID(t.Context(), "missing")
		require.Error(t, err)
		assert.True(t, persistence.IsClientNotFound(err))
	})

	t.Run("automation round trip", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		automation := CreateTestAutomation(func(a *models.Automation) {
			a.Auth = &models.AuthDescriptor{
				Type:        models.AuthTypeHeader,
				Credentials: map[string]string{"X-N8N-Key": "secret"},
			}
		})
		require.NoError(t, store.AutomationRepository().Save(ctx, automation))

		got, err := store.AutomationRepository().GetByID(ctx, automation.ID)
		require.NoError(t, err)
		assert.Equal(t, automation, got)

		_, err = store.AutomationRepository().GetByID(ctx, "missing")
		assert.True(t, persistence.IsAutomationNotFound(err))
	})

	t.Run("assignment lookup is per pair", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		client := CreateTestClient()
		automation := CreateTestAutomation()
		other := CreateTestAutomation()

		require.NoError(t, store.ClientRepository().Save(ctx, client))
		require.NoError(t, store.AutomationRepository().Save(ctx, automation))
		require.NoError(t, store.AutomationRepository().Save(ctx, other))
		require.NoError(t, store.AssignmentRepository().Save(ctx, CreateTestAssignment(client.ID, automation.ID, WithCost(5))))

		got, err := store.AssignmentRepository().Get(ctx, client.ID, automation.ID)
		require.NoError(t, err)
		assert.True(t, got.IsActive)
		assert.Equal(t, int64(5), got.CreditsPerExecution)

		_, err = store.AssignmentRepository().Get(ctx, client.ID, other.ID)
		require.Error(t, err)
		assert.True(t, persistence.IsAssignmentNotFound(err))

		require.NoError(t, store.AssignmentRepository().Save(ctx, CreateTestAssignment(client.ID, automation.ID, Inactive())))

		got, err = store.AssignmentRepository().Get(ctx, client.ID, automation.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)
	})

	t.Run("append is insert only", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		client, automation := seedPair(t, store, 10)
		execution := CreateTestExecution(client.ID, automation.ID, models.ExecutionStatusFailed)

		require.NoError(t, store.ExecutionRepository().Append(ctx, execution))

		got, err := store.ExecutionRepository().GetByID(ctx, execution.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusFailed, got.Status)
		assert.Equal(t, execution.ExecutionID, got.ExecutionID)
		assert.Equal(t, client.ID, got.ClientIDValue())
		assert.Nil(t, got.CreditsUsed)
		assert.Equal(t, "failed", got.Result["kind"])

		err = store.ExecutionRepository().Append(ctx, execution)
		require.Error(t, err)
		assert.ErrorIs(t, err, persistence.ErrExecutionAlreadyExists)

		assertBalance(t, store, client.ID, 10)
	})

	t.Run("append without client", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		_, automation := seedPair(t, store, 10)
		execution := CreateTestExecution("", automation.ID, models.ExecutionStatusFailed)

		require.NoError(t, store.ExecutionRepository().Append(ctx, execution))

		got, err := store.ExecutionRepository().GetByID(ctx, execution.ID)
		require.NoError(t, err)
		assert.Nil(t, got.ClientID)
	})

	t.Run("missing execution", func(t *testing.T) {
		store := newStore(t)

		_, err := store.ExecutionRepository().GetByID(t.Context(), "8f7c2a9e-7c36-4d0e-9d6c-1f4e7b0c1a11")
		require.Error(t, err)
		assert.True(t, persistence.IsExecutionNotFound(err))
	})

	t.Run("commit success debits and appends", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		client, automation := seedPair(t, store, 10)
		execution := CreateTestExecution(client.ID, automation.ID, models.ExecutionStatusSuccess, WithCreditsUsed(3))

		require.NoError(t, store.ExecutionRepository().CommitSuccess(ctx, execution))

		assertBalance(t, store, client.ID, 7)

		got, err := store.ExecutionRepository().GetByID(ctx, execution.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusSuccess, got.Status)
		require.NotNil(t, got.CreditsUsed)
		assert.Equal(t, int64(3), *got.CreditsUsed)
	})

	t.Run("commit success with exact balance reaches zero", func(t *testing.T) {
		store := newStore(t)

		client, automation := seedPair(t, store, 3)
		execution := CreateTestExecution(client.ID, automation.ID, models.ExecutionStatusSuccess, WithCreditsUsed(3))

		require.NoError(t, store.ExecutionRepository().CommitSuccess(t.Context(), execution))
		assertBalance(t, store, client.ID, 0)
	})

	t.Run("commit success refuses to overdraw", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		client, automation := seedPair(t, store, 2)
		execution := CreateTestExecution(client.ID, automation.ID, models.ExecutionStatusSuccess, WithCreditsUsed(3))

		err := store.ExecutionRepository().CommitSuccess(ctx, execution)
		require.Error(t, err)
		assert.True(t, persistence.IsInsufficientBalance(err))

		assertBalance(t, store, client.ID, 2)

		_, err = store.ExecutionRepository().GetByID(ctx, execution.ID)
		assert.True(t, persistence.IsExecutionNotFound(err))
	})

	t.Run("commit success for missing client", func(t *testing.T) {
		store := newStore(t)

		_, automation := seedPair(t, store, 10)
		execution := CreateTestExecution("ghost", automation.ID, models.ExecutionStatusSuccess, WithCreditsUsed(1))

		err := store.ExecutionRepository().CommitSuccess(t.Context(), execution)
		require.Error(t, err)
		assert.True(t, persistence.IsClientNotFound(err))
	})

	t.Run("commit success rejects negative amounts", func(t *testing.T) {
		store := newStore(t)

		client, automation := seedPair(t, store, 10)
		execution := CreateTestExecution(client.ID, automation.ID, models.ExecutionStatusSuccess, WithCreditsUsed(-4))

		err := store.ExecutionRepository().CommitSuccess(t.Context(), execution)
		require.ErrorIs(t, err, persistence.ErrInvalidAmount)
		assertBalance(t, store, client.ID, 10)
	})

	t.Run("concurrent commits never overdraw", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		const (
			balance = 10
			cost    = 3
			callers = 16
		)

		client, automation := seedPair(t, store, balance)

		var (
			wg        sync.WaitGroup
			succeeded atomic.Int64
			refused   atomic.Int64
		)

		start := make(chan struct{})

		for range callers {
			wg.Add(1)

			go func() {
				defer wg.Done()

				<-start

				execution := CreateTestExecution(client.ID, automation.ID, models.ExecutionStatusSuccess, WithCreditsUsed(cost))

				err := store.ExecutionRepository().CommitSuccess(ctx, execution)

				switch {
				case err == nil:
					succeeded.Add(1)
				case persistence.IsInsufficientBalance(err):
					refused.Add(1)
				default:
					t.Errorf("unexpected commit error: %v", err)
				}
			}()
		}

		close(start)
		wg.Wait()

		assert.Equal(t, int64(balance/cost), succeeded.Load())
		assert.Equal(t, int64(callers-balance/cost), refused.Load())
		assertBalance(t, store, client.ID, balance%cost)

		executions, err := store.ExecutionRepository().ListByClient(ctx, client.ID, 0)
		require.NoError(t, err)
		assert.Len(t, executions, balance/cost)
	})

	t.Run("list by client is newest first", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		client, automation := seedPair(t, store, 10)
		other := CreateTestClient()
		require.NoError(t, store.ClientRepository().Save(ctx, other))

		base := time.Now().UTC().Truncate(time.Millisecond)
		oldest := CreateTestExecution(client.ID, automation.ID, models.ExecutionStatusFailed, StartedAt(base.Add(-2*time.Minute)))
		middle := CreateTestExecution(client.ID, automation.ID, models.ExecutionStatusFailed, StartedAt(base.Add(-time.Minute)))
		newest := CreateTestExecution(client.ID, automation.ID, models.ExecutionStatusFailed, StartedAt(base))
		foreign := CreateTestExecution(other.ID, automation.ID, models.ExecutionStatusFailed)

		for _, execution := range []*models.Execution{middle, oldest, foreign, newest} {
			require.NoError(t, store.ExecutionRepository().Append(ctx, execution))
		}

		executions, err := store.ExecutionRepository().ListByClient(ctx, client.ID, 0)
		require.NoError(t, err)
		require.Len(t, executions, 3)
		assert.Equal(t, newest.ID, executions[0].ID)
		assert.Equal(t, middle.ID, executions[1].ID)
		assert.Equal(t, oldest.ID, executions[2].ID)

		limited, err := store.ExecutionRepository().ListByClient(ctx, client.ID, 2)
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, newest.ID, limited[0].ID)

		empty, err := store.ExecutionRepository().ListByClient(ctx, "nobody", 0)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("health check", func(t *testing.T) {
		store := newStore(t)

		assert.NoError(t, store.HealthCheck(t.Context()))
	})
}

func seedPair(t *testing.T, store persistence.Persistence, balance int64) (*models.Client, *models.Automation) {
	t.Helper()

	ctx := t.Context()
	client := CreateTestClient(WithBalance(balance))
	automation := CreateTestAutomation()

	require.NoError(t, store.ClientRepository().Save(ctx, client))
	require.NoError(t, store.AutomationRepository().Save(ctx, automation))
	require.NoError(t, store.AssignmentRepository().Save(ctx, CreateTestAssignment(client.ID, automation.ID)))

	return client, automation
}

// AssertBalance fails the test when the stored balance differs from want.
func AssertBalance(t *testing.T, store persistence.Persistence, clientID models.ClientID, want int64) {
	t.Helper()

	assertBalance(t, store, clientID, want)
}

func assertBalance(t *testing.T, store persistence.Persistence, clientID models.ClientID, want int64) {
	t.Helper()

	client, err := store.ClientRepository().GetByID(t.Context(), clientID)
	require.NoError(t, err)
	assert.Equal(t, want, client.CreditBalance)
}
