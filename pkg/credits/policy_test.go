package credits_test

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/dukex/creditflow/pkg/credits"
	"github.com/dukex/creditflow/pkg/mocks"
	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
	"github.com/dukex/creditflow/pkg/persistence/file"
	"github.com/dukex/creditflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupPolicy(t *testing.T) (*credits.Policy, *file.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	return credits.NewPolicy(store, newLogger()), store
}

func TestPolicy_Evaluate(t *testing.T) {
	tests := []struct {
		name       string
		balance    int64
		assignment func(models.ClientID, models.AutomationID) *models.Assignment
		expected   credits.Verdict
	}{
		{
			name:    "approved when balance covers cost",
			balance: 10,
			assignment: func(c models.ClientID, a models.AutomationID) *models.Assignment {
				return testutil.CreateTestAssignment(c, a, testutil.WithCost(3))
			},
			expected: credits.Approve(3, 10),
		},
		{
			name:    "approved with exact balance",
			balance: 3,
			assignment: func(c models.ClientID, a models.AutomationID) *models.Assignment {
				return testutil.CreateTestAssignment(c, a, testutil.WithCost(3))
			},
			expected: credits.Approve(3, 3),
		},
		{
			name:    "approved for free automation with empty balance",
			balance: 0,
			assignment: func(c models.ClientID, a models.AutomationID) *models.Assignment {
				return testutil.CreateTestAssignment(c, a, testutil.WithCost(0))
			},
			expected: credits.Approve(0, 0),
		},
		{
			name:    "insufficient credits",
			balance: 2,
			assignment: func(c models.ClientID, a models.AutomationID) *models.Assignment {
				return testutil.CreateTestAssignment(c, a, testutil.WithCost(3))
			},
			expected: credits.Deny(credits.ReasonInsufficientCredits, 3, 2),
		},
		{
			name:    "inactive assignment",
			balance: 100,
			assignment: func(c models.ClientID, a models.AutomationID) *models.Assignment {
				return testutil.CreateTestAssignment(c, a, testutil.WithCost(3), testutil.Inactive())
			},
			expected: credits.Deny(credits.ReasonInactive, 3, 0),
		},
		{
			name:       "not assigned",
			balance:    100,
			assignment: nil,
			expected:   credits.Deny(credits.ReasonNotAssigned, 0, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, store := setupPolicy(t)
			ctx := t.Context()

			client := testutil.CreateTestClient(testutil.WithBalance(tt.balance))
			automation := testutil.CreateTestAutomation()
			require.NoError(t, store.ClientRepository().Save(ctx, client))
			require.NoError(t, store.AutomationRepository().Save(ctx, automation))

			if tt.assignment != nil {
				require.NoError(t, store.AssignmentRepository().Save(ctx, tt.assignment(client.ID, automation.ID)))
			}

			verdict, err := policy.Evaluate(ctx, client.ID, automation.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, verdict)

			testutil.AssertBalance(t, store, client.ID, tt.balance)
		})
	}
}

func TestPolicy_Evaluate_DanglingClient(t *testing.T) {
	policy, store := setupPolicy(t)
	ctx := t.Context()

	automation := testutil.CreateTestAutomation()
	require.NoError(t, store.AutomationRepository().Save(ctx, automation))
	require.NoError(t, store.AssignmentRepository().Save(ctx, testutil.CreateTestAssignment("ghost", automation.ID)))

	verdict, err := policy.Evaluate(ctx, "ghost", automation.ID)
	require.NoError(t, err)
	assert.False(t, verdict.Approved)
	assert.Equal(t, credits.ReasonClientNotFound, verdict.Reason)
	assert.False(t, verdict.IsNotEntitled())
}

func TestPolicy_Evaluate_StoreFailure(t *testing.T) {
	store := mocks.NewMockPersistence()
	boom := errors.New("connection reset")

	store.Assignments.On("Get", mock.Anything, models.ClientID("c1"), models.AutomationID("a1")).Return(nil, boom)

	policy := credits.NewPolicy(store, newLogger())

	_, err := policy.Evaluate(t.Context(), "c1", "a1")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	store.AssertExpectations(t)
}

func TestPolicy_Evaluate_ClientLoadFailure(t *testing.T) {
	store := mocks.NewMockPersistence()
	boom := errors.New("timeout")

	store.Assignments.On("Get", mock.Anything, models.ClientID("c1"), models.AutomationID("a1")).
		Return(testutil.CreateTestAssignment("c1", "a1"), nil)
	store.Clients.On("GetByID", mock.Anything, models.ClientID("c1")).Return(nil, boom)

	policy := credits.NewPolicy(store, newLogger())

	_, err := policy.Evaluate(t.Context(), "c1", "a1")
	require.ErrorIs(t, err, boom)
	assert.False(t, persistence.IsClientNotFound(err))

	store.AssertExpectations(t)
}

func TestVerdict(t *testing.T) {
	assert.Equal(t, int64(7), credits.Approve(3, 10).Remaining())
	assert.Equal(t, int64(2), credits.Deny(credits.ReasonInsufficientCredits, 3, 2).Remaining())

	assert.True(t, credits.Deny(credits.ReasonNotAssigned, 0, 0).IsNotEntitled())
	assert.True(t, credits.Deny(credits.ReasonInactive, 3, 0).IsNotEntitled())
	assert.False(t, credits.Deny(credits.ReasonInsufficientCredits, 3, 2).IsNotEntitled())
	assert.False(t, credits.Approve(3, 10).IsNotEntitled())
}
