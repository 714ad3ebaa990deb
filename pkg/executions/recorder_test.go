package executions_test

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dukex/creditflow/pkg/events"
	"github.com/dukex/creditflow/pkg/executions"
	"github.com/dukex/creditflow/pkg/mocks"
	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
	"github.com/dukex/creditflow/pkg/persistence/file"
	"github.com/dukex/creditflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupRecorder(t *testing.T, opts ...executions.Option) (*executions.Recorder, *file.Persistence, *models.Client, *models.Automation) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	ctx := t.Context()

	client := testutil.CreateTestClient(testutil.WithBalance(10))
	automation := testutil.CreateTestAutomation()
	require.NoError(t, store.ClientRepository().Save(ctx, client))
	require.NoError(t, store.AutomationRepository().Save(ctx, automation))

	opts = append([]executions.Option{executions.WithClock(func() time.Time { return fixedNow })}, opts...)

	return executions.NewRecorder(store, newLogger(), opts...), store, client, automation
}

func TestRecorder_RecordSuccess(t *testing.T) {
	recorder, store, client, automation := setupRecorder(t)
	ctx := t.Context()

	executionID, err := recorder.RecordSuccess(ctx, executions.Entry{
		ClientID:     client.ID,
		AutomationID: automation.ID,
		StartedAt:    fixedNow.Add(-time.Second),
		Result:       map[string]any{"statusCode": 200},
	}, 3)
	require.NoError(t, err)

	testutil.AssertBalance(t, store, client.ID, 7)

	list, err := store.ExecutionRepository().ListByClient(ctx, client.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	execution := list[0]
	assert.Equal(t, models.ExecutionID("manual-1717243200000-"+execution.ID), executionID)
	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.Equal(t, executionID, execution.ExecutionID)
	require.NotNil(t, execution.CreditsUsed)
	assert.Equal(t, int64(3), *execution.CreditsUsed)
	require.NotNil(t, execution.FinishedAt)
	assert.True(t, execution.FinishedAt.Equal(fixedNow))
	assert.True(t, execution.StartedAt.Equal(fixedNow.Add(-time.Second)))
}

func TestRecorder_RecordSuccess_UsesEngineExecutionID(t *testing.T) {
	recorder, _, client, automation := setupRecorder(t)

	executionID, err := recorder.RecordSuccess(t.Context(), executions.Entry{
		ClientID:          client.ID,
		AutomationID:      automation.ID,
		EngineExecutionID: "n8n-4711",
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionID("n8n-4711"), executionID)
}

func TestRecorder_RecordSuccess_InsufficientBalance(t *testing.T) {
	recorder, store, client, automation := setupRecorder(t)
	ctx := t.Context()

	_, err := recorder.RecordSuccess(ctx, executions.Entry{ClientID: client.ID, AutomationID: automation.ID}, 11)
	require.Error(t, err)
	assert.True(t, persistence.IsInsufficientBalance(err))

	testutil.AssertBalance(t, store, client.ID, 10)

	list, err := store.ExecutionRepository().ListByClient(ctx, client.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRecorder_RecordSuccess_RequiresClient(t *testing.T) {
	recorder, _, _, automation := setupRecorder(t)

	_, err := recorder.RecordSuccess(t.Context(), executions.Entry{AutomationID: automation.ID}, 1)
	require.ErrorIs(t, err, executions.ErrClientRequired)
}

func TestRecorder_RecordFailure(t *testing.T) {
	recorder, store, client, automation := setupRecorder(t)
	ctx := t.Context()

	executionID, err := recorder.RecordFailure(ctx, executions.Entry{
		ClientID:     client.ID,
		AutomationID: automation.ID,
		Result:       map[string]any{"statusCode": 500, "kind": "overridden"},
	}, "rejected")
	require.NoError(t, err)

	testutil.AssertBalance(t, store, client.ID, 10)

	list, err := store.ExecutionRepository().ListByClient(ctx, client.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.NewManualExecutionID(fixedNow, list[0].ID), executionID)
	assert.Equal(t, models.ExecutionStatusFailed, list[0].Status)
	assert.Equal(t, "rejected", list[0].Result["kind"])
	assert.InDelta(t, 500, list[0].Result["statusCode"], 0)
	assert.Nil(t, list[0].CreditsUsed)
}

func TestRecorder_ManualIDsAreUniqueWithinAMillisecond(t *testing.T) {
	recorder, store, client, automation := setupRecorder(t)
	ctx := t.Context()
	entry := executions.Entry{ClientID: client.ID, AutomationID: automation.ID}

	succeeded, err := recorder.RecordSuccess(ctx, entry, 1)
	require.NoError(t, err)

	failed, err := recorder.RecordFailure(ctx, entry, "rejected")
	require.NoError(t, err)

	again, err := recorder.RecordSuccess(ctx, entry, 1)
	require.NoError(t, err)

	assert.NotEqual(t, succeeded, failed)
	assert.NotEqual(t, succeeded, again)
	assert.NotEqual(t, failed, again)

	for _, id := range []models.ExecutionID{succeeded, failed, again} {
		assert.True(t, strings.HasPrefix(string(id), "manual-1717243200000-"), id)
	}

	list, err := store.ExecutionRepository().ListByClient(ctx, client.ID, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestRecorder_PublishesEvents(t *testing.T) {
	bus := &mocks.MockEventBus{}
	recorder, _, client, automation := setupRecorder(t, executions.WithPublisher(bus))
	ctx := t.Context()

	bus.On("Publish", mock.Anything, string(client.ID), mock.MatchedBy(func(event events.ExecutionSucceeded) bool {
		return event.CreditsUsed == 3 && event.ClientID == client.ID && event.Type == events.ExecutionSucceededEvent
	})).Return(nil).Once()
	bus.On("Publish", mock.Anything, string(client.ID), mock.MatchedBy(func(event events.ExecutionFailed) bool {
		return event.Kind == "unreachable" && event.AutomationID == automation.ID
	})).Return(nil).Once()

	_, err := recorder.RecordSuccess(ctx, executions.Entry{ClientID: client.ID, AutomationID: automation.ID}, 3)
	require.NoError(t, err)

	_, err = recorder.RecordFailure(ctx, executions.Entry{ClientID: client.ID, AutomationID: automation.ID}, "unreachable")
	require.NoError(t, err)

	bus.AssertExpectations(t)
}

func TestRecorder_PublishFailureDoesNotFailRecording(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	recorder, store, client, automation := setupRecorder(t, executions.WithPublisher(bus))

	_, err := recorder.RecordSuccess(t.Context(), executions.Entry{ClientID: client.ID, AutomationID: automation.ID}, 4)
	require.NoError(t, err)

	testutil.AssertBalance(t, store, client.ID, 6)
	bus.AssertNumberOfCalls(t, "Publish", 1)
}

func TestRecorder_StoreFailure(t *testing.T) {
	store := mocks.NewMockPersistence()
	boom := errors.New("disk full")
	store.Executions.On("Append", mock.Anything, mock.Anything).Return(boom)

	recorder := executions.NewRecorder(store, newLogger())

	_, err := recorder.RecordFailure(t.Context(), executions.Entry{ClientID: "c", AutomationID: "a"}, "rejected")
	require.ErrorIs(t, err, boom)

	store.AssertExpectations(t)
}
