package eventbus_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/creditflow/pkg/channels/gochannel"
	"github.com/dukex/creditflow/pkg/eventbus"
	"github.com/dukex/creditflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestWatermillEventBus_RoundTrip(t *testing.T) {
	bus := newBus(t)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	received := make(chan *events.ExecutionSucceeded, 1)

	require.NoError(t, bus.Handle(events.ExecutionSucceededEvent, func(_ context.Context, event any) error {
		received <- event.(*events.ExecutionSucceeded)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	sent := events.ExecutionSucceeded{
		BaseEvent:         events.NewBaseEvent(bus.GenerateID(), events.ExecutionSucceededEvent),
		ExecutionRecordID: "rec-1",
		ExecutionID:       "manual-1717171717000",
		ClientID:          "client-1",
		AutomationID:      "automation-1",
		CreditsUsed:       3,
	}

	require.NoError(t, bus.Publish(ctx, "client-1", sent))

	select {
	case got := <-received:
		assert.Equal(t, sent.ExecutionRecordID, got.ExecutionRecordID)
		assert.Equal(t, sent.ExecutionID, got.ExecutionID)
		assert.Equal(t, int64(3), got.CreditsUsed)
		assert.Equal(t, events.ExecutionSucceededEvent, got.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_UnhandledTypesAreAcked(t *testing.T) {
	bus := newBus(t)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	received := make(chan *events.ExecutionFailed, 1)

	require.NoError(t, bus.Handle(events.ExecutionFailedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.ExecutionFailed)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "c", events.ExecutionSucceeded{
		BaseEvent: events.NewBaseEvent(bus.GenerateID(), events.ExecutionSucceededEvent),
	}))
	require.NoError(t, bus.Publish(ctx, "c", events.ExecutionFailed{
		BaseEvent: events.NewBaseEvent(bus.GenerateID(), events.ExecutionFailedEvent),
		Kind:      "unreachable",
	}))

	select {
	case got := <-received:
		assert.Equal(t, "unreachable", got.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}
