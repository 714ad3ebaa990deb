// Package executions writes the append-only execution audit trail.
package executions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/dukex/creditflow/pkg/eventbus"
	"github.com/dukex/creditflow/pkg/events"
	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/otelhelper"
	"github.com/dukex/creditflow/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrClientRequired = errors.New("success execution requires a client")

// Entry describes one finished dispatch attempt.
type Entry struct {
	// ClientID is empty for runs not triggered on behalf of a client.
	ClientID     models.ClientID
	AutomationID models.AutomationID
	StartedAt    time.Time

	// EngineExecutionID is the engine's id for the run, if it reported one.
	EngineExecutionID string

	Result map[string]any
}

// Recorder appends executions and debits balances for successful runs.
type Recorder struct {
	executions persistence.ExecutionRepository
	publisher  eventbus.EventPublisher
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithPublisher publishes an event for every recorded execution.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(r *Recorder) {
		r.publisher = publisher
	}
}

// WithClock overrides the time source for FinishedAt and synthesized ids.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a recorder writing to the store's execution repository.
func NewRecorder(store persistence.Persistence, logger *slog.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		executions: store.ExecutionRepository(),
		logger:     logger.With("module", "executions"),
		tracer:     otelhelper.Tracer("creditflow/executions"),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// RecordSuccess appends a success execution and debits creditsUsed from the
// client as one atomic unit. When the balance no longer covers the amount
// nothing is written and persistence.ErrInsufficientBalance is returned.
func (r *Recorder) RecordSuccess(ctx context.Context, entry Entry, creditsUsed int64) (models.ExecutionID, error) {
	ctx, span := r.startSpan(ctx, entry, string(models.ExecutionStatusSuccess))
	defer span.End()

	if entry.ClientID == "" {
		otelhelper.SetError(span, ErrClientRequired)

		return "", ErrClientRequired
	}

	execution := r.build(entry, models.ExecutionStatusSuccess)
	execution.Result = maps.Clone(entry.Result)
	execution.CreditsUsed = &creditsUsed

	err := r.executions.CommitSuccess(ctx, execution)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", fmt.Errorf("failed to commit success execution: %w", err)
	}

	span.SetAttributes(
		attribute.String(otelhelper.ExecutionIDKey, string(execution.ExecutionID)),
		attribute.Int64(otelhelper.CreditsKey, creditsUsed),
	)

	r.logger.InfoContext(ctx, "recorded success execution",
		"execution_id", execution.ExecutionID,
		"client_id", entry.ClientID,
		"automation_id", entry.AutomationID,
		"credits_used", creditsUsed,
	)

	r.publish(ctx, string(entry.ClientID), events.ExecutionSucceeded{
		BaseEvent:         events.NewBaseEvent(uuid.NewString(), events.ExecutionSucceededEvent),
		ExecutionRecordID: execution.ID,
		ExecutionID:       execution.ExecutionID,
		ClientID:          entry.ClientID,
		AutomationID:      entry.AutomationID,
		CreditsUsed:       creditsUsed,
	})

	return execution.ExecutionID, nil
}

// RecordFailure appends a failed execution whose result carries kind. No
// credits are debited.
func (r *Recorder) RecordFailure(ctx context.Context, entry Entry, kind string) (models.ExecutionID, error) {
	ctx, span := r.startSpan(ctx, entry, string(models.ExecutionStatusFailed))
	defer span.End()

	span.SetAttributes(attribute.String(otelhelper.ExecutionKindKey, kind))

	execution := r.build(entry, models.ExecutionStatusFailed)
	execution.Result = make(map[string]any, len(entry.Result)+1)
	maps.Copy(execution.Result, entry.Result)
	execution.Result["kind"] = kind

	err := r.executions.Append(ctx, execution)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", fmt.Errorf("failed to append failed execution: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, string(execution.ExecutionID)))

	r.logger.InfoContext(ctx, "recorded failed execution",
		"execution_id", execution.ExecutionID,
		"client_id", entry.ClientID,
		"automation_id", entry.AutomationID,
		"kind", kind,
	)

	r.publish(ctx, string(entry.ClientID), events.ExecutionFailed{
		BaseEvent:         events.NewBaseEvent(uuid.NewString(), events.ExecutionFailedEvent),
		ExecutionRecordID: execution.ID,
		ExecutionID:       execution.ExecutionID,
		ClientID:          entry.ClientID,
		AutomationID:      entry.AutomationID,
		Kind:              kind,
	})

	return execution.ExecutionID, nil
}

func (r *Recorder) build(entry Entry, status models.ExecutionStatus) *models.Execution {
	finishedAt := r.now().UTC()

	startedAt := entry.StartedAt
	if startedAt.IsZero() {
		startedAt = finishedAt
	}

	recordID := uuid.NewString()

	executionID := models.ExecutionID(entry.EngineExecutionID)
	if executionID == "" {
		executionID = models.NewManualExecutionID(finishedAt, recordID)
	}

	execution := &models.Execution{
		ID:           recordID,
		AutomationID: entry.AutomationID,
		ExecutionID:  executionID,
		Status:       status,
		StartedAt:    startedAt.UTC(),
		FinishedAt:   &finishedAt,
	}

	if entry.ClientID != "" {
		clientID := entry.ClientID
		execution.ClientID = &clientID
	}

	return execution
}

// publish never fails the caller: the execution is already durable.
func (r *Recorder) publish(ctx context.Context, key string, event eventbus.Event) {
	if r.publisher == nil {
		return
	}

	err := r.publisher.Publish(ctx, key, event)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to publish execution event",
			"event_type", event.GetType(),
			"error", err,
		)
	}
}

// nolint:spancheck // callers end the span
func (r *Recorder) startSpan(ctx context.Context, entry Entry, status string) (context.Context, trace.Span) {
	return otelhelper.StartSpan(ctx, r.tracer, "executions.record",
		attribute.String(otelhelper.ClientIDKey, string(entry.ClientID)),
		attribute.String(otelhelper.AutomationIDKey, string(entry.AutomationID)),
		attribute.String("creditflow.execution.status", status),
	)
}
