// Package scheduler runs dispatches on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/dukex/creditflow/pkg/config"
	"github.com/dukex/creditflow/pkg/services"
	"github.com/robfig/cron/v3"
)

var ErrUnknownSchedule = errors.New("unknown schedule")

// Dispatcher runs a single dispatch.
type Dispatcher interface {
	Dispatch(ctx context.Context, req services.DispatchRequest) (services.DispatchResult, error)
}

// Scheduler fires a dispatch for every enabled schedule entry on its cron
// expression. A tick is skipped while the previous run of the same entry is
// still in flight.
type Scheduler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	timeout    time.Duration
	cron       *cron.Cron

	mu      sync.RWMutex
	entries map[string]config.ScheduleEntry
}

type Option func(*Scheduler)

// WithRunTimeout bounds each scheduled dispatch.
func WithRunTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		s.timeout = timeout
	}
}

func New(dispatcher Dispatcher, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		dispatcher: dispatcher,
		logger:     logger.With("module", "scheduler"),
		timeout:    time.Minute,
		entries:    make(map[string]config.ScheduleEntry),
	}

	for _, opt := range opts {
		opt(s)
	}

	cronLog := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(
			cron.SkipIfStillRunning(cronLog),
			cron.Recover(cronLog),
		),
	)

	return s
}

// Add registers an entry. Disabled entries are kept so they can still be
// triggered by hand, but never fire on their own.
func (s *Scheduler) Add(entry config.ScheduleEntry) error {
	if entry.ID == "" {
		return errors.New("schedule ID is required")
	}

	if entry.ClientID == "" || entry.AutomationID == "" {
		return fmt.Errorf("schedule %s: clientId and automationId are required", entry.ID)
	}

	if _, err := cron.ParseStandard(entry.Cron); err != nil {
		return fmt.Errorf("schedule %s: invalid cron expression: %w", entry.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entry.ID]; ok {
		return fmt.Errorf("schedule %s already registered", entry.ID)
	}

	s.entries[entry.ID] = entry

	if !entry.IsEnabled() {
		s.logger.Info("Schedule is disabled", "schedule_id", entry.ID)

		return nil
	}

	id, err := s.cron.AddFunc(entry.Cron, func() { s.run(entry) })
	if err != nil {
		return fmt.Errorf("failed to add cron job for schedule %s: %w", entry.ID, err)
	}

	s.logger.Info("Added cron job for schedule",
		"schedule_id", entry.ID,
		"cron", entry.Cron,
		"cron_entry", id,
		"client_id", entry.ClientID,
		"automation_id", entry.AutomationID,
	)

	return nil
}

// Len returns the number of registered entries, enabled or not.
func (s *Scheduler) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler", "schedules", s.Len())
	s.cron.Start()
}

// Stop prevents new runs and waits for running dispatches until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Stopping scheduler")

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger dispatches the entry immediately, outside of its schedule.
func (s *Scheduler) Trigger(ctx context.Context, id string) (services.DispatchResult, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok {
		return services.DispatchResult{}, fmt.Errorf("%w: %s", ErrUnknownSchedule, id)
	}

	return s.dispatch(ctx, entry)
}

func (s *Scheduler) run(entry config.ScheduleEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.logger.Info("Cron job triggered", "schedule_id", entry.ID)

	// Denials and upstream failures are already logged and recorded by the
	// dispatch itself.
	_, _ = s.dispatch(ctx, entry)
}

func (s *Scheduler) dispatch(ctx context.Context, entry config.ScheduleEntry) (services.DispatchResult, error) {
	payload := make(map[string]any, len(entry.Payload)+2)
	maps.Copy(payload, entry.Payload)

	payload["scheduleId"] = entry.ID
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	result, err := s.dispatcher.Dispatch(ctx, services.DispatchRequest{
		ClientID:     entry.ClientID,
		AutomationID: entry.AutomationID,
		Payload:      payload,
	})

	s.logger.InfoContext(ctx, "Scheduled dispatch finished",
		"schedule_id", entry.ID,
		"state", result.State,
		"reason", result.Reason,
		"execution_id", result.ExecutionID,
	)

	return result, err
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
