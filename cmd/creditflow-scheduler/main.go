// Package main runs credit-gated dispatches on cron schedules.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/creditflow/pkg/cmd"
	"github.com/dukex/creditflow/pkg/config"
	"github.com/dukex/creditflow/pkg/log"
	"github.com/dukex/creditflow/pkg/otelhelper"
	"github.com/dukex/creditflow/pkg/persistence"
	"github.com/dukex/creditflow/pkg/scheduler"
	"github.com/dukex/creditflow/pkg/webhook"
	cli "github.com/urfave/cli/v3"
)

const shutdownTimeout = 30 * time.Second

func main() {
	command := &cli.Command{
		Name:  "creditflow-scheduler",
		Usage: "Dispatch automations for clients on cron schedules",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "schedules",
				Aliases: []string{"s"},
				Usage:   "Path to the schedules YAML file",
				Value:   "./schedules.yaml",
				Sources: cli.EnvVars("SCHEDULES_FILE"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Ledger store URL (file://<dir>, postgres://..., redis://...)",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.DurationFlag{
				Name:    "webhook-timeout",
				Usage:   "Timeout for each automation webhook call",
				Value:   webhook.DefaultTimeout,
				Sources: cli.EnvVars("WEBHOOK_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus for execution events (kafka, gochannel); empty disables publishing",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "Check the schedules file and exit",
				Action: func(_ context.Context, command *cli.Command) error {
					entries, err := config.LoadSchedules(command.String("schedules"))
					if err != nil {
						return err
					}

					s := scheduler.New(nopDispatcher{}, slog.New(slog.DiscardHandler))
					for _, entry := range entries {
						if err := s.Add(entry); err != nil {
							return err
						}
					}

					fmt.Printf("%d schedules OK\n", s.Len())

					return nil
				},
			},
			{
				Name:  "trigger",
				Usage: "Run one schedule entry now and exit",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Schedule id to run",
						Required: true,
					},
				},
				Action: trigger,
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// worker holds everything a scheduler process needs, torn down by close.
type worker struct {
	logger    *slog.Logger
	scheduler *scheduler.Scheduler
	closers   []func()
}

func (w *worker) close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i]()
	}
}

func newWorker(ctx context.Context, command *cli.Command) (*worker, error) {
	log.Setup(command.String("log-level"))

	w := &worker{logger: log.WithModule("scheduler")}

	databaseURL := command.String("database-url")
	if databaseURL == "" {
		return nil, errors.New("database-url is required")
	}

	entries, err := config.LoadSchedules(command.String("schedules"))
	if err != nil {
		return nil, err
	}

	if command.Bool("tracing") {
		_, shutdown, err := otelhelper.NewTracer(ctx, "creditflow-scheduler")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		w.closers = append(w.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := shutdown(shutdownCtx); err != nil {
				w.logger.Error("Failed to shutdown tracer provider", "error", err)
			}
		})
	}

	store, err := cmd.NewPersistence(ctx, w.logger, databaseURL)
	if err != nil {
		w.close()

		return nil, err
	}

	w.closers = append(w.closers, closePersistence(w.logger, store))

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), w.logger)
	if err != nil {
		w.close()

		return nil, err
	}

	if eventBus != nil {
		w.closers = append(w.closers, func() {
			if err := eventBus.Close(); err != nil {
				w.logger.Error("Failed to close event bus", "error", err)
			}
		})
	}

	dispatch := cmd.NewDispatch(store, cmd.DispatchConfig{
		WebhookTimeout: command.Duration("webhook-timeout"),
		EventBus:       eventBus,
	}, w.logger)

	w.scheduler = scheduler.New(dispatch, w.logger)

	for _, entry := range entries {
		if err := w.scheduler.Add(entry); err != nil {
			w.close()

			return nil, err
		}
	}

	return w, nil
}

func run(ctx context.Context, command *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := newWorker(ctx, command)
	if err != nil {
		return err
	}
	defer w.close()

	w.scheduler.Start()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := w.scheduler.Stop(shutdownCtx); err != nil {
		w.logger.Error("Scheduled dispatches still running at shutdown", "error", err)
	}

	return nil
}

func trigger(ctx context.Context, command *cli.Command) error {
	w, err := newWorker(ctx, command)
	if err != nil {
		return err
	}
	defer w.close()

	result, err := w.scheduler.Trigger(ctx, command.String("id"))
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", result.State, err)
	}

	fmt.Printf("dispatched %s\n", result.ExecutionID)

	return nil
}

func closePersistence(logger *slog.Logger, store persistence.Persistence) func() {
	return func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Error("Failed to close persistence", "error", err)
		}
	}
}
