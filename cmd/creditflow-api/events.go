package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/dukex/creditflow/pkg/cmd"
	"github.com/dukex/creditflow/pkg/eventbus"
	"github.com/dukex/creditflow/pkg/events"
	"github.com/dukex/creditflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

// EventsCommand tails execution events from the configured event bus.
func EventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Log execution events published by dispatches",
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("events")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			if bus == nil {
				return errors.New("event-bus is required")
			}

			defer func() {
				if err := bus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			if err := registerEventLoggers(bus, logger); err != nil {
				return err
			}

			if err := bus.Subscribe(ctx); err != nil {
				return err
			}

			logger.InfoContext(ctx, "Listening for execution events", "topic", events.Topic)

			<-ctx.Done()

			return nil
		},
	}
}

func registerEventLoggers(bus eventbus.EventSubscriber, logger *slog.Logger) error {
	err := bus.Handle(events.ExecutionSucceededEvent, func(ctx context.Context, event any) error {
		e, ok := event.(*events.ExecutionSucceeded)
		if !ok {
			return nil
		}

		logger.InfoContext(ctx, "Execution succeeded",
			"execution_id", e.ExecutionID,
			"client_id", e.ClientID,
			"automation_id", e.AutomationID,
			"credits_used", e.CreditsUsed,
		)

		return nil
	})
	if err != nil {
		return err
	}

	return bus.Handle(events.ExecutionFailedEvent, func(ctx context.Context, event any) error {
		e, ok := event.(*events.ExecutionFailed)
		if !ok {
			return nil
		}

		logger.InfoContext(ctx, "Execution failed",
			"execution_id", e.ExecutionID,
			"client_id", e.ClientID,
			"automation_id", e.AutomationID,
			"kind", e.Kind,
		)

		return nil
	})
}
