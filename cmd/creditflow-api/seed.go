package main

import (
	"context"
	"fmt"

	"github.com/dukex/creditflow/pkg/cmd"
	"github.com/dukex/creditflow/pkg/config"
	"github.com/dukex/creditflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

// SeedCommand loads clients, automations and assignments from a YAML file.
func SeedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Load clients, automations and assignments from a YAML file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the seed file",
				Required: true,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("seed")

			seed, err := config.LoadSeed(command.String("file"))
			if err != nil {
				return err
			}

			databaseURL := command.String("database-url")
			if databaseURL == "" {
				return errNoDatabaseURL
			}

			persistence, err := cmd.NewPersistence(ctx, logger, databaseURL)
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			summary, err := config.ApplySeed(ctx, persistence, seed)
			if err != nil {
				return fmt.Errorf("seed failed after %d clients, %d automations, %d assignments: %w",
					summary.Clients, summary.Automations, summary.Assignments, err)
			}

			logger.InfoContext(ctx, "Seed applied",
				"clients", summary.Clients,
				"automations", summary.Automations,
				"assignments", summary.Assignments,
			)

			return nil
		},
	}
}
