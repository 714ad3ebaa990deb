// Package main provides the Creditflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/creditflow/pkg/metrics"
	"github.com/dukex/creditflow/pkg/persistence"
	"github.com/dukex/creditflow/pkg/services"
	"github.com/dukex/creditflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	dispatch    *services.Dispatch
	metrics     *metrics.Metrics
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	dispatch *services.Dispatch,
	metrics *metrics.Metrics,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		dispatch:    dispatch,
		metrics:     metrics,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	ledger := services.NewLedger(a.persistence, a.logger)

	handlers := web.NewAPIHandlers(a.dispatch, ledger, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return a.persistence.HealthCheck(c.Context()) == nil
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Creditflow API")
	})

	n8n := app.Group("/api/n8n")
	n8n.Get("/check-credits", handlers.CheckCredits)
	n8n.Post("/dispatch", handlers.Dispatch)

	clients := app.Group("/api/clients")
	clients.Get("/:clientId", handlers.GetClient)
	clients.Get("/:clientId/executions", handlers.GetClientExecutions)

	app.Get("/health", handlers.HealthCheck)

	if a.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))
	}

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
