package cmd

import (
	"log/slog"
	"time"

	"github.com/dukex/creditflow/pkg/credits"
	"github.com/dukex/creditflow/pkg/eventbus"
	"github.com/dukex/creditflow/pkg/executions"
	"github.com/dukex/creditflow/pkg/metrics"
	"github.com/dukex/creditflow/pkg/persistence"
	"github.com/dukex/creditflow/pkg/services"
	"github.com/dukex/creditflow/pkg/webhook"
)

// DispatchConfig holds what the dispatch pipeline needs beyond the store.
type DispatchConfig struct {
	WebhookTimeout time.Duration
	EventBus       eventbus.EventBus
	Metrics        *metrics.Metrics
}

// NewDispatch wires policy, webhook dispatcher and recorder into the
// dispatch orchestrator shared by the API and the scheduler.
func NewDispatch(store persistence.Persistence, cfg DispatchConfig, logger *slog.Logger) *services.Dispatch {
	webhookOpts := []webhook.Option{webhook.WithTimeout(cfg.WebhookTimeout)}
	dispatchOpts := []services.DispatchOption{}

	if cfg.Metrics != nil {
		webhookOpts = append(webhookOpts, webhook.WithObserver(cfg.Metrics))
		dispatchOpts = append(dispatchOpts, services.WithDispatchObserver(cfg.Metrics))
	}

	recorderOpts := []executions.Option{}
	if cfg.EventBus != nil {
		recorderOpts = append(recorderOpts, executions.WithPublisher(cfg.EventBus))
	}

	return services.NewDispatch(
		store,
		credits.NewPolicy(store, logger),
		webhook.NewDispatcher(logger, webhookOpts...),
		executions.NewRecorder(store, logger, recorderOpts...),
		logger,
		dispatchOpts...,
	)
}
