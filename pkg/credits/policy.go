package credits

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/otelhelper"
	"github.com/dukex/creditflow/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Policy evaluates entitlement and balance without side effects. It is a fast
// path only: the debit itself re-checks the balance atomically.
type Policy struct {
	assignments persistence.AssignmentRepository
	clients     persistence.ClientRepository
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewPolicy creates a credit policy reading from the given store.
func NewPolicy(store persistence.Persistence, logger *slog.Logger) *Policy {
	return &Policy{
		assignments: store.AssignmentRepository(),
		clients:     store.ClientRepository(),
		logger:      logger.With("module", "credits"),
		tracer:      otelhelper.Tracer("creditflow/credits"),
	}
}

// Evaluate checks, in order: assignment exists, assignment active, client
// exists, balance covers the assignment cost. Store failures are returned as errors.
func (p *Policy) Evaluate(ctx context.Context, clientID models.ClientID, automationID models.AutomationID) (Verdict, error) {
	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "credits.evaluate",
		attribute.String(otelhelper.ClientIDKey, string(clientID)),
		attribute.String(otelhelper.AutomationIDKey, string(automationID)),
	)
	defer span.End()

	verdict, err := p.evaluate(ctx, clientID, automationID)
	if err != nil {
		otelhelper.SetError(span, err)

		return Verdict{}, err
	}

	span.SetAttributes(
		attribute.Bool(otelhelper.VerdictKey, verdict.Approved),
		attribute.String(otelhelper.ReasonKey, string(verdict.Reason)),
		attribute.Int64(otelhelper.CreditsKey, verdict.Required),
	)

	return verdict, nil
}

func (p *Policy) evaluate(ctx context.Context, clientID models.ClientID, automationID models.AutomationID) (Verdict, error) {
	assignment, err := p.assignments.Get(ctx, clientID, automationID)
	if err != nil {
		if persistence.IsAssignmentNotFound(err) {
			return Deny(ReasonNotAssigned, 0, 0), nil
		}

		return Verdict{}, fmt.Errorf("failed to load assignment: %w", err)
	}

	if !assignment.IsActive {
		return Deny(ReasonInactive, assignment.CreditsPerExecution, 0), nil
	}

	client, err := p.clients.GetByID(ctx, clientID)
	if err != nil {
		if persistence.IsClientNotFound(err) {
			p.logger.WarnContext(ctx, "assignment references a missing client",
				"client_id", clientID,
				"automation_id", automationID,
			)

			return Deny(ReasonClientNotFound, assignment.CreditsPerExecution, 0), nil
		}

		return Verdict{}, fmt.Errorf("failed to load client: %w", err)
	}

	cost := assignment.CreditsPerExecution

	if !client.CanAfford(cost) {
		return Deny(ReasonInsufficientCredits, cost, client.CreditBalance), nil
	}

	return Approve(cost, client.CreditBalance), nil
}
