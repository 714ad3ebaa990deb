package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/creditflow/pkg/credits"
	"github.com/dukex/creditflow/pkg/executions"
	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/otelhelper"
	"github.com/dukex/creditflow/pkg/persistence"
	"github.com/dukex/creditflow/pkg/webhook"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// State is a step of the dispatch flow. A result carries the state the
// flow stopped in.
type State string

const (
	StateValidating  State = "validating"
	StatePolicyCheck State = "policy_check"
	StateInvoking    State = "invoking"
	StateRecording   State = "recording"
	StateDone        State = "done"
	StateDenied      State = "denied"
	StateFailed      State = "failed"
)

// Reason explains why a dispatch did not reach StateDone.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonValidation          Reason = "validation"
	ReasonNotAssigned         Reason = "not_assigned"
	ReasonInactive            Reason = "inactive"
	ReasonClientNotFound      Reason = "client_not_found"
	ReasonInsufficientCredits Reason = "insufficient_credits"
	ReasonMisconfigured       Reason = "misconfigured"
	ReasonUnreachable         Reason = "unreachable"
	ReasonRejected            Reason = "rejected"
	ReasonInternal            Reason = "internal"
)

// Execution result kinds stored on failed executions.
const (
	KindAutomationNotFound          = "automation_not_found"
	KindInsufficientCreditsAtCommit = "insufficient_credits_at_commit"
)

// DispatchRequest asks to run an automation on behalf of a client.
type DispatchRequest struct {
	ClientID     models.ClientID
	AutomationID models.AutomationID
	Payload      map[string]any
}

// DispatchResult is the tagged outcome of a dispatch.
type DispatchResult struct {
	State  State
	Reason Reason

	// ExecutionID is set when an execution was recorded, success or failure.
	ExecutionID models.ExecutionID

	// Required and Available are set for insufficient credits.
	Required  int64
	Available int64

	// UpstreamStatus is the engine's status code for rejected calls.
	UpstreamStatus int
}

// Succeeded reports whether the automation ran and was charged.
func (r DispatchResult) Succeeded() bool {
	return r.State == StateDone
}

// Evaluator decides whether a client may run an automation.
type Evaluator interface {
	Evaluate(ctx context.Context, clientID models.ClientID, automationID models.AutomationID) (credits.Verdict, error)
}

// Invoker calls the automation's webhook.
type Invoker interface {
	Invoke(ctx context.Context, automation *models.Automation, clientID models.ClientID, payload map[string]any) webhook.Outcome
}

// Recorder writes the execution audit trail.
type Recorder interface {
	RecordSuccess(ctx context.Context, entry executions.Entry, creditsUsed int64) (models.ExecutionID, error)
	RecordFailure(ctx context.Context, entry executions.Entry, kind string) (models.ExecutionID, error)
}

// DispatchObserver counts finished dispatches.
type DispatchObserver interface {
	ObserveDispatch(state, reason string)
}

// Dispatch orchestrates credit-gated webhook dispatches.
type Dispatch struct {
	policy      Evaluator
	invoker     Invoker
	recorder    Recorder
	automations persistence.AutomationRepository
	clients     persistence.ClientRepository
	observer    DispatchObserver
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// DispatchOption configures a Dispatch.
type DispatchOption func(*Dispatch)

// WithDispatchObserver reports every finished dispatch to the observer.
func WithDispatchObserver(observer DispatchObserver) DispatchOption {
	return func(d *Dispatch) {
		d.observer = observer
	}
}

// NewDispatch creates the dispatch orchestrator.
func NewDispatch(
	store persistence.Persistence,
	policy Evaluator,
	invoker Invoker,
	recorder Recorder,
	logger *slog.Logger,
	opts ...DispatchOption,
) *Dispatch {
	d := &Dispatch{
		policy:      policy,
		invoker:     invoker,
		recorder:    recorder,
		automations: store.AutomationRepository(),
		clients:     store.ClientRepository(),
		logger:      logger.With("module", "dispatch"),
		tracer:      otelhelper.Tracer("creditflow/services"),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// CheckCredits runs the validation and policy steps of a dispatch without
// side effects. Denials are returned in the verdict, not as errors.
func (d *Dispatch) CheckCredits(
	ctx context.Context,
	clientID models.ClientID,
	automationID models.AutomationID,
) (credits.Verdict, error) {
	err := validateIDs("CheckCredits", clientID, automationID)
	if err != nil {
		return credits.Verdict{}, err
	}

	verdict, err := d.policy.Evaluate(ctx, clientID, automationID)
	if err != nil {
		d.logger.ErrorContext(ctx, "credit check failed",
			"client_id", clientID,
			"automation_id", automationID,
			"error", err,
		)

		return credits.Verdict{}, NewServiceError("CheckCredits", string(ReasonInternal), ErrInternal, err)
	}

	d.logger.InfoContext(ctx, "credit check",
		"client_id", clientID,
		"automation_id", automationID,
		"approved", verdict.Approved,
		"reason", verdict.Reason,
	)

	return verdict, nil
}

// Dispatch validates the request, checks credits, invokes the webhook and
// records the execution. The returned error is nil only for StateDone and
// otherwise wraps the sentinel matching result.Reason.
func (d *Dispatch) Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatch",
		attribute.String(otelhelper.ClientIDKey, string(req.ClientID)),
		attribute.String(otelhelper.AutomationIDKey, string(req.AutomationID)),
	)
	defer span.End()

	result, err := d.dispatch(ctx, req)

	span.SetAttributes(
		attribute.String("creditflow.dispatch.state", string(result.State)),
		attribute.String(otelhelper.ReasonKey, string(result.Reason)),
	)

	if result.ExecutionID != "" {
		span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, string(result.ExecutionID)))
	}

	if err != nil && !isExpected(result.Reason) {
		otelhelper.SetError(span, err)
	}

	if d.observer != nil {
		d.observer.ObserveDispatch(string(result.State), string(result.Reason))
	}

	return result, err
}

func (d *Dispatch) dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	// Validating
	err := validateIDs("Dispatch", req.ClientID, req.AutomationID)
	if err != nil {
		return DispatchResult{State: StateValidating, Reason: ReasonValidation}, err
	}

	startedAt := d.now()

	// PolicyCheck
	verdict, err := d.policy.Evaluate(ctx, req.ClientID, req.AutomationID)
	if err != nil {
		return d.internal(ctx, StatePolicyCheck, req, "credit check failed", err)
	}

	if !verdict.Approved {
		return d.denied(ctx, req, verdict)
	}

	// Invoking
	entry := executions.Entry{
		ClientID:     req.ClientID,
		AutomationID: req.AutomationID,
		StartedAt:    startedAt,
	}

	automation, err := d.automations.GetByID(ctx, req.AutomationID)
	if err != nil {
		if !persistence.IsAutomationNotFound(err) {
			return d.internal(ctx, StateInvoking, req, "failed to load automation", err)
		}

		d.logger.ErrorContext(ctx, "assignment references a missing automation",
			"client_id", req.ClientID,
			"automation_id", req.AutomationID,
		)

		return d.failed(ctx, entry, KindAutomationNotFound, ReasonMisconfigured, 0, ErrMisconfigured)
	}

	outcome := d.invoker.Invoke(ctx, automation, req.ClientID, req.Payload)

	switch outcome.Kind {
	case webhook.OutcomeAccepted:
	case webhook.OutcomeMisconfigured:
		d.logger.ErrorContext(ctx, "automation cannot be dispatched",
			"client_id", req.ClientID,
			"automation_id", req.AutomationID,
			"error", outcome.Err,
		)

		return d.failed(ctx, entry, string(outcome.Kind), ReasonMisconfigured, 0, ErrMisconfigured)
	case webhook.OutcomeUnreachable:
		d.logger.ErrorContext(ctx, "automation engine unreachable",
			"client_id", req.ClientID,
			"automation_id", req.AutomationID,
			"elapsed", outcome.Elapsed,
			"error", outcome.Err,
		)

		return d.failed(ctx, entry, string(outcome.Kind), ReasonUnreachable, 0, ErrUnreachable)
	default:
		d.logger.ErrorContext(ctx, "automation engine rejected the dispatch",
			"client_id", req.ClientID,
			"automation_id", req.AutomationID,
			"upstream_status", outcome.StatusCode,
		)

		return d.failed(ctx, entry, string(webhook.OutcomeRejected), ReasonRejected, outcome.StatusCode, ErrRejected)
	}

	// Recording
	entry.EngineExecutionID = outcome.EngineExecutionID
	entry.Result = map[string]any{
		"kind":       string(outcome.Kind),
		"statusCode": outcome.StatusCode,
	}

	executionID, err := d.recorder.RecordSuccess(ctx, entry, verdict.Required)
	if err != nil {
		if persistence.IsInsufficientBalance(err) {
			return d.lostRace(ctx, entry, verdict)
		}

		return d.internal(ctx, StateRecording, req, "automation ran but the execution could not be recorded", err)
	}

	return DispatchResult{State: StateDone, ExecutionID: executionID, Required: verdict.Required}, nil
}

func (d *Dispatch) denied(ctx context.Context, req DispatchRequest, verdict credits.Verdict) (DispatchResult, error) {
	result := DispatchResult{
		State:     StateDenied,
		Required:  verdict.Required,
		Available: verdict.Available,
	}

	var sentinel error

	switch verdict.Reason {
	case credits.ReasonNotAssigned:
		result.Reason, sentinel = ReasonNotAssigned, ErrNotAssigned
	case credits.ReasonInactive:
		result.Reason, sentinel = ReasonInactive, ErrInactive
	case credits.ReasonClientNotFound:
		result.Reason, sentinel = ReasonClientNotFound, ErrClientNotFound
	default:
		result.Reason, sentinel = ReasonInsufficientCredits, ErrInsufficientCredits
	}

	d.logger.InfoContext(ctx, "dispatch denied",
		"client_id", req.ClientID,
		"automation_id", req.AutomationID,
		"reason", result.Reason,
		"required", verdict.Required,
		"available", verdict.Available,
	)

	return result, NewServiceError("Dispatch", string(result.Reason), sentinel, nil)
}

// failed records a failed execution; a recording error is logged and the
// dispatch still reports the original failure.
func (d *Dispatch) failed(
	ctx context.Context,
	entry executions.Entry,
	kind string,
	reason Reason,
	upstreamStatus int,
	sentinel error,
) (DispatchResult, error) {
	if upstreamStatus != 0 {
		entry.Result = map[string]any{"statusCode": upstreamStatus}
	}

	result := DispatchResult{State: StateFailed, Reason: reason, UpstreamStatus: upstreamStatus}

	executionID, err := d.recorder.RecordFailure(ctx, entry, kind)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to record failed execution",
			"client_id", entry.ClientID,
			"automation_id", entry.AutomationID,
			"kind", kind,
			"error", err,
		)
	}

	result.ExecutionID = executionID

	return result, NewServiceError("Dispatch", string(reason), sentinel, nil)
}

// lostRace handles a debit refused at commit time after the policy approved
// it: another dispatch spent the balance while the webhook was running.
func (d *Dispatch) lostRace(ctx context.Context, entry executions.Entry, verdict credits.Verdict) (DispatchResult, error) {
	available := int64(0)

	client, err := d.clients.GetByID(ctx, entry.ClientID)
	if err == nil {
		available = client.CreditBalance
	}

	d.logger.InfoContext(ctx, "credit debit lost a concurrent race",
		"client_id", entry.ClientID,
		"automation_id", entry.AutomationID,
		"required", verdict.Required,
		"available", available,
	)

	engineExecutionID := entry.EngineExecutionID
	entry.Result = map[string]any{"required": verdict.Required, "available": available}

	executionID, err := d.recorder.RecordFailure(ctx, entry, KindInsufficientCreditsAtCommit)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to record lost debit",
			"client_id", entry.ClientID,
			"automation_id", entry.AutomationID,
			"engine_execution_id", engineExecutionID,
			"error", err,
		)
	}

	result := DispatchResult{
		State:       StateDenied,
		Reason:      ReasonInsufficientCredits,
		ExecutionID: executionID,
		Required:    verdict.Required,
		Available:   available,
	}

	return result, NewServiceError("Dispatch", string(ReasonInsufficientCredits), ErrInsufficientCredits, nil)
}

func (d *Dispatch) internal(
	ctx context.Context,
	state State,
	req DispatchRequest,
	msg string,
	err error,
) (DispatchResult, error) {
	d.logger.ErrorContext(ctx, msg,
		"client_id", req.ClientID,
		"automation_id", req.AutomationID,
		"state", state,
		"error", err,
	)

	return DispatchResult{State: state, Reason: ReasonInternal},
		NewServiceError("Dispatch", string(ReasonInternal), ErrInternal, err)
}

func validateIDs(op string, clientID models.ClientID, automationID models.AutomationID) error {
	var missing []string

	if clientID == "" {
		missing = append(missing, "clientId")
	}

	if automationID == "" {
		missing = append(missing, "automationId")
	}

	if len(missing) == 0 {
		return nil
	}

	return NewValidationError(op, string(ReasonValidation), strings.Join(missing, " and ")+" required")
}

func isExpected(reason Reason) bool {
	switch reason {
	case ReasonNone, ReasonValidation, ReasonNotAssigned, ReasonInactive, ReasonClientNotFound, ReasonInsufficientCredits:
		return true
	default:
		return false
	}
}
