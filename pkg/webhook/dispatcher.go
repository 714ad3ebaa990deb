package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"time"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout bounds a webhook call when no timeout is configured.
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 1 << 20
)

var ErrNoWebhookURL = errors.New("automation has no webhook URL")

// Observer receives the latency of every webhook call.
type Observer interface {
	ObserveWebhook(outcome string, elapsed time.Duration)
}

// Dispatcher posts dispatch payloads to automation webhooks. It never retries.
type Dispatcher struct {
	client   *http.Client
	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer
	now      func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each call; a timeout is reported as unreachable.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.client.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		d.client = client
	}
}

// WithObserver reports call latency to the observer.
func WithObserver(observer Observer) Option {
	return func(d *Dispatcher) {
		d.observer = observer
	}
}

// WithClock overrides the time source used for executionTime.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client: &http.Client{Timeout: DefaultTimeout},
		logger: logger.With("module", "webhook"),
		tracer: otelhelper.Tracer("creditflow/webhook"),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Invoke posts the payload, merged with clientId, automationId and
// executionTime, to the automation's webhook and classifies the response.
func (d *Dispatcher) Invoke(
	ctx context.Context,
	automation *models.Automation,
	clientID models.ClientID,
	payload map[string]any,
) Outcome {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "webhook.invoke",
		attribute.String(otelhelper.ClientIDKey, string(clientID)),
		attribute.String(otelhelper.AutomationIDKey, string(automation.ID)),
	)
	defer span.End()

	outcome := d.invoke(ctx, automation, clientID, payload)

	span.SetAttributes(
		attribute.String(otelhelper.OutcomeKey, string(outcome.Kind)),
		attribute.Int(otelhelper.StatusCodeKey, outcome.StatusCode),
	)

	if !outcome.Accepted() {
		err := outcome.Err
		if err == nil {
			err = fmt.Errorf("webhook responded with status %d", outcome.StatusCode)
		}

		otelhelper.SetError(span, err)
	}

	if d.observer != nil && outcome.Kind != OutcomeMisconfigured {
		d.observer.ObserveWebhook(string(outcome.Kind), outcome.Elapsed)
	}

	return outcome
}

func (d *Dispatcher) invoke(
	ctx context.Context,
	automation *models.Automation,
	clientID models.ClientID,
	payload map[string]any,
) Outcome {
	if !automation.HasWebhook() {
		return Outcome{Kind: OutcomeMisconfigured, Err: ErrNoWebhookURL}
	}

	body, err := json.Marshal(d.buildBody(automation.ID, clientID, payload))
	if err != nil {
		return Outcome{Kind: OutcomeMisconfigured, Err: fmt.Errorf("failed to marshal webhook body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, automation.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return Outcome{Kind: OutcomeMisconfigured, Err: fmt.Errorf("failed to create webhook request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	err = applyAuth(req, automation.Auth)
	if err != nil {
		return Outcome{Kind: OutcomeMisconfigured, Err: err}
	}

	start := d.now()

	resp, err := d.client.Do(req)
	if err != nil {
		return Outcome{Kind: OutcomeUnreachable, Err: err, Elapsed: d.now().Sub(start)}
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			d.logger.WarnContext(ctx, "failed to close webhook response body", "error", closeErr)
		}
	}()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	elapsed := d.now().Sub(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Outcome{Kind: OutcomeRejected, StatusCode: resp.StatusCode, Elapsed: elapsed}
	}

	outcome := Outcome{Kind: OutcomeAccepted, StatusCode: resp.StatusCode, Elapsed: elapsed}

	if err != nil {
		d.logger.WarnContext(ctx, "failed to read webhook response body",
			"automation_id", automation.ID,
			"error", err,
		)

		return outcome
	}

	outcome.EngineExecutionID = engineExecutionID(responseBody)

	return outcome
}

func (d *Dispatcher) buildBody(automationID models.AutomationID, clientID models.ClientID, payload map[string]any) map[string]any {
	body := make(map[string]any, len(payload)+3)
	maps.Copy(body, payload)

	body["clientId"] = clientID
	body["automationId"] = automationID
	body["executionTime"] = d.now().UnixMilli()

	return body
}

// engineExecutionID extracts a string executionId from a JSON object body.
func engineExecutionID(body []byte) string {
	var parsed struct {
		ExecutionID any `json:"executionId"`
	}

	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}

	id, ok := parsed.ExecutionID.(string)
	if !ok {
		return ""
	}

	return id
}
