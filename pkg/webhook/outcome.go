// Package webhook invokes automation webhooks on the external workflow engine.
package webhook

import "time"

// OutcomeKind classifies a webhook invocation.
type OutcomeKind string

const (
	OutcomeAccepted      OutcomeKind = "accepted"
	OutcomeRejected      OutcomeKind = "rejected"
	OutcomeUnreachable   OutcomeKind = "unreachable"
	OutcomeMisconfigured OutcomeKind = "misconfigured"
)

// Outcome is the classified result of one webhook call.
type Outcome struct {
	Kind OutcomeKind

	// StatusCode is set for accepted and rejected calls.
	StatusCode int

	// EngineExecutionID is the engine's own id for the run, when its
	// response body carried one.
	EngineExecutionID string

	// Err holds the transport or configuration error for unreachable and
	// misconfigured calls. It is never shown to API callers.
	Err error

	Elapsed time.Duration
}

// Accepted reports whether the engine took the run.
func (o Outcome) Accepted() bool {
	return o.Kind == OutcomeAccepted
}
