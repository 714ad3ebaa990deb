// Package credits decides whether a client may run an automation.
package credits

// Reason identifies why a verdict denied a dispatch.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonNotAssigned         Reason = "not_assigned"
	ReasonInactive            Reason = "inactive"
	ReasonClientNotFound      Reason = "client_not_found"
	ReasonInsufficientCredits Reason = "insufficient_credits"
)

// Verdict is the outcome of a credit check. Required and Available are only
// meaningful once the assignment and client were found.
type Verdict struct {
	Approved  bool
	Reason    Reason
	Required  int64
	Available int64
}

// Approve returns a verdict allowing a run that costs required credits.
func Approve(required, available int64) Verdict {
	return Verdict{Approved: true, Required: required, Available: available}
}

// Deny returns a verdict refusing a run.
func Deny(reason Reason, required, available int64) Verdict {
	return Verdict{Reason: reason, Required: required, Available: available}
}

// IsNotEntitled reports whether the client lacks a usable assignment.
func (v Verdict) IsNotEntitled() bool {
	return v.Reason == ReasonNotAssigned || v.Reason == ReasonInactive
}

// Remaining is the balance left after the run would be charged.
func (v Verdict) Remaining() int64 {
	if !v.Approved {
		return v.Available
	}

	return v.Available - v.Required
}
