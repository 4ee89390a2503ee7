package events

import (
	"errors"
	"fmt"

	"github.com/tbourn/dianabot-core/internal/domain"
)

// Outcome is what a handler reports back for the boundary to render.
// Business-rule denials (insufficient balance, precondition not met, ...) go
// into Denial; they are expected results, not handler failures.
type Outcome struct {
	Handler      string       `json:"handler"`
	Messages     []string     `json:"messages,omitempty"`
	StageChanged bool         `json:"stage_changed,omitempty"`
	Stage        domain.Stage `json:"stage,omitempty"`
	Balance      *int64       `json:"balance,omitempty"`
	TierUnlocked string       `json:"tier_unlocked,omitempty"`
	Denial       error        `json:"-"`

	// Followup is the report of an event the handler itself published
	// (e.g. stage.advanced after a transition).
	Followup *Report `json:"-"`
}

// HandlerError records one handler's failure for one event.
type HandlerError struct {
	Handler string
	Kind    Kind
	Err     error
}

func (e HandlerError) Error() string {
	return fmt.Sprintf("handler %s on %s: %v", e.Handler, e.Kind, e.Err)
}

func (e HandlerError) Unwrap() error { return e.Err }

// Report collects every handler outcome and failure of a single publish.
type Report struct {
	Kind     Kind
	Key      string
	Outcomes []Outcome
	Failures []HandlerError
}

// Walk visits every outcome of r and of nested follow-up reports,
// depth-first in delivery order.
func (r *Report) Walk(fn func(Outcome)) {
	if r == nil {
		return
	}
	for _, o := range r.Outcomes {
		fn(o)
		o.Followup.Walk(fn)
	}
}

// AllFailures returns the failures of r and of every nested report.
func (r *Report) AllFailures() []HandlerError {
	if r == nil {
		return nil
	}
	out := append([]HandlerError(nil), r.Failures...)
	for _, o := range r.Outcomes {
		out = append(out, o.Followup.AllFailures()...)
	}
	return out
}

// Err joins every failure (including nested ones) into a single error, or
// returns nil when all handlers succeeded.
func (r *Report) Err() error {
	fs := r.AllFailures()
	if len(fs) == 0 {
		return nil
	}
	errs := make([]error, len(fs))
	for i, f := range fs {
		errs[i] = f
	}
	return errors.Join(errs...)
}
