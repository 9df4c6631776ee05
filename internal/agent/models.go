package agent

import (
	"context"
	"strings"
	"time"

	"github.com/veloxpay/guestpay/api/schemas"
)

// PageSession is the live page handle the agent drives. It is satisfied by
// *browser.Session; tests substitute lightweight fakes.
type PageSession interface {
	ID() string
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, script string, res interface{}) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	PressEnter(ctx context.Context, selector string) error
	Scroll(ctx context.Context, direction string) error
	Screenshot(ctx context.Context) ([]byte, error)
	Settle(ctx context.Context, quiet time.Duration) error
	Close(ctx context.Context) error
}

// SessionFactory opens fresh browser sessions for the orchestrator.
type SessionFactory interface {
	NewSession(ctx context.Context) (PageSession, error)
}

// Snapshotter produces a bounded snapshot of the current page.
type Snapshotter interface {
	Snapshot(ctx context.Context, page PageSession) (schemas.PageSnapshot, error)
}

// ActionRunner resolves and performs a symbolic action against the live page.
// The returned string is a human-readable account of what was done, suitable
// for the action history.
type ActionRunner interface {
	Run(ctx context.Context, page PageSession, action schemas.AgentAction) (string, error)
}

// Recorder captures labeled screenshots and returns the stored file path.
type Recorder interface {
	Capture(ctx context.Context, page PageSession, label string) (string, error)
}

// DecisionInput is everything a single decision step may consult.
type DecisionInput struct {
	Goal     schemas.Goal
	Snapshot schemas.PageSnapshot
	History  []schemas.ActionRecord
	State    *FormState
}

// PauseSignal is a terminal, non-error loop outcome requiring human review.
type PauseSignal struct {
	Success bool
	Reason  string
}

// Outcome is the full product of one decision step. Exactly one of the
// following holds: Pause is set (terminal), the decision reports the goal
// achieved (transition), or the decision carries an action to execute.
type Outcome struct {
	Decision schemas.AgentDecision
	// ProgressKey names the FormState entry to mark once the action
	// succeeds. Empty for actions that carry no deterministic progress.
	ProgressKey string
	// RedactValue indicates the action's value is sensitive and must be
	// masked in history and logs.
	RedactValue bool
	Pause       *PauseSignal
}

// Decider turns a snapshot, goal, and history into the next outcome.
type Decider interface {
	Decide(ctx context.Context, in DecisionInput) (Outcome, error)
}

// -- Deterministic form progress --

// FormState progress keys. One per deterministic sub-step.
const (
	FieldAccountNumber = "account_number"
	FieldZipCode       = "zip_code"
	FieldBankRouting   = "bank_routing"
	FieldBankAccount   = "bank_account"
	StepBankOption     = "bank_option"
	StepMethodSubmit   = "method_submit"
)

// FormState tracks deterministic sub-progress inside form-filling goals.
// It is the single source of truth for progress; the action history is an
// audit artifact and is never consulted for control flow.
type FormState struct {
	filled map[string]bool
	failed map[string]bool
}

// NewFormState returns an empty progress tracker.
func NewFormState() *FormState {
	return &FormState{
		filled: make(map[string]bool),
		failed: make(map[string]bool),
	}
}

// MarkFilled records that a sub-step completed successfully. Callers must
// only invoke this after the corresponding action has actually succeeded.
func (s *FormState) MarkFilled(key string) { s.filled[key] = true }

// MarkFailed records that a sub-step's action failed, so it is skipped
// rather than retried.
func (s *FormState) MarkFailed(key string) { s.failed[key] = true }

// Filled reports whether a sub-step completed successfully.
func (s *FormState) Filled(key string) bool { return s.filled[key] }

// Failed reports whether a sub-step was attempted and failed.
func (s *FormState) Failed(key string) bool { return s.failed[key] }

// Settled reports whether a sub-step needs no further attempts.
func (s *FormState) Settled(key string) bool { return s.filled[key] || s.failed[key] }

// AnyFailed reports whether any of the given sub-steps failed. With no
// arguments it reports whether anything failed at all.
func (s *FormState) AnyFailed(keys ...string) bool {
	if len(keys) == 0 {
		return len(s.failed) > 0
	}
	for _, k := range keys {
		if s.failed[k] {
			return true
		}
	}
	return false
}

// -- Value helpers --

// sanitizeNumeric strips dashes and spaces from user-supplied numbers so
// they can be typed into strict form fields.
func sanitizeNumeric(v string) string {
	v = strings.ReplaceAll(v, "-", "")
	return strings.ReplaceAll(v, " ", "")
}

// MaskSensitive reduces a sensitive value to its last four characters for
// history and log entries.
func MaskSensitive(v string) string {
	v = sanitizeNumeric(v)
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}
