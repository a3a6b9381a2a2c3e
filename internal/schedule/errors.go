package schedule

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBusy means the per-doctor serialization could not be acquired
	// within the configured wait. Safe to retry with backoff.
	ErrBusy = errors.New("doctor is busy processing another booking, retry shortly")
)

// ValidationError reports malformed input. The caller must correct the
// request; retrying as-is will fail again.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

func validationErr(field, detail string) error {
	return &ValidationError{Field: field, Detail: detail}
}

// ConflictError reports that a requested interval overlaps an existing
// appointment or approved absence. Carries the conflicting window so the
// caller can re-offer slots.
type ConflictError struct {
	With  string // "appointment" or "absence"
	Start time.Time
	End   time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("requested window conflicts with an existing %s from %s to %s",
		e.With, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// TransitionError reports an illegal state-machine move.
type TransitionError struct {
	From   Status
	To     Status
	Detail string
}

func (e *TransitionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("cannot move appointment from %s to %s: %s", e.From, e.To, e.Detail)
	}
	return fmt.Sprintf("cannot move appointment from %s to %s", e.From, e.To)
}

// DependencyError wraps a collaborator failure (the billing hook). It is
// reported alongside a successful booking, never instead of one.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }
