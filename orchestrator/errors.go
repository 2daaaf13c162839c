package orchestrator

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the local entity does not exist
	ErrNotFound = errors.New("subscription not found")
	// ErrInvalidState is returned when the entity lacks an external id the operation depends on. No remote call was made
	ErrInvalidState = errors.New("subscription is not in a valid state for this operation")
	// ErrBusy is returned when another operation holds the entity lock past the call timeout
	ErrBusy = errors.New("another operation is in progress")
)

// System names the party a saga step talks to
type System string

// Defining the Systems
const (
	SystemERP      System = "erp"
	SystemGateway  System = "gateway"
	SystemWorkflow System = "workflow"
	SystemStore    System = "store"

	// SystemEnrichment is the set of lead enrichment providers
	SystemEnrichment System = "enrichment"
)

// StepError is a saga step that failed. Steps before it are not rolled back
type StepError struct {
	Operation string
	Step      string
	System    System
	Cause     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %s (%s) failed: %v", e.Operation, e.Step, e.System, e.Cause)
}

func (e *StepError) Unwrap() error {
	return e.Cause
}

type temporary interface {
	Temporary() bool
}

// Retryable is true when the step timed out, was cancelled, or the remote side reported a transient failure
func (e *StepError) Retryable() bool {
	if errors.Is(e.Cause, context.DeadlineExceeded) || errors.Is(e.Cause, context.Canceled) {
		return true
	}
	var t temporary
	if errors.As(e.Cause, &t) {
		return t.Temporary()
	}
	return false
}

// AsStepError extracts the StepError from err, if any
func AsStepError(err error) (*StepError, bool) {
	var s *StepError
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}
