package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAddress marks caller input that is not a hex address.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidAmount marks caller input that is not a representable amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrReceiptTimeout is returned when the receipt wait budget is exhausted.
	ErrReceiptTimeout = errors.New("receipt timeout")
	// ErrReverted is returned when a mined transaction has a failed status.
	ErrReverted = errors.New("transaction reverted")
	// ErrNoOpSkipped is not a failure; it names why an update step issued no write.
	ErrNoOpSkipped = errors.New("value already set, update skipped")
)

// AggregationError reports a failed or malformed batched read round trip.
type AggregationError struct {
	Stage string
	Err   error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation failed at %s: %v", e.Stage, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// StepError reports the deployment step that stopped the saga.
type StepError struct {
	Step int
	Name string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Step, e.Name, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Committed reports whether the failure happened once all contracts were
// wired, meaning metadata or registration may now be inconsistent.
func (e *StepError) Committed() bool {
	return e.Step >= 7
}

// SequenceError reports the sub-step that aborted a user transaction flow.
type SequenceError struct {
	Flow string
	Step string
	Err  error
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("%s aborted at %s: %v", e.Flow, e.Step, e.Err)
}

func (e *SequenceError) Unwrap() error { return e.Err }
