// Package errors defines the error taxonomy shared across the pipeline.
package errors

import (
	"errors"
	"fmt"
)

// Base error types
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalidInput    = errors.New("invalid input")
	ErrTimeout         = errors.New("timeout")
	ErrDetectorFailure = errors.New("detector failure")
	ErrExecutorStartup = errors.New("executor startup failure")
)

// Kind categorizes a pipeline error for matching with errors.Is.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindInvalidState    Kind = "invalid_state"
	KindInvalidInput    Kind = "invalid_input"
	KindTimeout         Kind = "timeout"
	KindDetectorFailure Kind = "detector_failure"
	KindExecutorStartup Kind = "executor_startup"
	KindInternal        Kind = "internal"
)

// PipelineError is a structured error for pipeline operations.
type PipelineError struct {
	Kind Kind
	Op   string // Operation that failed (e.g., "approve_action", "run_detector")
	ID   string // Entity ID where applicable
	Err  error  // Underlying error
}

func (e *PipelineError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is maps error kinds onto the base sentinel errors so callers can use
// errors.Is(err, ErrInvalidState) without knowing the concrete type.
func (e *PipelineError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrInvalidState:
		return e.Kind == KindInvalidState
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrDetectorFailure:
		return e.Kind == KindDetectorFailure
	case ErrExecutorStartup:
		return e.Kind == KindExecutorStartup
	}
	return false
}

// New builds a PipelineError.
func New(kind Kind, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

// NewWithID builds a PipelineError carrying the entity ID involved.
func NewWithID(kind Kind, op, id string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, ID: id, Err: err}
}

// NotFound reports an entity or executor that does not exist.
func NotFound(op, id string) *PipelineError {
	return &PipelineError{Kind: KindNotFound, Op: op, ID: id, Err: ErrNotFound}
}

// InvalidState reports a transition not legal from the current status.
func InvalidState(op, id, current string) *PipelineError {
	return &PipelineError{
		Kind: KindInvalidState,
		Op:   op,
		ID:   id,
		Err:  fmt.Errorf("%w: current status %q", ErrInvalidState, current),
	}
}

// Is re-exports errors.Is for callers that only import this package.
func Is(err, target error) bool { return errors.Is(err, target) }

// As re-exports errors.As.
func As(err error, target any) bool { return errors.As(err, target) }
