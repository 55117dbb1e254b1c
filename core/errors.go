package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ContractError reports a worker type that does not satisfy the worker
// contract. It is fatal at registration time; the worker is never started.
type ContractError struct {
	WorkerType string
	Missing    string // name of the missing operation or registration piece
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	return fmt.Sprintf("worker type %q violates the worker contract: missing %s", e.WorkerType, e.Missing)
}

// InitializationError wraps a failure inside a worker's Initialize. It is
// fatal to that worker only; Execute is never called.
type InitializationError struct {
	WorkerID string
	Err      error
}

// Error implements the error interface.
func (e *InitializationError) Error() string {
	return fmt.Sprintf("worker %s failed to initialize: %v", e.WorkerID, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *InitializationError) Unwrap() error { return e.Err }

// DependencyTimeoutError reports a dependency wait that elapsed with shared
// memory keys still unresolved. Fatal to that worker only.
type DependencyTimeoutError struct {
	WorkerID string
	Missing  []string
	Timeout  time.Duration
}

// Error implements the error interface.
func (e *DependencyTimeoutError) Error() string {
	return fmt.Sprintf("worker %s timed out after %s waiting for dependencies: %s",
		e.WorkerID, e.Timeout, strings.Join(e.Missing, ", "))
}

// NotRunningError reports an operation requested on a worker not in a
// runnable state (e.g. stopping a worker that was never started).
type NotRunningError struct {
	WorkerID string
	Status   WorkerStatus
}

// Error implements the error interface.
func (e *NotRunningError) Error() string {
	return fmt.Sprintf("worker %s is not running (status %s)", e.WorkerID, e.Status)
}

// NotFoundError reports an unknown session, worker or artifact, or access by
// a non-owning user (deliberately indistinguishable from absence).
type NotFoundError struct {
	Kind string // "session", "worker", "artifact"
	ID   string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// InvalidStateError reports a session control operation attempted from a
// status that does not allow it. The session is left unmodified.
type InvalidStateError struct {
	SessionID string
	Status    SessionStatus
	Op        string
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("session %s cannot %s from status %s", e.SessionID, e.Op, e.Status)
}

// ErrorClass buckets errors for the external control surface: not-found maps
// to a 404-equivalent, invalid-state to a 400-equivalent, everything else to
// an unexpected internal failure.
type ErrorClass int

const (
	// ClassInternal is an unexpected internal failure (500-equivalent).
	ClassInternal ErrorClass = iota
	// ClassNotFound is an unknown or forbidden resource (404-equivalent).
	ClassNotFound
	// ClassInvalidState is a structurally valid request rejected by current
	// state or contract (400-equivalent).
	ClassInvalidState
)

// Classify buckets an error chain into an ErrorClass.
func Classify(err error) ErrorClass {
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return ClassNotFound
	}

	var invalidState *InvalidStateError
	var notRunning *NotRunningError
	var contract *ContractError
	if errors.As(err, &invalidState) || errors.As(err, &notRunning) || errors.As(err, &contract) {
		return ClassInvalidState
	}

	return ClassInternal
}
