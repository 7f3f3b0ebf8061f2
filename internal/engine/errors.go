package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Run and Serve when a run loop is active.
	ErrAlreadyRunning = errors.New("app is already running")

	// ErrQueueClosed is returned when work is offered to a closed app.
	ErrQueueClosed = errors.New("work queue is closed")
)

// RuntimeError represents an error detected while the run loop executes.
//
// Runtime errors include:
//   - Dependency failure: a declared dependency's process failed
//   - Dependency cycle: a dependency chain reaches itself
//   - Routing: a switch selector chose a target that does not exist
//   - Collision: a synchronized merge slot was filled twice
//
// All of them are fatal to the run: the loop halts in StateTerminated.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Node names the node the error is attributed to.
	Node string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeDependencyFailure indicates a dependency's process failed.
	ErrCodeDependencyFailure RuntimeErrorCode = "DEPENDENCY_FAILURE"

	// ErrCodeDependencyCycle indicates a dependency chain loops back on itself.
	ErrCodeDependencyCycle RuntimeErrorCode = "DEPENDENCY_CYCLE"

	// ErrCodeRouting indicates a switch selected a missing target.
	ErrCodeRouting RuntimeErrorCode = "ROUTING"

	// ErrCodeCollision indicates a synchronized merge slot was re-filled
	// before its combination drained.
	ErrCodeCollision RuntimeErrorCode = "COLLISION"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Node != "" {
		msg = fmt.Sprintf("%s (node=%s)", msg, e.Node)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, codes ...RuntimeErrorCode) bool {
	var re *RuntimeError
	if !errors.As(err, &re) {
		return false
	}
	for _, c := range codes {
		if re.Code == c {
			return true
		}
	}
	return false
}

// IsDependencyFailure returns true if the error is a dependency failure.
// Uses errors.As to handle wrapped errors.
func IsDependencyFailure(err error) bool {
	return hasCode(err, ErrCodeDependencyFailure)
}

// IsCycleError returns true if the error is a dependency cycle.
func IsCycleError(err error) bool {
	return hasCode(err, ErrCodeDependencyCycle)
}

// IsRoutingError returns true for topology errors raised by joins: a switch
// routing miss or a synchronized merge collision.
func IsRoutingError(err error) bool {
	return hasCode(err, ErrCodeRouting, ErrCodeCollision)
}

// IsCollisionError returns true if the error is a synchronized merge collision.
func IsCollisionError(err error) bool {
	return hasCode(err, ErrCodeCollision)
}

// NewDependencyFailure creates a RuntimeError for a failed dependency.
func NewDependencyFailure(dependency string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeDependencyFailure,
		Message: fmt.Sprintf("dependency %s failed", dependency),
		Node:    dependency,
		Err:     cause,
	}
}

// NewCycleError creates a RuntimeError for a dependency cycle through node.
func NewCycleError(node string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeDependencyCycle,
		Message: "dependency chain reaches a node that is still resolving",
		Node:    node,
	}
}

// NewRoutingError creates a RuntimeError for a selector index with no target.
func NewRoutingError(source string, index, targets int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeRouting,
		Message: fmt.Sprintf("no target at index %d (have %d)", index, targets),
		Node:    source,
		Details: map[string]string{
			"index":   fmt.Sprintf("%d", index),
			"targets": fmt.Sprintf("%d", targets),
		},
	}
}

// NewCollisionError creates a RuntimeError for a re-filled merge slot.
func NewCollisionError(target, source string, slot int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCollision,
		Message: fmt.Sprintf("slot %d (%s) filled twice before the combination drained", slot, source),
		Node:    target,
		Details: map[string]string{
			"source": source,
			"slot":   fmt.Sprintf("%d", slot),
		},
	}
}
