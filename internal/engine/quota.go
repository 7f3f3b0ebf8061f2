package engine

import (
	"fmt"
	"sync/atomic"
)

// quota counts work items dispatched in the current run cycle and enforces an
// optional maximum.
//
// Cyclic workflows (a sequence feeding back into an earlier node) are legal,
// so the engine cannot reject them structurally. The quota is what keeps a
// feedback loop that never converges from running forever.
type quota struct {
	maxSteps int64 // 0 means unlimited
	current  atomic.Int64
}

// check counts one step and fails once the limit is passed.
func (q *quota) check(node string) error {
	n := q.current.Add(1)
	if q.maxSteps > 0 && n > q.maxSteps {
		return NewQuotaError(node, n, q.maxSteps)
	}
	return nil
}

func (q *quota) reset() {
	q.current.Store(0)
}

// ErrCodeQuotaExceeded indicates a cycle dispatched more items than allowed.
const ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

// NewQuotaError creates a RuntimeError for an exceeded step quota.
func NewQuotaError(node string, steps, maxSteps int64) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("cycle exceeded max steps (%d > %d)", steps, maxSteps),
		Node:    node,
		Details: map[string]string{
			"steps":     fmt.Sprintf("%d", steps),
			"max_steps": fmt.Sprintf("%d", maxSteps),
		},
	}
}

// IsQuotaError returns true if the error is a max-steps quota error.
func IsQuotaError(err error) bool {
	return hasCode(err, ErrCodeQuotaExceeded)
}
