package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okmart/ordercore/internal/core/domain"
	"github.com/okmart/ordercore/internal/core/pricing"
)

var (
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrOrderNotFound    = errors.New("order not found")
	ErrRefundNotFound   = errors.New("refund request not found")
)

// ValidationError rejects malformed input before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AmountMismatchError signals that the submitted total does not match the
// server-side recomputation; stale client state or tampering.
type AmountMismatchError struct {
	Submitted int64
	Computed  int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("amount mismatch: submitted %d, computed %d", e.Submitted, e.Computed)
}

// StockInsufficientError carries the per-item shortfall detail.
type StockInsufficientError struct {
	Items []domain.ItemError
}

func (e *StockInsufficientError) Error() string {
	parts := make([]string, len(e.Items))
	for i, it := range e.Items {
		parts[i] = it.String()
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// PolicyViolationError wraps a points policy violation; the user can adjust
// the request and retry.
type PolicyViolationError struct {
	Violation pricing.PointsPolicyViolation
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("points policy violation (%s): %s", e.Violation.Rule, e.Violation.Reason)
}

// InvalidTransitionError rejects an illegal status change.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// StorageError wraps a transient persistence fault. The failed operation left
// no partial state behind and is safe to retry as a whole.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ReversalStepFailure records one compensating step that did not apply.
type ReversalStepFailure struct {
	Step string
	Err  error
}

// PartialReversalError reports that the primary status change committed but
// one or more compensating steps failed and need manual reconciliation. It is
// distinct from outright failure: callers must not retry the status change.
type PartialReversalError struct {
	ReferenceID string
	Failures    []ReversalStepFailure
}

func (e *PartialReversalError) Error() string {
	steps := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		steps[i] = fmt.Sprintf("%s: %v", f.Step, f.Err)
	}
	return fmt.Sprintf("reversal partially failed for %s: %s", e.ReferenceID, strings.Join(steps, "; "))
}
