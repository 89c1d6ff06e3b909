package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmptyCart  = errors.New("cart is empty")
	ErrValidation = errors.New("validation failed")
)

type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type NotFoundError struct {
	Kind string
	ID   string
}

func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type InsufficientStockError struct {
	ItemID    string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: available %d, requested %d", e.ItemID, e.Available, e.Requested)
}

// ConcurrencyConflictError means a lock or contended update could not be
// obtained in time. Nothing was committed, so callers may retry with backoff.
type ConcurrencyConflictError struct {
	Resource string
	Err      error
}

func (e *ConcurrencyConflictError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("concurrency conflict on %s", e.Resource)
	}
	return fmt.Sprintf("concurrency conflict on %s: %v", e.Resource, e.Err)
}

func (e *ConcurrencyConflictError) Unwrap() error {
	return e.Err
}

// PersistencePartialFailureError means stock was committed for a saga but
// its order was not. It requires manual reconciliation and is never retried.
type PersistencePartialFailureError struct {
	SagaID   string
	MemberID string
	Entries  []LedgerEntry
	Err      error
}

func (e *PersistencePartialFailureError) Error() string {
	items := make([]string, 0, len(e.Entries))
	for _, entry := range e.Entries {
		items = append(items, fmt.Sprintf("%s(%d->%d)", entry.ItemID, entry.PreviousStock, entry.NewStock))
	}
	msg := fmt.Sprintf("saga %s committed stock without an order [%s]", e.SagaID, strings.Join(items, ", "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PersistencePartialFailureError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is safe to retry without manual action.
func IsRetryable(err error) bool {
	var conflict *ConcurrencyConflictError
	return errors.As(err, &conflict)
}
