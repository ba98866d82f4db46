/*
errors.go - Centralized error types for the folio core

PURPOSE:
  All error types in one place so the API layer can branch on category
  without knowing which component raised the error.

ERROR CATEGORIES:
  1. Validation - client-fixable input problems (bad amount, bad date,
     unknown payment mode, missing field)
  2. Not found  - folio, reservation, bill or entry does not exist
  3. Conflict   - double checkout, relinking a folio, duplicate idempotency
     key, lost optimistic-lock race
  4. Store      - persistence failure; safe to retry with care

USAGE:
  if errors.Is(err, folio.ErrValidation) { ... 400 ... }

  var verr *folio.ValidationError
  if errors.As(err, &verr) {
      fmt.Println(verr.Field)
  }
*/
package folio

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrStore      = errors.New("store failure")

	// ErrDuplicateIdempotencyKey is returned when an advance with the same
	// idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrConcurrentModification is returned when an optimistic version check
	// fails on a stay row.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrFolioBusy is returned by lockers when another operation holds the
	// folio lock past the wait budget.
	ErrFolioBusy = errors.New("folio is locked by another operation")

	// ErrStayNotFound, ErrEntryNotFound and ErrBillNotFound are returned by
	// stores. Services wrap them in NotFoundError.
	ErrStayNotFound  = errors.New("stay not found")
	ErrEntryNotFound = errors.New("entry not found")
	ErrBillNotFound  = errors.New("bill not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes one rejected field.
type ValidationError struct {
	Field    string
	Message  string
	Expected string
	Actual   string
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Expected != "" || e.Actual != "" {
		msg += fmt.Sprintf(" (expected %s, got %s)", e.Expected, e.Actual)
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string // "folio", "reservation", "bill", "advance", ...
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q does not exist", e.Resource, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

// ConflictError is a state conflict the caller should branch on rather than
// retry blindly.
type ConflictError struct {
	Reason string
	Err    error // optional more specific sentinel
}

func (e *ConflictError) Error() string {
	if e.Err != nil && e.Reason == "" {
		return e.Err.Error()
	}
	return e.Reason
}

func (e *ConflictError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConflict, e.Err}
	}
	return []error{ErrConflict}
}

// StoreError wraps an infrastructure failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// storeErr wraps err as a StoreError unless it already carries a domain
// category.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) || errors.Is(err, ErrStore) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrFolioBusy) ||
		errors.Is(err, ErrStore)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
