/*
errors.go - Centralized error types for the billing domain

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers (HTTP layer, CLI) map these to their own surfaces.

ERROR CATEGORIES:
  1. Validation errors  - malformed input (bad duration, blank names,
                          edits to locked invoices)
  2. Not-found errors   - referenced account/lesson/invoice missing
  3. State conflicts    - illegal status transition attempts
  4. Notification errors- downstream PDF/email failure; never fatal to the
                          enclosing operation

USAGE:
  Use errors.Is with the sentinels, or errors.As with the structured types:

    if errors.Is(err, billing.ErrNotEditable) { ... }

    var verr *billing.ValidationError
    if errors.As(err, &verr) { log(verr.Field) }
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all input validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStateConflict is returned for illegal status transitions.
	ErrStateConflict = errors.New("illegal state transition")

	// ErrNotEditable is returned when mutating an invoice whose status forbids
	// content edits (approved, paid, rejected).
	ErrNotEditable = errors.New("invoice not editable")

	// ErrNoLessons is returned when a batch submission contains no lessons.
	ErrNoLessons = errors.New("no lessons provided")

	// ErrRejectionReasonRequired is returned when rejecting without a reason.
	ErrRejectionReasonRequired = errors.New("rejection reason required")

	// ErrDuplicateInvoiceNumber surfaces the storage-layer uniqueness
	// constraint on invoice numbers.
	ErrDuplicateInvoiceNumber = errors.New("duplicate invoice number")

	// ErrDuplicateEmail surfaces the unique-email constraint on accounts.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrNotificationFailed marks a downstream PDF/email failure. The invoice
	// and lesson data are already committed when this is reported.
	ErrNotificationFailed = errors.New("invoice notification failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError identifies the failing field of a malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "account", "lesson", "invoice", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StateConflictError describes an illegal transition attempt.
type StateConflictError struct {
	Op   string // operation attempted, e.g. "approve"
	From InvoiceStatus
	To   InvoiceStatus
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s invoice: illegal transition %s -> %s", e.Op, e.From, e.To)
}

func (e *StateConflictError) Unwrap() error { return ErrStateConflict }

// NotificationError wraps a downstream PDF/email failure with the stage that
// failed. It is reported as a warning, never as an operation failure.
type NotificationError struct {
	Stage string // "render", "send"
	Err   error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("invoice notification failed at %s: %v", e.Stage, e.Err)
}

func (e *NotificationError) Unwrap() error { return ErrNotificationFailed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNoLessons) ||
		errors.Is(err, ErrRejectionReasonRequired)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for state-machine or uniqueness conflicts.
func IsConflict(err error) bool {
	return errors.Is(err, ErrStateConflict) ||
		errors.Is(err, ErrNotEditable) ||
		errors.Is(err, ErrDuplicateInvoiceNumber) ||
		errors.Is(err, ErrDuplicateEmail)
}
