/*
errors.go - Error taxonomy for the stock ledger

PURPOSE:
  Every failure the Reconciler reports falls into one of four kinds:
  not found, insufficient stock, validation, or persistence. Each kind has
  a sentinel for errors.Is() and a structured type carrying context.

ERROR CATEGORIES:
  1. NotFound - A referenced product or entry does not exist
  2. InsufficientStock - An outbound would drive quantity below zero
  3. Validation - Malformed input (non-positive quantity, empty name, ...)
  4. Persistence - The store failed; Inconsistent marks a partial write

USAGE:
  if errors.Is(err, inventory.ErrInsufficientStock) {
      var ise *inventory.InsufficientStockError
      errors.As(err, &ise)
      log.Printf("short by %d", ise.Shortfall())
  }

SEE ALSO:
  - reconciler.go: Produces these errors
  - api/errors.go: Maps them to HTTP status codes
*/
package inventory

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced product, supplier or entry
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock is returned when an outbound quantity exceeds the
	// quantity on hand.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateCode is returned when a product code is already taken.
	ErrDuplicateCode = errors.New("duplicate product code")

	// ErrPersistence is returned when the underlying store fails.
	ErrPersistence = errors.New("persistence failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "product", "supplier", "inbound entry", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// InsufficientStockError provides details about a stock shortage.
type InsufficientStockError struct {
	ProductID ProductID
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Shortfall is how many units are missing.
func (e *InsufficientStockError) Shortfall() int64 {
	return e.Requested - e.Available
}

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// PersistenceError wraps a store failure.
//
// Inconsistent is set when a ledger write succeeded but the quantity update
// that should accompany it did not, on a store without transactions. The
// ledger and the catalog disagree until an operator corrects the quantity.
type PersistenceError struct {
	Op           string
	Inconsistent bool
	Err          error
}

func (e *PersistenceError) Error() string {
	if e.Inconsistent {
		return fmt.Sprintf("%s: partial write, ledger and quantity disagree: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// Persistence wraps err as a PersistenceError unless it already belongs to
// the taxonomy. Stores use it at their boundary.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrValidation) || errors.Is(err, ErrDuplicateCode) ||
		errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateCode)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInconsistent returns true if the error reports a partial write.
func IsInconsistent(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Inconsistent
}
