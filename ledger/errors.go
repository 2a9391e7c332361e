/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The HTTP layer maps these onto status codes and user-facing messages.

ERROR CATEGORIES:
  1. Validation errors - malformed or out-of-range input
  2. Not-found errors  - referenced rows that do not exist
  3. Business-rule errors - insufficient bonus balance or stock
  4. Storage errors    - underlying persistence failures

USAGE:
  Callers classify with errors.Is / errors.As:

    if errors.Is(err, ledger.ErrInsufficientBonus) {
        // surface the shortfall to the cashier
    }

SEE ALSO:
  - engine.go: raises these errors
  - api/handlers.go: maps them to HTTP responses
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed or out-of-range input.
	// Always recoverable by the caller correcting the input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced product, customer,
	// delivery or sale does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientBonus is returned when a debit exceeds the
	// customer's current bonus balance.
	ErrInsufficientBonus = errors.New("insufficient bonus points")

	// ErrInsufficientStock is returned when a checkout would drive a
	// product's stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrStorage wraps persistence failures not otherwise classified.
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes which field failed and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError identifies the missing row.
type NotFoundError struct {
	Kind string // "product", "customer", "delivery", "sale"
	ID   int64
}

func (e *NotFoundError) Error() string {
	if e.ID > 0 {
		return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Kind)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InsufficientBonusError reports a bonus debit shortfall.
type InsufficientBonusError struct {
	CustomerID int64
	Available  decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientBonusError) Error() string {
	return fmt.Sprintf("insufficient bonus points: available %s, requested %s",
		e.Available, e.Requested)
}

func (e *InsufficientBonusError) Unwrap() error { return ErrInsufficientBonus }

// InsufficientStockError reports a stock shortfall for one cart line.
type InsufficientStockError struct {
	ProductID int64
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %s, requested %s",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// StorageError wraps a low-level persistence failure with the operation
// name and key identifiers, so it can be logged with full context.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s (%s): %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return ErrStorage }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to invalid client input
// or a business-rule violation the caller can correct.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBonus) ||
		errors.Is(err, ErrInsufficientStock)
}

// IsNotFound reports whether the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
