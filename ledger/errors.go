/*
errors.go - Centralized error types for the balance engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every failure path returns one of these; nothing is swallowed and nothing
  is retried inside the engine; retry policy belongs to the caller.

ERROR CATEGORIES:
  1. Validation errors  - structurally malformed input, rejected before any
                          store access
  2. Policy errors      - a credit that would drive a balance negative
  3. Not-found errors   - missing customer or transaction reference
  4. Overflow           - result exceeds the decimal(10,2) precision bound
  5. Store failures     - the unit of work could not commit; surfaced
                          unchanged after the store rolls back

USAGE:
  if errors.Is(err, ledger.ErrInsufficientBalance) { ... }

  var itemErr *ledger.BatchItemError
  if errors.As(err, &itemErr) {
      // itemErr.Index identifies the failing batch row
  }
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
	// ErrInsufficientBalance is returned when a credit would drive the
	// customer's balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrCustomerNotFound is returned when a referenced account does not exist.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrCustomerExists is returned when creating a customer whose account
	// code is already taken.
	ErrCustomerExists = errors.New("customer already exists")

	// ErrTransactionNotFound is returned when a referenced transaction number
	// does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrOverflow is returned when a balance or amount would exceed the
	// 10-digit decimal precision bound. The operation is rejected rather than
	// silently truncated.
	ErrOverflow = errors.New("decimal overflow: exceeds 10-digit precision")

	// ErrInvalidInput is the category under which all structural validation
	// failures fall.
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a structurally malformed field. It is returned
// before any store access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// InsufficientBalanceError provides details about a rejected credit.
type InsufficientBalanceError struct {
	Account   AccountID
	Available decimal.Decimal // balance before the rejected credit
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on %s: available %s, requested %s",
		e.Account, FormatDecimal(e.Available), FormatDecimal(e.Requested))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// BatchItemError identifies which row of a batch caused the whole batch to
// abort. Index is zero-based over the submitted sequence.
type BatchItemError struct {
	Index   int
	Account AccountID
	Err     error
}

func (e *BatchItemError) Error() string {
	return fmt.Sprintf("batch item %d (account %s): %v", e.Index, e.Account, e.Err)
}

func (e *BatchItemError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// rather than a store or system fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrOverflow) ||
		errors.Is(err, ErrCustomerExists)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}
