/*
Package ledger provides the core balance consistency engine.

PURPOSE:
  This package keeps a customer's stored balance numerically consistent with
  the full set of debit/credit transactions recorded against it. Every
  mutation path (single create/update/delete, batch submission) goes through
  the same signed-delta arithmetic and the same sufficient-balance policy,
  inside one atomic unit of work.

KEY CONCEPTS IN THIS FILE (types.go):
  - Customer: account code, display name, and the maintained balance
  - Transaction: a debit or credit applied against one customer
  - Direction: two-variant enumeration {Debit, Credit}
  - Parse/format helpers enforcing the decimal(10,2) domain

DESIGN PRINCIPLES:
  1. Precision: all money values are decimal.Decimal with exactly 2 fraction
     digits; binary floating point never touches a balance
  2. Incremental balances: Customer.Balance is maintained in lock-step with
     the transaction set, never recomputed from history on the hot path
  3. Type Safety: AccountID and TransactionID are distinct types

SIGN CONVENTION:
  In this domain a Debit INCREASES the owning customer's balance (money owed
  to the customer) and a Credit DECREASES it. This is deliberate and must not
  be "corrected" to match double-entry bookkeeping vocabulary. The mapping is
  defined once, in adjust.go.

SEE ALSO:
  - adjust.go: signed-delta arithmetic (the only place the sign lives)
  - policy.go: sufficient-balance validation
  - service.go: single-transaction mutations
  - batch.go: all-or-nothing multi-transaction submission
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// AccountID is a customer's account code: alphanumeric, at most 15
// characters, unique, immutable once assigned.
type AccountID string

// TransactionID is the auto-assigned sequential transaction number.
type TransactionID int64

// =============================================================================
// DIRECTION - Two-variant enumeration
// =============================================================================

type Direction string

const (
	// Debit increases the owning customer's balance.
	Debit Direction = "debit"
	// Credit decreases the owning customer's balance.
	Credit Direction = "credit"
)

// ParseDirection accepts both the long form ("debit"/"credit") and the
// single-letter wire codes ("D"/"C") used by the transaction forms.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "debit", "D", "d":
		return Debit, nil
	case "credit", "C", "c":
		return Credit, nil
	}
	return "", &ValidationError{Field: "direction", Reason: "must be one of D, C, debit, credit"}
}

// Code returns the single-letter form used in storage and on the wire.
func (d Direction) Code() string {
	if d == Credit {
		return "C"
	}
	return "D"
}

func (d Direction) Valid() bool {
	return d == Debit || d == Credit
}

// =============================================================================
// CUSTOMER
// =============================================================================

// Customer holds a monetary balance mutated exclusively through the
// adjuster under a store unit of work.
type Customer struct {
	Account AccountID
	Name    string
	Balance decimal.Decimal
}

// =============================================================================
// TRANSACTION
// =============================================================================

// Transaction is a single debit or credit against one customer.
// Number is assigned by the store on insert and is immutable, as is the
// fact of which customer a persisted row belongs to (reassignment happens
// by rewriting the row under Update, never in place).
type Transaction struct {
	Number    TransactionID
	Account   AccountID
	Date      time.Time
	Amount    decimal.Decimal // strictly positive, 2 fraction digits
	Direction Direction
	Reference string
}

// =============================================================================
// DECIMAL DOMAIN - decimal(10,2)
// =============================================================================

// FracDigits is the number of fraction digits carried by every amount and
// balance in the system.
const FracDigits = 2

const (
	maxAccountLen   = 15
	maxNameLen      = 30
	maxReferenceLen = 10
)

// maxBalance is the largest representable magnitude: 10 total digits with
// 2 fraction digits, i.e. 99999999.99.
var maxBalance = decimal.New(9_999_999_999, -FracDigits)

// ParseAmount parses a transaction amount: a strictly positive decimal with
// at most 2 fraction digits, within the 10-digit precision bound. An amount
// carrying more fraction digits is rejected, never rounded.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, &ValidationError{Field: "amount", Reason: "not a decimal number"}
	}
	if !d.Equal(d.Round(FracDigits)) {
		return decimal.Decimal{}, &ValidationError{Field: "amount", Reason: "at most 2 fraction digits"}
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if d.GreaterThan(maxBalance) {
		return decimal.Decimal{}, ErrOverflow
	}
	return d, nil
}

// ParseBalance parses a customer balance. Unlike amounts, balances may be
// zero (and, for an explicitly created customer, negative).
func ParseBalance(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, &ValidationError{Field: "balance", Reason: "not a decimal number"}
	}
	d = d.Round(FracDigits)
	if d.Abs().GreaterThan(maxBalance) {
		return decimal.Decimal{}, ErrOverflow
	}
	return d, nil
}

// FormatDecimal renders a balance or amount with exactly 2 fraction digits.
// This is the only representation that crosses the API boundary.
func FormatDecimal(d decimal.Decimal) string {
	return d.StringFixed(FracDigits)
}

// ValidAccountCode reports whether s is a well-formed account code.
func ValidAccountCode(s string) bool {
	return alphanumeric(s, maxAccountLen)
}

// ValidReference reports whether s is a well-formed transaction reference.
// Uniqueness of references is not enforced here; callers needing it must
// add a store-level unique constraint.
func ValidReference(s string) bool {
	return alphanumeric(s, maxReferenceLen)
}

func alphanumeric(s string, maxLen int) bool {
	if s == "" || len(s) > maxLen {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
