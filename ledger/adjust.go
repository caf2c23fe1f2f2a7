/*
adjust.go - Balance adjuster: the signed-delta arithmetic

PURPOSE:
  Defines, in exactly one place, how a transaction moves its customer's
  balance: +Amount for Debit, -Amount for Credit. Apply and Revert are pure
  functions over decimal values with no I/O and no side effects. Callers persist
  the result inside a unit of work.

PRECISION:
  Every result is rounded to 2 fraction digits and checked against the
  10-digit total precision bound. An operation that would overflow fails
  with ErrOverflow instead of truncating.

REVERT-THEN-APPLY:
  Updates undo the old contribution with Revert before validating and
  applying the replacement with Apply. Revert(Apply(b, t), t) == b for any
  in-bounds balance, which is what makes delete-after-create restore the
  exact prior balance.
*/
package ledger

import "github.com/shopspring/decimal"

// SignedDelta returns the transaction's contribution to its customer's
// balance: +Amount for Debit, -Amount for Credit.
func SignedDelta(t Transaction) decimal.Decimal {
	if t.Direction == Credit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Apply returns the balance with the transaction's signed delta folded in.
func Apply(balance decimal.Decimal, t Transaction) (decimal.Decimal, error) {
	return bound(balance.Add(SignedDelta(t)))
}

// Revert returns the balance with the transaction's signed delta removed.
func Revert(balance decimal.Decimal, t Transaction) (decimal.Decimal, error) {
	return bound(balance.Sub(SignedDelta(t)))
}

func bound(d decimal.Decimal) (decimal.Decimal, error) {
	d = d.Round(FracDigits)
	if d.Abs().GreaterThan(maxBalance) {
		return decimal.Decimal{}, ErrOverflow
	}
	return d, nil
}
