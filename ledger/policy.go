/*
policy.go - Sufficient-balance validation

PURPOSE:
  A credit may never drive a customer's balance negative. The check runs
  against the CANDIDATE balance at the moment the transaction is applied:
  for an update that is the balance after reverting the transaction being
  replaced, for a batch item it is the running balance reflecting every
  earlier item in the same batch.

  Checking against a stale (pre-revert) balance would wrongly reject
  legitimate downward amount edits and wrongly accept operations when the
  same customer has multiple in-flight changes, hence the strict
  revert-then-check-then-apply ordering in service.go and batch.go.

  Debits always pass. Reverts are never validated: undoing a transaction
  can only move a balance toward a state that was valid when it was written.
*/
package ledger

import "github.com/shopspring/decimal"

// CanApply reports whether t may be applied to a customer whose balance,
// before this transaction, is candidate.
func CanApply(candidate decimal.Decimal, t Transaction) bool {
	if t.Direction == Debit {
		return true
	}
	return candidate.GreaterThanOrEqual(t.Amount)
}

// CheckApply is CanApply returning a structured error on refusal. On
// failure the caller must leave all state untouched: no balance write, no
// transaction record.
func CheckApply(account AccountID, candidate decimal.Decimal, t Transaction) error {
	if CanApply(candidate, t) {
		return nil
	}
	return &InsufficientBalanceError{
		Account:   account,
		Available: candidate,
		Requested: t.Amount,
	}
}
