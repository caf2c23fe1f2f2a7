/*
service.go - Transaction mutation service

PURPOSE:
  Orchestrates create/update/delete of a single transaction. Each operation
  runs inside one unit of work so the transaction record and the customer
  balance commit or fail together.

ORDERING:
  Create:  load customer -> policy check -> apply -> insert row + persist balance
  Update:  load original + customer -> REVERT old contribution -> policy
           check against the post-revert balance -> apply new fields ->
           rewrite row + persist balance(s)
  Delete:  load -> revert -> remove row + persist balance (never validated;
           a revert only moves the balance toward its prior, valid state)

  When an update reassigns the owning account, the revert lands on the old
  customer and the apply on the new one, both persisted in the same unit of
  work; there is no intermediate state where only one side moved.
*/
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INPUTS AND RESULTS
// =============================================================================

// TransactionInput carries the caller-supplied fields of a transaction.
// A zero Date means "now" on create and "keep the original date" on update.
type TransactionInput struct {
	Account   AccountID
	Date      time.Time
	Amount    decimal.Decimal
	Direction Direction
	Reference string
}

// validate enforces structural correctness before any store access.
func (in TransactionInput) validate() error {
	if !ValidAccountCode(string(in.Account)) {
		return &ValidationError{Field: "account", Reason: "must be alphanumeric, 1-15 characters"}
	}
	if !in.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if !in.Amount.Round(FracDigits).Equal(in.Amount) {
		return &ValidationError{Field: "amount", Reason: "at most 2 fraction digits"}
	}
	if in.Amount.GreaterThan(maxBalance) {
		return ErrOverflow
	}
	if !in.Direction.Valid() {
		return &ValidationError{Field: "direction", Reason: "must be debit or credit"}
	}
	if !ValidReference(in.Reference) {
		return &ValidationError{Field: "reference", Reason: "must be alphanumeric, 1-10 characters"}
	}
	return nil
}

func (in TransactionInput) transaction(now time.Time) Transaction {
	date := in.Date
	if date.IsZero() {
		date = now
	}
	return Transaction{
		Account:   in.Account,
		Date:      date,
		Amount:    in.Amount,
		Direction: in.Direction,
		Reference: in.Reference,
	}
}

// MutationResult is the success payload of a mutation: the affected
// transaction and the new balance of every customer the operation touched
// (one entry normally, two when an update reassigns the owning account).
type MutationResult struct {
	Transaction Transaction
	Balances    map[AccountID]decimal.Decimal
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func NewService(store Store, log *slog.Logger) *Service {
	return &Service{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the service clock. Tests use this to pin dates.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create validates, applies and persists a new transaction atomically with
// the owning customer's updated balance.
func (s *Service) Create(ctx context.Context, in TransactionInput) (MutationResult, error) {
	if err := in.validate(); err != nil {
		return MutationResult{}, err
	}

	var res MutationResult
	err := s.store.WithTx(ctx, func(tx Tx) error {
		cust, err := tx.GetCustomer(ctx, in.Account)
		if err != nil {
			return err
		}

		t := in.transaction(s.now())
		if err := CheckApply(cust.Account, cust.Balance, t); err != nil {
			return err
		}
		next, err := Apply(cust.Balance, t)
		if err != nil {
			return err
		}

		created, err := tx.InsertTransaction(ctx, t)
		if err != nil {
			return err
		}
		cust.Balance = next
		if err := tx.PersistCustomer(ctx, cust); err != nil {
			return err
		}

		res = MutationResult{
			Transaction: created,
			Balances:    map[AccountID]decimal.Decimal{cust.Account: next},
		}
		return nil
	})
	if err != nil {
		return MutationResult{}, err
	}

	s.log.Info("transaction created",
		"number", res.Transaction.Number,
		"account", res.Transaction.Account,
		"direction", res.Transaction.Direction,
		"amount", FormatDecimal(res.Transaction.Amount))
	return res, nil
}

// Update replaces a transaction's fields, reverting the old contribution
// before validating and applying the new one.
func (s *Service) Update(ctx context.Context, number TransactionID, in TransactionInput) (MutationResult, error) {
	if err := in.validate(); err != nil {
		return MutationResult{}, err
	}

	var res MutationResult
	err := s.store.WithTx(ctx, func(tx Tx) error {
		orig, err := tx.GetTransaction(ctx, number)
		if err != nil {
			return err
		}
		origCust, err := tx.GetCustomer(ctx, orig.Account)
		if err != nil {
			return err
		}

		next := in.transaction(s.now())
		next.Number = orig.Number
		if in.Date.IsZero() {
			next.Date = orig.Date
		}

		afterRevert, err := Revert(origCust.Balance, orig)
		if err != nil {
			return err
		}

		if next.Account == orig.Account {
			// Same owner: validate against the post-revert balance, not the
			// stale one still carrying the old contribution.
			if err := CheckApply(next.Account, afterRevert, next); err != nil {
				return err
			}
			applied, err := Apply(afterRevert, next)
			if err != nil {
				return err
			}
			if err := tx.UpdateTransaction(ctx, next); err != nil {
				return err
			}
			origCust.Balance = applied
			if err := tx.PersistCustomer(ctx, origCust); err != nil {
				return err
			}
			res = MutationResult{
				Transaction: next,
				Balances:    map[AccountID]decimal.Decimal{next.Account: applied},
			}
			return nil
		}

		// Reassignment: the revert lands on the original customer (never
		// validated), the apply on the new one against its current balance.
		newCust, err := tx.GetCustomer(ctx, next.Account)
		if err != nil {
			return err
		}
		if err := CheckApply(newCust.Account, newCust.Balance, next); err != nil {
			return err
		}
		applied, err := Apply(newCust.Balance, next)
		if err != nil {
			return err
		}

		if err := tx.UpdateTransaction(ctx, next); err != nil {
			return err
		}
		origCust.Balance = afterRevert
		if err := tx.PersistCustomer(ctx, origCust); err != nil {
			return err
		}
		newCust.Balance = applied
		if err := tx.PersistCustomer(ctx, newCust); err != nil {
			return err
		}

		res = MutationResult{
			Transaction: next,
			Balances: map[AccountID]decimal.Decimal{
				orig.Account: afterRevert,
				next.Account: applied,
			},
		}
		return nil
	})
	if err != nil {
		return MutationResult{}, err
	}

	s.log.Info("transaction updated",
		"number", res.Transaction.Number,
		"account", res.Transaction.Account)
	return res, nil
}

// Delete reverts a transaction's contribution and removes its record.
// No policy check: only a store failure can block a delete.
func (s *Service) Delete(ctx context.Context, number TransactionID) (MutationResult, error) {
	var res MutationResult
	err := s.store.WithTx(ctx, func(tx Tx) error {
		orig, err := tx.GetTransaction(ctx, number)
		if err != nil {
			return err
		}
		cust, err := tx.GetCustomer(ctx, orig.Account)
		if err != nil {
			return err
		}

		afterRevert, err := Revert(cust.Balance, orig)
		if err != nil {
			return err
		}

		if err := tx.DeleteTransaction(ctx, number); err != nil {
			return err
		}
		cust.Balance = afterRevert
		if err := tx.PersistCustomer(ctx, cust); err != nil {
			return err
		}

		res = MutationResult{
			Transaction: orig,
			Balances:    map[AccountID]decimal.Decimal{cust.Account: afterRevert},
		}
		return nil
	})
	if err != nil {
		return MutationResult{}, err
	}

	s.log.Info("transaction deleted",
		"number", res.Transaction.Number,
		"account", res.Transaction.Account)
	return res, nil
}
