/*
batch.go - All-or-nothing multi-transaction submission

PURPOSE:
  Applies an ordered sequence of transactions atomically. Either every
  transaction record and every touched balance commits, or nothing does.

RUNNING BALANCES:
  Multiple items in one batch may target the same customer. Re-reading the
  stored balance between items would lose updates from earlier items in the
  same (uncommitted) batch, so each customer is loaded from the store once,
  on first touch, and its balance is then accumulated in memory as items
  fold in, in input order. The policy check for each item runs against this
  running balance, so a credit late in the batch can be rejected because an
  earlier item already drained the same customer.

BALANCE WRITES:
  On success, each distinct customer's FINAL running balance is written
  exactly once, bounding balance writes by distinct customers rather than
  by items.
*/
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// BatchItem is one row of a batch submission.
type BatchItem struct {
	Account   AccountID
	Date      time.Time
	Amount    decimal.Decimal
	Direction Direction
	Reference string
}

func (it BatchItem) input() TransactionInput {
	return TransactionInput{
		Account:   it.Account,
		Date:      it.Date,
		Amount:    it.Amount,
		Direction: it.Direction,
		Reference: it.Reference,
	}
}

// BatchResult is the success payload: every persisted transaction in input
// order and the final balance of each distinct customer touched.
type BatchResult struct {
	Transactions []Transaction
	Balances     map[AccountID]decimal.Decimal
}

type BatchProcessor struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func NewBatchProcessor(store Store, log *slog.Logger) *BatchProcessor {
	return &BatchProcessor{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the processor clock. Tests use this to pin dates.
func (p *BatchProcessor) WithClock(now func() time.Time) *BatchProcessor {
	p.now = now
	return p
}

// ApplyBatch validates and applies items in order, atomically.
// Any failure (structural, policy, overflow, missing customer, store)
// aborts the entire batch with no writes, reported with the index of the
// failing item where one is identifiable.
func (p *BatchProcessor) ApplyBatch(ctx context.Context, items []BatchItem) (BatchResult, error) {
	if len(items) == 0 {
		return BatchResult{}, &ValidationError{Field: "items", Reason: "batch is empty"}
	}

	// Structural validation of every item before any persistence is attempted.
	for i, it := range items {
		if err := it.input().validate(); err != nil {
			return BatchResult{}, &BatchItemError{Index: i, Account: it.Account, Err: err}
		}
	}

	var res BatchResult
	err := p.store.WithTx(ctx, func(tx Tx) error {
		now := p.now()

		// Loaded customers, keyed by account; Balance fields carry the
		// running balances. Order of first touch, for deterministic writes.
		touched := make(map[AccountID]*Customer, len(items))
		var order []AccountID

		for i, it := range items {
			cust, ok := touched[it.Account]
			if !ok {
				loaded, err := tx.GetCustomer(ctx, it.Account)
				if err != nil {
					return &BatchItemError{Index: i, Account: it.Account, Err: err}
				}
				cust = &loaded
				touched[it.Account] = cust
				order = append(order, it.Account)
			}

			t := it.input().transaction(now)
			if err := CheckApply(it.Account, cust.Balance, t); err != nil {
				return &BatchItemError{Index: i, Account: it.Account, Err: err}
			}
			next, err := Apply(cust.Balance, t)
			if err != nil {
				return &BatchItemError{Index: i, Account: it.Account, Err: err}
			}
			cust.Balance = next

			created, err := tx.InsertTransaction(ctx, t)
			if err != nil {
				return err
			}
			res.Transactions = append(res.Transactions, created)
		}

		// One balance write per distinct customer.
		res.Balances = make(map[AccountID]decimal.Decimal, len(order))
		for _, account := range order {
			cust := touched[account]
			if err := tx.PersistCustomer(ctx, *cust); err != nil {
				return err
			}
			res.Balances[account] = cust.Balance
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}

	p.log.Info("batch applied",
		"items", len(res.Transactions),
		"customers", len(res.Balances))
	return res, nil
}
