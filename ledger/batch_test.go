package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/balance-engine/ledger"
	"github.com/warp/balance-engine/ledger/store"
	"github.com/warp/balance-engine/logging"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestBatch(t *testing.T) (*ledger.BatchProcessor, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	proc := ledger.NewBatchProcessor(mem, logging.Discard()).
		WithClock(func() time.Time { return testNow })
	return proc, mem
}

func item(account, amount string, dir ledger.Direction, ref string) ledger.BatchItem {
	return ledger.BatchItem{
		Account:   ledger.AccountID(account),
		Amount:    dec(amount),
		Direction: dir,
		Reference: ref,
	}
}

// countingStore wraps a Store and counts PersistCustomer calls per account
// inside units of work.
type countingStore struct {
	ledger.Store
	balanceWrites map[ledger.AccountID]int
}

func newCountingStore(inner ledger.Store) *countingStore {
	return &countingStore{Store: inner, balanceWrites: make(map[ledger.AccountID]int)}
}

func (c *countingStore) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	return c.Store.WithTx(ctx, func(tx ledger.Tx) error {
		return fn(&countingTx{Tx: tx, store: c})
	})
}

type countingTx struct {
	ledger.Tx
	store *countingStore
}

func (c *countingTx) PersistCustomer(ctx context.Context, cust ledger.Customer) error {
	c.store.balanceWrites[cust.Account]++
	return c.Tx.PersistCustomer(ctx, cust)
}

// =============================================================================
// SUCCESS PATHS
// =============================================================================

func TestApplyBatch_TwoItemsSameCustomer(t *testing.T) {
	// GIVEN: customer at 1000.00
	// WHEN: batch of Debit 20.00 then Credit 30.00
	// THEN: final balance 990.00, both transactions persisted, and exactly
	//       one balance write for that customer

	mem := store.NewMemory()
	counting := newCountingStore(mem)
	proc := ledger.NewBatchProcessor(counting, logging.Discard())
	ctx := context.Background()
	mustCustomer(t, mem, "ACC001", "1000.00")

	res, err := proc.ApplyBatch(ctx, []ledger.BatchItem{
		item("ACC001", "20.00", ledger.Debit, "REF0000001"),
		item("ACC001", "30.00", ledger.Credit, "REF0000002"),
	})
	require.NoError(t, err)

	assert.Equal(t, "990.00", ledger.FormatDecimal(res.Balances["ACC001"]))
	assert.Equal(t, "990.00", customerBalance(t, mem, "ACC001"))
	assert.Len(t, res.Transactions, 2)
	assert.Equal(t, 1, counting.balanceWrites["ACC001"], "one balance write per distinct customer")

	txs, err := mem.ListTransactions(ctx, "ACC001")
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestApplyBatch_MultipleCustomers(t *testing.T) {
	proc, mem := newTestBatch(t)
	ctx := context.Background()
	mustCustomer(t, mem, "ACC001", "1000.00")
	mustCustomer(t, mem, "ACC002", "500.00")

	res, err := proc.ApplyBatch(ctx, []ledger.BatchItem{
		item("ACC001", "100.00", ledger.Debit, "REF0000001"),
		item("ACC002", "50.00", ledger.Credit, "REF0000002"),
		item("ACC001", "25.50", ledger.Credit, "REF0000003"),
	})
	require.NoError(t, err)

	assert.Equal(t, "1074.50", ledger.FormatDecimal(res.Balances["ACC001"]))
	assert.Equal(t, "450.00", ledger.FormatDecimal(res.Balances["ACC002"]))
	assert.Len(t, res.Transactions, 3)

	// Sequential numbers in input order.
	assert.Equal(t, ledger.TransactionID(1), res.Transactions[0].Number)
	assert.Equal(t, ledger.TransactionID(2), res.Transactions[1].Number)
	assert.Equal(t, ledger.TransactionID(3), res.Transactions[2].Number)
}

func TestApplyBatch_CreditFundedByEarlierDebit(t *testing.T) {
	// The running balance reflects earlier items in the SAME batch: a credit
	// the stored balance could not cover succeeds when an earlier debit in
	// the batch funds it.

	proc, mem := newTestBatch(t)
	ctx := context.Background()
	mustCustomer(t, mem, "ACC001", "10.00")

	_, err := proc.ApplyBatch(ctx, []ledger.BatchItem{
		item("ACC001", "100.00", ledger.Debit, "REF0000001"),
		item("ACC001", "50.00", ledger.Credit, "REF0000002"),
	})
	require.NoError(t, err)
	assert.Equal(t, "60.00", customerBalance(t, mem, "ACC001"))
}

// =============================================================================
// FAILURE PATHS - all-or-nothing
// =============================================================================

func TestApplyBatch_OrderSignificant_CreditFirstFails(t *testing.T) {
	// Same two items as above, reversed: the credit is checked against the
	// running balance BEFORE the debit lands, so the whole batch aborts.

	proc, mem := newTestBatch(t)
	ctx := context.Background()
	mustCustomer(t, mem, "ACC001", "10.00")

	_, err := proc.ApplyBatch(ctx, []ledger.BatchItem{
		item("ACC001", "50.00", ledger.Credit, "REF0000001"),
		item("ACC001", "100.00", ledger.Debit, "REF0000002"),
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	var itemErr *ledger.BatchItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, 0, itemErr.Index)

	assert.Equal(t, "10.00", customerBalance(t, mem, "ACC001"))
	txs, err := mem.ListTransactions(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestApplyBatch_MidBatchPolicyFailure_NothingPersisted(t *testing.T) {
	// GIVEN: items 1 and 3 would individually succeed
	// WHEN: item 2 fails the policy
	// THEN: no transaction from the batch persists and no balance changes

	proc, mem := newTestBatch(t)
	ctx := context.Background()
	mustCustomer(t, mem, "ACC001", "1000.00")
	mustCustomer(t, mem, "ACC002", "5.00")

	_, err := proc.ApplyBatch(ctx, []ledger.BatchItem{
		item("ACC001", "100.00", ledger.Debit, "REF0000001"),
		item("ACC002", "50.00", ledger.Credit, "REF0000002"),
		item("ACC001", "10.00", ledger.Debit, "REF0000003"),
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	var itemErr *ledger.BatchItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, 1, itemErr.Index)
	assert.Equal(t, ledger.AccountID("ACC002"), itemErr.Account)

	assert.Equal(t, "1000.00", customerBalance(t, mem, "ACC001"))
	assert.Equal(t, "5.00", customerBalance(t, mem, "ACC002"))
	txs, err := mem.ListTransactions(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestApplyBatch_StructurallyInvalidItem_AbortsBeforeAnyWrite(t *testing.T) {
	proc, mem := newTestBatch(t)
	ctx := context.Background()
	mustCustomer(t, mem, "ACC001", "1000.00")

	_, err := proc.ApplyBatch(ctx, []ledger.BatchItem{
		item("ACC001", "100.00", ledger.Debit, "REF0000001"),
		item("ACC001", "-1.00", ledger.Debit, "REF0000002"), // invalid
	})
	require.ErrorIs(t, err, ledger.ErrInvalidInput)

	var itemErr *ledger.BatchItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, 1, itemErr.Index)

	assert.Equal(t, "1000.00", customerBalance(t, mem, "ACC001"))
	txs, err := mem.ListTransactions(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestApplyBatch_UnknownCustomer_ReportsIndex(t *testing.T) {
	proc, mem := newTestBatch(t)
	ctx := context.Background()
	mustCustomer(t, mem, "ACC001", "1000.00")

	_, err := proc.ApplyBatch(ctx, []ledger.BatchItem{
		item("ACC001", "100.00", ledger.Debit, "REF0000001"),
		item("NOSUCH", "10.00", ledger.Debit, "REF0000002"),
	})
	require.ErrorIs(t, err, ledger.ErrCustomerNotFound)

	var itemErr *ledger.BatchItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, 1, itemErr.Index)

	assert.Equal(t, "1000.00", customerBalance(t, mem, "ACC001"))
}

func TestApplyBatch_Empty_Rejected(t *testing.T) {
	proc, _ := newTestBatch(t)

	_, err := proc.ApplyBatch(context.Background(), nil)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
}
