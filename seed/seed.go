// Package seed populates a store with sample customers and transactions.
//
// Data goes through the real mutation service so seeded balances stay
// consistent with the seeded transaction history. Seeding is idempotent per
// customer: accounts that already exist are left untouched, and sample
// transactions are only applied to accounts created in this run, so
// re-running with -seed never double-applies anything and a seed that was
// interrupted midway is completed on the next run.
package seed

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/warp/balance-engine/ledger"
)

type sampleCustomer struct {
	account string
	name    string
	balance string
}

type sampleTransaction struct {
	account   string
	amount    string
	direction ledger.Direction
	reference string
}

var sampleCustomers = []sampleCustomer{
	{account: "ACC001234567890", name: "Alice Smith", balance: "1500.00"},
	{account: "ACC002345678901", name: "Bob Johnson", balance: "250.75"},
}

var sampleTransactions = []sampleTransaction{
	{account: "ACC001234567890", amount: "100.00", direction: ledger.Debit, reference: "REF0000001"},
	{account: "ACC001234567890", amount: "50.00", direction: ledger.Credit, reference: "REF0000002"},
	{account: "ACC002345678901", amount: "200.00", direction: ledger.Debit, reference: "REF0000003"},
}

// Populate creates the sample data set.
func Populate(ctx context.Context, store ledger.Store, svc *ledger.Service, log *slog.Logger) error {
	created := make(map[ledger.AccountID]bool, len(sampleCustomers))
	for _, sc := range sampleCustomers {
		balance, err := ledger.ParseBalance(sc.balance)
		if err != nil {
			return err
		}
		err = store.CreateCustomer(ctx, ledger.Customer{
			Account: ledger.AccountID(sc.account),
			Name:    sc.name,
			Balance: balance,
		})
		if errors.Is(err, ledger.ErrCustomerExists) {
			log.Info("sample customer already exists, skipping", "account", sc.account)
			continue
		}
		if err != nil {
			return err
		}
		created[ledger.AccountID(sc.account)] = true
		log.Info("created sample customer", "account", sc.account, "name", sc.name)
	}

	for _, st := range sampleTransactions {
		if !created[ledger.AccountID(st.account)] {
			continue
		}
		amount, err := decimal.NewFromString(st.amount)
		if err != nil {
			return err
		}
		res, err := svc.Create(ctx, ledger.TransactionInput{
			Account:   ledger.AccountID(st.account),
			Amount:    amount,
			Direction: st.direction,
			Reference: st.reference,
		})
		if err != nil {
			return err
		}
		log.Info("created sample transaction",
			"number", res.Transaction.Number,
			"account", st.account,
			"reference", st.reference)
	}
	return nil
}
