/*
Package postgres provides a PostgreSQL-backed implementation of ledger.Store
using jackc/pgx.

UNIT OF WORK:
  WithTx wraps a database transaction. Inside one, GetCustomer locks the
  customer row with SELECT ... FOR UPDATE, so concurrent units of work
  against the same customer are serialized by the database, which is the
  isolation the engine requires to avoid lost balance updates.

SCHEMA:
  Balances and amounts are NUMERIC(10,2) and cross the driver boundary as
  text, never as float64.
*/
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/balance-engine/ledger"
)

const uniqueViolationCode = "23505"

type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and migrates the schema.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := &Store{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		account TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		balance NUMERIC(10,2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS transactions (
		number BIGSERIAL PRIMARY KEY,
		account TEXT NOT NULL REFERENCES customers(account) ON DELETE CASCADE,
		date TIMESTAMPTZ NOT NULL,
		amount NUMERIC(10,2) NOT NULL,
		direction TEXT NOT NULL,
		reference TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account);
	CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// =============================================================================
// READS (ledger.Reader)
// =============================================================================

func (s *Store) GetCustomer(ctx context.Context, account ledger.AccountID) (ledger.Customer, error) {
	return getCustomer(ctx, s.pool, account, false)
}

func (s *Store) GetTransaction(ctx context.Context, number ledger.TransactionID) (ledger.Transaction, error) {
	return getTransaction(ctx, s.pool, number)
}

func (s *Store) ListCustomers(ctx context.Context) ([]ledger.Customer, error) {
	return listCustomers(ctx, s.pool)
}

func (s *Store) ListTransactions(ctx context.Context, account ledger.AccountID) ([]ledger.Transaction, error) {
	return listTransactions(ctx, s.pool, account)
}

// =============================================================================
// CUSTOMER LIFECYCLE
// =============================================================================

func (s *Store) CreateCustomer(ctx context.Context, c ledger.Customer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO customers (account, name, balance)
		VALUES ($1, $2, $3::numeric)`,
		c.Account, c.Name, ledger.FormatDecimal(c.Balance))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ledger.ErrCustomerExists
		}
		return err
	}
	return nil
}

func (s *Store) DeleteCustomer(ctx context.Context, account ledger.AccountID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM customers WHERE account = $1`, account)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrCustomerNotFound
	}
	return nil
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

// GetCustomer locks the row for the remainder of the unit of work.
func (t *pgTx) GetCustomer(ctx context.Context, account ledger.AccountID) (ledger.Customer, error) {
	return getCustomer(ctx, t.tx, account, true)
}

func (t *pgTx) GetTransaction(ctx context.Context, number ledger.TransactionID) (ledger.Transaction, error) {
	return getTransaction(ctx, t.tx, number)
}

func (t *pgTx) ListCustomers(ctx context.Context) ([]ledger.Customer, error) {
	return listCustomers(ctx, t.tx)
}

func (t *pgTx) ListTransactions(ctx context.Context, account ledger.AccountID) ([]ledger.Transaction, error) {
	return listTransactions(ctx, t.tx, account)
}

func (t *pgTx) PersistCustomer(ctx context.Context, c ledger.Customer) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE customers SET name = $1, balance = $2::numeric WHERE account = $3`,
		c.Name, ledger.FormatDecimal(c.Balance), c.Account)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrCustomerNotFound
	}
	return nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, txn ledger.Transaction) (ledger.Transaction, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO transactions (account, date, amount, direction, reference)
		VALUES ($1, $2, $3::numeric, $4, $5)
		RETURNING number`,
		txn.Account, txn.Date, ledger.FormatDecimal(txn.Amount),
		txn.Direction.Code(), txn.Reference,
	).Scan(&txn.Number)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return txn, nil
}

func (t *pgTx) UpdateTransaction(ctx context.Context, txn ledger.Transaction) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE transactions
		SET account = $1, date = $2, amount = $3::numeric, direction = $4, reference = $5
		WHERE number = $6`,
		txn.Account, txn.Date, ledger.FormatDecimal(txn.Amount),
		txn.Direction.Code(), txn.Reference, txn.Number)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrTransactionNotFound
	}
	return nil
}

func (t *pgTx) DeleteTransaction(ctx context.Context, number ledger.TransactionID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM transactions WHERE number = $1`, number)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrTransactionNotFound
	}
	return nil
}

// =============================================================================
// SHARED SCAN HELPERS
// =============================================================================

func getCustomer(ctx context.Context, q pgQuerier, account ledger.AccountID, forUpdate bool) (ledger.Customer, error) {
	query := `SELECT account, name, balance::text FROM customers WHERE account = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var c ledger.Customer
	var balance string
	err := q.QueryRow(ctx, query, account).Scan(&c.Account, &c.Name, &balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Customer{}, ledger.ErrCustomerNotFound
		}
		return ledger.Customer{}, err
	}
	d, err := decimal.NewFromString(balance)
	if err != nil {
		return ledger.Customer{}, fmt.Errorf("corrupt balance for %s: %w", c.Account, err)
	}
	c.Balance = d
	return c, nil
}

func getTransaction(ctx context.Context, q pgQuerier, number ledger.TransactionID) (ledger.Transaction, error) {
	row := q.QueryRow(ctx, `
		SELECT number, account, date, amount::text, direction, reference
		FROM transactions WHERE number = $1`, number)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return t, err
}

func listCustomers(ctx context.Context, q pgQuerier) ([]ledger.Customer, error) {
	rows, err := q.Query(ctx, `
		SELECT account, name, balance::text FROM customers ORDER BY account`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Customer
	for rows.Next() {
		var c ledger.Customer
		var balance string
		if err := rows.Scan(&c.Account, &c.Name, &balance); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("corrupt balance for %s: %w", c.Account, err)
		}
		c.Balance = d
		out = append(out, c)
	}
	return out, rows.Err()
}

func listTransactions(ctx context.Context, q pgQuerier, account ledger.AccountID) ([]ledger.Transaction, error) {
	query := `
		SELECT number, account, date, amount::text, direction, reference
		FROM transactions`
	var args []any
	if account != "" {
		query += ` WHERE account = $1`
		args = append(args, account)
	}
	query += ` ORDER BY number`

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (ledger.Transaction, error) {
	var t ledger.Transaction
	var amount, direction string
	if err := row.Scan(&t.Number, &t.Account, &t.Date, &amount, &direction, &t.Reference); err != nil {
		return ledger.Transaction{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("corrupt amount for transaction %d: %w", t.Number, err)
	}
	t.Amount = d
	dir, err := ledger.ParseDirection(direction)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("corrupt direction for transaction %d: %w", t.Number, err)
	}
	t.Direction = dir
	return t, nil
}
