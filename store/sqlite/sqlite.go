/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Durable storage for customers and transactions. The same patterns apply
  to PostgreSQL (see store/postgres), with only minor SQL dialect differences.

SCHEMA:
  customers:     account (PK), name, balance (decimal text, 2 fraction digits)
  transactions:  number (autoincrement PK), account (FK, cascade delete),
                 date, amount, direction, reference

  Balances and amounts are stored as decimal strings, never as REAL, so the
  engine's fixed-point semantics must survive persistence unchanged.

UNIT OF WORK:
  WithTx wraps a database transaction. SQLite serializes writers (WAL mode,
  single writer) and the store additionally holds a mutex for the duration
  of a unit of work, which gives the per-customer serialization the engine
  requires. In PostgreSQL the equivalent is row locking; see store/postgres.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

USAGE:
  st, err := sqlite.New("./data/ledger.db")   // or ":memory:"
  if err != nil { ... }
  defer st.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/balance-engine/ledger"
)

// Store implements ledger.Store on SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer anyway, and ":memory:"
	// databases are per-connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		account TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		balance TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		number INTEGER PRIMARY KEY AUTOINCREMENT,
		account TEXT NOT NULL REFERENCES customers(account) ON DELETE CASCADE,
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		direction TEXT NOT NULL,
		reference TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account
		ON transactions(account);
	CREATE INDEX IF NOT EXISTS idx_transactions_date
		ON transactions(date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx so reads can be shared
// between the store and its unit of work.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// READS (ledger.Reader)
// =============================================================================

func (s *Store) GetCustomer(ctx context.Context, account ledger.AccountID) (ledger.Customer, error) {
	return getCustomer(ctx, s.db, account)
}

func (s *Store) GetTransaction(ctx context.Context, number ledger.TransactionID) (ledger.Transaction, error) {
	return getTransaction(ctx, s.db, number)
}

func (s *Store) ListCustomers(ctx context.Context) ([]ledger.Customer, error) {
	return listCustomers(ctx, s.db)
}

func (s *Store) ListTransactions(ctx context.Context, account ledger.AccountID) ([]ledger.Transaction, error) {
	return listTransactions(ctx, s.db, account)
}

// =============================================================================
// CUSTOMER LIFECYCLE
// =============================================================================

func (s *Store) CreateCustomer(ctx context.Context, c ledger.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (account, name, balance, created_at)
		VALUES (?, ?, ?, ?)`,
		c.Account, c.Name, ledger.FormatDecimal(c.Balance),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ledger.ErrCustomerExists
		}
		return err
	}
	return nil
}

func (s *Store) DeleteCustomer(ctx context.Context, account ledger.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE account = ?`, account)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrCustomerNotFound
	}
	return nil
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetCustomer(ctx context.Context, account ledger.AccountID) (ledger.Customer, error) {
	return getCustomer(ctx, t.tx, account)
}

func (t *sqliteTx) GetTransaction(ctx context.Context, number ledger.TransactionID) (ledger.Transaction, error) {
	return getTransaction(ctx, t.tx, number)
}

func (t *sqliteTx) ListCustomers(ctx context.Context) ([]ledger.Customer, error) {
	return listCustomers(ctx, t.tx)
}

func (t *sqliteTx) ListTransactions(ctx context.Context, account ledger.AccountID) ([]ledger.Transaction, error) {
	return listTransactions(ctx, t.tx, account)
}

func (t *sqliteTx) PersistCustomer(ctx context.Context, c ledger.Customer) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE customers SET name = ?, balance = ? WHERE account = ?`,
		c.Name, ledger.FormatDecimal(c.Balance), c.Account)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrCustomerNotFound
	}
	return nil
}

func (t *sqliteTx) InsertTransaction(ctx context.Context, txn ledger.Transaction) (ledger.Transaction, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (account, date, amount, direction, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		txn.Account,
		txn.Date.UTC().Format(time.RFC3339),
		ledger.FormatDecimal(txn.Amount),
		txn.Direction.Code(),
		txn.Reference,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return ledger.Transaction{}, err
	}
	number, err := res.LastInsertId()
	if err != nil {
		return ledger.Transaction{}, err
	}
	txn.Number = ledger.TransactionID(number)
	return txn, nil
}

func (t *sqliteTx) UpdateTransaction(ctx context.Context, txn ledger.Transaction) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE transactions
		SET account = ?, date = ?, amount = ?, direction = ?, reference = ?
		WHERE number = ?`,
		txn.Account,
		txn.Date.UTC().Format(time.RFC3339),
		ledger.FormatDecimal(txn.Amount),
		txn.Direction.Code(),
		txn.Reference,
		txn.Number)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrTransactionNotFound
	}
	return nil
}

func (t *sqliteTx) DeleteTransaction(ctx context.Context, number ledger.TransactionID) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM transactions WHERE number = ?`, number)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrTransactionNotFound
	}
	return nil
}

// =============================================================================
// SHARED SCAN HELPERS
// =============================================================================

func getCustomer(ctx context.Context, q querier, account ledger.AccountID) (ledger.Customer, error) {
	row := q.QueryRowContext(ctx, `
		SELECT account, name, balance FROM customers WHERE account = ?`, account)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return ledger.Customer{}, ledger.ErrCustomerNotFound
	}
	return c, err
}

func getTransaction(ctx context.Context, q querier, number ledger.TransactionID) (ledger.Transaction, error) {
	row := q.QueryRowContext(ctx, `
		SELECT number, account, date, amount, direction, reference
		FROM transactions WHERE number = ?`, number)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return t, err
}

func listCustomers(ctx context.Context, q querier) ([]ledger.Customer, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT account, name, balance FROM customers ORDER BY account`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func listTransactions(ctx context.Context, q querier, account ledger.AccountID) ([]ledger.Transaction, error) {
	query := `
		SELECT number, account, date, amount, direction, reference
		FROM transactions`
	var args []any
	if account != "" {
		query += ` WHERE account = ?`
		args = append(args, account)
	}
	query += ` ORDER BY number`

	rows, err := q.QueryContext(ctx, query, args...)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (ledger.Customer, error) {
	var c ledger.Customer
	var balance string
	if err := row.Scan(&c.Account, &c.Name, &balance); err != nil {
		return ledger.Customer{}, err
	}
	d, err := decimal.NewFromString(balance)
	if err != nil {
		return ledger.Customer{}, fmt.Errorf("corrupt balance for %s: %w", c.Account, err)
	}
	c.Balance = d
	return c, nil
}

func scanTransaction(row rowScanner) (ledger.Transaction, error) {
	var t ledger.Transaction
	var date, amount, direction string
	if err := row.Scan(&t.Number, &t.Account, &date, &amount, &direction, &t.Reference); err != nil {
		return ledger.Transaction{}, err
	}
	at, err := time.Parse(time.RFC3339, date)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("corrupt date for transaction %d: %w", t.Number, err)
	}
	t.Date = at
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
