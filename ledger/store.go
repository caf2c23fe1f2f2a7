/*
store.go - Persistence contracts for customers and transactions

PURPOSE:
  Defines the interface between the balance engine and the database.
  Different implementations use SQLite, PostgreSQL, or in-memory storage.

UNIT OF WORK:
  WithTx(ctx, fn) is the atomic primitive every mutation runs inside: if fn
  returns an error the unit of work is rolled back and nothing is visible;
  if it returns nil everything commits together. There is no partial commit
  and no compensating path after commit.

ISOLATION CONTRACT (hard requirement on implementations):
  Within one unit of work, reads of a customer's balance must observe a
  consistent snapshot, and concurrent units of work touching the SAME
  customer must be serialized by the store (row locking, single-writer, or
  conflict detection). The engine does no locking of its own; without this
  guarantee two concurrent creates against one customer can both read the
  pre-update balance and lose an update.

IMPLEMENTATIONS:
  - store/sqlite:       SQLite, single-writer via WAL + mutex
  - store/postgres:     PostgreSQL via pgx, SELECT ... FOR UPDATE
  - ledger/store:       in-memory, for tests/dev; can inject commit failure

SEE ALSO:
  - service.go: single-transaction mutations using WithTx
  - batch.go: batch submission using WithTx
*/
package ledger

import "context"

// =============================================================================
// READER - Shared read surface
// =============================================================================

// Reader is the read surface shared by the store and its unit of work.
// Inside a unit of work, GetCustomer must return the row as seen by that
// unit of work (including its own uncommitted writes).
type Reader interface {
	// GetCustomer loads a customer by account code.
	// Returns ErrCustomerNotFound if absent.
	GetCustomer(ctx context.Context, account AccountID) (Customer, error)

	// GetTransaction loads a transaction by number.
	// Returns ErrTransactionNotFound if absent.
	GetTransaction(ctx context.Context, number TransactionID) (Transaction, error)

	// ListCustomers returns all customers ordered by account code.
	ListCustomers(ctx context.Context) ([]Customer, error)

	// ListTransactions returns transactions ordered by number. An empty
	// account lists every transaction; otherwise only that customer's.
	ListTransactions(ctx context.Context, account AccountID) ([]Transaction, error)
}

// =============================================================================
// TX - Mutations available inside one unit of work
// =============================================================================

type Tx interface {
	Reader

	// PersistCustomer writes the customer's current name and balance.
	// Returns ErrCustomerNotFound if the row does not exist.
	PersistCustomer(ctx context.Context, c Customer) error

	// InsertTransaction persists a new transaction and returns it with its
	// assigned sequential number.
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)

	// UpdateTransaction rewrites the row identified by t.Number.
	// Returns ErrTransactionNotFound if absent.
	UpdateTransaction(ctx context.Context, t Transaction) error

	// DeleteTransaction removes the row.
	// Returns ErrTransactionNotFound if absent.
	DeleteTransaction(ctx context.Context, number TransactionID) error
}

// =============================================================================
// STORE - Top-level contract
// =============================================================================

type Store interface {
	Reader

	// CreateCustomer inserts a new customer with its explicit initial
	// balance. Returns ErrCustomerExists if the account code is taken.
	CreateCustomer(ctx context.Context, c Customer) error

	// DeleteCustomer removes a customer and cascades to its transactions.
	DeleteCustomer(ctx context.Context, account AccountID) error

	// WithTx executes fn within one atomic unit of work.
	// If fn returns an error, the unit of work is rolled back and that error
	// is returned. If the commit itself fails, the store's error is returned
	// and no writes are visible.
	WithTx(ctx context.Context, fn func(Tx) error) error
}
