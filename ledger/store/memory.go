// Package store provides an in-memory ledger.Store implementation for
// tests and development.
//
// The unit of work is copy-on-write: WithTx runs fn against a clone of the
// committed state and swaps it in only if fn succeeds, so a failing
// operation observably leaves nothing behind. A single mutex is held for
// the whole unit of work, which satisfies (trivially) the per-customer
// serialization the engine requires of stores.
//
// FailCommit injects a commit-time failure: fn runs to completion, the
// error is returned and the writes are discarded, the shape of a real
// store losing the commit after validation passed.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/balance-engine/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu    sync.Mutex
	state memState

	// FailCommit, when non-nil, makes every WithTx discard its writes and
	// return this error after fn succeeds.
	FailCommit error
}

type memState struct {
	customers    map[ledger.AccountID]ledger.Customer
	transactions map[ledger.TransactionID]ledger.Transaction
	nextNumber   ledger.TransactionID
}

func NewMemory() *Memory {
	return &Memory{state: memState{
		customers:    make(map[ledger.AccountID]ledger.Customer),
		transactions: make(map[ledger.TransactionID]ledger.Transaction),
		nextNumber:   1,
	}}
}

func (s memState) clone() memState {
	next := memState{
		customers:    make(map[ledger.AccountID]ledger.Customer, len(s.customers)),
		transactions: make(map[ledger.TransactionID]ledger.Transaction, len(s.transactions)),
		nextNumber:   s.nextNumber,
	}
	for k, v := range s.customers {
		next.customers[k] = v
	}
	for k, v := range s.transactions {
		next.transactions[k] = v
	}
	return next
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

func (m *Memory) GetCustomer(_ context.Context, account ledger.AccountID) (ledger.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getCustomer(account)
}

func (m *Memory) GetTransaction(_ context.Context, number ledger.TransactionID) (ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getTransaction(number)
}

func (m *Memory) ListCustomers(_ context.Context) ([]ledger.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.listCustomers()
}

func (m *Memory) ListTransactions(_ context.Context, account ledger.AccountID) ([]ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.listTransactions(account)
}

func (m *Memory) CreateCustomer(_ context.Context, c ledger.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.customers[c.Account]; ok {
		return ledger.ErrCustomerExists
	}
	m.state.customers[c.Account] = c
	return nil
}

func (m *Memory) DeleteCustomer(_ context.Context, account ledger.AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.customers[account]; !ok {
		return ledger.ErrCustomerNotFound
	}
	delete(m.state.customers, account)
	// Cascade, matching the relational stores.
	for number, t := range m.state.transactions {
		if t.Account == account {
			delete(m.state.transactions, number)
		}
	}
	return nil
}

func (m *Memory) WithTx(_ context.Context, fn func(ledger.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := &memTx{state: m.state.clone()}
	if err := fn(work); err != nil {
		return err
	}
	if m.FailCommit != nil {
		return m.FailCommit
	}
	m.state = work.state
	return nil
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

type memTx struct {
	state memState
}

func (t *memTx) GetCustomer(_ context.Context, account ledger.AccountID) (ledger.Customer, error) {
	return t.state.getCustomer(account)
}

func (t *memTx) GetTransaction(_ context.Context, number ledger.TransactionID) (ledger.Transaction, error) {
	return t.state.getTransaction(number)
}

func (t *memTx) ListCustomers(_ context.Context) ([]ledger.Customer, error) {
	return t.state.listCustomers()
}

func (t *memTx) ListTransactions(_ context.Context, account ledger.AccountID) ([]ledger.Transaction, error) {
	return t.state.listTransactions(account)
}

func (t *memTx) PersistCustomer(_ context.Context, c ledger.Customer) error {
	if _, ok := t.state.customers[c.Account]; !ok {
		return ledger.ErrCustomerNotFound
	}
	t.state.customers[c.Account] = c
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, txn ledger.Transaction) (ledger.Transaction, error) {
	txn.Number = t.state.nextNumber
	t.state.nextNumber++
	t.state.transactions[txn.Number] = txn
	return txn, nil
}

func (t *memTx) UpdateTransaction(_ context.Context, txn ledger.Transaction) error {
	if _, ok := t.state.transactions[txn.Number]; !ok {
		return ledger.ErrTransactionNotFound
	}
	t.state.transactions[txn.Number] = txn
	return nil
}

func (t *memTx) DeleteTransaction(_ context.Context, number ledger.TransactionID) error {
	if _, ok := t.state.transactions[number]; !ok {
		return ledger.ErrTransactionNotFound
	}
	delete(t.state.transactions, number)
	return nil
}

// =============================================================================
// SHARED READS
// =============================================================================

func (s memState) getCustomer(account ledger.AccountID) (ledger.Customer, error) {
	c, ok := s.customers[account]
	if !ok {
		return ledger.Customer{}, ledger.ErrCustomerNotFound
	}
	return c, nil
}

func (s memState) getTransaction(number ledger.TransactionID) (ledger.Transaction, error) {
	t, ok := s.transactions[number]
	if !ok {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return t, nil
}

func (s memState) listCustomers() ([]ledger.Customer, error) {
	out := make([]ledger.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out, nil
}

func (s memState) listTransactions(account ledger.AccountID) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	for _, t := range s.transactions {
		if account == "" || t.Account == account {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}
