// Package memory is an in-process implementation of domain.Store.
//
// Writes made inside WithTransaction are staged and applied in one step on
// commit, so a failed or cancelled operation never leaves partial state. The
// store does not lock rows: GetByNumberForUpdate relies on the caller holding
// the account lock (see package lock).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

type Store struct {
	state *state
	tx    *txn
}

var _ domain.Store = (*Store)(nil)

type state struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]*domain.Account
	byNumber     map[string]uuid.UUID
	transactions []*domain.Transaction
	byTxnID      map[string]int
	byKey        map[uuid.UUID]int
}

type txn struct {
	accounts map[uuid.UUID]*domain.Account
	created  []uuid.UUID
	txns     []*domain.Transaction
}

func New() *Store {
	return &Store{
		state: &state{
			accounts: make(map[uuid.UUID]*domain.Account),
			byNumber: make(map[string]uuid.UUID),
			byTxnID:  make(map[string]int),
			byKey:    make(map[uuid.UUID]int),
		},
	}
}

func (s *Store) Accounts() domain.AccountRepository {
	return &accountRepository{store: s}
}

func (s *Store) Transactions() domain.TransactionRepository {
	return &transactionRepository{store: s}
}

func (s *Store) WithTransaction(ctx context.Context, fn func(domain.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return errors.FromContext(err)
	}

	txStore := &Store{
		state: s.state,
		tx:    &txn{accounts: make(map[uuid.UUID]*domain.Account)},
	}
	if err := fn(txStore); err != nil {
		return err
	}
	return s.state.commit(ctx, txStore.tx)
}

// inTx runs fn against the current transaction, opening a single-statement
// one when the store is not inside WithTransaction.
func (s *Store) inTx(ctx context.Context, fn func(*Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	return s.WithTransaction(ctx, func(st domain.Store) error {
		return fn(st.(*Store))
	})
}

func (st *state) commit(ctx context.Context, tx *txn) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return errors.FromContext(err)
	}

	for _, id := range tx.created {
		if _, dup := st.byNumber[tx.accounts[id].AccountNumber]; dup {
			return errors.ErrDuplicateAccount
		}
	}
	for id := range tx.accounts {
		if _, exists := st.accounts[id]; !exists && !contains(tx.created, id) {
			return errors.ErrAccountNotFound
		}
	}
	for _, t := range tx.txns {
		if _, dup := st.byTxnID[t.TransactionID]; dup {
			return errors.ErrDuplicateTransaction
		}
		if t.IdempotencyKey != nil {
			if _, dup := st.byKey[*t.IdempotencyKey]; dup {
				return errors.ErrDuplicateIdempotency
			}
		}
	}

	for id, a := range tx.accounts {
		st.accounts[id] = a
		st.byNumber[a.AccountNumber] = id
	}
	for _, t := range tx.txns {
		st.transactions = append(st.transactions, t)
		idx := len(st.transactions) - 1
		st.byTxnID[t.TransactionID] = idx
		if t.IdempotencyKey != nil {
			st.byKey[*t.IdempotencyKey] = idx
		}
	}
	return nil
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func cloneAccount(a *domain.Account) *domain.Account {
	return a.Clone()
}

func cloneTransaction(t *domain.Transaction) *domain.Transaction {
	return t.Clone()
}

// sortNewestFirst orders transactions by processing time, newest first,
// keeping the given order for equal timestamps.
func sortNewestFirst(txs []*domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].ProcessedAt.After(txs[j].ProcessedAt)
	})
}
