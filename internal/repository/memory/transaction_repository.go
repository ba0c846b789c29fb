package memory

import (
	"context"

	"github.com/google/uuid"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

type transactionRepository struct {
	store *Store
}

func (r *transactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	return r.store.inTx(ctx, func(s *Store) error {
		if findByTransactionID(s, tx.TransactionID) != nil {
			return errors.ErrDuplicateTransaction
		}
		if tx.IdempotencyKey != nil && findByIdempotencyKey(s, *tx.IdempotencyKey) != nil {
			return errors.ErrDuplicateIdempotency
		}
		s.tx.txns = append(s.tx.txns, cloneTransaction(tx))
		return nil
	})
}

func (r *transactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(err)
	}
	t := findByTransactionID(r.store, transactionID)
	if t == nil {
		return nil, errors.ErrTransactionNotFound
	}
	return cloneTransaction(t), nil
}

func (r *transactionRepository) GetByIdempotencyKey(ctx context.Context, key uuid.UUID) (*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(err)
	}
	t := findByIdempotencyKey(r.store, key)
	if t == nil {
		return nil, nil
	}
	return cloneTransaction(t), nil
}

func (r *transactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*domain.Transaction, error) {
	return r.filter(ctx, func(t *domain.Transaction) bool { return t.Touches(accountID) })
}

func (r *transactionRepository) ListByStatus(ctx context.Context, status domain.TransactionStatus) ([]*domain.Transaction, error) {
	return r.filter(ctx, func(t *domain.Transaction) bool { return t.Status == status })
}

func (r *transactionRepository) filter(ctx context.Context, keep func(*domain.Transaction) bool) ([]*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(err)
	}

	all := r.snapshot(r.store)
	out := make([]*domain.Transaction, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if keep(all[i]) {
			out = append(out, cloneTransaction(all[i]))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// snapshot returns committed transactions followed by those staged in s, in
// insertion order.
func (r *transactionRepository) snapshot(s *Store) []*domain.Transaction {
	s.state.mu.RLock()
	all := make([]*domain.Transaction, len(s.state.transactions))
	copy(all, s.state.transactions)
	s.state.mu.RUnlock()

	if s.tx != nil {
		all = append(all, s.tx.txns...)
	}
	return all
}

// findByTransactionID looks in the records staged in s, then in the
// committed index.
func findByTransactionID(s *Store, transactionID string) *domain.Transaction {
	if s.tx != nil {
		for _, t := range s.tx.txns {
			if t.TransactionID == transactionID {
				return t
			}
		}
	}

	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	if idx, ok := s.state.byTxnID[transactionID]; ok {
		return s.state.transactions[idx]
	}
	return nil
}

func findByIdempotencyKey(s *Store, key uuid.UUID) *domain.Transaction {
	if s.tx != nil {
		for _, t := range s.tx.txns {
			if t.IdempotencyKey != nil && *t.IdempotencyKey == key {
				return t
			}
		}
	}

	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	if idx, ok := s.state.byKey[key]; ok {
		return s.state.transactions[idx]
	}
	return nil
}
