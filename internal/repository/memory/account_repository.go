package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

type accountRepository struct {
	store *Store
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	return r.store.inTx(ctx, func(s *Store) error {
		if _, err := lookupByNumber(s, account.AccountNumber); err == nil {
			return errors.ErrDuplicateAccount
		}
		if _, err := lookupByID(s, account.ID); err == nil {
			return errors.ErrDuplicateAccount
		}
		s.tx.accounts[account.ID] = cloneAccount(account)
		s.tx.created = append(s.tx.created, account.ID)
		return nil
	})
}

func (r *accountRepository) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(err)
	}
	a, err := lookupByNumber(r.store, number)
	if err != nil {
		return nil, err
	}
	return cloneAccount(a), nil
}

func (r *accountRepository) GetByNumberForUpdate(ctx context.Context, number string) (*domain.Account, error) {
	return r.GetByNumber(ctx, number)
}

func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(err)
	}
	a, err := lookupByID(r.store, id)
	if err != nil {
		return nil, err
	}
	return cloneAccount(a), nil
}

func (r *accountRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(err)
	}

	st := r.store.state
	st.mu.RLock()
	merged := make(map[uuid.UUID]*domain.Account, len(st.accounts))
	for id, a := range st.accounts {
		merged[id] = a
	}
	st.mu.RUnlock()
	if r.store.tx != nil {
		for id, a := range r.store.tx.accounts {
			merged[id] = a
		}
	}

	accounts := make([]*domain.Account, 0)
	for _, a := range merged {
		if a.CustomerID == customerID {
			accounts = append(accounts, cloneAccount(a))
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		if !accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].CreatedAt.After(accounts[j].CreatedAt)
		}
		return accounts[i].AccountNumber < accounts[j].AccountNumber
	})
	return accounts, nil
}

func (r *accountRepository) Save(ctx context.Context, account *domain.Account) error {
	return r.store.inTx(ctx, func(s *Store) error {
		if _, err := lookupByID(s, account.ID); err != nil {
			return err
		}
		s.tx.accounts[account.ID] = cloneAccount(account)
		return nil
	})
}

func lookupByNumber(s *Store, number string) (*domain.Account, error) {
	if s.tx != nil {
		for _, a := range s.tx.accounts {
			if a.AccountNumber == number {
				return a, nil
			}
		}
	}

	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	id, ok := s.state.byNumber[number]
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	return s.state.accounts[id], nil
}

func lookupByID(s *Store, id uuid.UUID) (*domain.Account, error) {
	if s.tx != nil {
		if a, ok := s.tx.accounts[id]; ok {
			return a, nil
		}
	}

	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	a, ok := s.state.accounts[id]
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	return a, nil
}
