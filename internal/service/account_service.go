package service

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

const initialDepositDescription = "Initial deposit"

type AccountService struct {
	*engine
}

type CreateAccountRequest struct {
	CustomerID     string
	Type           domain.AccountType
	Currency       domain.Currency
	OverdraftLimit decimal.Decimal
	InitialBalance decimal.Decimal
}

func (r *CreateAccountRequest) validate() error {
	switch {
	case strings.TrimSpace(r.CustomerID) == "":
		return errors.NewAppError(errors.InvalidInput, "customer id is required")
	case !r.Type.Valid():
		return errors.NewAppErrorf(errors.InvalidInput, "unsupported account type %q", r.Type)
	case !r.Currency.Valid():
		return errors.NewAppErrorf(errors.InvalidInput, "unsupported currency %q", r.Currency)
	case r.OverdraftLimit.IsNegative():
		return errors.NewAppError(errors.InvalidInput, "overdraft limit cannot be negative")
	case !domain.WithinRange(r.OverdraftLimit):
		return errors.NewAppErrorf(errors.InvalidInput, "overdraft limit %s exceeds the supported range", r.OverdraftLimit)
	case !r.OverdraftLimit.Truncate(r.Currency.MinorUnits()).Equal(r.OverdraftLimit):
		return errors.NewAppErrorf(errors.InvalidInput,
			"overdraft limit %s has more than %d decimal places for %s", r.OverdraftLimit, r.Currency.MinorUnits(), r.Currency)
	case r.InitialBalance.IsNegative():
		return errors.NewAppError(errors.InvalidInput, "initial balance cannot be negative")
	}
	if r.InitialBalance.IsPositive() {
		return validateAmount(r.InitialBalance, r.Currency)
	}
	return nil
}

// CreateAccount opens an ACTIVE account with a freshly generated number. A
// positive initial balance is recorded as an initial deposit in the same
// store transaction.
func (s *AccountService) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*domain.Account, error) {
	const op = "create_account"
	s.logger.Info("Creating account",
		"customer_id", req.CustomerID,
		"account_type", req.Type,
		"currency", req.Currency,
		"initial_balance", req.InitialBalance)

	if err := req.validate(); err != nil {
		return nil, s.fail(op, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now()
	for attempt := 1; attempt <= s.attempts; attempt++ {
		number, err := s.ids.NewAccountNumber(req.Type)
		if err != nil {
			return nil, s.fail(op, err)
		}

		account := &domain.Account{
			ID:             uuid.New(),
			AccountNumber:  number,
			CustomerID:     req.CustomerID,
			Type:           req.Type,
			Currency:       req.Currency,
			Balance:        req.InitialBalance,
			OverdraftLimit: req.OverdraftLimit,
			Status:         domain.AccountStatusActive,
			CreatedAt:      now,
			UpdatedAt:      now,
			LastActivityAt: now,
		}

		err = s.store.WithTransaction(ctx, func(tx domain.Store) error {
			if err := tx.Accounts().Create(ctx, account); err != nil {
				return err
			}
			if !req.InitialBalance.IsPositive() {
				return nil
			}
			deposit := s.newTransaction(now, domain.TransactionTypeDeposit, req.InitialBalance,
				req.Currency, initialDepositDescription, nil, idOf(account))
			return tx.Transactions().Create(ctx, deposit)
		})
		if err == nil {
			s.logger.Info("Account created successfully", "account_number", account.AccountNumber)
			return account, nil
		}
		if !stderrors.Is(err, errors.ErrDuplicateAccount) {
			return nil, s.fail(op, err)
		}
		s.logger.Warn("Account number collision, retrying", "account_number", number, "attempt", attempt)
	}

	return nil, s.fail(op, errors.NewAppErrorf(errors.DuplicateAccount,
		"could not allocate a unique account number after %d attempts", s.attempts))
}

func (s *AccountService) GetAccount(ctx context.Context, accountNumber string) (*domain.Account, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	account, err := s.store.Accounts().GetByNumber(ctx, accountNumber)
	if err != nil {
		if stderrors.Is(err, errors.ErrAccountNotFound) {
			err = accountNotFound(accountNumber)
		}
		return nil, s.fail("get_account", err)
	}
	return account, nil
}

// ListCustomerAccounts returns the customer's accounts, newest first. A
// customer without accounts yields an empty slice.
func (s *AccountService) ListCustomerAccounts(ctx context.Context, customerID string) ([]*domain.Account, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	accounts, err := s.store.Accounts().ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, s.fail("list_customer_accounts", err)
	}
	return accounts, nil
}

// UpdateAccountStatus moves an account to status. CLOSED is terminal and
// only reachable with a zero balance.
func (s *AccountService) UpdateAccountStatus(ctx context.Context, accountNumber string, status domain.AccountStatus) (*domain.Account, error) {
	const op = "update_account_status"
	s.logger.Info("Updating account status", "account_number", accountNumber, "status", status)

	if !status.Valid() {
		return nil, s.fail(op, errors.NewAppErrorf(errors.InvalidInput, "unsupported account status %q", status))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	release, err := s.lock(ctx, accountNumber)
	if err != nil {
		return nil, s.fail(op, err)
	}
	defer release()

	now := s.now()
	var updated *domain.Account
	err = s.store.WithTransaction(ctx, func(tx domain.Store) error {
		account, err := tx.Accounts().GetByNumberForUpdate(ctx, accountNumber)
		if err != nil {
			if stderrors.Is(err, errors.ErrAccountNotFound) {
				return accountNotFound(accountNumber)
			}
			return err
		}

		if account.Status == status {
			updated = account
			return nil
		}
		if account.Status == domain.AccountStatusClosed {
			return errors.NewAppErrorf(errors.InvalidInput, "account %s is closed", accountNumber)
		}
		if status == domain.AccountStatusClosed && !account.Balance.IsZero() {
			return errors.NewAppErrorf(errors.InvalidInput,
				"account %s must have a zero balance to be closed", accountNumber)
		}

		account.Status = status
		account.UpdatedAt = now
		if err := tx.Accounts().Save(ctx, account); err != nil {
			return err
		}
		updated = account
		return nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	s.logger.Info("Account status updated", "account_number", accountNumber, "status", updated.Status)
	return updated, nil
}
