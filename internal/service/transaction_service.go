package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

type TransactionService struct {
	*engine
}

type DepositRequest struct {
	AccountNumber  string
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey *uuid.UUID
}

type WithdrawalRequest struct {
	AccountNumber  string
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey *uuid.UUID
}

type TransferRequest struct {
	FromAccountNumber string
	ToAccountNumber   string
	Amount            decimal.Decimal
	Description       string
	IdempotencyKey    *uuid.UUID
}

// Deposit credits the account and returns the transaction with the account
// state it produced.
func (s *TransactionService) Deposit(ctx context.Context, req *DepositRequest) (*domain.Transaction, *domain.Account, error) {
	s.logger.Info("Processing deposit",
		"account_number", req.AccountNumber,
		"amount", req.Amount,
		"idempotency_key", req.IdempotencyKey)

	m := movement{op: "deposit", txType: domain.TransactionTypeDeposit, to: req.AccountNumber, amount: req.Amount}
	tx, account, err := s.post(ctx, m, req.IdempotencyKey,
		func(ctx context.Context, store domain.Store, now time.Time) (*domain.Transaction, *domain.Account, error) {
			account, err := s.activeAccountForUpdate(ctx, store, req.AccountNumber)
			if err != nil {
				return nil, nil, err
			}
			if err := validateAmount(req.Amount, account.Currency); err != nil {
				return nil, nil, err
			}

			if err := account.Credit(req.Amount, now); err != nil {
				return nil, nil, err
			}
			if err := store.Accounts().Save(ctx, account); err != nil {
				return nil, nil, err
			}
			return s.newTransaction(now, domain.TransactionTypeDeposit, req.Amount, account.Currency,
				orDefault(req.Description, "Deposit"), nil, idOf(account)), account, nil
		})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("Deposit completed successfully", "transaction_id", tx.TransactionID)
	return tx, account, nil
}

// Withdraw debits the account and returns the transaction with the account
// state it produced.
func (s *TransactionService) Withdraw(ctx context.Context, req *WithdrawalRequest) (*domain.Transaction, *domain.Account, error) {
	s.logger.Info("Processing withdrawal",
		"account_number", req.AccountNumber,
		"amount", req.Amount,
		"idempotency_key", req.IdempotencyKey)

	m := movement{op: "withdrawal", txType: domain.TransactionTypeWithdrawal, from: req.AccountNumber, amount: req.Amount}
	tx, account, err := s.post(ctx, m, req.IdempotencyKey,
		func(ctx context.Context, store domain.Store, now time.Time) (*domain.Transaction, *domain.Account, error) {
			account, err := s.activeAccountForUpdate(ctx, store, req.AccountNumber)
			if err != nil {
				return nil, nil, err
			}
			if err := validateAmount(req.Amount, account.Currency); err != nil {
				return nil, nil, err
			}

			if err := account.Debit(req.Amount, now); err != nil {
				return nil, nil, err
			}
			if err := store.Accounts().Save(ctx, account); err != nil {
				return nil, nil, err
			}
			return s.newTransaction(now, domain.TransactionTypeWithdrawal, req.Amount, account.Currency,
				orDefault(req.Description, "Withdrawal"), idOf(account), nil), account, nil
		})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("Withdrawal completed successfully", "transaction_id", tx.TransactionID)
	return tx, account, nil
}

// Transfer moves amount between two accounts of the same currency. The
// destination is credited without any overdraft check.
func (s *TransactionService) Transfer(ctx context.Context, req *TransferRequest) (*domain.Transaction, error) {
	s.logger.Info("Processing transfer",
		"from_account_number", req.FromAccountNumber,
		"to_account_number", req.ToAccountNumber,
		"amount", req.Amount,
		"idempotency_key", req.IdempotencyKey)

	if req.FromAccountNumber == req.ToAccountNumber {
		return nil, s.fail("transfer", errors.ErrSameAccountTransfer)
	}

	m := movement{
		op:     "transfer",
		txType: domain.TransactionTypeTransfer,
		from:   req.FromAccountNumber,
		to:     req.ToAccountNumber,
		amount: req.Amount,
	}
	tx, _, err := s.post(ctx, m, req.IdempotencyKey,
		func(ctx context.Context, store domain.Store, now time.Time) (*domain.Transaction, *domain.Account, error) {
			from, to, err := s.transferAccountsForUpdate(ctx, store, req.FromAccountNumber, req.ToAccountNumber)
			if err != nil {
				return nil, nil, err
			}

			if !from.IsActive() {
				return nil, nil, inactiveAccount(from)
			}
			if !to.IsActive() {
				return nil, nil, inactiveAccount(to)
			}
			if from.Currency != to.Currency {
				return nil, nil, errors.NewAppErrorf(errors.CurrencyMismatch,
					"cannot transfer %s to %s account", from.Currency, to.Currency)
			}
			if err := validateAmount(req.Amount, from.Currency); err != nil {
				return nil, nil, err
			}

			if err := from.Debit(req.Amount, now); err != nil {
				return nil, nil, err
			}
			if err := to.Credit(req.Amount, now); err != nil {
				return nil, nil, err
			}

			for _, account := range inNumberOrder(from, to) {
				if err := store.Accounts().Save(ctx, account); err != nil {
					return nil, nil, err
				}
			}
			return s.newTransaction(now, domain.TransactionTypeTransfer, req.Amount, from.Currency,
				orDefault(req.Description, "Transfer to "+to.AccountNumber), idOf(from), idOf(to)), from, nil
		})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Transfer completed successfully", "transaction_id", tx.TransactionID)
	return tx, nil
}

func (s *TransactionService) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.store.Transactions().GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, s.fail("get_transaction", err)
	}
	return tx, nil
}

// ListAccountTransactions returns every transaction debiting or crediting
// the account, newest first.
func (s *TransactionService) ListAccountTransactions(ctx context.Context, accountNumber string) ([]*domain.Transaction, error) {
	const op = "list_account_transactions"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	account, err := s.store.Accounts().GetByNumber(ctx, accountNumber)
	if err != nil {
		if stderrors.Is(err, errors.ErrAccountNotFound) {
			err = accountNotFound(accountNumber)
		}
		return nil, s.fail(op, err)
	}

	txs, err := s.store.Transactions().ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, s.fail(op, err)
	}
	return txs, nil
}

// ListTransactionsByStatus returns an empty slice for an unknown status.
func (s *TransactionService) ListTransactionsByStatus(ctx context.Context, status domain.TransactionStatus) ([]*domain.Transaction, error) {
	if !status.Valid() {
		return []*domain.Transaction{}, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	txs, err := s.store.Transactions().ListByStatus(ctx, status)
	if err != nil {
		return nil, s.fail("list_transactions_by_status", err)
	}
	return txs, nil
}

func (s *TransactionService) activeAccountForUpdate(ctx context.Context, store domain.Store, number string) (*domain.Account, error) {
	account, err := store.Accounts().GetByNumberForUpdate(ctx, number)
	if err != nil {
		if stderrors.Is(err, errors.ErrAccountNotFound) {
			return nil, accountNotFound(number)
		}
		return nil, err
	}
	if !account.IsActive() {
		return nil, inactiveAccount(account)
	}
	return account, nil
}

// transferAccountsForUpdate reads both accounts in account-number order. A
// missing source is reported ahead of a missing destination.
func (s *TransactionService) transferAccountsForUpdate(ctx context.Context, store domain.Store, fromNumber, toNumber string) (*domain.Account, *domain.Account, error) {
	first, second := fromNumber, toNumber
	if second < first {
		first, second = second, first
	}

	found := make(map[string]*domain.Account, 2)
	for _, number := range []string{first, second} {
		account, err := store.Accounts().GetByNumberForUpdate(ctx, number)
		if err != nil && !stderrors.Is(err, errors.ErrAccountNotFound) {
			return nil, nil, err
		}
		found[number] = account
	}

	from, to := found[fromNumber], found[toNumber]
	switch {
	case from == nil:
		return nil, nil, errors.NewAppErrorf(errors.AccountNotFound, "source account %s not found", fromNumber)
	case to == nil:
		return nil, nil, errors.NewAppErrorf(errors.AccountNotFound, "destination account %s not found", toNumber)
	}
	return from, to, nil
}

func inNumberOrder(a, b *domain.Account) []*domain.Account {
	if b.AccountNumber < a.AccountNumber {
		return []*domain.Account{b, a}
	}
	return []*domain.Account{a, b}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
