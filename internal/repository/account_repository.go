package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

const accountColumns = `id, account_number, customer_id, account_type, currency, balance,
	overdraft_limit, status, created_at, updated_at, last_activity_at`

type accountRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAccountRepository(db SQLExecutor, logger *slog.Logger) domain.AccountRepository {
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.AccountNumber,
		account.CustomerID,
		account.Type,
		account.Currency,
		account.Balance.String(),
		account.OverdraftLimit.String(),
		account.Status,
		account.CreatedAt,
		account.UpdatedAt,
		account.LastActivityAt,
	)
	if err != nil {
		err = translateError(err, "create account")
		if stderrors.Is(err, errors.ErrDuplicateAccount) {
			r.logger.Warn("Duplicate account number", "account_number", account.AccountNumber)
		} else {
			r.logger.Error("Failed to create account", "account_number", account.AccountNumber, "error", err)
		}
		return err
	}

	r.logger.Info("Account created successfully", "account_number", account.AccountNumber)
	return nil
}

func (r *accountRepository) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, number), number)
}

func (r *accountRepository) GetByNumberForUpdate(ctx context.Context, number string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1 FOR UPDATE`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, number), number)
}

func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, id), id.String())
}

func (r *accountRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts WHERE customer_id = $1
		ORDER BY created_at DESC, account_number
	`

	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		r.logger.Error("Failed to list accounts", "customer_id", customerID, "error", err)
		return nil, translateError(err, "list accounts")
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		account, err := r.scanAccount(rows, customerID)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "list accounts")
	}
	return accounts, nil
}

// Save persists the mutable fields of an existing account.
func (r *accountRepository) Save(ctx context.Context, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET balance = $1, status = $2, updated_at = $3, last_activity_at = $4
		WHERE id = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		account.Balance.String(),
		account.Status,
		account.UpdatedAt,
		account.LastActivityAt,
		account.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update account", "account_number", account.AccountNumber, "error", err)
		return translateError(err, "update account")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return translateError(err, "update account")
	}
	if rowsAffected == 0 {
		r.logger.Warn("No account found to update", "account_number", account.AccountNumber)
		return errors.ErrAccountNotFound
	}

	r.logger.Info("Account updated", "account_number", account.AccountNumber, "balance", account.Balance)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *accountRepository) scanAccount(row rowScanner, key string) (*domain.Account, error) {
	var (
		account    domain.Account
		balanceStr string
		limitStr   string
	)

	err := row.Scan(
		&account.ID,
		&account.AccountNumber,
		&account.CustomerID,
		&account.Type,
		&account.Currency,
		&balanceStr,
		&limitStr,
		&account.Status,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.LastActivityAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			r.logger.Warn("Account not found", "account", key)
			return nil, errors.ErrAccountNotFound
		}
		r.logger.Error("Failed to get account", "account", key, "error", err)
		return nil, translateError(err, "get account")
	}

	if account.Balance, err = decimal.NewFromString(balanceStr); err != nil {
		r.logger.Error("Failed to parse balance", "account", key, "balance_str", balanceStr, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to parse balance").Wrap(err)
	}
	if account.OverdraftLimit, err = decimal.NewFromString(limitStr); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to parse overdraft limit").Wrap(err)
	}

	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	account.LastActivityAt = account.LastActivityAt.UTC()
	return &account, nil
}
