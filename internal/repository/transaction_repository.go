package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

const transactionColumns = `id, transaction_id, type, amount, currency, description,
	from_account_id, to_account_id, status, idempotency_key, processed_at, completed_at, created_at`

type transactionRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewTransactionRepository(db SQLExecutor, logger *slog.Logger) domain.TransactionRepository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *transactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		tx.ID,
		tx.TransactionID,
		tx.Type,
		tx.Amount.String(),
		tx.Currency,
		tx.Description,
		nullUUID(tx.FromAccountID),
		nullUUID(tx.ToAccountID),
		tx.Status,
		nullUUID(tx.IdempotencyKey),
		tx.ProcessedAt,
		nullTime(tx.CompletedAt),
		tx.CreatedAt,
	)
	if err != nil {
		err = translateError(err, "create transaction")
		switch {
		case stderrors.Is(err, errors.ErrDuplicateIdempotency):
			r.logger.Warn("Duplicate idempotency key", "idempotency_key", tx.IdempotencyKey)
		case stderrors.Is(err, errors.ErrDuplicateTransaction):
			r.logger.Warn("Duplicate transaction id", "transaction_id", tx.TransactionID)
		default:
			r.logger.Error("Failed to create transaction",
				"transaction_id", tx.TransactionID,
				"type", tx.Type,
				"amount", tx.Amount,
				"error", err)
		}
		return err
	}

	r.logger.Info("Transaction created successfully", "transaction_id", tx.TransactionID, "type", tx.Type)
	return nil
}

func (r *transactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = $1`

	tx, err := r.scanTransaction(r.db.QueryRowContext(ctx, query, transactionID))
	if stderrors.Is(err, sql.ErrNoRows) {
		r.logger.Warn("Transaction not found", "transaction_id", transactionID)
		return nil, errors.ErrTransactionNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get transaction", "transaction_id", transactionID, "error", err)
		return nil, translateError(err, "get transaction")
	}
	return tx, nil
}

func (r *transactionRepository) GetByIdempotencyKey(ctx context.Context, key uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE idempotency_key = $1`

	tx, err := r.scanTransaction(r.db.QueryRowContext(ctx, query, key))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get transaction", "idempotency_key", key, "error", err)
		return nil, translateError(err, "get transaction")
	}
	return tx, nil
}

func (r *transactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE from_account_id = $1 OR to_account_id = $1
		ORDER BY processed_at DESC, created_at DESC
	`
	return r.list(ctx, query, accountID)
}

func (r *transactionRepository) ListByStatus(ctx context.Context, status domain.TransactionStatus) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = $1
		ORDER BY processed_at DESC, created_at DESC
	`
	return r.list(ctx, query, status)
}

func (r *transactionRepository) list(ctx context.Context, query string, arg any) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		r.logger.Error("Failed to list transactions", "filter", arg, "error", err)
		return nil, translateError(err, "list transactions")
	}
	defer rows.Close()

	txs := make([]*domain.Transaction, 0)
	for rows.Next() {
		tx, err := r.scanTransaction(rows)
		if err != nil {
			return nil, translateError(err, "list transactions")
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "list transactions")
	}
	return txs, nil
}

// scanTransaction returns sql.ErrNoRows unchanged so callers can tell a miss
// from a failure.
func (r *transactionRepository) scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx             domain.Transaction
		amountStr      string
		fromAccountID  uuid.NullUUID
		toAccountID    uuid.NullUUID
		idempotencyKey uuid.NullUUID
		completedAt    sql.NullTime
	)

	if err := row.Scan(
		&tx.ID,
		&tx.TransactionID,
		&tx.Type,
		&amountStr,
		&tx.Currency,
		&tx.Description,
		&fromAccountID,
		&toAccountID,
		&tx.Status,
		&idempotencyKey,
		&tx.ProcessedAt,
		&completedAt,
		&tx.CreatedAt,
	); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to parse amount").Wrap(err)
	}
	tx.Amount = amount

	tx.FromAccountID = uuidPtr(fromAccountID)
	tx.ToAccountID = uuidPtr(toAccountID)
	tx.IdempotencyKey = uuidPtr(idempotencyKey)
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		tx.CompletedAt = &at
	}
	tx.ProcessedAt = tx.ProcessedAt.UTC()
	tx.CreatedAt = tx.CreatedAt.UTC()
	return &tx, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidPtr(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := id.UUID
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
