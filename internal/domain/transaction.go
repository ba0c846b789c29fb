package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger-core/internal/errors"
)

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeTransfer   TransactionType = "TRANSFER"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusFailed:
		return true
	}
	return false
}

type Transaction struct {
	ID             uuid.UUID         `json:"id"`
	TransactionID  string            `json:"transaction_id"`
	Type           TransactionType   `json:"type"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       Currency          `json:"currency"`
	Description    string            `json:"description"`
	FromAccountID  *uuid.UUID        `json:"from_account_id,omitempty"`
	ToAccountID    *uuid.UUID        `json:"to_account_id,omitempty"`
	Status         TransactionStatus `json:"status"`
	IdempotencyKey *uuid.UUID        `json:"idempotency_key,omitempty"`
	ProcessedAt    time.Time         `json:"processed_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Touches reports whether the transaction debits or credits accountID.
func (t *Transaction) Touches(accountID uuid.UUID) bool {
	return (t.FromAccountID != nil && *t.FromAccountID == accountID) ||
		(t.ToAccountID != nil && *t.ToAccountID == accountID)
}

// Clone returns a deep copy of t.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	cp := *t
	cp.FromAccountID = cloneUUID(t.FromAccountID)
	cp.ToAccountID = cloneUUID(t.ToAccountID)
	cp.IdempotencyKey = cloneUUID(t.IdempotencyKey)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// Validate checks the shape invariants of a transaction record before it is
// stored.
func (t *Transaction) Validate() error {
	if !t.Amount.IsPositive() || !WithinRange(t.Amount) {
		return errors.ErrInvalidAmount
	}

	hasFrom, hasTo := t.FromAccountID != nil, t.ToAccountID != nil
	var ok bool
	switch t.Type {
	case TransactionTypeDeposit:
		ok = !hasFrom && hasTo
	case TransactionTypeWithdrawal:
		ok = hasFrom && !hasTo
	case TransactionTypeTransfer:
		ok = hasFrom && hasTo
	}
	if !ok {
		return errors.NewAppErrorf(errors.InvalidInput,
			"account references do not match transaction type %s", t.Type)
	}
	return nil
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *Transaction) error
	GetByTransactionID(ctx context.Context, transactionID string) (*Transaction, error)
	// GetByIdempotencyKey returns nil, nil when no transaction carries key.
	GetByIdempotencyKey(ctx context.Context, key uuid.UUID) (*Transaction, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*Transaction, error)
	ListByStatus(ctx context.Context, status TransactionStatus) ([]*Transaction, error)
}
