package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger-core/internal/errors"
)

type AccountType string

const (
	AccountTypeChecking AccountType = "CHECKING"
	AccountTypeSavings  AccountType = "SAVINGS"
	AccountTypeCredit   AccountType = "CREDIT"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeChecking, AccountTypeSavings, AccountTypeCredit:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "ACTIVE"
	AccountStatusInactive AccountStatus = "INACTIVE"
	AccountStatusFrozen   AccountStatus = "FROZEN"
	AccountStatusClosed   AccountStatus = "CLOSED"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusInactive, AccountStatusFrozen, AccountStatusClosed:
		return true
	}
	return false
}

type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
)

func (c Currency) Valid() bool {
	switch c {
	case USD, EUR, GBP, JPY:
		return true
	}
	return false
}

// MaxAmount bounds every amount, limit and balance. Stored values carry at
// most 16 integer digits.
var MaxAmount = decimal.New(1, 16)

// WithinRange reports whether d can be stored as an amount or balance.
func WithinRange(d decimal.Decimal) bool {
	return d.Abs().LessThan(MaxAmount)
}

// MinorUnits is the number of decimal places an amount in c may carry.
func (c Currency) MinorUnits() int32 {
	if c == JPY {
		return 0
	}
	return 2
}

type Account struct {
	ID             uuid.UUID       `json:"id"`
	AccountNumber  string          `json:"account_number"`
	CustomerID     string          `json:"customer_id"`
	Type           AccountType     `json:"account_type"`
	Currency       Currency        `json:"currency"`
	Balance        decimal.Decimal `json:"balance"`
	OverdraftLimit decimal.Decimal `json:"overdraft_limit"`
	Status         AccountStatus   `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
}

func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// Credit adds amount to the balance. Receiving accounts have no business
// ceiling, only the storage range. The account is left untouched on error.
func (a *Account) Credit(amount decimal.Decimal, now time.Time) error {
	newBalance := a.Balance.Add(amount)
	if !WithinRange(newBalance) {
		return errors.NewAppErrorf(errors.InvalidAmount,
			"balance of account %s would exceed %s", a.AccountNumber, MaxAmount)
	}
	a.Balance = newBalance
	a.touch(now)
	return nil
}

// Debit subtracts amount from the balance, refusing to go below the
// overdraft limit. The account is left untouched on error.
func (a *Account) Debit(amount decimal.Decimal, now time.Time) error {
	newBalance := a.Balance.Sub(amount)
	if newBalance.LessThan(a.OverdraftLimit.Neg()) {
		return errors.NewAppErrorf(errors.InsufficientFunds,
			"insufficient funds in account %s", a.AccountNumber)
	}
	a.Balance = newBalance
	a.touch(now)
	return nil
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

func (a *Account) touch(now time.Time) {
	a.LastActivityAt = now
	a.UpdatedAt = now
}

type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	GetByNumber(ctx context.Context, number string) (*Account, error)
	// GetByNumberForUpdate reads the account and holds a row lock on it until
	// the surrounding store transaction ends.
	GetByNumberForUpdate(ctx context.Context, number string) (*Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*Account, error)
	Save(ctx context.Context, account *Account) error
}
