// Package service implements the ledger engine: account lifecycle and the
// money movements that change balances.
//
// Every mutating operation follows the same shape. The accounts it touches
// are locked in account-number order, a single timestamp is taken, and all
// reads and writes go through one store transaction, so an operation either
// commits completely or leaves no trace.
package service

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
	"ledger-core/internal/idgen"
	"ledger-core/internal/lock"
)

const (
	DefaultOperationTimeout      = 5 * time.Second
	DefaultAccountNumberAttempts = 5
)

type Option func(*engine)

// WithClock replaces time.Now as the source of operation timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *engine) { e.clock = clock }
}

// WithOperationTimeout bounds every operation, including lock waits.
func WithOperationTimeout(d time.Duration) Option {
	return func(e *engine) { e.timeout = d }
}

// WithLocker sets the account locker. Services sharing a store must share a
// locker, which New takes care of.
func WithLocker(l lock.Locker) Option {
	return func(e *engine) { e.locker = l }
}

func WithIDGenerator(g *idgen.Generator) Option {
	return func(e *engine) { e.ids = g }
}

// WithAccountNumberAttempts sets how many account numbers CreateAccount tries
// before giving up with a conflict.
func WithAccountNumberAttempts(n int) Option {
	return func(e *engine) { e.attempts = n }
}

// Ledger bundles the account and transaction services over one engine.
type Ledger struct {
	*AccountService
	*TransactionService
}

func New(store domain.Store, logger *slog.Logger, opts ...Option) *Ledger {
	e := newEngine(store, logger, opts...)
	return &Ledger{
		AccountService:     &AccountService{engine: e},
		TransactionService: &TransactionService{engine: e},
	}
}

type engine struct {
	store    domain.Store
	locker   lock.Locker
	ids      *idgen.Generator
	clock    func() time.Time
	timeout  time.Duration
	attempts int
	logger   *slog.Logger
	inflight singleflight.Group
}

func newEngine(store domain.Store, logger *slog.Logger, opts ...Option) *engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &engine{
		store:    store,
		locker:   lock.NewLocal(),
		ids:      idgen.New(),
		clock:    time.Now,
		timeout:  DefaultOperationTimeout,
		attempts: DefaultAccountNumberAttempts,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *engine) now() time.Time {
	return e.clock().UTC()
}

func (e *engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// lock acquires the account locks for keys.
func (e *engine) lock(ctx context.Context, keys ...string) (func(), error) {
	release, err := e.locker.Lock(ctx, keys...)
	if err != nil {
		if ctxErr := errors.FromContext(err); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.NewAppError(errors.TransientError, "could not lock accounts").Wrap(err)
	}
	return release, nil
}

// movement describes a requested money movement. from and to are account
// numbers, empty when the movement has no such side.
type movement struct {
	op     string
	txType domain.TransactionType
	from   string
	to     string
	amount decimal.Decimal
}

func (m movement) accounts() []string {
	accounts := make([]string, 0, 2)
	for _, number := range []string{m.from, m.to} {
		if number != "" {
			accounts = append(accounts, number)
		}
	}
	return accounts
}

// flightKey groups concurrent calls sharing an idempotency key only when
// they also request the same movement.
func (m movement) flightKey(key uuid.UUID) string {
	return key.String() + "|" + string(m.txType) + "|" + m.from + "|" + m.to + "|" + m.amount.String()
}

// posting is the outcome of a movement: its record and the state of the
// account reported back to the caller.
type posting struct {
	tx      *domain.Transaction
	account *domain.Account
}

// postFunc applies a money movement inside tx and returns the transaction
// record describing it together with the account to report. It must not
// write the record itself.
type postFunc func(ctx context.Context, tx domain.Store, now time.Time) (*domain.Transaction, *domain.Account, error)

// post runs apply under the locks for the movement's accounts and stores
// its record. With a non-nil key, a transaction already stored under that
// key is returned instead and concurrent identical calls share one
// execution.
func (e *engine) post(ctx context.Context, m movement, key *uuid.UUID, apply postFunc) (*domain.Transaction, *domain.Account, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	if key == nil {
		p, err := e.execute(ctx, m, nil, apply)
		if err != nil {
			return nil, nil, e.fail(m.op, err)
		}
		return p.tx, p.account, nil
	}

	ch := e.inflight.DoChan(m.flightKey(*key), func() (any, error) {
		// Detached from the first caller: every merged caller waits on its own ctx.
		runCtx, cancel := e.withTimeout(context.WithoutCancel(ctx))
		defer cancel()
		return e.execute(runCtx, m, key, apply)
	})

	select {
	case <-ctx.Done():
		return nil, nil, e.fail(m.op, errors.FromContext(ctx.Err()))
	case res := <-ch:
		if res.Err != nil {
			return nil, nil, e.fail(m.op, res.Err)
		}
		if res.Shared {
			e.logger.Info("Coalesced request with in-flight idempotency key", "operation", m.op, "idempotency_key", key)
		}
		p := res.Val.(*posting)
		return p.tx.Clone(), p.account.Clone(), nil
	}
}

func (e *engine) execute(ctx context.Context, m movement, key *uuid.UUID, apply postFunc) (*posting, error) {
	if key != nil {
		existing, err := e.store.Transactions().GetByIdempotencyKey(ctx, *key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			e.logger.Info("Returning existing transaction for idempotency key",
				"operation", m.op,
				"idempotency_key", key,
				"transaction_id", existing.TransactionID)
			return e.replay(ctx, m, *key, existing)
		}
	}

	release, err := e.lock(ctx, m.accounts()...)
	if err != nil {
		return nil, err
	}
	defer release()

	now := e.now()
	var result *posting
	err = e.store.WithTransaction(ctx, func(tx domain.Store) error {
		record, account, err := apply(ctx, tx, now)
		if err != nil {
			return err
		}
		record.IdempotencyKey = key
		if err := tx.Transactions().Create(ctx, record); err != nil {
			return err
		}
		result = &posting{tx: record, account: account}
		return nil
	})
	if err != nil {
		if key != nil && stderrors.Is(err, errors.ErrDuplicateIdempotency) {
			// Another instance committed the same key first.
			existing, getErr := e.store.Transactions().GetByIdempotencyKey(ctx, *key)
			if getErr == nil && existing != nil {
				return e.replay(ctx, m, *key, existing)
			}
		}
		return nil, err
	}
	return result, nil
}

// replay returns the transaction stored under key when it records the same
// movement as m. The reported account reflects its current state.
func (e *engine) replay(ctx context.Context, m movement, key uuid.UUID, existing *domain.Transaction) (*posting, error) {
	mismatch := errors.NewAppErrorf(errors.DuplicateIdempotency,
		"idempotency key %s was used for a different request", key)
	if existing.Type != m.txType || !existing.Amount.Equal(m.amount) {
		return nil, mismatch
	}

	sides := []struct {
		number string
		id     *uuid.UUID
	}{
		{m.from, existing.FromAccountID},
		{m.to, existing.ToAccountID},
	}
	var reported *domain.Account
	for _, side := range sides {
		if side.number == "" {
			continue
		}
		account, err := e.store.Accounts().GetByNumber(ctx, side.number)
		if err != nil {
			if stderrors.Is(err, errors.ErrAccountNotFound) {
				return nil, mismatch
			}
			return nil, err
		}
		if side.id == nil || *side.id != account.ID {
			return nil, mismatch
		}
		if reported == nil {
			reported = account
		}
	}
	return &posting{tx: existing, account: reported}, nil
}

// fail normalizes err to an *errors.AppError and logs it. Business rule
// rejections are expected and logged at warn level.
func (e *engine) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	appErr := errors.As(err)
	switch appErr.Code {
	case errors.InternalError:
		e.logger.Error("Operation failed", "operation", op, "error", appErr, "details", appErr.Details)
	case errors.TransientError, errors.ConcurrentUpdate:
		e.logger.Error("Operation failed, retryable", "operation", op, "error", appErr)
	default:
		e.logger.Warn("Operation rejected", "operation", op, "error", appErr)
	}
	return appErr
}

func (e *engine) newTransaction(
	now time.Time,
	txType domain.TransactionType,
	amount decimal.Decimal,
	currency domain.Currency,
	description string,
	from, to *uuid.UUID,
) *domain.Transaction {
	completedAt := now
	return &domain.Transaction{
		ID:            uuid.New(),
		TransactionID: e.ids.NewTransactionID(now),
		Type:          txType,
		Amount:        amount,
		Currency:      currency,
		Description:   description,
		FromAccountID: from,
		ToAccountID:   to,
		Status:        domain.TransactionStatusCompleted,
		ProcessedAt:   now,
		CompletedAt:   &completedAt,
		CreatedAt:     now,
	}
}

func validateAmount(amount decimal.Decimal, currency domain.Currency) error {
	if !amount.IsPositive() {
		return errors.ErrInvalidAmount
	}
	if !domain.WithinRange(amount) {
		return errors.NewAppErrorf(errors.InvalidAmount, "amount %s exceeds the supported range", amount)
	}
	if places := currency.MinorUnits(); !amount.Truncate(places).Equal(amount) {
		return errors.NewAppErrorf(errors.InvalidAmount,
			"amount %s has more than %d decimal places for %s", amount, places, currency)
	}
	return nil
}

func accountNotFound(number string) error {
	return errors.NewAppErrorf(errors.AccountNotFound, "account %s not found", number)
}

func inactiveAccount(account *domain.Account) error {
	return errors.NewAppErrorf(errors.InactiveAccount,
		"account %s is %s", account.AccountNumber, account.Status)
}

func idOf(account *domain.Account) *uuid.UUID {
	id := account.ID
	return &id
}
