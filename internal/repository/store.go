package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"ledger-core/internal/domain"
)

// Store provides a unified interface for all repository operations with transaction support
type Store struct {
	db          DB
	executor    SQLExecutor
	inTx        bool
	lockTimeout time.Duration
	logger      *slog.Logger
}

var _ domain.Store = (*Store)(nil)

type StoreOption func(*Store)

// WithLockTimeout bounds how long a statement inside WithTransaction waits
// for a row lock before failing with a transient error.
func WithLockTimeout(d time.Duration) StoreOption {
	return func(s *Store) { s.lockTimeout = d }
}

// NewStore creates a new Store instance
func NewStore(db DB, logger *slog.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:       db,
		executor: db,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Accounts() domain.AccountRepository {
	return NewAccountRepository(s.executor, s.logger)
}

func (s *Store) Transactions() domain.TransactionRepository {
	return NewTransactionRepository(s.executor, s.logger)
}

// WithTransaction executes fn within a read committed database transaction.
// A Store already bound to a transaction runs fn in it directly.
func (s *Store) WithTransaction(ctx context.Context, fn func(domain.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		s.logger.Error("Failed to begin transaction", "error", err)
		return translateError(err, "begin transaction")
	}

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			s.rollback(tx)
			return translateError(err, "set lock timeout")
		}
	}

	txStore := &Store{
		db:          s.db,
		executor:    tx,
		inTx:        true,
		lockTimeout: s.lockTimeout,
		logger:      s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			s.rollback(tx)
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		s.rollback(tx)
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		return translateError(err, "commit transaction")
	}
	return nil
}

func (s *Store) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !stderrors.Is(err, sql.ErrTxDone) {
		s.logger.Error("Failed to roll back transaction", "error", err)
	}
}
