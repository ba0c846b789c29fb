package repository

import (
	"database/sql"
	"database/sql/driver"
	stderrors "errors"

	"github.com/lib/pq"

	"ledger-core/internal/errors"
)

const (
	constraintAccountPK           = "accounts_pkey"
	constraintAccountNumber       = "accounts_account_number_key"
	constraintAccountBalance      = "accounts_balance_check"
	constraintTransactionPK       = "transactions_pkey"
	constraintTransactionID       = "transactions_transaction_id_key"
	constraintTransactionAmount   = "transactions_amount_check"
	constraintTransactionAccounts = "transactions_accounts_check"
	constraintIdempotencyKey      = "idx_transactions_idempotency_key"
)

// SQLSTATE codes, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgUniqueViolation      pq.ErrorCode = "23505"
	pgCheckViolation       pq.ErrorCode = "23514"
	pgNumericOutOfRange    pq.ErrorCode = "22003"
	pgSerializationFailure pq.ErrorCode = "40001"
	pgDeadlockDetected     pq.ErrorCode = "40P01"
	pgLockNotAvailable     pq.ErrorCode = "55P03"
	pgQueryCanceled        pq.ErrorCode = "57014"
	pgTooManyConnections   pq.ErrorCode = "53300"
	pgConnectionException  pq.ErrorClass = "08"
)

// translateError maps a database error onto the ledger error taxonomy. op
// names the failed step for internal errors.
func translateError(err error, op string) error {
	if err == nil {
		return nil
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	if ctxErr := errors.FromContext(err); ctxErr != nil {
		return ctxErr
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch {
		case pqErr.Code == pgUniqueViolation:
			switch pqErr.Constraint {
			case constraintAccountNumber, constraintAccountPK:
				return errors.ErrDuplicateAccount.Wrap(err)
			case constraintTransactionID, constraintTransactionPK:
				return errors.ErrDuplicateTransaction.Wrap(err)
			case constraintIdempotencyKey:
				return errors.ErrDuplicateIdempotency.Wrap(err)
			}
		case pqErr.Code == pgCheckViolation:
			switch pqErr.Constraint {
			case constraintAccountBalance:
				return errors.ErrInsufficientFunds.Wrap(err)
			case constraintTransactionAmount:
				return errors.ErrInvalidAmount.Wrap(err)
			case constraintTransactionAccounts:
				return errors.ErrInvalidInput.Wrap(err)
			}
		case pqErr.Code == pgNumericOutOfRange:
			return errors.NewAppError(errors.InvalidAmount, "amount exceeds the supported range").Wrap(err)
		case pqErr.Code == pgSerializationFailure, pqErr.Code == pgDeadlockDetected:
			return errors.ErrConcurrentUpdate.Wrap(err)
		case pqErr.Code == pgLockNotAvailable,
			pqErr.Code == pgQueryCanceled,
			pqErr.Code == pgTooManyConnections,
			pqErr.Code.Class() == pgConnectionException:
			return errors.ErrTransient.Wrap(err)
		}
	}

	if stderrors.Is(err, driver.ErrBadConn) || stderrors.Is(err, sql.ErrConnDone) {
		return errors.ErrTransient.Wrap(err)
	}

	return errors.NewAppError(errors.InternalError, "failed to "+op).Wrap(err)
}
