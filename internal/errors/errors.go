package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	InvalidInput         ErrorCode = "invalid_input"
	SameAccountTransfer  ErrorCode = "same_account_transfer"
	AccountNotFound      ErrorCode = "account_not_found"
	TransactionNotFound  ErrorCode = "transaction_not_found"
	InactiveAccount      ErrorCode = "inactive_account"
	InvalidAmount        ErrorCode = "invalid_amount"
	InsufficientFunds    ErrorCode = "insufficient_funds"
	CurrencyMismatch     ErrorCode = "currency_mismatch"
	DuplicateAccount     ErrorCode = "duplicate_account"
	DuplicateTransaction ErrorCode = "duplicate_transaction"
	DuplicateIdempotency ErrorCode = "duplicate_idempotency_key"
	ConcurrentUpdate     ErrorCode = "concurrent_update"
	TransientError       ErrorCode = "transient_error"
	InternalError        ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is an *AppError carrying the same code, so that
// errors.Is(err, ErrAccountNotFound) holds for any account_not_found error.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetails returns a copy of e carrying details. Predefined errors are
// shared, so they are never mutated in place.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// Wrap returns a copy of e that unwraps to cause and reports it as details.
func (e *AppError) Wrap(cause error) *AppError {
	cp := *e
	cp.cause = cause
	if cause != nil {
		cp.Details = cause.Error()
	}
	return &cp
}

func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case InvalidInput, SameAccountTransfer, InvalidAmount:
		return http.StatusBadRequest
	case AccountNotFound, TransactionNotFound:
		return http.StatusNotFound
	case InactiveAccount, InsufficientFunds, CurrencyMismatch:
		return http.StatusUnprocessableEntity
	case DuplicateAccount, DuplicateTransaction, DuplicateIdempotency, ConcurrentUpdate:
		return http.StatusConflict
	case TransientError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may resubmit the same request.
func (e *AppError) Retryable() bool {
	return e.Code == TransientError || e.Code == ConcurrentUpdate
}

// Predefined errors for common cases
var (
	ErrInvalidInput         = NewAppError(InvalidInput, "invalid input")
	ErrSameAccountTransfer  = NewAppError(SameAccountTransfer, "cannot transfer to the same account")
	ErrAccountNotFound      = NewAppError(AccountNotFound, "account not found")
	ErrTransactionNotFound  = NewAppError(TransactionNotFound, "transaction not found")
	ErrInactiveAccount      = NewAppError(InactiveAccount, "account is not active")
	ErrInvalidAmount        = NewAppError(InvalidAmount, "amount must be greater than zero")
	ErrInsufficientFunds    = NewAppError(InsufficientFunds, "insufficient funds")
	ErrCurrencyMismatch     = NewAppError(CurrencyMismatch, "currency mismatch between accounts")
	ErrDuplicateAccount     = NewAppError(DuplicateAccount, "account number already exists")
	ErrDuplicateTransaction = NewAppError(DuplicateTransaction, "transaction id already exists")
	ErrDuplicateIdempotency = NewAppError(DuplicateIdempotency, "idempotency key already used")
	ErrConcurrentUpdate     = NewAppError(ConcurrentUpdate, "account was modified concurrently")
	ErrTransient            = NewAppError(TransientError, "ledger store temporarily unavailable")
	ErrInternal             = NewAppError(InternalError, "an unexpected error occurred")
)

// As extracts the *AppError from err, converting anything else to an
// internal error.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	if ctxErr := FromContext(err); ctxErr != nil {
		return ctxErr
	}
	return ErrInternal.Wrap(err)
}

// FromContext maps context cancellation and deadline errors to a transient
// error. It returns nil for any other error.
func FromContext(err error) *AppError {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return NewAppError(TransientError, "operation timed out").Wrap(err)
	case stderrors.Is(err, context.Canceled):
		return NewAppError(TransientError, "operation cancelled").Wrap(err)
	default:
		return nil
	}
}
