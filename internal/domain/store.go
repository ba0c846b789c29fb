package domain

import "context"

// Store groups the repositories that share one atomicity scope.
type Store interface {
	Accounts() AccountRepository
	Transactions() TransactionRepository
	// WithTransaction runs fn against a Store bound to a single transaction.
	// Every write made through that Store commits when fn returns nil and is
	// discarded otherwise. Calling it on a Store already inside a transaction
	// joins the outer one.
	WithTransaction(ctx context.Context, fn func(Store) error) error
}
