// Package idgen produces account numbers and transaction identifiers.
//
// Neither generator checks persisted state. Uniqueness is enforced by the
// stores, and callers retry or surface a conflict when a collision happens.
package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"ledger-core/internal/domain"
)

const (
	accountSuffixDigits = 7
	accountSuffixSpace  = 10_000_000
	transactionPrefix   = "TXN"
	transactionRandLen  = 8
)

type Generator struct {
	randInt func(max int64) (int64, error)
	newUUID func() uuid.UUID
}

type Option func(*Generator)

// WithRandInt replaces the source of account number suffixes.
func WithRandInt(fn func(max int64) (int64, error)) Option {
	return func(g *Generator) { g.randInt = fn }
}

// WithUUID replaces the source of the random part of transaction ids.
func WithUUID(fn func() uuid.UUID) Option {
	return func(g *Generator) { g.newUUID = fn }
}

func New(opts ...Option) *Generator {
	g := &Generator{
		randInt: cryptoRandInt,
		newUUID: uuid.New,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AccountPrefix is the leading digit that encodes an account type.
func AccountPrefix(t domain.AccountType) string {
	switch t {
	case domain.AccountTypeChecking:
		return "1"
	case domain.AccountTypeSavings:
		return "2"
	default:
		return "3"
	}
}

// NewAccountNumber returns the type prefix followed by a zero-padded random
// suffix, e.g. "10482913" for a checking account.
func (g *Generator) NewAccountNumber(t domain.AccountType) (string, error) {
	n, err := g.randInt(accountSuffixSpace)
	if err != nil {
		return "", fmt.Errorf("generate account number: %w", err)
	}
	return fmt.Sprintf("%s%0*d", AccountPrefix(t), accountSuffixDigits, n), nil
}

// NewTransactionID returns TXN-<base36 unix millis>-<8 uppercase chars>.
func (g *Generator) NewTransactionID(now time.Time) string {
	ts := strconv.FormatInt(now.UnixMilli(), 36)
	random := strings.ToUpper(g.newUUID().String()[:transactionRandLen])
	return transactionPrefix + "-" + ts + "-" + random
}

func cryptoRandInt(max int64) (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}
