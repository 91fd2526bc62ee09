// Package store defines the persistence contracts of the trading ledger.
//
// Every mutation is atomic per key: per account for the account store, per
// (account, symbol) for the holdings ledger. Implementations may use a
// per-key lock (memstore) or a conditional update (pgstore); either way a
// read-check-write is one indivisible step and two racing debits can never
// both observe the old balance. An implementation that loses a conditional
// update race returns entity.ErrConflict instead of retrying silently — the
// engine owns the retry policy.
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/nebulatrade/tradesim/internal/entity"
)

// AccountStore owns per-user cash balances.
type AccountStore interface {
	// Get returns the account or entity.ErrAccountNotFound.
	Get(ctx context.Context, accountID string) (entity.Account, error)

	// Create registers an account with the given starting balance.
	// Returns entity.ErrAccountExists if the id is taken.
	Create(ctx context.Context, accountID, name string, balance decimal.Decimal) (entity.Account, error)

	// Debit atomically subtracts amount (must be positive) from the balance.
	// Returns entity.ErrInsufficientBalance and leaves the balance unchanged
	// when it would go negative.
	Debit(ctx context.Context, accountID string, amount decimal.Decimal) (entity.Account, error)

	// Credit atomically adds amount (must be positive) to the balance.
	// Cash received from a sale is always accepted.
	Credit(ctx context.Context, accountID string, amount decimal.Decimal) (entity.Account, error)
}

// HoldingsLedger owns per-(account, symbol) positions.
type HoldingsLedger interface {
	// Increase opens a position at price, or merges into an existing one with
	// a volume-weighted average buy price. Quantity must be positive.
	Increase(ctx context.Context, accountID, symbol string, quantity int64, price decimal.Decimal) (entity.Holding, error)

	// Decrease removes quantity shares and returns the pre-decrease average
	// buy price (the caller needs it for realized PnL) along with the
	// remaining quantity. A position reduced to zero is deleted. Returns
	// entity.ErrHoldingNotFound or entity.ErrInsufficientHoldings without
	// mutating state.
	Decrease(ctx context.Context, accountID, symbol string, quantity int64) (avgBuyPrice decimal.Decimal, remaining int64, err error)

	// ListFor returns a snapshot of the account's open positions, no
	// ordering guarantee.
	ListFor(ctx context.Context, accountID string) ([]entity.Holding, error)
}

// WatchlistStore owns per-user watched symbol sets.
type WatchlistStore interface {
	// Add is idempotent: adding a watched symbol again is a no-op.
	Add(ctx context.Context, accountID, symbol string) error

	// ListFor returns the watched symbols for the account.
	ListFor(ctx context.Context, accountID string) ([]string, error)
}
