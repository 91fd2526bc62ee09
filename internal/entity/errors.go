package entity

import "github.com/pkg/errors"

// Sentinel errors returned by stores, the price feed and the trading engine.
// Callers match them with errors.Is; wrapping layers add context with
// errors.Wrap so the sentinel stays reachable through the chain.
var (
	// ErrInvalidQuantity is returned when a trade quantity is zero or negative.
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")

	// ErrUnknownSymbol is returned when the price feed has no data for a symbol.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrAccountNotFound is returned when no account exists for the given id.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when creating an account with a taken id.
	ErrAccountExists = errors.New("account already exists")

	// ErrInsufficientBalance is returned when a debit exceeds the cash balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrHoldingNotFound is returned when selling a symbol that is not held.
	ErrHoldingNotFound = errors.New("holding not found")

	// ErrInsufficientHoldings is returned when selling more than is held.
	ErrInsufficientHoldings = errors.New("insufficient holdings")

	// ErrConflict is returned by a store when a conditional update lost a race.
	// The engine retries a bounded number of times before surfacing it.
	ErrConflict = errors.New("concurrent update conflict")
)
