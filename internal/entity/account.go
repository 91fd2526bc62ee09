package entity

import "github.com/shopspring/decimal"

// Account holds a user's cash balance. The id is the externally
// authenticated identity (an email in the original deployment); the core
// never authenticates.
//
// Invariant: Balance is never negative. Only AccountStore.Debit and
// AccountStore.Credit mutate it.
type Account struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}
