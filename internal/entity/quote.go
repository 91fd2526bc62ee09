package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time price observation for a symbol. It is never
// persisted by the core; every engine operation fetches a fresh one.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	AsOf   time.Time       `json:"as_of"`
}

// PricePoint is one row of a symbol's price history, used by the chart view.
type PricePoint struct {
	Date  time.Time       `json:"date"`
	Close decimal.Decimal `json:"close"`
}
