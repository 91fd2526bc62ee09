// Package feed resolves company symbols to their latest quotes.
package feed

import (
	"context"

	"github.com/nebulatrade/tradesim/internal/entity"
)

// PriceFeed answers point-in-time quotes. Calls are read-only; the engine
// never caches a quote beyond the single operation that requested it.
type PriceFeed interface {
	// Quote returns the latest quote for symbol, or entity.ErrUnknownSymbol
	// when the symbol is not configured or its data source has no rows.
	Quote(ctx context.Context, symbol string) (entity.Quote, error)
}
