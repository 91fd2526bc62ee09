package engine

import (
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
)

// Fluctuation simulates intraday movement for the portfolio view by scaling
// a quoted price with a bounded random factor. It is display-only: buys and
// sells always settle at the unfluctuated quote.
//
// The random source is injected so valuation is deterministic under test.
type Fluctuation struct {
	mu   sync.Mutex
	rng  *rand.Rand
	span float64
}

// NewFluctuation creates a source with the given half-range, e.g. 0.03 for
// a ±3% swing. A nil rng disables fluctuation entirely.
func NewFluctuation(span float64, rng *rand.Rand) *Fluctuation {
	return &Fluctuation{rng: rng, span: span}
}

// Apply returns the price scaled by a random factor in [1-span, 1+span],
// rounded to cents.
func (f *Fluctuation) Apply(price decimal.Decimal) decimal.Decimal {
	if f == nil || f.rng == nil || f.span <= 0 {
		return price
	}

	f.mu.Lock()
	factor := 1 + (f.rng.Float64()*2-1)*f.span
	f.mu.Unlock()

	return price.Mul(decimal.NewFromFloat(factor)).Round(2)
}
