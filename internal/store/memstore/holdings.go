package memstore

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/nebulatrade/tradesim/internal/entity"
)

type holdingKey struct {
	account string
	symbol  string
}

// entries are never removed from the map so a goroutine holding one keeps a
// valid per-key mutex; a closed position is marked by a nil holding instead.
type holdingEntry struct {
	mu sync.Mutex
	h  *entity.Holding
}

// Holdings is an in-memory HoldingsLedger.
type Holdings struct {
	mu        sync.RWMutex
	positions map[holdingKey]*holdingEntry
}

// NewHoldings creates an empty in-memory holdings ledger.
func NewHoldings() *Holdings {
	return &Holdings{positions: make(map[holdingKey]*holdingEntry)}
}

func (s *Holdings) Increase(ctx context.Context, accountID, symbol string, quantity int64, price decimal.Decimal) (entity.Holding, error) {
	if quantity <= 0 {
		return entity.Holding{}, errors.Errorf("increase quantity must be positive, got %d", quantity)
	}

	e := s.entry(holdingKey{account: accountID, symbol: symbol})

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.h == nil {
		h := entity.Holding{AccountID: accountID, Symbol: symbol, Quantity: quantity, AvgBuyPrice: price}
		e.h = &h
		return h, nil
	}

	merged := e.h.Merged(quantity, price)
	e.h = &merged
	return merged, nil
}

func (s *Holdings) Decrease(ctx context.Context, accountID, symbol string, quantity int64) (decimal.Decimal, int64, error) {
	if quantity <= 0 {
		return decimal.Decimal{}, 0, errors.Errorf("decrease quantity must be positive, got %d", quantity)
	}

	e := s.entry(holdingKey{account: accountID, symbol: symbol})

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.h == nil {
		return decimal.Decimal{}, 0, errors.Wrapf(entity.ErrHoldingNotFound, "%s %s", accountID, symbol)
	}
	if quantity > e.h.Quantity {
		return decimal.Decimal{}, 0, errors.Wrapf(entity.ErrInsufficientHoldings,
			"have %d need %d", e.h.Quantity, quantity)
	}

	avg := e.h.AvgBuyPrice
	e.h.Quantity -= quantity
	remaining := e.h.Quantity
	if remaining == 0 {
		e.h = nil
	}
	return avg, remaining, nil
}

func (s *Holdings) ListFor(ctx context.Context, accountID string) ([]entity.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entity.Holding
	for key, e := range s.positions {
		if key.account != accountID {
			continue
		}
		e.mu.Lock()
		if e.h != nil {
			out = append(out, *e.h)
		}
		e.mu.Unlock()
	}
	return out, nil
}

func (s *Holdings) entry(key holdingKey) *holdingEntry {
	s.mu.RLock()
	e, ok := s.positions[key]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.positions[key]; ok {
		return e
	}
	e = &holdingEntry{}
	s.positions[key] = e
	return e
}
