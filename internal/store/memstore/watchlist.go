package memstore

import (
	"context"
	"sync"
)

// Watchlist is an in-memory WatchlistStore with plain set semantics.
type Watchlist struct {
	mu   sync.RWMutex
	sets map[string]map[string]struct{}
}

// NewWatchlist creates an empty in-memory watchlist store.
func NewWatchlist() *Watchlist {
	return &Watchlist{sets: make(map[string]map[string]struct{})}
}

func (s *Watchlist) Add(ctx context.Context, accountID, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[accountID]
	if !ok {
		set = make(map[string]struct{})
		s.sets[accountID] = set
	}
	set[symbol] = struct{}{}
	return nil
}

func (s *Watchlist) ListFor(ctx context.Context, accountID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.sets[accountID]
	out := make([]string, 0, len(set))
	for symbol := range set {
		out = append(out, symbol)
	}
	return out, nil
}
