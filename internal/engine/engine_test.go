package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulatrade/tradesim/internal/entity"
	"github.com/nebulatrade/tradesim/internal/store"
	"github.com/nebulatrade/tradesim/internal/store/memstore"
	"github.com/nebulatrade/tradesim/pkg/retrier"
)

// fixedFeed serves static prices for tests.
type fixedFeed struct {
	prices map[string]decimal.Decimal
}

func (f *fixedFeed) Quote(ctx context.Context, symbol string) (entity.Quote, error) {
	price, ok := f.prices[symbol]
	if !ok {
		return entity.Quote{}, entity.ErrUnknownSymbol
	}
	return entity.Quote{Symbol: symbol, Price: price, AsOf: time.Now()}, nil
}

// captureSink records published events.
type captureSink struct {
	mu     sync.Mutex
	events []entity.TradeEvent
}

func (s *captureSink) Publish(ctx context.Context, e entity.TradeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *captureSink) types() []entity.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memstore.Accounts, *memstore.Holdings) {
	t.Helper()

	accounts := memstore.NewAccounts()
	holdings := memstore.NewHoldings()
	feed := &fixedFeed{prices: map[string]decimal.Decimal{
		"Apple": decimal.NewFromInt(150),
		"Tesla": decimal.NewFromInt(200),
	}}

	eng, err := New(accounts, holdings, feed, opts...)
	require.NoError(t, err)

	_, err = accounts.Create(context.Background(), "alice@example.com", "Alice", decimal.NewFromInt(100000))
	require.NoError(t, err)

	return eng, accounts, holdings
}

func TestEngine_BuyScenario(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := eng.Buy(ctx, "alice@example.com", "Apple", 10)
	require.NoError(t, err)

	assert.True(t, res.Balance.Equal(decimal.NewFromInt(98500)), "balance %s", res.Balance)
	assert.Equal(t, int64(10), res.Holding.Quantity)
	assert.True(t, res.Holding.AvgBuyPrice.Equal(decimal.NewFromInt(150)))
	assert.True(t, res.Cost.Equal(decimal.NewFromInt(1500)))
}

func TestEngine_SellScenario(t *testing.T) {
	eng, accounts, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Buy(ctx, "alice@example.com", "Apple", 10)
	require.NoError(t, err)

	res, err := eng.Sell(ctx, "alice@example.com", "Apple", 4, decimal.NewFromInt(160))
	require.NoError(t, err)

	assert.Equal(t, int64(6), res.Remaining)
	assert.True(t, res.Balance.Equal(decimal.NewFromInt(99140)), "balance %s", res.Balance)
	assert.True(t, res.RealizedPnL.Equal(decimal.NewFromInt(40)), "pnl %s", res.RealizedPnL)
	assert.True(t, res.AvgBuyPrice.Equal(decimal.NewFromInt(150)))

	acct, err := accounts.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(99140)))
}

func TestEngine_BuyThenSellRoundTrip(t *testing.T) {
	eng, accounts, holdings := newTestEngine(t)
	ctx := context.Background()

	before, err := accounts.Get(ctx, "alice@example.com")
	require.NoError(t, err)

	_, err = eng.Buy(ctx, "alice@example.com", "Tesla", 7)
	require.NoError(t, err)

	res, err := eng.Sell(ctx, "alice@example.com", "Tesla", 7, decimal.NewFromInt(200))
	require.NoError(t, err)

	assert.Equal(t, int64(0), res.Remaining)
	assert.True(t, res.Balance.Equal(before.Balance), "want %s got %s", before.Balance, res.Balance)
	assert.True(t, res.RealizedPnL.IsZero())

	// a position reduced to zero is gone from listings
	list, err := holdings.ListFor(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEngine_BuyUnknownSymbol(t *testing.T) {
	eng, accounts, holdings := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Buy(ctx, "alice@example.com", "DOGE", 5)
	assert.ErrorIs(t, err, entity.ErrUnknownSymbol)

	acct, err := accounts.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(100000)))

	list, err := holdings.ListFor(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEngine_BuyInvalidQuantity(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	for _, qty := range []int64{0, -3} {
		_, err := eng.Buy(context.Background(), "alice@example.com", "Apple", qty)
		assert.ErrorIs(t, err, entity.ErrInvalidQuantity)
	}
}

func TestEngine_BuyInsufficientBalance(t *testing.T) {
	eng, accounts, holdings := newTestEngine(t)
	ctx := context.Background()

	// 1000 shares at 150 costs 150000 > 100000
	_, err := eng.Buy(ctx, "alice@example.com", "Apple", 1000)
	assert.ErrorIs(t, err, entity.ErrInsufficientBalance)

	acct, err := accounts.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(100000)))

	list, err := holdings.ListFor(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEngine_SellWithoutHolding(t *testing.T) {
	eng, accounts, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Sell(ctx, "alice@example.com", "Apple", 1, decimal.NewFromInt(160))
	assert.ErrorIs(t, err, entity.ErrHoldingNotFound)

	acct, err := accounts.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(100000)))
}

func TestEngine_SellMoreThanHeld(t *testing.T) {
	eng, accounts, holdings := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Buy(ctx, "alice@example.com", "Apple", 5)
	require.NoError(t, err)

	_, err = eng.Sell(ctx, "alice@example.com", "Apple", 6, decimal.NewFromInt(160))
	assert.ErrorIs(t, err, entity.ErrInsufficientHoldings)

	// neither cash nor inventory moved
	acct, err := accounts.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(99250)))

	list, err := holdings.ListFor(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(5), list[0].Quantity)
}

func TestEngine_ConcurrentBuysMerge(t *testing.T) {
	eng, _, holdings := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, qty := range []int64{10, 30} {
		wg.Add(1)
		go func(q int64) {
			defer wg.Done()
			_, err := eng.Buy(ctx, "alice@example.com", "Apple", q)
			assert.NoError(t, err)
		}(qty)
	}
	wg.Wait()

	list, err := holdings.ListFor(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(40), list[0].Quantity)
	// both buys fill at the same quote, so the weighted average is the quote
	assert.True(t, list[0].AvgBuyPrice.Equal(decimal.NewFromInt(150)))
}

func TestEngine_WeightedAverageOnRepurchase(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Buy(ctx, "alice@example.com", "Apple", 10)
	require.NoError(t, err)

	// reprice and buy again: avg should be (10*150 + 10*180) / 20 = 165
	eng.feed.(*fixedFeed).prices["Apple"] = decimal.NewFromInt(180)

	res, err := eng.Buy(ctx, "alice@example.com", "Apple", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(20), res.Holding.Quantity)
	assert.True(t, res.Holding.AvgBuyPrice.Equal(decimal.NewFromInt(165)), "avg %s", res.Holding.AvgBuyPrice)
}

func TestEngine_EmitsTradeEvents(t *testing.T) {
	sink := &captureSink{}
	eng, _, _ := newTestEngine(t, WithEventSink(sink))
	ctx := context.Background()

	_, err := eng.Buy(ctx, "alice@example.com", "Apple", 10)
	require.NoError(t, err)
	_, err = eng.Sell(ctx, "alice@example.com", "Apple", 10, decimal.NewFromInt(160))
	require.NoError(t, err)

	assert.Equal(t, []entity.EventType{
		entity.EventAccountDebited,
		entity.EventHoldingOpened,
		entity.EventAccountCredited,
		entity.EventHoldingClosed,
	}, sink.types())

	for _, e := range sink.events {
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.At.IsZero())
	}
}

// conflictAccounts wraps a real store and fails the first debits with a
// conflict to exercise the engine's bounded retry.
type conflictAccounts struct {
	store.AccountStore
	mu        sync.Mutex
	conflicts int
}

func (s *conflictAccounts) Debit(ctx context.Context, accountID string, amount decimal.Decimal) (entity.Account, error) {
	s.mu.Lock()
	remaining := s.conflicts
	if remaining > 0 {
		s.conflicts--
	}
	s.mu.Unlock()

	if remaining > 0 {
		return entity.Account{}, entity.ErrConflict
	}
	return s.AccountStore.Debit(ctx, accountID, amount)
}

func TestEngine_RetriesConflicts(t *testing.T) {
	accounts := memstore.NewAccounts()
	_, err := accounts.Create(context.Background(), "alice@example.com", "Alice", decimal.NewFromInt(100000))
	require.NoError(t, err)

	wrapped := &conflictAccounts{AccountStore: accounts, conflicts: 2}
	holdings := memstore.NewHoldings()
	feed := &fixedFeed{prices: map[string]decimal.Decimal{"Apple": decimal.NewFromInt(150)}}

	eng, err := New(wrapped, holdings, feed, WithConflictRetries(3))
	require.NoError(t, err)

	res, err := eng.Buy(context.Background(), "alice@example.com", "Apple", 1)
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(decimal.NewFromInt(99850)))
}

func TestEngine_SurfacesPersistentConflict(t *testing.T) {
	accounts := memstore.NewAccounts()
	_, err := accounts.Create(context.Background(), "alice@example.com", "Alice", decimal.NewFromInt(100000))
	require.NoError(t, err)

	wrapped := &conflictAccounts{AccountStore: accounts, conflicts: 1000}
	holdings := memstore.NewHoldings()
	feed := &fixedFeed{prices: map[string]decimal.Decimal{"Apple": decimal.NewFromInt(150)}}

	eng, err := New(wrapped, holdings, feed, WithConflictRetries(2))
	require.NoError(t, err)

	_, err = eng.Buy(context.Background(), "alice@example.com", "Apple", 1)
	assert.ErrorIs(t, err, entity.ErrConflict)
}

// failingLedger rejects every increase so the buy saga must compensate.
type failingLedger struct {
	store.HoldingsLedger
}

func (f *failingLedger) Increase(ctx context.Context, accountID, symbol string, quantity int64, price decimal.Decimal) (entity.Holding, error) {
	return entity.Holding{}, errors.New("ledger unavailable")
}

func TestEngine_CompensatesDebitWhenLedgerFails(t *testing.T) {
	accounts := memstore.NewAccounts()
	_, err := accounts.Create(context.Background(), "alice@example.com", "Alice", decimal.NewFromInt(100000))
	require.NoError(t, err)

	ledger := &failingLedger{HoldingsLedger: memstore.NewHoldings()}
	feed := &fixedFeed{prices: map[string]decimal.Decimal{"Apple": decimal.NewFromInt(150)}}

	eng, err := New(accounts, ledger, feed)
	require.NoError(t, err)

	_, err = eng.Buy(context.Background(), "alice@example.com", "Apple", 10)
	require.Error(t, err)

	// the debit was rolled back by the compensating credit
	acct, err := accounts.Get(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(100000)), "balance %s", acct.Balance)
}

func TestEngine_OpenAccountDuplicate(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.OpenAccount(context.Background(), "alice@example.com", "Alice", decimal.NewFromInt(100000))
	assert.ErrorIs(t, err, entity.ErrAccountExists)
}

// retrierNeverSleeps guards against accidentally configuring long backoff in
// the engine default: three conflict retries must finish fast.
func TestEngine_DefaultRetrierIsBounded(t *testing.T) {
	r := retrier.New(retrier.WithRetryIf(func(err error) bool { return errors.Is(err, entity.ErrConflict) }))

	start := time.Now()
	attempts := 0
	_ = r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return entity.ErrConflict
	})
	assert.Equal(t, 4, attempts) // 1 initial + 3 retries
	assert.Less(t, time.Since(start), 2*time.Second)
}
