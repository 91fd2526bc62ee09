// Package engine implements the trading ledger: buy, sell and valuation as
// single logical operations over the account store, the holdings ledger and
// the price feed.
package engine

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nebulatrade/tradesim/internal/entity"
	"github.com/nebulatrade/tradesim/internal/feed"
	"github.com/nebulatrade/tradesim/internal/store"
	"github.com/nebulatrade/tradesim/pkg/retrier"
)

// EventSink receives domain events emitted by the engine. Publishing must
// never fail the trading operation; implementations swallow their own errors.
type EventSink interface {
	Publish(ctx context.Context, e entity.TradeEvent)
}

// Engine composes the stores and the feed. Cross-store operations are not
// transactional: buy debits cash first and compensates with a credit if the
// ledger update fails afterwards (the stores are independently durable
// resources, so this saga is the consistency mechanism, not an afterthought).
type Engine struct {
	accounts store.AccountStore
	holdings store.HoldingsLedger
	feed     feed.PriceFeed
	sink     EventSink
	flux     *Fluctuation
	retrier  *retrier.Retrier
	logger   *zap.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithEventSink sets the sink for domain events.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithFluctuation sets the valuation fluctuation source.
func WithFluctuation(f *Fluctuation) Option {
	return func(e *Engine) { e.flux = f }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithConflictRetries overrides how many times a store conflict is retried
// before it surfaces to the caller.
func WithConflictRetries(n int) Option {
	return func(e *Engine) {
		e.retrier = retrier.New(
			retrier.WithMaxRetries(n),
			retrier.WithRetryIf(isConflict),
		)
	}
}

// New creates a trading engine over the given collaborators.
func New(accounts store.AccountStore, holdings store.HoldingsLedger, pricefeed feed.PriceFeed, opts ...Option) (*Engine, error) {
	if accounts == nil {
		return nil, errors.New("account store is required")
	}
	if holdings == nil {
		return nil, errors.New("holdings ledger is required")
	}
	if pricefeed == nil {
		return nil, errors.New("price feed is required")
	}

	e := &Engine{
		accounts: accounts,
		holdings: holdings,
		feed:     pricefeed,
		retrier:  retrier.New(retrier.WithRetryIf(isConflict)),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// BuyResult is the outcome of a successful buy.
type BuyResult struct {
	Holding entity.Holding  `json:"holding"`
	Balance decimal.Decimal `json:"balance"`
	Price   decimal.Decimal `json:"price"`
	Cost    decimal.Decimal `json:"cost"`
}

// SellResult is the outcome of a successful sell. RealizedPnL is computed
// against the volume-weighted average buy price and returned for display,
// never persisted.
type SellResult struct {
	Remaining   int64           `json:"remaining"`
	Balance     decimal.Decimal `json:"balance"`
	Proceeds    decimal.Decimal `json:"proceeds"`
	AvgBuyPrice decimal.Decimal `json:"avg_buy_price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// Buy purchases quantity shares of symbol at the current quote. The debit
// happens before the ledger update so an insufficient balance aborts with no
// effect; if the ledger update then fails, the debit is compensated with a
// credit of the same amount and the anomaly is logged.
func (e *Engine) Buy(ctx context.Context, accountID, symbol string, quantity int64) (BuyResult, error) {
	if quantity <= 0 {
		return BuyResult{}, errors.Wrapf(entity.ErrInvalidQuantity, "got %d", quantity)
	}

	quote, err := e.feed.Quote(ctx, symbol)
	if err != nil {
		return BuyResult{}, err
	}

	cost := quote.Price.Mul(decimal.NewFromInt(quantity))

	acct, err := retrier.DoWithData(e.retrier, ctx, func(ctx context.Context) (entity.Account, error) {
		return e.accounts.Debit(ctx, accountID, cost)
	})
	if err != nil {
		return BuyResult{}, err
	}

	holding, err := retrier.DoWithData(e.retrier, ctx, func(ctx context.Context) (entity.Holding, error) {
		return e.holdings.Increase(ctx, accountID, symbol, quantity, quote.Price)
	})
	if err != nil {
		e.compensateDebit(ctx, accountID, cost, err)
		return BuyResult{}, errors.Wrap(err, "ledger update failed, debit compensated")
	}

	e.publish(ctx, entity.TradeEvent{
		Type:      entity.EventAccountDebited,
		AccountID: accountID,
		Symbol:    symbol,
		Quantity:  quantity,
		Amount:    cost.String(),
	})
	if holding.Quantity == quantity {
		e.publish(ctx, entity.TradeEvent{
			Type:      entity.EventHoldingOpened,
			AccountID: accountID,
			Symbol:    symbol,
			Quantity:  quantity,
		})
	}

	e.logger.Info("buy executed",
		zap.String("account", accountID),
		zap.String("symbol", symbol),
		zap.Int64("quantity", quantity),
		zap.String("price", quote.Price.String()),
		zap.String("cost", cost.String()))

	return BuyResult{Holding: holding, Balance: acct.Balance, Price: quote.Price, Cost: cost}, nil
}

// Sell disposes quantity shares of symbol at the caller-supplied fill price.
// Inventory is verified (and removed) before any cash moves, symmetric with
// buy's balance-first check.
func (e *Engine) Sell(ctx context.Context, accountID, symbol string, quantity int64, sellPrice decimal.Decimal) (SellResult, error) {
	if quantity <= 0 {
		return SellResult{}, errors.Wrapf(entity.ErrInvalidQuantity, "got %d", quantity)
	}
	if !sellPrice.IsPositive() {
		return SellResult{}, errors.Errorf("sell price must be positive, got %s", sellPrice)
	}

	avg, remaining, err := decreaseWithRetry(e.retrier, ctx, e.holdings, accountID, symbol, quantity)
	if err != nil {
		return SellResult{}, err
	}

	proceeds := sellPrice.Mul(decimal.NewFromInt(quantity))

	acct, err := retrier.DoWithData(e.retrier, ctx, func(ctx context.Context) (entity.Account, error) {
		return e.accounts.Credit(ctx, accountID, proceeds)
	})
	if err != nil {
		e.compensateCredit(ctx, accountID, symbol, quantity, avg, err)
		return SellResult{}, errors.Wrap(err, "credit failed, holdings restored")
	}

	realized := sellPrice.Sub(avg).Mul(decimal.NewFromInt(quantity))

	e.publish(ctx, entity.TradeEvent{
		Type:      entity.EventAccountCredited,
		AccountID: accountID,
		Symbol:    symbol,
		Quantity:  quantity,
		Amount:    proceeds.String(),
	})
	if remaining == 0 {
		e.publish(ctx, entity.TradeEvent{
			Type:      entity.EventHoldingClosed,
			AccountID: accountID,
			Symbol:    symbol,
			Quantity:  quantity,
		})
	}

	e.logger.Info("sell executed",
		zap.String("account", accountID),
		zap.String("symbol", symbol),
		zap.Int64("quantity", quantity),
		zap.String("sell_price", sellPrice.String()),
		zap.String("realized_pnl", realized.String()))

	return SellResult{
		Remaining:   remaining,
		Balance:     acct.Balance,
		Proceeds:    proceeds,
		AvgBuyPrice: avg,
		RealizedPnL: realized,
	}, nil
}

// PositionValuation is one holding priced at the fluctuated quote.
type PositionValuation struct {
	Holding       entity.Holding  `json:"holding"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Valuation is the account's portfolio priced for display.
type Valuation struct {
	AccountID     string              `json:"account_id"`
	Balance       decimal.Decimal     `json:"balance"`
	Positions     []PositionValuation `json:"positions"`
	UnrealizedPnL decimal.Decimal     `json:"unrealized_pnl"`
}

// Valuate prices every open position at a fluctuated current quote and sums
// the unrealized PnL. Snapshot-consistent per holding, not across the whole
// portfolio; it is a display estimate, never a settlement input.
func (e *Engine) Valuate(ctx context.Context, accountID string) (Valuation, error) {
	acct, err := e.accounts.Get(ctx, accountID)
	if err != nil {
		return Valuation{}, err
	}

	holdings, err := e.holdings.ListFor(ctx, accountID)
	if err != nil {
		return Valuation{}, err
	}

	v := Valuation{
		AccountID:     accountID,
		Balance:       acct.Balance,
		Positions:     make([]PositionValuation, 0, len(holdings)),
		UnrealizedPnL: decimal.Zero,
	}

	for _, h := range holdings {
		quote, err := e.feed.Quote(ctx, h.Symbol)
		if err != nil {
			return Valuation{}, errors.Wrapf(err, "value position %s", h.Symbol)
		}

		current := e.flux.Apply(quote.Price)
		pnl := h.UnrealizedPnL(current)

		v.Positions = append(v.Positions, PositionValuation{
			Holding:       h,
			CurrentPrice:  current,
			UnrealizedPnL: pnl,
		})
		v.UnrealizedPnL = v.UnrealizedPnL.Add(pnl)
	}

	return v, nil
}

// OpenAccount registers a new account with the given starting balance and
// announces it to the sinks.
func (e *Engine) OpenAccount(ctx context.Context, accountID, name string, balance decimal.Decimal) (entity.Account, error) {
	acct, err := e.accounts.Create(ctx, accountID, name, balance)
	if err != nil {
		return entity.Account{}, err
	}

	e.publish(ctx, entity.TradeEvent{
		Type:      entity.EventAccountOpened,
		AccountID: accountID,
		Amount:    balance.String(),
	})

	return acct, nil
}

// Account returns the account's current state.
func (e *Engine) Account(ctx context.Context, accountID string) (entity.Account, error) {
	return e.accounts.Get(ctx, accountID)
}

// compensateDebit refunds a debit whose follow-up ledger update failed. The
// window between debit and increase is the one genuine partial-failure mode
// of buy; a failed compensation is logged loudly for manual reconciliation.
func (e *Engine) compensateDebit(ctx context.Context, accountID string, amount decimal.Decimal, cause error) {
	e.logger.Warn("ledger update failed after debit, issuing compensating credit",
		zap.String("account", accountID),
		zap.String("amount", amount.String()),
		zap.Error(cause))

	_, err := retrier.DoWithData(e.retrier, ctx, func(ctx context.Context) (entity.Account, error) {
		return e.accounts.Credit(ctx, accountID, amount)
	})
	if err != nil {
		e.logger.Error("compensating credit failed, account is short",
			zap.String("account", accountID),
			zap.String("amount", amount.String()),
			zap.Error(err))
	}
}

// compensateCredit restores inventory removed by a sell whose credit failed.
func (e *Engine) compensateCredit(ctx context.Context, accountID, symbol string, quantity int64, avg decimal.Decimal, cause error) {
	e.logger.Warn("credit failed after ledger decrease, restoring holdings",
		zap.String("account", accountID),
		zap.String("symbol", symbol),
		zap.Int64("quantity", quantity),
		zap.Error(cause))

	_, err := retrier.DoWithData(e.retrier, ctx, func(ctx context.Context) (entity.Holding, error) {
		return e.holdings.Increase(ctx, accountID, symbol, quantity, avg)
	})
	if err != nil {
		e.logger.Error("restoring holdings failed, inventory is short",
			zap.String("account", accountID),
			zap.String("symbol", symbol),
			zap.Int64("quantity", quantity),
			zap.Error(err))
	}
}

func (e *Engine) publish(ctx context.Context, evt entity.TradeEvent) {
	if e.sink == nil {
		return
	}
	evt.ID = uuid.NewString()
	evt.At = time.Now().UTC()
	e.sink.Publish(ctx, evt)
}

func isConflict(err error) bool {
	return stderrors.Is(err, entity.ErrConflict)
}

func decreaseWithRetry(r *retrier.Retrier, ctx context.Context, ledger store.HoldingsLedger, accountID, symbol string, quantity int64) (decimal.Decimal, int64, error) {
	type result struct {
		avg       decimal.Decimal
		remaining int64
	}
	res, err := retrier.DoWithData(r, ctx, func(ctx context.Context) (result, error) {
		avg, remaining, err := ledger.Decrease(ctx, accountID, symbol, quantity)
		return result{avg: avg, remaining: remaining}, err
	})
	return res.avg, res.remaining, err
}
