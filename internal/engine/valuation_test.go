package engine

import (
	"context"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFluctuation_Bounds(t *testing.T) {
	f := NewFluctuation(0.05, rand.New(rand.NewSource(1)))
	price := decimal.NewFromInt(100)

	lo := decimal.NewFromInt(95)
	hi := decimal.NewFromInt(105)
	for i := 0; i < 1000; i++ {
		got := f.Apply(price)
		assert.True(t, got.GreaterThanOrEqual(lo) && got.LessThanOrEqual(hi), "out of range: %s", got)
	}
}

func TestFluctuation_DeterministicWithSeed(t *testing.T) {
	a := NewFluctuation(0.03, rand.New(rand.NewSource(42)))
	b := NewFluctuation(0.03, rand.New(rand.NewSource(42)))
	price := decimal.NewFromFloat(152.30)

	for i := 0; i < 20; i++ {
		assert.True(t, a.Apply(price).Equal(b.Apply(price)))
	}
}

func TestFluctuation_NilPassesThrough(t *testing.T) {
	var f *Fluctuation
	price := decimal.NewFromInt(150)
	assert.True(t, f.Apply(price).Equal(price))
}

func TestEngine_Valuate(t *testing.T) {
	// span 0 disables the jitter so the math is exact
	eng, _, _ := newTestEngine(t, WithFluctuation(nil))
	ctx := context.Background()

	_, err := eng.Buy(ctx, "alice@example.com", "Apple", 10)
	require.NoError(t, err)
	_, err = eng.Buy(ctx, "alice@example.com", "Tesla", 5)
	require.NoError(t, err)

	// move the quotes after the buys
	eng.feed.(*fixedFeed).prices["Apple"] = decimal.NewFromInt(160) // +10 x 10 = +100
	eng.feed.(*fixedFeed).prices["Tesla"] = decimal.NewFromInt(190) // -10 x 5 = -50

	v, err := eng.Valuate(ctx, "alice@example.com")
	require.NoError(t, err)

	require.Len(t, v.Positions, 2)
	assert.True(t, v.UnrealizedPnL.Equal(decimal.NewFromInt(50)), "total pnl %s", v.UnrealizedPnL)

	for _, p := range v.Positions {
		switch p.Holding.Symbol {
		case "Apple":
			assert.True(t, p.UnrealizedPnL.Equal(decimal.NewFromInt(100)))
		case "Tesla":
			assert.True(t, p.UnrealizedPnL.Equal(decimal.NewFromInt(-50)))
		default:
			t.Fatalf("unexpected symbol %s", p.Holding.Symbol)
		}
	}
}

func TestEngine_ValuateDeterministicUnderSeededFluctuation(t *testing.T) {
	run := func(seed int64) decimal.Decimal {
		eng, _, _ := newTestEngine(t, WithFluctuation(NewFluctuation(0.03, rand.New(rand.NewSource(seed)))))
		ctx := context.Background()

		_, err := eng.Buy(ctx, "alice@example.com", "Apple", 10)
		require.NoError(t, err)

		v, err := eng.Valuate(ctx, "alice@example.com")
		require.NoError(t, err)
		return v.UnrealizedPnL
	}

	assert.True(t, run(7).Equal(run(7)))
}

func TestEngine_ValuateEmptyPortfolio(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	v, err := eng.Valuate(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, v.Positions)
	assert.True(t, v.UnrealizedPnL.IsZero())
	assert.True(t, v.Balance.Equal(decimal.NewFromInt(100000)))
}
