package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/nebulatrade/tradesim/internal/entity"
)

// Holdings is the PostgreSQL HoldingsLedger.
type Holdings struct {
	pool *pgxpool.Pool
}

// Increase upserts the position. In the conflict branch both expressions see
// the old row, so the weighted average and the new quantity are computed from
// a consistent snapshot under the row lock.
func (s *Holdings) Increase(ctx context.Context, accountID, symbol string, quantity int64, price decimal.Decimal) (entity.Holding, error) {
	if quantity <= 0 {
		return entity.Holding{}, pkgerrors.Errorf("increase quantity must be positive, got %d", quantity)
	}

	var h entity.Holding
	err := s.pool.QueryRow(ctx,
		`INSERT INTO holdings (account_id, symbol, quantity, avg_buy_price)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account_id, symbol) DO UPDATE SET
		   avg_buy_price = (holdings.avg_buy_price * holdings.quantity
		                    + EXCLUDED.avg_buy_price * EXCLUDED.quantity)
		                   / (holdings.quantity + EXCLUDED.quantity),
		   quantity = holdings.quantity + EXCLUDED.quantity
		 RETURNING account_id, symbol, quantity, avg_buy_price`,
		accountID, symbol, quantity, price).
		Scan(&h.AccountID, &h.Symbol, &h.Quantity, &h.AvgBuyPrice)
	if err != nil {
		return entity.Holding{}, translate(err)
	}
	return h, nil
}

// Decrease locks the row, checks inventory, then updates or deletes. The row
// lock is the per-key serialization point.
func (s *Holdings) Decrease(ctx context.Context, accountID, symbol string, quantity int64) (decimal.Decimal, int64, error) {
	if quantity <= 0 {
		return decimal.Decimal{}, 0, pkgerrors.Errorf("decrease quantity must be positive, got %d", quantity)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return decimal.Decimal{}, 0, translate(err)
	}
	defer tx.Rollback(ctx)

	var held int64
	var avg decimal.Decimal
	err = tx.QueryRow(ctx,
		`SELECT quantity, avg_buy_price FROM holdings
		 WHERE account_id = $1 AND symbol = $2
		 FOR UPDATE`,
		accountID, symbol).Scan(&held, &avg)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Decimal{}, 0, pkgerrors.Wrapf(entity.ErrHoldingNotFound, "%s %s", accountID, symbol)
	}
	if err != nil {
		return decimal.Decimal{}, 0, translate(err)
	}

	if quantity > held {
		return decimal.Decimal{}, 0, pkgerrors.Wrapf(entity.ErrInsufficientHoldings,
			"have %d need %d", held, quantity)
	}

	if quantity == held {
		_, err = tx.Exec(ctx,
			`DELETE FROM holdings WHERE account_id = $1 AND symbol = $2`,
			accountID, symbol)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE holdings SET quantity = quantity - $3
			 WHERE account_id = $1 AND symbol = $2`,
			accountID, symbol, quantity)
	}
	if err != nil {
		return decimal.Decimal{}, 0, translate(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Decimal{}, 0, translate(err)
	}
	return avg, held - quantity, nil
}

func (s *Holdings) ListFor(ctx context.Context, accountID string) ([]entity.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account_id, symbol, quantity, avg_buy_price
		 FROM holdings WHERE account_id = $1`,
		accountID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []entity.Holding
	for rows.Next() {
		var h entity.Holding
		if err := rows.Scan(&h.AccountID, &h.Symbol, &h.Quantity, &h.AvgBuyPrice); err != nil {
			return nil, translate(err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
