package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Watchlist is the PostgreSQL WatchlistStore.
type Watchlist struct {
	pool *pgxpool.Pool
}

// Add relies on ON CONFLICT DO NOTHING for idempotency.
func (s *Watchlist) Add(ctx context.Context, accountID, symbol string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO watchlist (account_id, symbol) VALUES ($1, $2)
		 ON CONFLICT (account_id, symbol) DO NOTHING`,
		accountID, symbol)
	return translate(err)
}

func (s *Watchlist) ListFor(ctx context.Context, accountID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol FROM watchlist WHERE account_id = $1`,
		accountID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, translate(err)
		}
		out = append(out, symbol)
	}
	return out, rows.Err()
}
