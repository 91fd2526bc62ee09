// Package pgstore implements the store contracts over PostgreSQL for
// multi-process deployments. Per-key atomicity comes from conditional
// UPDATEs (debit) and row locks (decrease); a transaction that loses a
// serialization race maps to entity.ErrConflict so the engine can retry.
package pgstore

import (
	"context"
	"errors"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"

	"github.com/nebulatrade/tradesim/internal/entity"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id      text    PRIMARY KEY,
	name    text    NOT NULL,
	balance numeric NOT NULL CHECK (balance >= 0)
);

CREATE TABLE IF NOT EXISTS holdings (
	account_id    text    NOT NULL REFERENCES accounts (id),
	symbol        text    NOT NULL,
	quantity      bigint  NOT NULL CHECK (quantity > 0),
	avg_buy_price numeric NOT NULL,
	PRIMARY KEY (account_id, symbol)
);

CREATE TABLE IF NOT EXISTS watchlist (
	account_id text NOT NULL,
	symbol     text NOT NULL,
	PRIMARY KEY (account_id, symbol)
);
`

// Store holds the connection pool shared by the three store implementations.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, registers decimal codecs and bootstraps the
// schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "parse postgres config")
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, pkgerrors.Wrap(err, "ping postgres")
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, pkgerrors.Wrap(err, "bootstrap schema")
	}

	return &Store{pool: pool}, nil
}

// Accounts returns the AccountStore backed by this pool.
func (s *Store) Accounts() *Accounts { return &Accounts{pool: s.pool} }

// Holdings returns the HoldingsLedger backed by this pool.
func (s *Store) Holdings() *Holdings { return &Holdings{pool: s.pool} }

// Watchlist returns the WatchlistStore backed by this pool.
func (s *Store) Watchlist() *Watchlist { return &Watchlist{pool: s.pool} }

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// translate maps low-level postgres failures onto the domain taxonomy.
// Serialization and deadlock aborts become ErrConflict so the engine's
// bounded retry can take over.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return pkgerrors.Wrap(entity.ErrConflict, pgErr.Message)
		}
	}
	return err
}
