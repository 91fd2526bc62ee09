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

// Accounts is the PostgreSQL AccountStore.
type Accounts struct {
	pool *pgxpool.Pool
}

func (s *Accounts) Create(ctx context.Context, accountID, name string, balance decimal.Decimal) (entity.Account, error) {
	if balance.IsNegative() {
		return entity.Account{}, pkgerrors.Errorf("starting balance must not be negative, got %s", balance)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, name, balance) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		accountID, name, balance)
	if err != nil {
		return entity.Account{}, translate(err)
	}
	if tag.RowsAffected() == 0 {
		return entity.Account{}, pkgerrors.Wrap(entity.ErrAccountExists, accountID)
	}
	return entity.Account{ID: accountID, Name: name, Balance: balance}, nil
}

func (s *Accounts) Get(ctx context.Context, accountID string) (entity.Account, error) {
	var acct entity.Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, balance FROM accounts WHERE id = $1`,
		accountID).Scan(&acct.ID, &acct.Name, &acct.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.Account{}, pkgerrors.Wrap(entity.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return entity.Account{}, translate(err)
	}
	return acct, nil
}

// Debit is a single conditional UPDATE: the balance check and the subtraction
// happen in one statement, so concurrent debits serialize on the row.
func (s *Accounts) Debit(ctx context.Context, accountID string, amount decimal.Decimal) (entity.Account, error) {
	if !amount.IsPositive() {
		return entity.Account{}, pkgerrors.Errorf("debit amount must be positive, got %s", amount)
	}

	var acct entity.Account
	err := s.pool.QueryRow(ctx,
		`UPDATE accounts SET balance = balance - $2
		 WHERE id = $1 AND balance >= $2
		 RETURNING id, name, balance`,
		accountID, amount).Scan(&acct.ID, &acct.Name, &acct.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		// No row matched: either the account is missing or the balance is
		// short. Disambiguate with a plain read.
		if _, getErr := s.Get(ctx, accountID); getErr != nil {
			return entity.Account{}, getErr
		}
		return entity.Account{}, pkgerrors.Wrapf(entity.ErrInsufficientBalance, "debit %s", amount)
	}
	if err != nil {
		return entity.Account{}, translate(err)
	}
	return acct, nil
}

func (s *Accounts) Credit(ctx context.Context, accountID string, amount decimal.Decimal) (entity.Account, error) {
	if !amount.IsPositive() {
		return entity.Account{}, pkgerrors.Errorf("credit amount must be positive, got %s", amount)
	}

	var acct entity.Account
	err := s.pool.QueryRow(ctx,
		`UPDATE accounts SET balance = balance + $2
		 WHERE id = $1
		 RETURNING id, name, balance`,
		accountID, amount).Scan(&acct.ID, &acct.Name, &acct.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.Account{}, pkgerrors.Wrap(entity.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return entity.Account{}, translate(err)
	}
	return acct, nil
}
