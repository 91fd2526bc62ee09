// Package memstore implements the store contracts over in-process maps for
// single-process deployments. Mutations serialize per key: the map lock is
// held only for lookups, each entry carries its own mutex.
package memstore

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/nebulatrade/tradesim/internal/entity"
)

type accountEntry struct {
	mu   sync.Mutex
	acct entity.Account
}

// Accounts is an in-memory AccountStore.
type Accounts struct {
	mu       sync.RWMutex
	accounts map[string]*accountEntry
}

// NewAccounts creates an empty in-memory account store.
func NewAccounts() *Accounts {
	return &Accounts{accounts: make(map[string]*accountEntry)}
}

func (s *Accounts) Create(ctx context.Context, accountID, name string, balance decimal.Decimal) (entity.Account, error) {
	if balance.IsNegative() {
		return entity.Account{}, errors.Errorf("starting balance must not be negative, got %s", balance)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; ok {
		return entity.Account{}, errors.Wrap(entity.ErrAccountExists, accountID)
	}

	acct := entity.Account{ID: accountID, Name: name, Balance: balance}
	s.accounts[accountID] = &accountEntry{acct: acct}
	return acct, nil
}

func (s *Accounts) Get(ctx context.Context, accountID string) (entity.Account, error) {
	e, err := s.entry(accountID)
	if err != nil {
		return entity.Account{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct, nil
}

// Debit subtracts amount from the balance as one indivisible step. Two
// racing debits can never both observe the old sufficient balance.
func (s *Accounts) Debit(ctx context.Context, accountID string, amount decimal.Decimal) (entity.Account, error) {
	if !amount.IsPositive() {
		return entity.Account{}, errors.Errorf("debit amount must be positive, got %s", amount)
	}

	e, err := s.entry(accountID)
	if err != nil {
		return entity.Account{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.acct.Balance.LessThan(amount) {
		return entity.Account{}, errors.Wrapf(entity.ErrInsufficientBalance,
			"have %s need %s", e.acct.Balance, amount)
	}
	e.acct.Balance = e.acct.Balance.Sub(amount)
	return e.acct, nil
}

func (s *Accounts) Credit(ctx context.Context, accountID string, amount decimal.Decimal) (entity.Account, error) {
	if !amount.IsPositive() {
		return entity.Account{}, errors.Errorf("credit amount must be positive, got %s", amount)
	}

	e, err := s.entry(accountID)
	if err != nil {
		return entity.Account{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.acct.Balance = e.acct.Balance.Add(amount)
	return e.acct, nil
}

func (s *Accounts) entry(accountID string) (*accountEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.accounts[accountID]
	if !ok {
		return nil, errors.Wrap(entity.ErrAccountNotFound, accountID)
	}
	return e, nil
}
