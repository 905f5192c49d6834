// Package oracle implements balance oracles that weight governance votes by
// the voter's holding of the weighting mint.
package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/polisai/hookgate/pkg/domain"
)

// TokenAccount is a balance of one mint held by one owner.
type TokenAccount struct {
	Address domain.Key `yaml:"address" json:"address"`
	Owner   domain.Key `yaml:"owner" json:"owner"`
	Mint    domain.Key `yaml:"mint" json:"mint"`
	Amount  uint64     `yaml:"amount" json:"amount"`
}

// Ledger is an in-memory table of token accounts.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[domain.Key]TokenAccount
}

var _ domain.BalanceOracle = (*Ledger)(nil)

// NewLedger creates a ledger holding accounts.
func NewLedger(accounts ...TokenAccount) *Ledger {
	l := &Ledger{accounts: make(map[domain.Key]TokenAccount, len(accounts))}
	for _, a := range accounts {
		l.accounts[a.Address] = a
	}
	return l
}

// Set inserts or replaces an account.
func (l *Ledger) Set(account TokenAccount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[account.Address] = account
}

// Replace swaps the whole account table.
func (l *Ledger) Replace(accounts []TokenAccount) {
	next := make(map[domain.Key]TokenAccount, len(accounts))
	for _, a := range accounts {
		next[a.Address] = a
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts = next
}

// Len returns the number of accounts.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.accounts)
}

// BalanceOf returns the account's amount after checking its mint and owner,
// in that order.
func (l *Ledger) BalanceOf(ctx context.Context, account, expectedOwner, expectedMint domain.Key) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.RLock()
	a, ok := l.accounts[account]
	l.mu.RUnlock()

	switch {
	case !ok:
		return 0, fmt.Errorf("%w: unknown account %s", domain.ErrInvalidTokenAccount, account)
	case a.Mint != expectedMint:
		return 0, fmt.Errorf("%w: account %s holds mint %s", domain.ErrInvalidTokenAccount, account, a.Mint)
	case a.Owner != expectedOwner:
		return 0, fmt.Errorf("%w: account %s is not owned by %s", domain.ErrInvalidTokenOwner, account, expectedOwner)
	}
	return a.Amount, nil
}
