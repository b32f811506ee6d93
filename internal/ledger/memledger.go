// Package ledger provides an in-memory implementation of the token ledger.
// It backs the simulated auction venue and the test suite; production
// deployments supply their own ledger behind the same interface.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/alanyoungcy/rebalancer/internal/domain"
)

// MemLedger is a thread-safe in-memory token ledger.
type MemLedger struct {
	mu       sync.Mutex
	balances map[domain.Asset]map[domain.Account]*big.Int
}

// NewMemLedger creates an empty ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{
		balances: make(map[domain.Asset]map[domain.Account]*big.Int),
	}
}

// Mint credits amount of asset to the given account out of thin air.
func (l *MemLedger) Mint(asset domain.Asset, account domain.Account, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(asset, account, amount)
}

// Burn debits amount of asset from the given account. It panics on
// insufficient balance; it exists for test fixtures only.
func (l *MemLedger) Burn(asset domain.Asset, account domain.Account, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balance(asset, account)
	if bal.Cmp(amount) < 0 {
		panic(fmt.Sprintf("ledger: burn %s from %s exceeds balance %s", amount, account, bal))
	}
	bal.Sub(bal, amount)
}

// BalanceOf returns a copy of the account's balance for the asset.
func (l *MemLedger) BalanceOf(ctx context.Context, asset domain.Asset, account domain.Account) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(asset, account)), nil
}

// Transfer moves amount from one account to another atomically.
func (l *MemLedger) Transfer(ctx context.Context, asset domain.Asset, from, to domain.Account, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("ledger: negative transfer amount %s", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balance(asset, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: transfer %s of %s from %s (balance %s): %w",
			amount, asset.Hex(), from, bal, domain.ErrInsufficientFunds)
	}
	bal.Sub(bal, amount)
	l.credit(asset, to, amount)
	return nil
}

// balance returns the mutable balance entry, creating it at zero if absent.
// Callers must hold l.mu.
func (l *MemLedger) balance(asset domain.Asset, account domain.Account) *big.Int {
	accounts, ok := l.balances[asset]
	if !ok {
		accounts = make(map[domain.Account]*big.Int)
		l.balances[asset] = accounts
	}
	bal, ok := accounts[account]
	if !ok {
		bal = new(big.Int)
		accounts[account] = bal
	}
	return bal
}

func (l *MemLedger) credit(asset domain.Asset, account domain.Account, amount *big.Int) {
	bal := l.balance(asset, account)
	bal.Add(bal, amount)
}
