package domain

import (
	"context"
	"math/big"
)

// TokenLedger is the token balance/transfer primitive the rebalancer moves
// escrow through. It is an external collaborator; the in-memory
// implementation in internal/ledger exists for the simulated venue and
// tests.
type TokenLedger interface {
	BalanceOf(ctx context.Context, asset Asset, account Account) (*big.Int, error)
	// Transfer moves amount of asset from one account to another. It fails
	// with ErrInsufficientFunds when the source balance is too small and
	// must not partially apply.
	Transfer(ctx context.Context, asset Asset, from, to Account, amount *big.Int) error
}
