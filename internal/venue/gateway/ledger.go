package gateway

import (
	"context"
	"fmt"
	"math/big"
	"net/http"

	"github.com/alanyoungcy/rebalancer/internal/domain"
)

// Ledger implements domain.TokenLedger against the gateway's custody API.
// The gateway holds the actual funds; this client only books moves between
// named accounts under the same custodian.
type Ledger struct {
	c *Client
}

// NewLedger creates a Ledger over the gateway client.
func NewLedger(c *Client) *Ledger {
	return &Ledger{c: c}
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

type transferRequest struct {
	Asset  string `json:"asset"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// BalanceOf returns the account's balance of the asset at the custodian.
func (l *Ledger) BalanceOf(ctx context.Context, asset domain.Asset, account domain.Account) (*big.Int, error) {
	path := "/accounts/" + string(account) + "/balances/" + asset.Hex()
	var resp balanceResponse
	if err := l.c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("gateway: balance of %s: %w", asset.Hex(), err)
	}
	bal, ok := new(big.Int).SetString(resp.Balance, 10)
	if !ok {
		return nil, fmt.Errorf("gateway: malformed balance %q", resp.Balance)
	}
	return bal, nil
}

// Transfer moves amount of asset between custody accounts.
func (l *Ledger) Transfer(ctx context.Context, asset domain.Asset, from, to domain.Account, amount *big.Int) error {
	body := transferRequest{
		Asset:  asset.Hex(),
		From:   string(from),
		To:     string(to),
		Amount: amount.String(),
	}
	if err := l.c.do(ctx, http.MethodPost, "/transfers", body, nil); err != nil {
		return fmt.Errorf("gateway: transfer %s: %w", asset.Hex(), err)
	}
	return nil
}
