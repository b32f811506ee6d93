package rebalance

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/rebalancer/internal/domain"
)

// WorstCaseBuyAmount returns the minimum acceptable buy quantity for selling
// sellAmount:
//
//	floor(sellAmount * sellPrice * (1e18 - slippage) / (1e18 * buyPrice))
//
// Prices are unit-of-account per whole token at 1e18 scale and slippage is a
// 1e18-scale fraction in [0, 1e18). All rounding is downward, protecting the
// seller: the floor can only understate, never overstate, what the auction
// owes.
func WorstCaseBuyAmount(sellAmount, sellPrice, buyPrice, slippage *big.Int) (*big.Int, error) {
	if sellAmount == nil || sellAmount.Sign() < 0 {
		return nil, fmt.Errorf("rebalance: negative sell amount")
	}
	if sellPrice == nil || sellPrice.Sign() <= 0 || buyPrice == nil || buyPrice.Sign() <= 0 {
		return nil, fmt.Errorf("rebalance: non-positive price")
	}
	if slippage == nil || slippage.Sign() < 0 || slippage.Cmp(domain.FixOne) >= 0 {
		return nil, fmt.Errorf("rebalance: slippage %s out of [0, 1e18)", slippage)
	}

	keep := new(big.Int).Sub(domain.FixOne, slippage)
	num := new(big.Int).Mul(sellAmount, sellPrice)
	num.Mul(num, keep)
	den := new(big.Int).Mul(domain.FixOne, buyPrice)
	return num.Div(num, den), nil
}

// QuantityForNotional returns the largest token quantity whose notional is at
// most value: floor(value * 1e18 / price). Used to cap a trade's size at the
// maximum trade volume.
func QuantityForNotional(value, price *big.Int) (*big.Int, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("rebalance: non-positive price")
	}
	q := new(big.Int).Mul(value, domain.FixOne)
	return q.Div(q, price), nil
}
