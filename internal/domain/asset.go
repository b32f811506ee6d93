// Package domain defines the core types and narrow interfaces of the basket
// rebalancer: assets, trades, the auction venue boundary, oracles, stores,
// and the token ledger. Concrete implementations live in sibling packages.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Asset identifies a collateral token by its contract address.
type Asset = common.Address

// Account identifies a balance holder on the token ledger, e.g. the backing
// manager, a trade escrow, or the auction venue itself.
type Account string

// FixOne is the fixed-point scale for prices and fractional quantities.
// All prices are expressed in unit-of-account per whole token at 1e18, and
// all token quantities are 18-decimal atomic units.
var FixOne = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Notional returns the unit-of-account value of qty at the given price,
// rounded down: qty * price / 1e18.
func Notional(qty, price *big.Int) *big.Int {
	v := new(big.Int).Mul(qty, price)
	return v.Div(v, FixOne)
}
