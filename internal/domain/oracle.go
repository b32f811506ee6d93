package domain

import (
	"context"
	"math/big"
	"time"
)

// PriceOracle reports the current unit-of-account price of an asset at 1e18
// scale. Implementations must return ErrStalePrice (possibly wrapped) when
// the underlying feed is stale or invalid; callers abort rather than trade
// on a guessed price.
type PriceOracle interface {
	Price(ctx context.Context, asset Asset) (*big.Int, error)
}

// CapitalizationView reports, per asset, the quantity held by the backing
// manager and the quantity needed to satisfy the target basket. It is an
// external collaborator; the rebalancer only reacts to what it reports.
type CapitalizationView interface {
	// Assets returns every asset that is either held or needed, in a
	// deterministic order.
	Assets(ctx context.Context) ([]Asset, error)
	Held(ctx context.Context, asset Asset) (*big.Int, error)
	Needed(ctx context.Context, asset Asset) (*big.Int, error)
	FullyCapitalized(ctx context.Context) (bool, error)
	// BasketTimestamp is the time of the last basket change, used to
	// enforce the post-change trading cooldown.
	BasketTimestamp(ctx context.Context) (time.Time, error)
}
