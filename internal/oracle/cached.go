package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/alanyoungcy/rebalancer/internal/domain"
)

// Cached reads prices from a price cache (typically Redis, written by an
// external feed) and enforces a maximum age. Anything older than MaxAge, or
// missing entirely, reports ErrStalePrice so callers abort rather than
// trade on it.
type Cached struct {
	cache  domain.PriceCache
	maxAge time.Duration
	now    func() time.Time
}

// NewCached creates a Cached oracle over the given cache.
func NewCached(cache domain.PriceCache, maxAge time.Duration, now func() time.Time) *Cached {
	return &Cached{cache: cache, maxAge: maxAge, now: now}
}

// Price returns the cached price if it is fresh enough.
func (c *Cached) Price(ctx context.Context, asset domain.Asset) (*big.Int, error) {
	price, ts, err := c.cache.GetPrice(ctx, asset)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("oracle: no cached price for %s: %w", asset.Hex(), domain.ErrStalePrice)
		}
		return nil, fmt.Errorf("oracle: read cached price for %s: %w", asset.Hex(), err)
	}
	if c.now().Sub(ts) > c.maxAge {
		return nil, fmt.Errorf("oracle: price for %s from %s: %w", asset.Hex(), ts.Format(time.RFC3339), domain.ErrStalePrice)
	}
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("oracle: non-positive price for %s: %w", asset.Hex(), domain.ErrStalePrice)
	}
	return price, nil
}
