package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/alanyoungcy/rebalancer/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each asset's
// price is stored at key "price:{address}" with fields "price" (decimal
// string, 1e18 scale) and "ts" (Unix nanosecond timestamp). Prices are kept
// as decimal strings because they routinely exceed float64 precision.
type PriceCache struct {
	client *Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{client: c}
}

func priceKey(asset domain.Asset) string {
	return "price:" + asset.Hex()
}

// SetPrice stores the latest price and observation time for an asset.
func (pc *PriceCache) SetPrice(ctx context.Context, asset domain.Asset, price *big.Int, ts time.Time) error {
	fields := map[string]interface{}{
		"price": price.String(),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.client.Underlying().HSet(ctx, priceKey(asset), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", asset.Hex(), err)
	}
	return nil
}

// GetPrice retrieves the latest price and timestamp for an asset. It
// returns domain.ErrNotFound when no price has been recorded.
func (pc *PriceCache) GetPrice(ctx context.Context, asset domain.Asset) (*big.Int, time.Time, error) {
	vals, err := pc.client.Underlying().HGetAll(ctx, priceKey(asset)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get price %s: %w", asset.Hex(), err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	price, ok := new(big.Int).SetString(priceStr, 10)
	if !ok {
		return nil, time.Time{}, fmt.Errorf("redis: malformed price %q for %s", priceStr, asset.Hex())
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse ts for %s: %w", asset.Hex(), err)
	}

	return price, time.Unix(0, tsNano), nil
}
