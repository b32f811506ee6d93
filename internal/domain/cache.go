package domain

import (
	"context"
	"math/big"
	"time"
)

// PriceCache stores the latest oracle price per asset together with its
// observation time, so staleness can be enforced on read.
type PriceCache interface {
	SetPrice(ctx context.Context, asset Asset, price *big.Int, ts time.Time) error
	// GetPrice returns the cached price and its timestamp, or ErrNotFound
	// when no price has been recorded for the asset.
	GetPrice(ctx context.Context, asset Asset) (*big.Int, time.Time, error)
}

// RateLimiter limits requests per key within a rolling window.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted, counting it
	// against the window when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
