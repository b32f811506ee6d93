// Package oracle provides price-oracle implementations: a settable static
// oracle for the sim mode and tests, and a cache-backed oracle that
// enforces a staleness window over feed-written prices.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/alanyoungcy/rebalancer/internal/domain"
)

// Static is an in-memory oracle with settable prices. Assets without a
// price, or explicitly marked stale, report ErrStalePrice.
type Static struct {
	mu     sync.Mutex
	prices map[domain.Asset]*big.Int
	stale  map[domain.Asset]bool
}

// NewStatic creates an empty Static oracle.
func NewStatic() *Static {
	return &Static{
		prices: make(map[domain.Asset]*big.Int),
		stale:  make(map[domain.Asset]bool),
	}
}

// SetPrice sets the asset's price (1e18 unit-of-account per whole token)
// and clears any stale mark.
func (s *Static) SetPrice(asset domain.Asset, price *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[asset] = new(big.Int).Set(price)
	delete(s.stale, asset)
}

// MarkStale makes subsequent Price calls for the asset fail.
func (s *Static) MarkStale(asset domain.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale[asset] = true
}

// Price returns the configured price or ErrStalePrice.
func (s *Static) Price(ctx context.Context, asset domain.Asset) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale[asset] {
		return nil, fmt.Errorf("oracle: %s: %w", asset.Hex(), domain.ErrStalePrice)
	}
	p, ok := s.prices[asset]
	if !ok {
		return nil, fmt.Errorf("oracle: no price for %s: %w", asset.Hex(), domain.ErrStalePrice)
	}
	return new(big.Int).Set(p), nil
}
