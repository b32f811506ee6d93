// Package basket provides a ledger-backed capitalization view: held
// quantities come straight from the backing manager's ledger account, and
// needed quantities from an externally supplied target basket. The target
// definition itself is out of scope; this view only reports against
// whatever target it is given.
package basket

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/alanyoungcy/rebalancer/internal/domain"
)

// View implements domain.CapitalizationView over a token ledger account.
type View struct {
	mu        sync.Mutex
	needed    map[domain.Asset]*big.Int
	order     []domain.Asset
	changedAt time.Time

	ledger  domain.TokenLedger
	account domain.Account
	now     func() time.Time
}

// NewView creates a View reporting on the given ledger account with an
// empty target basket.
func NewView(l domain.TokenLedger, account domain.Account, now func() time.Time) *View {
	return &View{
		needed:  make(map[domain.Asset]*big.Int),
		ledger:  l,
		account: account,
		now:     now,
	}
}

// SetTarget replaces the target basket and stamps the basket-change time,
// which starts the post-change trading cooldown. Assets keep the order they
// are given in.
func (v *View) SetTarget(assets []domain.Asset, needed []*big.Int) error {
	if len(assets) != len(needed) {
		return fmt.Errorf("basket: %d assets but %d quantities", len(assets), len(needed))
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	v.needed = make(map[domain.Asset]*big.Int, len(assets))
	v.order = make([]domain.Asset, 0, len(assets))
	for i, a := range assets {
		if _, dup := v.needed[a]; dup {
			return fmt.Errorf("basket: duplicate asset %s", a.Hex())
		}
		v.needed[a] = new(big.Int).Set(needed[i])
		v.order = append(v.order, a)
	}
	v.changedAt = v.now()
	return nil
}

// Assets returns the target basket's constituents in their configured order.
func (v *View) Assets(ctx context.Context) ([]domain.Asset, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.Asset, len(v.order))
	copy(out, v.order)
	return out, nil
}

// Held returns the manager account's ledger balance for the asset.
func (v *View) Held(ctx context.Context, asset domain.Asset) (*big.Int, error) {
	return v.ledger.BalanceOf(ctx, asset, v.account)
}

// Needed returns the target quantity for the asset; zero when the asset is
// not a basket constituent.
func (v *View) Needed(ctx context.Context, asset domain.Asset) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if n, ok := v.needed[asset]; ok {
		return new(big.Int).Set(n), nil
	}
	return new(big.Int), nil
}

// FullyCapitalized reports whether every constituent is held at or above
// its needed quantity.
func (v *View) FullyCapitalized(ctx context.Context) (bool, error) {
	assets, err := v.Assets(ctx)
	if err != nil {
		return false, err
	}
	for _, a := range assets {
		held, err := v.Held(ctx, a)
		if err != nil {
			return false, err
		}
		needed, err := v.Needed(ctx, a)
		if err != nil {
			return false, err
		}
		if held.Cmp(needed) < 0 {
			return false, nil
		}
	}
	return true, nil
}

// BasketTimestamp returns the time of the last target change.
func (v *View) BasketTimestamp(ctx context.Context) (time.Time, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.changedAt, nil
}
