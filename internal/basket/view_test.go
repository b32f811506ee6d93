package basket

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/rebalancer/internal/domain"
	"github.com/alanyoungcy/rebalancer/internal/ledger"
)

var (
	tokA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

const manager = domain.Account("backing-manager")

func newTestView(t *testing.T) (*View, *ledger.MemLedger, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := ledger.NewMemLedger()
	v := NewView(l, manager, func() time.Time { return now })
	return v, l, &now
}

func TestViewSetTargetAndAssets(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newTestView(t)

	err := v.SetTarget(
		[]domain.Asset{tokA, tokB},
		[]*big.Int{big.NewInt(100), big.NewInt(200)},
	)
	require.NoError(t, err)

	assets, err := v.Assets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Asset{tokA, tokB}, assets)

	needA, err := v.Needed(ctx, tokA)
	require.NoError(t, err)
	assert.Zero(t, needA.Cmp(big.NewInt(100)))

	// Non-constituents need nothing.
	other := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	needOther, err := v.Needed(ctx, other)
	require.NoError(t, err)
	assert.Zero(t, needOther.Sign())
}

func TestViewSetTargetRejectsMismatchAndDuplicates(t *testing.T) {
	v, _, _ := newTestView(t)

	err := v.SetTarget([]domain.Asset{tokA}, []*big.Int{big.NewInt(1), big.NewInt(2)})
	assert.Error(t, err)

	err = v.SetTarget([]domain.Asset{tokA, tokA}, []*big.Int{big.NewInt(1), big.NewInt(2)})
	assert.Error(t, err)
}

func TestViewHeldReadsLedger(t *testing.T) {
	ctx := context.Background()
	v, l, _ := newTestView(t)

	l.Mint(tokA, manager, big.NewInt(77))
	l.Mint(tokA, "someone-else", big.NewInt(999))

	held, err := v.Held(ctx, tokA)
	require.NoError(t, err)
	assert.Zero(t, held.Cmp(big.NewInt(77)))
}

func TestViewFullyCapitalized(t *testing.T) {
	ctx := context.Background()
	v, l, _ := newTestView(t)

	require.NoError(t, v.SetTarget(
		[]domain.Asset{tokA, tokB},
		[]*big.Int{big.NewInt(100), big.NewInt(50)},
	))

	l.Mint(tokA, manager, big.NewInt(100))
	l.Mint(tokB, manager, big.NewInt(49))

	full, err := v.FullyCapitalized(ctx)
	require.NoError(t, err)
	assert.False(t, full, "one wei short of the target is not capitalized")

	l.Mint(tokB, manager, big.NewInt(1))
	full, err = v.FullyCapitalized(ctx)
	require.NoError(t, err)
	assert.True(t, full)

	// Surpluses beyond the target do not break capitalization.
	l.Mint(tokA, manager, big.NewInt(1000))
	full, err = v.FullyCapitalized(ctx)
	require.NoError(t, err)
	assert.True(t, full)
}

func TestViewEmptyTargetIsFullyCapitalized(t *testing.T) {
	v, _, _ := newTestView(t)
	full, err := v.FullyCapitalized(context.Background())
	require.NoError(t, err)
	assert.True(t, full)
}

func TestViewBasketTimestampTracksTargetChanges(t *testing.T) {
	ctx := context.Background()
	v, _, now := newTestView(t)
	t0 := *now

	ts, err := v.BasketTimestamp(ctx)
	require.NoError(t, err)
	assert.True(t, ts.IsZero(), "no target set yet")

	require.NoError(t, v.SetTarget([]domain.Asset{tokA}, []*big.Int{big.NewInt(1)}))
	ts, err = v.BasketTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, t0, ts)

	*now = t0.Add(time.Hour)
	require.NoError(t, v.SetTarget([]domain.Asset{tokB}, []*big.Int{big.NewInt(2)}))
	ts, err = v.BasketTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), ts)
}
