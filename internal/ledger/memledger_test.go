package ledger

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/rebalancer/internal/domain"
)

var (
	assetA = common.HexToAddress("0x0000000000000000000000000000000000000001")
	assetB = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func TestMemLedgerMintAndBalance(t *testing.T) {
	ctx := context.Background()
	l := NewMemLedger()

	bal, err := l.BalanceOf(ctx, assetA, "alice")
	require.NoError(t, err)
	assert.Zero(t, bal.Sign())

	l.Mint(assetA, "alice", big.NewInt(100))
	l.Mint(assetA, "alice", big.NewInt(50))

	bal, err = l.BalanceOf(ctx, assetA, "alice")
	require.NoError(t, err)
	assert.Zero(t, bal.Cmp(big.NewInt(150)))

	// Returned balances are copies; mutating one must not corrupt the ledger.
	bal.SetInt64(0)
	bal, err = l.BalanceOf(ctx, assetA, "alice")
	require.NoError(t, err)
	assert.Zero(t, bal.Cmp(big.NewInt(150)))
}

func TestMemLedgerTransfer(t *testing.T) {
	ctx := context.Background()
	l := NewMemLedger()
	l.Mint(assetA, "alice", big.NewInt(100))

	require.NoError(t, l.Transfer(ctx, assetA, "alice", "bob", big.NewInt(40)))

	aliceBal, _ := l.BalanceOf(ctx, assetA, "alice")
	bobBal, _ := l.BalanceOf(ctx, assetA, "bob")
	assert.Zero(t, aliceBal.Cmp(big.NewInt(60)))
	assert.Zero(t, bobBal.Cmp(big.NewInt(40)))
}

func TestMemLedgerTransferInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	l := NewMemLedger()
	l.Mint(assetA, "alice", big.NewInt(10))

	err := l.Transfer(ctx, assetA, "alice", "bob", big.NewInt(11))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Both balances unchanged after the rejected transfer.
	aliceBal, _ := l.BalanceOf(ctx, assetA, "alice")
	bobBal, _ := l.BalanceOf(ctx, assetA, "bob")
	assert.Zero(t, aliceBal.Cmp(big.NewInt(10)))
	assert.Zero(t, bobBal.Sign())
}

func TestMemLedgerTransferNegativeAmount(t *testing.T) {
	l := NewMemLedger()
	l.Mint(assetA, "alice", big.NewInt(10))
	err := l.Transfer(context.Background(), assetA, "alice", "bob", big.NewInt(-1))
	assert.Error(t, err)
}

func TestMemLedgerBurn(t *testing.T) {
	l := NewMemLedger()
	l.Mint(assetB, "alice", big.NewInt(10))
	l.Burn(assetB, "alice", big.NewInt(4))

	bal, _ := l.BalanceOf(context.Background(), assetB, "alice")
	assert.Zero(t, bal.Cmp(big.NewInt(6)))

	assert.Panics(t, func() { l.Burn(assetB, "alice", big.NewInt(7)) })
}

func TestMemLedgerAssetsAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewMemLedger()
	l.Mint(assetA, "alice", big.NewInt(5))
	l.Mint(assetB, "alice", big.NewInt(9))

	a, _ := l.BalanceOf(ctx, assetA, "alice")
	b, _ := l.BalanceOf(ctx, assetB, "alice")
	assert.Zero(t, a.Cmp(big.NewInt(5)))
	assert.Zero(t, b.Cmp(big.NewInt(9)))
}

func TestMemLedgerConcurrentTransfers(t *testing.T) {
	ctx := context.Background()
	l := NewMemLedger()
	l.Mint(assetA, "hot", big.NewInt(1000))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = l.Transfer(ctx, assetA, "hot", "cold", big.NewInt(1))
			}
		}()
	}
	wg.Wait()

	hot, _ := l.BalanceOf(ctx, assetA, "hot")
	cold, _ := l.BalanceOf(ctx, assetA, "cold")
	assert.Zero(t, hot.Sign())
	assert.Zero(t, cold.Cmp(big.NewInt(1000)))
}
