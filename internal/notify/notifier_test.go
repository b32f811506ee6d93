package notify

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/rebalancer/internal/domain"
)

var (
	sellAsset = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	buyAsset  = common.HexToAddress("0xbbbb000000000000000000000000000000000002")
)

type captureSender struct {
	mu     sync.Mutex
	titles []string
	done   chan struct{}
}

func newCaptureSender(n int) *captureSender {
	return &captureSender{done: make(chan struct{}, n)}
}

func (s *captureSender) Send(ctx context.Context, title, message string) error {
	s.mu.Lock()
	s.titles = append(s.titles, title)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func (s *captureSender) Name() string { return "capture" }

func (s *captureSender) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification never delivered")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishFiltersByEventType(t *testing.T) {
	sender := newCaptureSender(4)
	n := New([]Sender{sender}, []string{domain.EventBreakerTripped}, discardLogger())

	n.Publish(domain.TradeEvent{Type: domain.EventTradeStarted, Sell: sellAsset, Buy: buyAsset})
	n.Publish(domain.TradeEvent{Type: domain.EventBreakerTripped, Sell: sellAsset, Buy: buyAsset})
	sender.wait(t)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.titles, 1)
	assert.Equal(t, "Circuit breaker tripped", sender.titles[0])
}

func TestPublishEmptyFilterAllowsAll(t *testing.T) {
	sender := newCaptureSender(4)
	n := New([]Sender{sender}, nil, discardLogger())

	n.Publish(domain.TradeEvent{Type: domain.EventTradeSettled, Sell: sellAsset, Buy: buyAsset})
	sender.wait(t)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Equal(t, []string{"Trade settled"}, sender.titles)
}

func TestRenderTradeStarted(t *testing.T) {
	title, message := render(domain.TradeEvent{
		Type:         domain.EventTradeStarted,
		TradeID:      "trade-1",
		Sell:         sellAsset,
		Buy:          buyAsset,
		SellAmount:   big.NewInt(1000),
		MinBuyAmount: big.NewInt(900),
		AuctionID:    "auction-1",
	})

	assert.Equal(t, "Trade started", title)
	assert.Contains(t, message, sellAsset.Hex()[:10])
	assert.Contains(t, message, "selling 1000 for at least 900")
	assert.Contains(t, message, "trade-1")
	assert.Contains(t, message, "auction-1")
}

func TestRenderBreakerTripped(t *testing.T) {
	title, message := render(domain.TradeEvent{
		Type:         domain.EventBreakerTripped,
		TradeID:      "trade-1",
		Sell:         sellAsset,
		Buy:          buyAsset,
		Sold:         big.NewInt(1000),
		Bought:       big.NewInt(100),
		MinBuyAmount: big.NewInt(900),
	})

	assert.Equal(t, "Circuit breaker tripped", title)
	assert.Contains(t, message, "sold 1000 but received only 100")
	assert.Contains(t, message, "trading is now disabled")
}

func TestRenderMissingAmounts(t *testing.T) {
	_, message := render(domain.TradeEvent{Type: domain.EventTradeSettled, Sell: sellAsset, Buy: buyAsset})
	assert.Contains(t, message, "sold ? bought ?")
}
