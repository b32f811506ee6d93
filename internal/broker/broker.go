// Package broker gatekeeps the path between the backing manager and the
// external auction venue. It is the only component that can disable
// trading: a settlement that clears below its trade's advertised floor
// price trips a sticky, process-wide circuit breaker that only an external
// governance action resets.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/rebalancer/internal/domain"
	"github.com/alanyoungcy/rebalancer/internal/trade"
)

// BreakerState is the shared trading-enabled flag. It is injected into the
// Broker at construction and mutated only through Trip and Reset.
type BreakerState struct {
	mu        sync.Mutex
	disabled  bool
	reason    string
	trippedAt time.Time
}

// NewBreakerState returns an enabled breaker.
func NewBreakerState() *BreakerState {
	return &BreakerState{}
}

// Disabled reports whether trading is disabled.
func (s *BreakerState) Disabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled
}

// Reason returns why and when the breaker tripped; zero values when it has
// not.
func (s *BreakerState) Reason() (string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason, s.trippedAt
}

// Trip disables trading. The flag is sticky; subsequent trips keep the
// first reason.
func (s *BreakerState) Trip(reason string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return
	}
	s.disabled = true
	s.reason = reason
	s.trippedAt = at
}

// Reset re-enables trading. It exists for the external governance action;
// nothing inside the rebalancer calls it.
func (s *BreakerState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = false
	s.reason = ""
	s.trippedAt = time.Time{}
}

// Config holds the broker's auction parameters.
type Config struct {
	AuctionLength time.Duration
}

// Broker creates trades against the auction venue and books their escrow.
type Broker struct {
	cfg    Config
	state  *BreakerState
	venue  domain.AuctionVenue
	ledger domain.TokenLedger
	events domain.EventSink
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Broker. events may be nil.
func New(cfg Config, state *BreakerState, venue domain.AuctionVenue, ledger domain.TokenLedger, events domain.EventSink, now func() time.Time, logger *slog.Logger) *Broker {
	return &Broker{
		cfg:    cfg,
		state:  state,
		venue:  venue,
		ledger: ledger,
		events: events,
		now:    now,
		logger: logger.With(slog.String("component", "broker")),
	}
}

// Disabled reports the circuit-breaker state.
func (b *Broker) Disabled() bool { return b.state.Disabled() }

// OpenTrade pulls sellAmount of sell from the caller's account into a fresh
// escrow, opens a venue auction ending auctionLength from now, and returns
// the OPEN trade. It fails without moving funds when trading is disabled or
// the parameters are invalid, and refunds the escrow when the venue rejects
// the auction.
func (b *Broker) OpenTrade(ctx context.Context, from domain.Account, sell, buy domain.Asset, sellAmount, minBuyAmount *big.Int) (*trade.Trade, error) {
	if b.state.Disabled() {
		return nil, fmt.Errorf("broker: %w", domain.ErrTradingDisabled)
	}
	if sell == buy {
		return nil, fmt.Errorf("broker: sell and buy assets are equal: %w", domain.ErrInvalidTradeParams)
	}
	if sellAmount == nil || sellAmount.Sign() <= 0 || minBuyAmount == nil || minBuyAmount.Sign() < 0 {
		return nil, fmt.Errorf("broker: %w", domain.ErrInvalidTradeParams)
	}

	id := uuid.NewString()
	escrow := domain.Account("trade:" + id)

	if err := b.ledger.Transfer(ctx, sell, from, escrow, sellAmount); err != nil {
		return nil, fmt.Errorf("broker: escrow sell amount: %w", err)
	}

	start := b.now()
	end := start.Add(b.cfg.AuctionLength)
	auctionID, err := b.venue.CreateAuction(ctx, domain.AuctionRequest{
		Sell:         sell,
		Buy:          buy,
		SellAmount:   sellAmount,
		MinBuyAmount: minBuyAmount,
		EndTime:      end,
		Funder:       escrow,
	})
	if err != nil {
		if rerr := b.ledger.Transfer(ctx, sell, escrow, from, sellAmount); rerr != nil {
			b.logger.Error("escrow refund failed after venue rejection",
				slog.String("trade_id", id),
				slog.String("error", rerr.Error()),
			)
		}
		return nil, fmt.Errorf("broker: create auction: %w", err)
	}

	t := trade.New(trade.Params{
		ID:           id,
		Sell:         sell,
		Buy:          buy,
		SellAmount:   sellAmount,
		MinBuyAmount: minBuyAmount,
		StartTime:    start,
		EndTime:      end,
		AuctionID:    auctionID,
		Escrow:       escrow,
		Origin:       from,
	}, b.venue, b.ledger, b, b.now, b.logger)

	b.logger.Info("trade opened",
		slog.String("trade_id", id),
		slog.String("auction_id", auctionID),
		slog.String("sell", sell.Hex()),
		slog.String("buy", buy.Hex()),
		slog.String("sell_amount", sellAmount.String()),
		slog.String("min_buy_amount", minBuyAmount.String()),
		slog.Time("end_time", end),
	)
	return t, nil
}

// ReportViolation trips the circuit breaker. Trades call it when a
// settlement cleared below the advertised floor price; zero-bid and partial
// outcomes never reach here.
func (b *Broker) ReportViolation(ctx context.Context, info domain.TradeInfo, sold, bought *big.Int) {
	reason := fmt.Sprintf("auction %s cleared below floor: sold %s of %s for %s of %s (floor %s/%s)",
		info.AuctionID, sold, info.Sell.Hex(), bought, info.Buy.Hex(),
		info.MinBuyAmount, info.SellAmount)
	b.state.Trip(reason, b.now())
	b.logger.Error("circuit breaker tripped", slog.String("reason", reason))
	if b.events != nil {
		b.events.Publish(domain.TradeEvent{
			Type:      domain.EventBreakerTripped,
			TradeID:   info.ID,
			Sell:      info.Sell,
			Buy:       info.Buy,
			Sold:      sold,
			Bought:    bought,
			AuctionID: info.AuctionID,
			At:        b.now(),
		})
	}
}
