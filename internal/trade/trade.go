// Package trade implements the lifecycle of a single batch-auction trade:
// NOT_STARTED -> OPEN -> CLOSED. A Trade owns its sell-token escrow for its
// entire open lifetime and reconciles the venue-reported outcome against
// ledger balances at settlement.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/alanyoungcy/rebalancer/internal/domain"
)

// ViolationReporter receives settlements whose realized clearing price is
// worse than the trade's advertised floor. The broker implements it to trip
// the global circuit breaker.
type ViolationReporter interface {
	ReportViolation(ctx context.Context, info domain.TradeInfo, sold, bought *big.Int)
}

// Params carries everything needed to open a trade. The escrow account must
// already hold SellAmount of Sell when New is called.
type Params struct {
	ID           string
	Sell         domain.Asset
	Buy          domain.Asset
	SellAmount   *big.Int
	MinBuyAmount *big.Int
	StartTime    time.Time
	EndTime      time.Time
	AuctionID    string
	Escrow       domain.Account
	Origin       domain.Account
}

// Trade is one in-flight auction. sellAmount is immutable for the whole
// OPEN lifetime; settlement is the only state transition.
type Trade struct {
	mu sync.Mutex

	id           string
	sell         domain.Asset
	buy          domain.Asset
	sellAmount   *big.Int
	minBuyAmount *big.Int
	startTime    time.Time
	endTime      time.Time
	auctionID    string
	escrow       domain.Account
	origin       domain.Account
	status       domain.TradeStatus

	venue    domain.AuctionVenue
	ledger   domain.TokenLedger
	reporter ViolationReporter
	now      func() time.Time
	logger   *slog.Logger
}

// New creates an OPEN trade over an already-created venue auction.
func New(p Params, venue domain.AuctionVenue, ledger domain.TokenLedger, reporter ViolationReporter, now func() time.Time, logger *slog.Logger) *Trade {
	return &Trade{
		id:           p.ID,
		sell:         p.Sell,
		buy:          p.Buy,
		sellAmount:   new(big.Int).Set(p.SellAmount),
		minBuyAmount: new(big.Int).Set(p.MinBuyAmount),
		startTime:    p.StartTime,
		endTime:      p.EndTime,
		auctionID:    p.AuctionID,
		escrow:       p.Escrow,
		origin:       p.Origin,
		status:       domain.TradeOpen,
		venue:        venue,
		ledger:       ledger,
		reporter:     reporter,
		now:          now,
		logger:       logger.With(slog.String("component", "trade"), slog.String("trade_id", p.ID)),
	}
}

// Info returns a read-only snapshot for monitoring callers.
func (t *Trade) Info() domain.TradeInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.infoLocked()
}

func (t *Trade) infoLocked() domain.TradeInfo {
	return domain.TradeInfo{
		ID:           t.id,
		Sell:         t.sell,
		Buy:          t.buy,
		SellAmount:   new(big.Int).Set(t.sellAmount),
		MinBuyAmount: new(big.Int).Set(t.minBuyAmount),
		StartTime:    t.startTime,
		EndTime:      t.endTime,
		AuctionID:    t.auctionID,
		Status:       t.status,
	}
}

// Sell returns the asset this trade is selling.
func (t *Trade) Sell() domain.Asset { return t.sell }

// Status returns the current lifecycle state.
func (t *Trade) Status() domain.TradeStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// CanSettle reports whether Settle may be called: the auction window has
// ended, or someone else already settled the auction at the venue. The
// clock may be arbitrarily far past the end time.
func (t *Trade) CanSettle(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canSettleLocked(ctx)
}

func (t *Trade) canSettleLocked(ctx context.Context) (bool, error) {
	if t.status != domain.TradeOpen {
		return false, nil
	}
	if !t.now().Before(t.endTime) {
		return true, nil
	}
	settled, err := t.venue.IsSettled(ctx, t.auctionID)
	if err != nil {
		return false, fmt.Errorf("trade %s: query venue settlement: %w", t.id, err)
	}
	return settled, nil
}

// Settle closes the trade. It settles the venue auction (or, when a third
// party already did, reads the recorded outcome), sweeps the escrow back to
// the origin account, reports floor-price violations, and moves the trade
// to CLOSED. It returns the reconciled (sold, bought) amounts; both are
// zero when the auction drew no valid bids.
func (t *Trade) Settle(ctx context.Context) (sold, bought *big.Int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != domain.TradeOpen {
		return nil, nil, fmt.Errorf("trade %s: %w", t.id, domain.ErrTradeClosed)
	}
	can, err := t.canSettleLocked(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !can {
		return nil, nil, fmt.Errorf("trade %s: %w", t.id, domain.ErrAuctionNotEnded)
	}

	if _, err := t.venue.SettleAuction(ctx, t.auctionID); err != nil {
		if !errors.Is(err, domain.ErrAuctionSettled) {
			return nil, nil, fmt.Errorf("trade %s: settle auction: %w", t.id, err)
		}
		// Someone else settled at the venue; the outcome is already
		// recorded and the funds already sit in our escrow.
		if _, rerr := t.venue.Result(ctx, t.auctionID); rerr != nil {
			return nil, nil, fmt.Errorf("trade %s: read settled result: %w", t.id, rerr)
		}
	}

	// Reconcile against escrow balances rather than trusting the venue's
	// report: sold is whatever portion of the escrowed sell amount did not
	// come back, bought is every buy token that did.
	sellBal, err := t.ledger.BalanceOf(ctx, t.sell, t.escrow)
	if err != nil {
		return nil, nil, fmt.Errorf("trade %s: read sell balance: %w", t.id, err)
	}
	buyBal, err := t.ledger.BalanceOf(ctx, t.buy, t.escrow)
	if err != nil {
		return nil, nil, fmt.Errorf("trade %s: read buy balance: %w", t.id, err)
	}

	sold = new(big.Int).Sub(t.sellAmount, sellBal)
	bought = new(big.Int).Set(buyBal)

	if sellBal.Sign() > 0 {
		if err := t.ledger.Transfer(ctx, t.sell, t.escrow, t.origin, sellBal); err != nil {
			return nil, nil, fmt.Errorf("trade %s: return unsold remainder: %w", t.id, err)
		}
	}
	if buyBal.Sign() > 0 {
		if err := t.ledger.Transfer(ctx, t.buy, t.escrow, t.origin, buyBal); err != nil {
			return nil, nil, fmt.Errorf("trade %s: forward proceeds: %w", t.id, err)
		}
	}

	t.status = domain.TradeClosed
	t.logger.Info("trade settled",
		slog.String("sell", t.sell.Hex()),
		slog.String("buy", t.buy.Hex()),
		slog.String("sold", sold.String()),
		slog.String("bought", bought.String()),
	)

	if t.violatesFloor(sold, bought) && t.reporter != nil {
		t.reporter.ReportViolation(ctx, t.infoLocked(), sold, bought)
	}
	return sold, bought, nil
}

// violatesFloor reports whether the realized clearing ratio is worse than
// minBuyAmount/sellAmount by more than one wei of rounding tolerance. Zero
// and partial fills at or above the proportional floor are honest outcomes
// and do not violate.
func (t *Trade) violatesFloor(sold, bought *big.Int) bool {
	if sold.Sign() <= 0 {
		return false
	}
	// expected = floor(sold * minBuyAmount / sellAmount)
	expected := new(big.Int).Mul(sold, t.minBuyAmount)
	expected.Div(expected, t.sellAmount)
	tolerated := new(big.Int).Add(bought, big.NewInt(1))
	return tolerated.Cmp(expected) < 0
}
