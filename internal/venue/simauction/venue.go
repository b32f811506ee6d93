// Package simauction implements a deterministic in-memory batch auction
// venue. It collects sell orders during a fixed window, clears once after
// the window closes, and moves funds through the token ledger exactly the
// way the external venue protocol promises to: proceeds plus the unsold
// remainder return to the funder, with at most a wei of rounding dust per
// partially filled bid left behind. It backs the sim run mode and the test
// suite.
package simauction

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/rebalancer/internal/domain"
)

// VenueAccount holds all live escrow at the venue, including clearing dust.
const VenueAccount = domain.Account("simauction")

// Config holds the venue's own order-acceptance parameters.
type Config struct {
	// MinBidSize is the minimum fraction (1e18 scale) of the auction's
	// worst-case buy amount that a single bid must offer. Smaller bids are
	// rejected at placement.
	MinBidSize *big.Int
}

// bid is one resting sell order from a bidder: offer Bid of the buy asset
// in exchange for Ask of the auctioned asset.
type bid struct {
	bidder domain.Account
	ask    *big.Int
	offer  *big.Int
}

type auction struct {
	req     domain.AuctionRequest
	bids    []bid
	settled bool
	result  domain.AuctionResult
}

// Venue is the in-memory batch auction venue.
type Venue struct {
	mu       sync.Mutex
	cfg      Config
	ledger   domain.TokenLedger
	now      func() time.Time
	logger   *slog.Logger
	auctions map[string]*auction
}

// New creates a Venue that escrows funds on the given ledger and reads time
// from now.
func New(cfg Config, l domain.TokenLedger, now func() time.Time, logger *slog.Logger) *Venue {
	if cfg.MinBidSize == nil {
		cfg.MinBidSize = new(big.Int)
	}
	return &Venue{
		cfg:      cfg,
		ledger:   l,
		now:      now,
		logger:   logger.With(slog.String("component", "simauction")),
		auctions: make(map[string]*auction),
	}
}

// CreateAuction escrows the sell amount from the funder and opens a new
// auction that ends at req.EndTime.
func (v *Venue) CreateAuction(ctx context.Context, req domain.AuctionRequest) (string, error) {
	if req.SellAmount == nil || req.SellAmount.Sign() <= 0 ||
		req.MinBuyAmount == nil || req.MinBuyAmount.Sign() < 0 {
		return "", fmt.Errorf("simauction: %w", domain.ErrInvalidTradeParams)
	}
	if !req.EndTime.After(v.now()) {
		return "", fmt.Errorf("simauction: end time not in the future: %w", domain.ErrInvalidTradeParams)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ledger.Transfer(ctx, req.Sell, req.Funder, VenueAccount, req.SellAmount); err != nil {
		return "", fmt.Errorf("simauction: escrow sell amount: %w", err)
	}

	id := uuid.NewString()
	v.auctions[id] = &auction{
		req: domain.AuctionRequest{
			Sell:         req.Sell,
			Buy:          req.Buy,
			SellAmount:   new(big.Int).Set(req.SellAmount),
			MinBuyAmount: new(big.Int).Set(req.MinBuyAmount),
			EndTime:      req.EndTime,
			Funder:       req.Funder,
		},
	}
	v.logger.Info("auction created",
		slog.String("auction_id", id),
		slog.String("sell", req.Sell.Hex()),
		slog.String("buy", req.Buy.Hex()),
		slog.String("sell_amount", req.SellAmount.String()),
		slog.String("min_buy_amount", req.MinBuyAmount.String()),
		slog.Time("end_time", req.EndTime),
	)
	return id, nil
}

// PlaceBid submits a sell order: offer of the buy asset in exchange for ask
// of the auctioned asset. Bids after the end time, below the auction floor
// price, or below the venue's minimum bid size are rejected and no funds
// move.
func (v *Venue) PlaceBid(ctx context.Context, auctionID string, bidder domain.Account, ask, offer *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	a, ok := v.auctions[auctionID]
	if !ok {
		return fmt.Errorf("simauction: auction %s: %w", auctionID, domain.ErrNotFound)
	}
	if a.settled {
		return fmt.Errorf("simauction: %w", domain.ErrAuctionSettled)
	}
	if !v.now().Before(a.req.EndTime) {
		return fmt.Errorf("simauction: bidding window closed: %w", domain.ErrBidRejected)
	}
	if ask == nil || ask.Sign() <= 0 || offer == nil || offer.Sign() <= 0 {
		return fmt.Errorf("simauction: non-positive bid: %w", domain.ErrBidRejected)
	}
	if ask.Cmp(a.req.SellAmount) > 0 {
		return fmt.Errorf("simauction: bid asks more than auctioned amount: %w", domain.ErrBidRejected)
	}

	// Reject bids priced below the auction floor. offer/ask must be at
	// least minBuyAmount/sellAmount, compared by cross-multiplication.
	lhs := new(big.Int).Mul(offer, a.req.SellAmount)
	rhs := new(big.Int).Mul(a.req.MinBuyAmount, ask)
	if lhs.Cmp(rhs) < 0 {
		return fmt.Errorf("simauction: bid below floor price: %w", domain.ErrBidRejected)
	}

	// Reject bids smaller than the minimum bid size.
	minOffer := new(big.Int).Mul(a.req.MinBuyAmount, v.cfg.MinBidSize)
	minOffer.Div(minOffer, domain.FixOne)
	if offer.Cmp(minOffer) < 0 {
		return fmt.Errorf("simauction: bid below minimum size %s: %w", minOffer, domain.ErrBidRejected)
	}

	if err := v.ledger.Transfer(ctx, a.req.Buy, bidder, VenueAccount, offer); err != nil {
		return fmt.Errorf("simauction: escrow bid: %w", err)
	}
	a.bids = append(a.bids, bid{
		bidder: bidder,
		ask:    new(big.Int).Set(ask),
		offer:  new(big.Int).Set(offer),
	})
	return nil
}

// SettleAuction clears the auction. Any caller may settle; funds flow to
// the original funder and bidders regardless of who triggers it.
func (v *Venue) SettleAuction(ctx context.Context, auctionID string) (domain.AuctionResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	a, ok := v.auctions[auctionID]
	if !ok {
		return domain.AuctionResult{}, fmt.Errorf("simauction: auction %s: %w", auctionID, domain.ErrNotFound)
	}
	if a.settled {
		return domain.AuctionResult{}, fmt.Errorf("simauction: %w", domain.ErrAuctionSettled)
	}
	if v.now().Before(a.req.EndTime) {
		return domain.AuctionResult{}, fmt.Errorf("simauction: %w", domain.ErrAuctionNotEnded)
	}

	res, err := v.clear(ctx, a)
	if err != nil {
		return domain.AuctionResult{}, err
	}
	a.settled = true
	a.result = res
	v.logger.Info("auction settled",
		slog.String("auction_id", auctionID),
		slog.String("sold", res.Sold.String()),
		slog.String("bought", res.Bought.String()),
	)
	return res, nil
}

// IsSettled reports whether the auction has already been cleared.
func (v *Venue) IsSettled(ctx context.Context, auctionID string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.auctions[auctionID]
	if !ok {
		return false, fmt.Errorf("simauction: auction %s: %w", auctionID, domain.ErrNotFound)
	}
	return a.settled, nil
}

// Result returns the recorded clearing outcome of a settled auction.
func (v *Venue) Result(ctx context.Context, auctionID string) (domain.AuctionResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.auctions[auctionID]
	if !ok {
		return domain.AuctionResult{}, fmt.Errorf("simauction: auction %s: %w", auctionID, domain.ErrNotFound)
	}
	if !a.settled {
		return domain.AuctionResult{}, fmt.Errorf("simauction: %w", domain.ErrAuctionNotEnded)
	}
	return domain.AuctionResult{
		Sold:   new(big.Int).Set(a.result.Sold),
		Bought: new(big.Int).Set(a.result.Bought),
	}, nil
}

// clear fills bids best-price-first until the sell side is exhausted and
// moves all funds. Partially filled bids pay a proportional part of their
// offer and are refunded the floor of the rest, so at most one wei per such
// bid remains at the venue. Callers must hold v.mu.
func (v *Venue) clear(ctx context.Context, a *auction) (domain.AuctionResult, error) {
	// Sort by offered price descending (offer/ask), stable so equal-priced
	// bids fill in arrival order.
	bids := make([]bid, len(a.bids))
	copy(bids, a.bids)
	sort.SliceStable(bids, func(i, j int) bool {
		left := new(big.Int).Mul(bids[i].offer, bids[j].ask)
		right := new(big.Int).Mul(bids[j].offer, bids[i].ask)
		return left.Cmp(right) > 0
	})

	remaining := new(big.Int).Set(a.req.SellAmount)
	sold := new(big.Int)
	bought := new(big.Int)

	for _, b := range bids {
		if remaining.Sign() == 0 {
			// Nothing left to allocate; refund the bid in full.
			if err := v.ledger.Transfer(ctx, a.req.Buy, VenueAccount, b.bidder, b.offer); err != nil {
				return domain.AuctionResult{}, fmt.Errorf("simauction: refund bid: %w", err)
			}
			continue
		}

		fill := new(big.Int).Set(b.ask)
		if fill.Cmp(remaining) > 0 {
			fill.Set(remaining)
		}

		// payment = floor(offer * fill / ask); refund = floor(offer * (ask-fill) / ask).
		payment := new(big.Int).Mul(b.offer, fill)
		payment.Div(payment, b.ask)
		unfilled := new(big.Int).Sub(b.ask, fill)
		refund := new(big.Int).Mul(b.offer, unfilled)
		refund.Div(refund, b.ask)

		if err := v.ledger.Transfer(ctx, a.req.Sell, VenueAccount, b.bidder, fill); err != nil {
			return domain.AuctionResult{}, fmt.Errorf("simauction: deliver fill: %w", err)
		}
		if refund.Sign() > 0 {
			if err := v.ledger.Transfer(ctx, a.req.Buy, VenueAccount, b.bidder, refund); err != nil {
				return domain.AuctionResult{}, fmt.Errorf("simauction: refund bid remainder: %w", err)
			}
		}

		remaining.Sub(remaining, fill)
		sold.Add(sold, fill)
		bought.Add(bought, payment)
	}

	// Return proceeds and the unsold remainder to the funder.
	if bought.Sign() > 0 {
		if err := v.ledger.Transfer(ctx, a.req.Buy, VenueAccount, a.req.Funder, bought); err != nil {
			return domain.AuctionResult{}, fmt.Errorf("simauction: return proceeds: %w", err)
		}
	}
	if remaining.Sign() > 0 {
		if err := v.ledger.Transfer(ctx, a.req.Sell, VenueAccount, a.req.Funder, remaining); err != nil {
			return domain.AuctionResult{}, fmt.Errorf("simauction: return remainder: %w", err)
		}
	}

	return domain.AuctionResult{Sold: sold, Bought: bought}, nil
}
