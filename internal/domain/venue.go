package domain

import (
	"context"
	"math/big"
	"time"
)

// AuctionRequest describes a sell order submitted to the batch auction venue.
// The venue pulls SellAmount of Sell from Funder at creation time and holds
// it until settlement.
type AuctionRequest struct {
	Sell         Asset
	Buy          Asset
	SellAmount   *big.Int
	MinBuyAmount *big.Int
	EndTime      time.Time
	Funder       Account
}

// AuctionResult is the venue-reported clearing outcome of a settled auction.
// Sold + the returned sell-asset remainder equals the escrowed sell amount;
// a bounded dust remainder may stay at the venue.
type AuctionResult struct {
	Sold   *big.Int
	Bought *big.Int
}

// AuctionVenue is the opaque external batch-auction protocol. It collects
// sell orders over a fixed window and settles at one clearing price after
// the window closes. Settlement may be performed by any caller, including
// third parties unrelated to the trade that created the auction.
type AuctionVenue interface {
	CreateAuction(ctx context.Context, req AuctionRequest) (auctionID string, err error)
	// SettleAuction clears the auction and transfers proceeds plus unsold
	// remainder back to the funder account. It fails with ErrAuctionNotEnded
	// before the end time and ErrAuctionSettled on re-settlement.
	SettleAuction(ctx context.Context, auctionID string) (AuctionResult, error)
	IsSettled(ctx context.Context, auctionID string) (bool, error)
	// Result returns the recorded outcome of an already-settled auction,
	// so a trade can reconcile settlements performed by someone else.
	Result(ctx context.Context, auctionID string) (AuctionResult, error)
}
