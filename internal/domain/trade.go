package domain

import (
	"math/big"
	"time"
)

// TradeStatus is the lifecycle state of a single auction trade.
type TradeStatus int

const (
	TradeNotStarted TradeStatus = iota
	TradeOpen
	TradeClosed
)

// String returns the canonical lowercase name of the status.
func (s TradeStatus) String() string {
	switch s {
	case TradeNotStarted:
		return "not_started"
	case TradeOpen:
		return "open"
	case TradeClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TradeInfo is a read-only snapshot of a trade, served to monitoring callers.
type TradeInfo struct {
	ID           string
	Sell         Asset
	Buy          Asset
	SellAmount   *big.Int
	MinBuyAmount *big.Int
	StartTime    time.Time
	EndTime      time.Time
	AuctionID    string
	Status       TradeStatus
}

// TradeRecord is the persisted outcome of one settled trade.
type TradeRecord struct {
	ID           string
	Sell         Asset
	Buy          Asset
	SellAmount   *big.Int
	MinBuyAmount *big.Int
	Sold         *big.Int
	Bought       *big.Int
	AuctionID    string
	StartedAt    time.Time
	SettledAt    time.Time
}
