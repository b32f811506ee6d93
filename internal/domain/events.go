package domain

import (
	"math/big"
	"time"
)

// Event types emitted on the trade lifecycle, used for notification
// filtering and the monitoring WebSocket stream.
const (
	EventTradeStarted   = "trade_started"
	EventTradeSettled   = "trade_settled"
	EventBreakerTripped = "breaker_tripped"
)

// TradeEvent is a trade lifecycle observation.
type TradeEvent struct {
	Type         string    `json:"type"`
	TradeID      string    `json:"trade_id,omitempty"`
	Sell         Asset     `json:"sell"`
	Buy          Asset     `json:"buy"`
	SellAmount   *big.Int  `json:"sell_amount,omitempty"`
	MinBuyAmount *big.Int  `json:"min_buy_amount,omitempty"`
	Sold         *big.Int  `json:"sold,omitempty"`
	Bought       *big.Int  `json:"bought,omitempty"`
	AuctionID    string    `json:"auction_id,omitempty"`
	At           time.Time `json:"at"`
}

// EventSink receives trade lifecycle events. Implementations must not block
// the caller; slow consumers drop or buffer on their side.
type EventSink interface {
	Publish(ev TradeEvent)
}
