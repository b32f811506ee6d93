package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/rebalancer/internal/domain"
)

// TradeLister provides the open-trade snapshot served by the API.
type TradeLister interface {
	OpenTrades() []domain.TradeInfo
}

// TradeHandler serves open-trade endpoints.
type TradeHandler struct {
	trades TradeLister
}

// NewTradeHandler creates a TradeHandler over the given lister.
func NewTradeHandler(trades TradeLister) *TradeHandler {
	return &TradeHandler{trades: trades}
}

// tradeResponse is the JSON form of an open trade.
type tradeResponse struct {
	ID           string    `json:"id"`
	Sell         string    `json:"sell"`
	Buy          string    `json:"buy"`
	SellAmount   string    `json:"sell_amount"`
	MinBuyAmount string    `json:"min_buy_amount"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	AuctionID    string    `json:"auction_id"`
	Status       string    `json:"status"`
}

func toTradeResponse(t domain.TradeInfo) tradeResponse {
	return tradeResponse{
		ID:           t.ID,
		Sell:         t.Sell.Hex(),
		Buy:          t.Buy.Hex(),
		SellAmount:   amountString(t.SellAmount),
		MinBuyAmount: amountString(t.MinBuyAmount),
		StartTime:    t.StartTime,
		EndTime:      t.EndTime,
		AuctionID:    t.AuctionID,
		Status:       t.Status.String(),
	}
}

// ListOpen responds with all currently open trades.
// GET /api/trades
func (h *TradeHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	open := h.trades.OpenTrades()

	out := make([]tradeResponse, 0, len(open))
	for _, t := range open {
		out = append(out, toTradeResponse(t))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trades": out,
		"count":  len(out),
	})
}
