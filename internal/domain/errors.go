package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrStalePrice         = errors.New("stale or invalid price")
	ErrTradingDisabled    = errors.New("trading disabled")
	ErrCooldownActive     = errors.New("trading cooldown active")
	ErrTradeOpen          = errors.New("open trade exists for asset")
	ErrAuctionNotEnded    = errors.New("auction not ended")
	ErrAuctionSettled     = errors.New("auction already settled")
	ErrTradeClosed        = errors.New("trade already closed")
	ErrInsufficientFunds  = errors.New("insufficient balance")
	ErrBidRejected        = errors.New("bid rejected")
	ErrInvalidTradeParams = errors.New("invalid trade parameters")
)
