package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// TradeRecordStore persists settled trade outcomes.
type TradeRecordStore interface {
	Insert(ctx context.Context, rec TradeRecord) error
	GetByID(ctx context.Context, id string) (TradeRecord, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]TradeRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]TradeRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
