package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/rebalancer/internal/domain"
)

// TradeRecordStore implements domain.TradeRecordStore using PostgreSQL.
// Amounts are stored as NUMERIC(78,0) and scanned through decimal strings,
// since settlement quantities exceed every machine integer type.
type TradeRecordStore struct {
	pool *pgxpool.Pool
}

// NewTradeRecordStore creates a TradeRecordStore backed by the given pool.
func NewTradeRecordStore(pool *pgxpool.Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

const recordSelectCols = `id, sell_asset, buy_asset, sell_amount::text, min_buy_amount::text,
	sold::text, bought::text, auction_id, started_at, settled_at`

// Insert persists one settled trade. Re-inserting the same trade id is a
// no-op so retried settlements stay idempotent.
func (s *TradeRecordStore) Insert(ctx context.Context, rec domain.TradeRecord) error {
	const query = `
		INSERT INTO trade_records (
			id, sell_asset, buy_asset, sell_amount, min_buy_amount,
			sold, bought, auction_id, started_at, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Sell.Hex(), rec.Buy.Hex(),
		rec.SellAmount.String(), rec.MinBuyAmount.String(),
		rec.Sold.String(), rec.Bought.String(),
		rec.AuctionID, rec.StartedAt, rec.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade record %s: %w", rec.ID, err)
	}
	return nil
}

// GetByID returns one trade record, or domain.ErrNotFound.
func (s *TradeRecordStore) GetByID(ctx context.Context, id string) (domain.TradeRecord, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+recordSelectCols+" FROM trade_records WHERE id = $1", id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TradeRecord{}, domain.ErrNotFound
		}
		return domain.TradeRecord{}, fmt.Errorf("postgres: get trade record %s: %w", id, err)
	}
	return rec, nil
}

// ListRecent returns settled trades newest-first.
func (s *TradeRecordStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+recordSelectCols+` FROM trade_records
		 ORDER BY settled_at DESC LIMIT $1 OFFSET $2`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trade records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListBefore returns all trades settled strictly before the cutoff, oldest
// first, for archival.
func (s *TradeRecordStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+recordSelectCols+` FROM trade_records
		 WHERE settled_at < $1 ORDER BY settled_at ASC`,
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade records before %s: %w", before, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// DeleteBefore removes trades settled strictly before the cutoff and
// returns how many were deleted.
func (s *TradeRecordStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM trade_records WHERE settled_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trade records before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

func scanRecords(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var recs []domain.TradeRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanRecord(row pgx.Row) (domain.TradeRecord, error) {
	var (
		rec                                  domain.TradeRecord
		sellHex, buyHex                      string
		sellAmt, minBuyAmt, soldStr, boughtStr string
	)
	if err := row.Scan(
		&rec.ID, &sellHex, &buyHex, &sellAmt, &minBuyAmt,
		&soldStr, &boughtStr, &rec.AuctionID, &rec.StartedAt, &rec.SettledAt,
	); err != nil {
		return domain.TradeRecord{}, err
	}

	rec.Sell = common.HexToAddress(sellHex)
	rec.Buy = common.HexToAddress(buyHex)
	var ok bool
	if rec.SellAmount, ok = new(big.Int).SetString(sellAmt, 10); !ok {
		return domain.TradeRecord{}, fmt.Errorf("malformed sell_amount %q", sellAmt)
	}
	if rec.MinBuyAmount, ok = new(big.Int).SetString(minBuyAmt, 10); !ok {
		return domain.TradeRecord{}, fmt.Errorf("malformed min_buy_amount %q", minBuyAmt)
	}
	if rec.Sold, ok = new(big.Int).SetString(soldStr, 10); !ok {
		return domain.TradeRecord{}, fmt.Errorf("malformed sold %q", soldStr)
	}
	if rec.Bought, ok = new(big.Int).SetString(boughtStr, 10); !ok {
		return domain.TradeRecord{}, fmt.Errorf("malformed bought %q", boughtStr)
	}
	return rec, nil
}
