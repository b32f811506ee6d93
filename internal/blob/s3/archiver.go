package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/rebalancer/internal/domain"
)

// RecordSource provides read and prune access to settled trade records.
// The Postgres trade record store satisfies this.
type RecordSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver moves old settlement records out of the primary store: records
// settled before a cutoff are serialized to JSONL, uploaded to S3, and only
// then deleted from Postgres. A failed upload leaves the store untouched.
type Archiver struct {
	writer  *Writer
	records RecordSource
	logger  *slog.Logger
}

// NewArchiver creates an Archiver over the given writer and record source.
func NewArchiver(writer *Writer, records RecordSource, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:  writer,
		records: records,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// archiveRecord is the JSONL wire form of a trade record. Amounts are
// decimal strings: they routinely exceed float64 precision.
type archiveRecord struct {
	ID           string    `json:"id"`
	Sell         string    `json:"sell"`
	Buy          string    `json:"buy"`
	SellAmount   string    `json:"sell_amount"`
	MinBuyAmount string    `json:"min_buy_amount"`
	Sold         string    `json:"sold"`
	Bought       string    `json:"bought"`
	AuctionID    string    `json:"auction_id"`
	StartedAt    time.Time `json:"started_at"`
	SettledAt    time.Time `json:"settled_at"`
}

func toArchiveRecord(r domain.TradeRecord) archiveRecord {
	return archiveRecord{
		ID:           r.ID,
		Sell:         r.Sell.Hex(),
		Buy:          r.Buy.Hex(),
		SellAmount:   decimal(r.SellAmount),
		MinBuyAmount: decimal(r.MinBuyAmount),
		Sold:         decimal(r.Sold),
		Bought:       decimal(r.Bought),
		AuctionID:    r.AuctionID,
		StartedAt:    r.StartedAt,
		SettledAt:    r.SettledAt,
	}
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// ArchiveBefore uploads every record settled before the cutoff to
// archive/trades/YYYY-MM.jsonl, then deletes the archived records from the
// store. It returns the number of records archived.
func (a *Archiver) ArchiveBefore(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.records.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath(before)
	if int64(len(buf)) >= minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	deleted, err := a.records.DeleteBefore(ctx, before)
	if err != nil {
		// Upload succeeded; the next run will re-archive and prune.
		return int64(len(records)), fmt.Errorf("s3blob: archive prune: %w", err)
	}

	a.logger.InfoContext(ctx, "records archived",
		slog.String("path", path),
		slog.Int("count", len(records)),
		slog.Int64("deleted", deleted),
	)
	return int64(len(records)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trades/2026-08.jsonl
func archivePath(before time.Time) string {
	return fmt.Sprintf("archive/trades/%s.jsonl", before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL(records []domain.TradeRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(toArchiveRecord(rec)); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
