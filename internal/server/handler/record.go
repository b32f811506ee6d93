package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/rebalancer/internal/domain"
)

// RecordHandler serves settled trade record endpoints.
type RecordHandler struct {
	store  domain.TradeRecordStore
	logger *slog.Logger
}

// NewRecordHandler creates a RecordHandler over the given store.
func NewRecordHandler(store domain.TradeRecordStore, logger *slog.Logger) *RecordHandler {
	return &RecordHandler{
		store:  store,
		logger: logger.With(slog.String("handler", "records")),
	}
}

// recordResponse is the JSON form of a settled trade record.
type recordResponse struct {
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

func toRecordResponse(rec domain.TradeRecord) recordResponse {
	return recordResponse{
		ID:           rec.ID,
		Sell:         rec.Sell.Hex(),
		Buy:          rec.Buy.Hex(),
		SellAmount:   amountString(rec.SellAmount),
		MinBuyAmount: amountString(rec.MinBuyAmount),
		Sold:         amountString(rec.Sold),
		Bought:       amountString(rec.Bought),
		AuctionID:    rec.AuctionID,
		StartedAt:    rec.StartedAt,
		SettledAt:    rec.SettledAt,
	}
}

// ListRecent responds with the most recently settled trades.
// GET /api/records
func (h *RecordHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	records, err := h.store.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list records",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}

	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": out,
		"count":   len(out),
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// GetRecord responds with a single settled trade by ID.
// GET /api/records/{id}
func (h *RecordHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing record id")
		return
	}

	rec, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get record",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get record")
		return
	}

	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}
