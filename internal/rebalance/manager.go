// Package rebalance implements the backing manager: the orchestrator that
// keeps the token fully backed by its target basket, trading one surplus
// asset for one deficit asset at a time through the broker.
package rebalance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/alanyoungcy/rebalancer/internal/broker"
	"github.com/alanyoungcy/rebalancer/internal/domain"
	"github.com/alanyoungcy/rebalancer/internal/trade"
)

// Config holds the manager's trading parameters. Volumes and the dust
// threshold are unit-of-account values at 1e18 scale; the slippage is a
// 1e18-scale fraction.
type Config struct {
	MaxTradeSlippage *big.Int
	MinTradeVolume   *big.Int
	MaxTradeVolume   *big.Int
	DustAmount       *big.Int
	TradingDelay     time.Duration
}

// Manager scans surplus and deficit assets, launches at most one trade per
// sell asset, and reconciles settlements back into its holdings.
type Manager struct {
	mu     sync.Mutex
	trades map[domain.Asset]*trade.Trade

	cfg     Config
	account domain.Account
	broker  *broker.Broker
	capview domain.CapitalizationView
	oracle  domain.PriceOracle
	records domain.TradeRecordStore
	events  domain.EventSink
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a Manager trading out of the given ledger account. records
// and events may be nil.
func New(cfg Config, account domain.Account, b *broker.Broker, capview domain.CapitalizationView, oracle domain.PriceOracle, records domain.TradeRecordStore, events domain.EventSink, now func() time.Time, logger *slog.Logger) *Manager {
	return &Manager{
		trades:  make(map[domain.Asset]*trade.Trade),
		cfg:     cfg,
		account: account,
		broker:  b,
		capview: capview,
		oracle:  oracle,
		records: records,
		events:  events,
		now:     now,
		logger:  logger.With(slog.String("component", "backing_manager")),
	}
}

// candidate is one asset's surplus or deficit, valued in unit-of-account.
type candidate struct {
	asset domain.Asset
	qty   *big.Int
	value *big.Int
	price *big.Int
}

// ManageTokens evaluates the current capitalization and, when a worthwhile
// trade exists, opens an auction selling the largest-value surplus asset
// for the largest-value deficit asset. Ties are broken by hintOrder, then
// by ascending asset address, so the choice is deterministic. A stale price
// on any considered asset aborts the whole call; nothing is traded on a
// guessed value.
func (m *Manager) ManageTokens(ctx context.Context, hintOrder []domain.Asset) error {
	if m.broker.Disabled() {
		return fmt.Errorf("rebalance: %w", domain.ErrTradingDisabled)
	}

	basketAt, err := m.capview.BasketTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("rebalance: basket timestamp: %w", err)
	}
	if m.now().Before(basketAt.Add(m.cfg.TradingDelay)) {
		return fmt.Errorf("rebalance: %w", domain.ErrCooldownActive)
	}

	full, err := m.capview.FullyCapitalized(ctx)
	if err != nil {
		return fmt.Errorf("rebalance: capitalization check: %w", err)
	}
	if full {
		return nil
	}

	sell, buy, err := m.selectTrade(ctx, hintOrder)
	if err != nil {
		return err
	}
	if sell == nil || buy == nil {
		return nil
	}

	// Below the volume floor, or chasing a dust-sized deficit: not worth an
	// auction.
	if sell.value.Cmp(m.cfg.MinTradeVolume) < 0 {
		return nil
	}
	if buy.value.Cmp(m.cfg.DustAmount) < 0 {
		return nil
	}

	sellAmount := new(big.Int).Set(sell.qty)
	maxQty, err := QuantityForNotional(m.cfg.MaxTradeVolume, sell.price)
	if err != nil {
		return fmt.Errorf("rebalance: size trade: %w", err)
	}
	if sellAmount.Cmp(maxQty) > 0 {
		sellAmount.Set(maxQty)
	}

	minBuy, err := WorstCaseBuyAmount(sellAmount, sell.price, buy.price, m.cfg.MaxTradeSlippage)
	if err != nil {
		return fmt.Errorf("rebalance: worst-case price: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Registry invariant: at most one open trade per sell asset, enforced
	// before creation.
	if _, exists := m.trades[sell.asset]; exists {
		return fmt.Errorf("rebalance: sell asset %s: %w", sell.asset.Hex(), domain.ErrTradeOpen)
	}

	t, err := m.broker.OpenTrade(ctx, m.account, sell.asset, buy.asset, sellAmount, minBuy)
	if err != nil {
		return fmt.Errorf("rebalance: open trade: %w", err)
	}
	m.trades[sell.asset] = t

	info := t.Info()
	m.logger.Info("trade started",
		slog.String("trade_id", info.ID),
		slog.String("sell", sell.asset.Hex()),
		slog.String("buy", buy.asset.Hex()),
		slog.String("sell_amount", sellAmount.String()),
		slog.String("min_buy_amount", minBuy.String()),
	)
	m.publish(domain.TradeEvent{
		Type:         domain.EventTradeStarted,
		TradeID:      info.ID,
		Sell:         sell.asset,
		Buy:          buy.asset,
		SellAmount:   sellAmount,
		MinBuyAmount: minBuy,
		AuctionID:    info.AuctionID,
		At:           m.now(),
	})
	return nil
}

// SettleTrade settles the open trade for the given sell asset, removes it
// from the registry, and records the outcome. It never starts a follow-up
// trade; that happens only on the next ManageTokens call.
func (m *Manager) SettleTrade(ctx context.Context, sell domain.Asset) (sold, bought *big.Int, err error) {
	m.mu.Lock()
	t, ok := m.trades[sell]
	m.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("rebalance: no open trade for %s: %w", sell.Hex(), domain.ErrNotFound)
	}

	sold, bought, err = t.Settle(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("rebalance: settle %s: %w", sell.Hex(), err)
	}

	m.mu.Lock()
	delete(m.trades, sell)
	m.mu.Unlock()

	info := t.Info()
	m.logger.Info("trade settled",
		slog.String("trade_id", info.ID),
		slog.String("sell", info.Sell.Hex()),
		slog.String("buy", info.Buy.Hex()),
		slog.String("sold", sold.String()),
		slog.String("bought", bought.String()),
	)

	if m.records != nil {
		rec := domain.TradeRecord{
			ID:           info.ID,
			Sell:         info.Sell,
			Buy:          info.Buy,
			SellAmount:   info.SellAmount,
			MinBuyAmount: info.MinBuyAmount,
			Sold:         sold,
			Bought:       bought,
			AuctionID:    info.AuctionID,
			StartedAt:    info.StartTime,
			SettledAt:    m.now(),
		}
		// Persistence is observability, not accounting: a failed insert
		// must not undo a completed settlement.
		if serr := m.records.Insert(ctx, rec); serr != nil {
			m.logger.Error("record settled trade",
				slog.String("trade_id", info.ID),
				slog.String("error", serr.Error()),
			)
		}
	}

	m.publish(domain.TradeEvent{
		Type:      domain.EventTradeSettled,
		TradeID:   info.ID,
		Sell:      info.Sell,
		Buy:       info.Buy,
		Sold:      sold,
		Bought:    bought,
		AuctionID: info.AuctionID,
		At:        m.now(),
	})
	return sold, bought, nil
}

func (m *Manager) publish(ev domain.TradeEvent) {
	if m.events != nil {
		m.events.Publish(ev)
	}
}

// OpenTrades returns snapshots of every registered trade, for monitoring.
func (m *Manager) OpenTrades() []domain.TradeInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]domain.TradeInfo, 0, len(m.trades))
	for _, t := range m.trades {
		infos = append(infos, t.Info())
	}
	return infos
}

// SettleDue settles every registered trade that can currently settle and
// reports how many were settled. Errors on individual trades are logged,
// not fatal; a later heartbeat retries.
func (m *Manager) SettleDue(ctx context.Context) int {
	m.mu.Lock()
	due := make([]domain.Asset, 0, len(m.trades))
	for asset, t := range m.trades {
		if can, err := t.CanSettle(ctx); err == nil && can {
			due = append(due, asset)
		}
	}
	m.mu.Unlock()

	settled := 0
	for _, asset := range due {
		if _, _, err := m.SettleTrade(ctx, asset); err != nil {
			m.logger.Warn("heartbeat settlement failed",
				slog.String("sell", asset.Hex()),
				slog.String("error", err.Error()),
			)
			continue
		}
		settled++
	}
	return settled
}

// selectTrade picks the largest-value surplus and deficit assets. It
// returns nils when no surplus or no deficit exists.
func (m *Manager) selectTrade(ctx context.Context, hintOrder []domain.Asset) (sell, buy *candidate, err error) {
	assets, err := m.capview.Assets(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("rebalance: list assets: %w", err)
	}

	rank := make(map[domain.Asset]int, len(hintOrder))
	for i, a := range hintOrder {
		if _, ok := rank[a]; !ok {
			rank[a] = i
		}
	}

	for _, asset := range assets {
		held, err := m.capview.Held(ctx, asset)
		if err != nil {
			return nil, nil, fmt.Errorf("rebalance: held %s: %w", asset.Hex(), err)
		}
		needed, err := m.capview.Needed(ctx, asset)
		if err != nil {
			return nil, nil, fmt.Errorf("rebalance: needed %s: %w", asset.Hex(), err)
		}
		price, err := m.oracle.Price(ctx, asset)
		if err != nil {
			return nil, nil, fmt.Errorf("rebalance: price %s: %w", asset.Hex(), err)
		}

		diff := new(big.Int).Sub(held, needed)
		switch {
		case diff.Sign() > 0:
			c := &candidate{asset: asset, qty: diff, value: domain.Notional(diff, price), price: price}
			if better(c, sell, rank) {
				sell = c
			}
		case diff.Sign() < 0:
			deficit := new(big.Int).Neg(diff)
			c := &candidate{asset: asset, qty: deficit, value: domain.Notional(deficit, price), price: price}
			if better(c, buy, rank) {
				buy = c
			}
		}
	}
	return sell, buy, nil
}

// better reports whether a should replace best: strictly larger value wins,
// value ties fall back to the caller's hint order, and assets absent from
// the hint compare by address so the result never depends on map order.
func better(a, best *candidate, rank map[domain.Asset]int) bool {
	if best == nil {
		return true
	}
	if c := a.value.Cmp(best.value); c != 0 {
		return c > 0
	}
	ra, okA := rank[a.asset]
	rb, okB := rank[best.asset]
	switch {
	case okA && okB:
		return ra < rb
	case okA:
		return true
	case okB:
		return false
	default:
		return bytes.Compare(a.asset.Bytes(), best.asset.Bytes()) < 0
	}
}

// IsNoOp reports whether err is one of the expected precondition rejections
// that a heartbeat loop should log quietly rather than alert on.
func IsNoOp(err error) bool {
	return errors.Is(err, domain.ErrCooldownActive) ||
		errors.Is(err, domain.ErrTradeOpen) ||
		errors.Is(err, domain.ErrTradingDisabled)
}
