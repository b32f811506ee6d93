package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/rebalancer/internal/basket"
	"github.com/alanyoungcy/rebalancer/internal/broker"
	"github.com/alanyoungcy/rebalancer/internal/config"
	"github.com/alanyoungcy/rebalancer/internal/domain"
	"github.com/alanyoungcy/rebalancer/internal/ledger"
	"github.com/alanyoungcy/rebalancer/internal/oracle"
	"github.com/alanyoungcy/rebalancer/internal/rebalance"
	"github.com/alanyoungcy/rebalancer/internal/server"
	"github.com/alanyoungcy/rebalancer/internal/server/handler"
	"github.com/alanyoungcy/rebalancer/internal/server/ws"
	"github.com/alanyoungcy/rebalancer/internal/venue/gateway"
	"github.com/alanyoungcy/rebalancer/internal/venue/simauction"
)

// multiSink fans a trade event out to several sinks.
type multiSink []domain.EventSink

func (m multiSink) Publish(ev domain.TradeEvent) {
	for _, s := range m {
		s.Publish(ev)
	}
}

// eventSink combines the WebSocket hub and the notifier into one sink,
// skipping nil members.
func eventSink(hub *ws.Hub, sinks ...domain.EventSink) domain.EventSink {
	out := multiSink{}
	if hub != nil {
		out = append(out, hub)
	}
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// RunMode trades against the live venue gateway: custody and auctions go
// through the gateway, prices come from the Redis-backed oracle cache, and
// settlements are persisted to Postgres.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting run mode")

	assets, needed, err := a.cfg.Rebalance.ParseTargets()
	if err != nil {
		return err
	}
	hintOrder, err := a.cfg.Rebalance.ParseHintOrder()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.cfg.Mode, a.logger)
	g.Go(func() error { return hub.Run(ctx) })
	events := eventSink(hub, deps.Notifier)

	gw := gateway.NewClient(a.cfg.Venue.BaseURL, a.cfg.Venue.APIKey)
	custody := gateway.NewLedger(gw)

	account := domain.Account(a.cfg.Rebalance.Account)
	view := basket.NewView(custody, account, time.Now)
	if err := view.SetTarget(assets, needed); err != nil {
		return err
	}

	prices := oracle.NewCached(deps.PriceCache, a.cfg.Rebalance.PriceMaxAge.Duration, time.Now)

	state := broker.NewBreakerState()
	brk := broker.New(
		broker.Config{AuctionLength: a.cfg.Rebalance.AuctionLength.Duration},
		state, gw, custody, events, time.Now, a.logger,
	)

	mgr := rebalance.New(
		a.rebalanceConfig(),
		account, brk, view, prices, deps.Records, events, time.Now, a.logger,
	)

	g.Go(func() error { return a.heartbeat(ctx, mgr, hintOrder) })

	if deps.Archiver != nil {
		g.Go(func() error { return a.archiveLoop(ctx, deps) })
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, mgr, state, hub)
	}

	return g.Wait()
}

// SimMode runs the whole pipeline in-process against the in-memory ledger
// and deterministic auction venue, seeding balances and oracle prices from
// the configured targets.
func (a *App) SimMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sim mode")

	assets, needed, err := a.cfg.Rebalance.ParseTargets()
	if err != nil {
		return err
	}
	hintOrder, err := a.cfg.Rebalance.ParseHintOrder()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.cfg.Mode, a.logger)
	g.Go(func() error { return hub.Run(ctx) })
	events := eventSink(hub, deps.Notifier)

	account := domain.Account(a.cfg.Rebalance.Account)

	book := ledger.NewMemLedger()
	prices := oracle.NewStatic()
	for i, t := range a.cfg.Rebalance.Targets {
		held := t.Amount
		if t.Held != nil {
			held = *t.Held
		}
		book.Mint(assets[i], account, config.Fix(held))

		price := t.Price
		if price == 0 {
			price = 1.0
		}
		prices.SetPrice(assets[i], config.Fix(price))
	}

	view := basket.NewView(book, account, time.Now)
	if err := view.SetTarget(assets, needed); err != nil {
		return err
	}

	venue := simauction.New(
		simauction.Config{MinBidSize: config.Fix(a.cfg.Rebalance.MinBidSize)},
		book, time.Now, a.logger,
	)

	state := broker.NewBreakerState()
	brk := broker.New(
		broker.Config{AuctionLength: a.cfg.Rebalance.AuctionLength.Duration},
		state, venue, book, events, time.Now, a.logger,
	)

	mgr := rebalance.New(
		a.rebalanceConfig(),
		account, brk, view, prices, deps.Records, events, time.Now, a.logger,
	)

	g.Go(func() error { return a.heartbeat(ctx, mgr, hintOrder) })

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, mgr, state, hub)
	}

	return g.Wait()
}

// MonitorMode serves the read-only API over the settlement history without
// starting any trading goroutines.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.cfg.Mode, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	if deps.Archiver != nil {
		g.Go(func() error { return a.archiveLoop(ctx, deps) })
	}

	a.startHTTPServer(ctx, g, deps, nil, nil, hub)

	return g.Wait()
}

// rebalanceConfig converts the TOML trading parameters to 1e18-scale values.
func (a *App) rebalanceConfig() rebalance.Config {
	r := a.cfg.Rebalance
	return rebalance.Config{
		MaxTradeSlippage: config.Fix(r.MaxTradeSlippage),
		MinTradeVolume:   config.Fix(r.MinTradeVolume),
		MaxTradeVolume:   config.Fix(r.MaxTradeVolume),
		DustAmount:       config.Fix(r.DustAmount),
		TradingDelay:     r.TradingDelay.Duration,
	}
}

// heartbeat drives the manager: each tick settles due trades, then scans
// for the next rebalancing trade. No-op outcomes are logged at debug only.
func (a *App) heartbeat(ctx context.Context, mgr *rebalance.Manager, hintOrder []domain.Asset) error {
	ticker := time.NewTicker(a.cfg.Rebalance.Heartbeat.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if settled := mgr.SettleDue(ctx); settled > 0 {
				a.logger.InfoContext(ctx, "heartbeat settled trades",
					slog.Int("count", settled),
				)
			}

			if err := mgr.ManageTokens(ctx, hintOrder); err != nil {
				if rebalance.IsNoOp(err) {
					a.logger.DebugContext(ctx, "no trade this tick",
						slog.String("reason", err.Error()),
					)
					continue
				}
				a.logger.ErrorContext(ctx, "manage tokens failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// archiveLoop periodically moves settlement records older than the
// retention window to the S3 archive.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
			count, err := deps.Archiver.ArchiveBefore(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive run failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if count > 0 {
				a.logger.InfoContext(ctx, "archive run complete",
					slog.Int64("records", count),
				)
			}
		}
	}
}

// startHTTPServer registers the monitoring API and runs it until the
// context is cancelled. mgr and state may be nil (monitor mode), which
// leaves their routes unregistered.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	mgr *rebalance.Manager,
	state *broker.BreakerState,
	hub *ws.Hub,
) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.cfg.Mode),
	}
	if mgr != nil {
		handlers.Trades = handler.NewTradeHandler(mgr)
	}
	if deps.Records != nil {
		handlers.Records = handler.NewRecordHandler(deps.Records, a.logger)
	}
	if state != nil {
		handlers.Breaker = handler.NewBreakerHandler(state, a.logger)
	}

	srv := server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
