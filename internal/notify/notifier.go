// Package notify delivers trade lifecycle alerts to external channels.
// Alerts are dispatched to all registered senders (Telegram, Discord) and
// filtered by event type so operators receive only what they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/alanyoungcy/rebalancer/internal/domain"
)

// Sender is the interface each notification channel implements.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a short channel identifier (e.g. "telegram").
	Name() string
}

// Notifier formats trade lifecycle events into operator-readable alerts and
// dispatches them to every registered sender. It implements
// domain.EventSink; Publish never blocks the trading path.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types; empty means all
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Notifier delivering to the given senders. Only events whose
// type appears in the events slice are forwarded; an empty slice allows all.
func New(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		timeout: 15 * time.Second,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Publish implements domain.EventSink. Delivery happens on a separate
// goroutine with its own timeout so a slow channel cannot stall settlement.
func (n *Notifier) Publish(ev domain.TradeEvent) {
	if len(n.senders) == 0 {
		return
	}
	if len(n.events) > 0 && !n.events[ev.Type] {
		return
	}

	title, message := render(ev)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		n.dispatch(ctx, title, message)
	}()
}

// render turns an event into a title and body for the alert channels.
func render(ev domain.TradeEvent) (title, message string) {
	pair := fmt.Sprintf("%s -> %s", short(ev.Sell), short(ev.Buy))
	switch ev.Type {
	case domain.EventTradeStarted:
		title = "Trade started"
		message = fmt.Sprintf("%s\nselling %s for at least %s\ntrade %s auction %s",
			pair, amount(ev.SellAmount), amount(ev.MinBuyAmount), ev.TradeID, ev.AuctionID)
	case domain.EventTradeSettled:
		title = "Trade settled"
		message = fmt.Sprintf("%s\nsold %s bought %s\ntrade %s",
			pair, amount(ev.Sold), amount(ev.Bought), ev.TradeID)
	case domain.EventBreakerTripped:
		title = "Circuit breaker tripped"
		message = fmt.Sprintf("%s\nsold %s but received only %s (floor %s)\ntrading is now disabled; trade %s",
			pair, amount(ev.Sold), amount(ev.Bought), amount(ev.MinBuyAmount), ev.TradeID)
	default:
		title = ev.Type
		message = pair
	}
	return title, message
}

func short(a domain.Asset) string {
	s := a.Hex()
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

func amount(v *big.Int) string {
	if v == nil {
		return "?"
	}
	return v.String()
}

// dispatch sends to every sender; one channel failing does not prevent
// delivery to the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) {
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
}
