// Package notify is the engine's side-channel for operator alerts: trade
// entries and exits, order failures, symbol hops. Delivery is best-effort and
// fully decoupled from the trading path — the core never waits on it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event types emitted by the engine. Operators can filter to a subset.
const (
	EventEntry        = "entry"
	EventExit         = "exit"
	EventPositionOpen = "position_open"
	EventOrderFailed  = "order_failed"
	EventPositionLost = "position_lost"
	EventSymbolSwitch = "symbol_switch"
)

// Sender is one delivery channel (Telegram, Discord, ...).
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs, e.g. "telegram".
	Name() string
}

// Notifier fans one notification out to every configured sender, filtered by
// event type. A nil *Notifier is valid and drops everything, so callers never
// need to branch on whether alerting is configured.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types; empty allows all
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for the given senders. Only events listed in
// events pass the filter; an empty list allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers to all senders when the event type passes the filter.
// Individual sender failures are collected; one failing channel does not
// block the others.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if n == nil {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.WarnContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
