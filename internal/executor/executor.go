// Package executor realizes strategy decisions against the venue: it places
// orders, verifies fills, verifies closes, and reconciles position state.
// It holds no strategy state and never decides whether to trade, only how to
// carry a decision out safely. The venue's order status and position queries
// are the sole sources of truth — an HTTP 200 on placement proves nothing.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dkozel/scalperbot/internal/domain"
)

// Venue is the slice of the REST client the executor needs. *bybit.Client
// implements it.
type Venue interface {
	PlaceOrder(ctx context.Context, order domain.Order) (string, error)
	GetOrderStatus(ctx context.Context, symbol domain.Symbol, orderID string) (domain.OrderStatus, error)
	CancelOrder(ctx context.Context, symbol domain.Symbol, orderID string) error
	GetPosition(ctx context.Context, symbol domain.Symbol) ([]domain.VenuePosition, error)
}

// Timing bundles the polling cadence. Production uses DefaultTiming; tests
// shrink it.
type Timing struct {
	PollInterval     time.Duration // between order-status polls
	MaxPolls         int           // entry fill polling cap
	CloseMaxPolls    int           // close fill polling cap
	CancelSettle     time.Duration // wait between cancel and the final re-query
	ReconcileRetries int           // empty-position retries
	ReconcileDelay   time.Duration // between empty-position retries
}

// DefaultTiming: 500 ms × 20 polls (10 s) for entries, half for closes,
// 300 ms cancel settle, 3 × 200 ms reconciliation retries.
func DefaultTiming() Timing {
	return Timing{
		PollInterval:     500 * time.Millisecond,
		MaxPolls:         20,
		CloseMaxPolls:    10,
		CancelSettle:     300 * time.Millisecond,
		ReconcileRetries: 3,
		ReconcileDelay:   200 * time.Millisecond,
	}
}

// Actor is the execution actor. Commands are processed one at a time; a
// single outstanding order ever exists because the strategy gates on its own
// state machine.
type Actor struct {
	venue      Venue
	commandCh  <-chan domain.ExecutionCommand
	feedbackCh chan<- domain.ExecutionFeedback
	journal    domain.Journal // optional
	timing     Timing
	logger     *slog.Logger
}

// NewActor creates the execution actor. journal may be nil.
func NewActor(venue Venue, commandCh <-chan domain.ExecutionCommand, feedbackCh chan<- domain.ExecutionFeedback, journal domain.Journal, logger *slog.Logger) *Actor {
	return &Actor{
		venue:      venue,
		commandCh:  commandCh,
		feedbackCh: feedbackCh,
		journal:    journal,
		timing:     DefaultTiming(),
		logger:     logger.With(slog.String("component", "executor")),
	}
}

// Run processes commands until ctx is cancelled.
func (a *Actor) Run(ctx context.Context) error {
	a.logger.Info("executor started")
	defer a.logger.Info("executor stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-a.commandCh:
			a.handle(ctx, cmd)
		}
	}
}

func (a *Actor) handle(ctx context.Context, cmd domain.ExecutionCommand) {
	switch c := cmd.(type) {
	case domain.PlaceOrder:
		a.handlePlaceOrder(ctx, c.Order)
	case domain.ClosePosition:
		a.handleClosePosition(ctx, c.Symbol, c.Side)
	case domain.GetPosition:
		a.reconcile(ctx, c.Symbol, true)
	}
}

// --------------------------------------------------------------------------
// Entry orders
// --------------------------------------------------------------------------

func (a *Actor) handlePlaceOrder(ctx context.Context, order domain.Order) {
	log := a.logger.With(
		slog.String("symbol", order.Symbol.String()),
		slog.String("side", string(order.Side)),
		slog.String("qty", order.Qty.String()),
	)

	orderID, err := a.venue.PlaceOrder(ctx, order)
	if err != nil {
		log.Error("order placement failed", slog.String("error", err.Error()))
		a.sendFeedback(ctx, domain.OrderFailed{Reason: fmt.Sprintf("place order: %v", err)})
		return
	}
	log = log.With(slog.String("order_id", orderID))
	log.Info("order accepted by venue")
	a.journalOrder(ctx, order, orderID, "Submitted", "")

	// Acceptance is not a fill. Poll until the venue reports a terminal
	// status or the window runs out.
	for attempt := 1; attempt <= a.timing.MaxPolls; attempt++ {
		if !a.sleep(ctx, a.timing.PollInterval) {
			return
		}

		status, err := a.venue.GetOrderStatus(ctx, order.Symbol, orderID)
		if err != nil {
			log.Warn("order status poll failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}

		switch status.Status {
		case domain.OrderStatusFilled:
			log.Info("order filled", slog.String("avg_price", status.AvgPrice.String()))
			a.journalOrder(ctx, order, orderID, status.Status, "")
			a.sendFeedback(ctx, domain.OrderFilled{Symbol: order.Symbol})
			if pos := a.reconcile(ctx, order.Symbol, true); pos != nil {
				a.journalPosition(ctx, *pos, domain.PositionEventOpen)
			}
			return

		case domain.OrderStatusCancelled, domain.OrderStatusRejected:
			log.Warn("order terminal without fill", slog.String("status", status.Status))
			a.journalOrder(ctx, order, orderID, status.Status, "")
			a.sendFeedback(ctx, domain.OrderFailed{Reason: fmt.Sprintf("order %s %s", orderID, status.Status)})
			return
		}
		// New / PartiallyFilled: keep polling.
	}

	a.resolveTimedOutOrder(ctx, order, orderID, log)
}

// resolveTimedOutOrder cancels an unconfirmed order, then ALWAYS re-queries
// the final status. The order can fill during the cancel round-trip; treating
// the cancel as success there would leave an untracked position behind.
func (a *Actor) resolveTimedOutOrder(ctx context.Context, order domain.Order, orderID string, log *slog.Logger) {
	log.Warn("order confirmation timed out, cancelling")

	if err := a.venue.CancelOrder(ctx, order.Symbol, orderID); err != nil {
		log.Error("cancel failed", slog.String("error", err.Error()))
	}
	if !a.sleep(ctx, a.timing.CancelSettle) {
		return
	}

	final, err := a.venue.GetOrderStatus(ctx, order.Symbol, orderID)
	if err != nil {
		// Cannot confirm anything: surface the venue's position view and let
		// the strategy resolve from there.
		log.Error("final status query failed", slog.String("error", err.Error()))
		a.reconcile(ctx, order.Symbol, true)
		a.sendFeedback(ctx, domain.OrderFailed{Reason: fmt.Sprintf("order %s cancel attempted, final state unknown", orderID)})
		return
	}

	switch {
	case final.Status == domain.OrderStatusFilled:
		// The cancel lost the race; the position is real.
		log.Warn("order filled during cancel")
		a.journalOrder(ctx, order, orderID, final.Status, "filled during cancel")
		a.sendFeedback(ctx, domain.OrderFilled{Symbol: order.Symbol})
		if pos := a.reconcile(ctx, order.Symbol, true); pos != nil {
			a.journalPosition(ctx, *pos, domain.PositionEventOpen)
		}

	case final.CumExecQty.IsPositive():
		// Partial execution before the cancel took: a residual position
		// exists and must be synced before the failure is reported.
		reason := fmt.Sprintf("partial fill %s/%s", final.CumExecQty, final.Qty)
		log.Warn("order partially filled before cancel", slog.String("detail", reason))
		a.journalOrder(ctx, order, orderID, final.Status, reason)
		a.reconcile(ctx, order.Symbol, true)
		a.sendFeedback(ctx, domain.OrderFailed{Reason: reason})

	default:
		log.Info("order cancelled cleanly after timeout")
		a.journalOrder(ctx, order, orderID, final.Status, "timeout")
		a.sendFeedback(ctx, domain.OrderFailed{Reason: "timeout"})
	}
}

// --------------------------------------------------------------------------
// Close orders
// --------------------------------------------------------------------------

func (a *Actor) handleClosePosition(ctx context.Context, symbol domain.Symbol, side domain.PositionSide) {
	log := a.logger.With(
		slog.String("symbol", symbol.String()),
		slog.String("side", string(side)),
	)
	log.Info("closing position")

	positions, err := a.venue.GetPosition(ctx, symbol)
	if err != nil {
		log.Error("position query failed before close", slog.String("error", err.Error()))
		a.sendFeedback(ctx, domain.OrderFailed{Reason: fmt.Sprintf("close: position query: %v", err)})
		return
	}

	live := firstLive(positions)
	if live == nil {
		log.Warn("no live position to close")
		a.sendFeedback(ctx, domain.PositionUpdate{Position: nil})
		return
	}

	closeOrder := domain.Order{
		Symbol:      symbol,
		Side:        live.Side.Opposite(),
		Type:        domain.OrderTypeMarket,
		Qty:         live.Size,
		TimeInForce: domain.TimeInForceIOC,
		ReduceOnly:  true,
	}

	orderID, err := a.venue.PlaceOrder(ctx, closeOrder)
	if err != nil {
		log.Error("close order placement failed", slog.String("error", err.Error()))
		a.sendFeedback(ctx, domain.OrderFailed{Reason: fmt.Sprintf("close order: %v", err)})
		return
	}
	log = log.With(slog.String("order_id", orderID))
	a.journalOrder(ctx, closeOrder, orderID, "Submitted", "close")

	for attempt := 1; attempt <= a.timing.CloseMaxPolls; attempt++ {
		if !a.sleep(ctx, a.timing.PollInterval) {
			return
		}

		status, err := a.venue.GetOrderStatus(ctx, symbol, orderID)
		if err != nil {
			log.Warn("close status poll failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}

		switch status.Status {
		case domain.OrderStatusFilled:
			log.Info("close order filled")
			a.journalOrder(ctx, closeOrder, orderID, status.Status, "close")
			a.journalPosition(ctx, venueToPosition(symbol, *live), domain.PositionEventClose)
			a.sendFeedback(ctx, domain.PositionUpdate{Position: nil})
			return

		case domain.OrderStatusCancelled, domain.OrderStatusRejected:
			// Market closes CAN be rejected (price protection, risk limits).
			// The position still exists; reporting flat here bleeds money.
			log.Error("close order terminal without fill", slog.String("status", status.Status))
			a.journalOrder(ctx, closeOrder, orderID, status.Status, "close")
			a.sendFeedback(ctx, domain.OrderFailed{Reason: fmt.Sprintf("close order %s %s", orderID, status.Status)})
			return
		}
	}

	// Never assume filled on timeout: re-query once, then fall back to the
	// position itself as the source of truth.
	log.Warn("close confirmation timed out, verifying")

	final, err := a.venue.GetOrderStatus(ctx, symbol, orderID)
	if err == nil && final.Status == domain.OrderStatusFilled {
		log.Info("close verified filled after timeout")
		a.journalOrder(ctx, closeOrder, orderID, final.Status, "close")
		a.journalPosition(ctx, venueToPosition(symbol, *live), domain.PositionEventClose)
		a.sendFeedback(ctx, domain.PositionUpdate{Position: nil})
		return
	}
	if err != nil {
		log.Error("close status verification failed", slog.String("error", err.Error()))
	}
	a.reconcile(ctx, symbol, true)
}

// --------------------------------------------------------------------------
// Reconciliation
// --------------------------------------------------------------------------

// reconcile queries the venue's position list, retrying a bounded number of
// times when it comes back empty — replication lag can briefly show flat
// right after a fresh fill. When emit is set, the resulting authoritative
// view is pushed to the strategy as a PositionUpdate.
func (a *Actor) reconcile(ctx context.Context, symbol domain.Symbol, emit bool) *domain.Position {
	for attempt := 1; ; attempt++ {
		positions, err := a.venue.GetPosition(ctx, symbol)
		if err != nil {
			if attempt >= a.timing.ReconcileRetries {
				// State unknown; emitting a guess would be worse than silence.
				a.logger.Error("position reconciliation failed",
					slog.String("symbol", symbol.String()),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if !a.sleep(ctx, a.timing.ReconcileDelay) {
				return nil
			}
			continue
		}

		if live := firstLive(positions); live != nil {
			pos := venueToPosition(symbol, *live)
			if emit {
				a.sendFeedback(ctx, domain.PositionUpdate{Position: &pos})
			}
			return &pos
		}

		if attempt >= a.timing.ReconcileRetries {
			a.logger.Info("position confirmed empty",
				slog.String("symbol", symbol.String()),
				slog.Int("retries", attempt),
			)
			if emit {
				a.sendFeedback(ctx, domain.PositionUpdate{Position: nil})
			}
			return nil
		}

		a.logger.Debug("position query empty, retrying",
			slog.String("symbol", symbol.String()),
			slog.Int("attempt", attempt),
		)
		if !a.sleep(ctx, a.timing.ReconcileDelay) {
			return nil
		}
	}
}

func firstLive(positions []domain.VenuePosition) *domain.VenuePosition {
	for i := range positions {
		if positions[i].Size.IsPositive() {
			return &positions[i]
		}
	}
	return nil
}

func venueToPosition(symbol domain.Symbol, v domain.VenuePosition) domain.Position {
	return domain.Position{
		Symbol:       symbol,
		Side:         v.PositionSide(),
		Size:         v.Size,
		EntryPrice:   v.AvgPrice,
		CurrentPrice: v.AvgPrice,
	}
}

// --------------------------------------------------------------------------
// Plumbing
// --------------------------------------------------------------------------

// sendFeedback blocks until the strategy accepts the message. Feedback is
// control-plane: dropping it desynchronizes the state machine.
func (a *Actor) sendFeedback(ctx context.Context, fb domain.ExecutionFeedback) {
	select {
	case a.feedbackCh <- fb:
	case <-ctx.Done():
		a.logger.Error("context cancelled while sending execution feedback")
	}
}

func (a *Actor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (a *Actor) journalOrder(ctx context.Context, order domain.Order, orderID, status, reason string) {
	if a.journal == nil {
		return
	}
	rec := domain.OrderRecord{
		OrderID:     orderID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Type:        order.Type,
		Qty:         order.Qty.String(),
		TimeInForce: order.TimeInForce,
		ReduceOnly:  order.ReduceOnly,
		Status:      status,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	}
	if order.Price != nil {
		rec.Price = order.Price.String()
	}
	if err := a.journal.RecordOrder(ctx, rec); err != nil {
		a.logger.Warn("order journal write failed", slog.String("error", err.Error()))
	}
}

func (a *Actor) journalPosition(ctx context.Context, pos domain.Position, event string) {
	if a.journal == nil {
		return
	}
	rec := domain.PositionRecord{
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Size:       pos.Size.String(),
		EntryPrice: pos.EntryPrice.String(),
		Event:      event,
		PnLPercent: pos.PnLPercent(),
		At:         time.Now().UTC(),
	}
	if err := a.journal.RecordPosition(ctx, rec); err != nil {
		a.logger.Warn("position journal write failed", slog.String("error", err.Error()))
	}
}
