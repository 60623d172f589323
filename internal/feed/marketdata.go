// Package feed owns the single public-stream websocket session. It hot-swaps
// the subscribed symbol on scanner command and fans parsed market data out to
// the strategy with a policy differentiated per message kind: order-book
// snapshots are latest-wins and may drop, trade ticks feed VWAP and get a
// bounded-wait send instead.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkozel/scalperbot/internal/domain"
	"github.com/dkozel/scalperbot/internal/platform/bybit"
)

const (
	reconnectDelay   = 5 * time.Second
	pingPeriod       = 20 * time.Second
	writeWait        = 10 * time.Second
	tradeSendTimeout = 100 * time.Millisecond
)

// Actor is the market-data actor. At most one symbol is subscribed at any
// instant.
type Actor struct {
	wsURL          string
	eventCh        chan<- domain.StrategyEvent
	commandCh      <-chan domain.MarketDataCommand
	staleThreshold time.Duration
	logger         *slog.Logger

	currentSymbol domain.Symbol

	// nowMillis is swapped in tests to pin the staleness clock.
	nowMillis func() int64
}

// NewActor creates the feed actor. eventCh is the fan-out channel to the
// strategy; commandCh receives scanner decisions.
func NewActor(wsURL string, staleThreshold time.Duration, eventCh chan<- domain.StrategyEvent, commandCh <-chan domain.MarketDataCommand, logger *slog.Logger) *Actor {
	return &Actor{
		wsURL:          wsURL,
		eventCh:        eventCh,
		commandCh:      commandCh,
		staleThreshold: staleThreshold,
		logger:         logger.With(slog.String("component", "market_data")),
		nowMillis:      func() int64 { return time.Now().UnixMilli() },
	}
}

// Run maintains the websocket session until ctx is cancelled, reconnecting
// with a fixed 5s backoff. A reconnect resubscribes the current symbol and
// never changes it implicitly.
func (a *Actor) Run(ctx context.Context) error {
	a.logger.Info("market data actor started", slog.String("url", a.wsURL))
	defer a.logger.Info("market data actor stopped")

	for {
		err := a.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Error("websocket session ended, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", reconnectDelay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// session runs one websocket connection to completion.
func (a *Actor) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, a.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: dial: %w: %v", domain.ErrWSDisconnect, err)
	}
	defer conn.Close()

	a.logger.Info("websocket connected")

	// Restore the subscription after a reconnect.
	if a.currentSymbol != "" {
		if err := a.subscribe(conn, a.currentSymbol); err != nil {
			return err
		}
	}

	readCh := make(chan []byte, 64)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case readCh <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			return fmt.Errorf("feed: read: %w: %v", domain.ErrWSDisconnect, err)

		case raw := <-readCh:
			a.handleRaw(ctx, raw)

		case cmd := <-a.commandCh:
			if err := a.handleCommand(ctx, conn, cmd); err != nil {
				return err
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("feed: ping: %w: %v", domain.ErrWSDisconnect, err)
			}
		}
	}
}

// handleCommand executes one scanner command against the live connection.
func (a *Actor) handleCommand(ctx context.Context, conn *websocket.Conn, cmd domain.MarketDataCommand) error {
	switch c := cmd.(type) {
	case domain.SwitchSymbol:
		return a.switchSymbol(ctx, conn, c)

	case domain.UpdateStats:
		a.sendBlocking(ctx, domain.StatsUpdated{
			Symbol:         c.Symbol,
			PriceChange24h: c.PriceChange24h,
		})
	}
	return nil
}

// switchSymbol performs the hot swap: unsubscribe the old topics, tell the
// strategy the symbol changed (gating its flatten-and-reset handshake), then
// subscribe the new topics. The ordering is deliberate — the strategy learns
// about the switch before the first message of the new symbol can arrive.
func (a *Actor) switchSymbol(ctx context.Context, conn *websocket.Conn, cmd domain.SwitchSymbol) error {
	a.logger.Info("hot-swapping symbol",
		slog.String("from", a.currentSymbol.String()),
		slog.String("to", cmd.Symbol.String()),
	)

	if a.currentSymbol != "" {
		if err := a.unsubscribe(conn, a.currentSymbol); err != nil {
			return err
		}
	}

	a.sendBlocking(ctx, domain.SymbolChanged{
		Symbol:         cmd.Symbol,
		PriceChange24h: cmd.PriceChange24h,
		Specs:          cmd.Specs,
	})

	if err := a.subscribe(conn, cmd.Symbol); err != nil {
		return err
	}
	a.currentSymbol = cmd.Symbol
	return nil
}

func (a *Actor) subscribe(conn *websocket.Conn, symbol domain.Symbol) error {
	frame, err := bybit.SubscribeFrame(symbol)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("feed: subscribe %s: %w: %v", symbol, domain.ErrWSDisconnect, err)
	}
	a.logger.Info("subscribed", slog.String("symbol", symbol.String()))
	return nil
}

func (a *Actor) unsubscribe(conn *websocket.Conn, symbol domain.Symbol) error {
	frame, err := bybit.UnsubscribeFrame(symbol)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("feed: unsubscribe %s: %w: %v", symbol, domain.ErrWSDisconnect, err)
	}
	a.logger.Info("unsubscribed", slog.String("symbol", symbol.String()))
	return nil
}

// handleRaw parses one inbound frame, applies the staleness filter, and fans
// the result out to the strategy.
func (a *Actor) handleRaw(ctx context.Context, raw []byte) {
	snap, ticks, err := bybit.ParseStreamMessage(raw)
	if err != nil {
		a.logger.Warn("unparseable stream frame", slog.String("error", err.Error()))
		return
	}

	now := a.nowMillis()

	if snap != nil {
		if age := now - snap.Timestamp; age > a.staleThreshold.Milliseconds() {
			a.logger.Debug("dropping stale orderbook", slog.Int64("age_ms", age))
			return
		}
		a.forwardSnapshot(*snap)
	}

	for _, tick := range ticks {
		if age := now - tick.Timestamp; age > a.staleThreshold.Milliseconds() {
			continue
		}
		a.forwardTick(ctx, tick)
	}
}

// forwardSnapshot is a non-blocking try-send: only the latest top-of-book
// matters, so losing a snapshot under backpressure is acceptable.
func (a *Actor) forwardSnapshot(snap domain.OrderBookSnapshot) {
	select {
	case a.eventCh <- domain.OrderBookUpdate{Snapshot: snap}:
	default:
		a.logger.Debug("orderbook snapshot dropped under backpressure",
			slog.String("symbol", snap.Symbol.String()),
		)
	}
}

// forwardTick waits up to 100 ms for channel space. A dropped tick corrupts
// the VWAP, so the timeout is logged as a data-integrity error — but the
// connection is not torn down over it.
func (a *Actor) forwardTick(ctx context.Context, tick domain.TradeTick) {
	timer := time.NewTimer(tradeSendTimeout)
	defer timer.Stop()

	select {
	case a.eventCh <- domain.TradeUpdate{Tick: tick}:
	case <-timer.C:
		a.logger.Error("trade tick dropped: strategy channel congested, VWAP integrity degraded",
			slog.String("symbol", tick.Symbol.String()),
		)
	case <-ctx.Done():
	}
}

// sendBlocking delivers control-plane events that must not be dropped.
func (a *Actor) sendBlocking(ctx context.Context, ev domain.StrategyEvent) {
	select {
	case a.eventCh <- ev:
	case <-ctx.Done():
	}
}
