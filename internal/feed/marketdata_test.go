package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkozel/scalperbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestActor(eventCh chan domain.StrategyEvent, commandCh chan domain.MarketDataCommand) *Actor {
	a := NewActor("ws://unused", 500*time.Millisecond, eventCh, commandCh, testLogger())
	a.nowMillis = func() int64 { return 1700000000600 }
	return a
}

func orderbookFrame(symbol string, ts int64) []byte {
	return []byte(`{"topic":"orderbook.1.` + symbol + `","type":"snapshot","ts":` +
		jsonInt(ts) + `,"data":{"s":"` + symbol + `","b":[["10.00","250"]],"a":[["10.02","300"]]}}`)
}

func tradeFrame(symbol string, ts int64) []byte {
	return []byte(`{"topic":"publicTrade.` + symbol + `","type":"snapshot","ts":` +
		jsonInt(ts) + `,"data":[{"T":` + jsonInt(ts) + `,"s":"` + symbol + `","S":"Buy","v":"5","p":"10.01"}]}`)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestHandleRaw_ForwardsFreshData(t *testing.T) {
	events := make(chan domain.StrategyEvent, 8)
	a := newTestActor(events, nil)

	a.handleRaw(context.Background(), orderbookFrame("AXSUSDT", 1700000000500))
	a.handleRaw(context.Background(), tradeFrame("AXSUSDT", 1700000000550))

	if _, ok := (<-events).(domain.OrderBookUpdate); !ok {
		t.Fatal("expected an orderbook update first")
	}
	if _, ok := (<-events).(domain.TradeUpdate); !ok {
		t.Fatal("expected a trade update second")
	}
}

func TestHandleRaw_StalenessFilter(t *testing.T) {
	events := make(chan domain.StrategyEvent, 8)
	a := newTestActor(events, nil) // now pinned to ...600, threshold 500ms

	a.handleRaw(context.Background(), orderbookFrame("AXSUSDT", 1700000000000)) // 600ms old
	a.handleRaw(context.Background(), tradeFrame("AXSUSDT", 1699999999000))     // 1.6s old

	select {
	case ev := <-events:
		t.Fatalf("stale message forwarded: %T", ev)
	default:
	}
}

func TestForwardSnapshot_DropsUnderBackpressure(t *testing.T) {
	events := make(chan domain.StrategyEvent, 1)
	a := newTestActor(events, nil)

	snap := domain.OrderBookSnapshot{Symbol: "AXSUSDT"}
	a.forwardSnapshot(snap) // fills the buffer
	a.forwardSnapshot(snap) // must not block

	if len(events) != 1 {
		t.Fatalf("channel holds %d events, want 1", len(events))
	}
}

func TestForwardTick_TimesOutInsteadOfBlockingForever(t *testing.T) {
	events := make(chan domain.StrategyEvent) // unbuffered, never read
	a := newTestActor(events, nil)

	start := time.Now()
	a.forwardTick(context.Background(), domain.TradeTick{Symbol: "AXSUSDT"})
	elapsed := time.Since(start)

	if elapsed < tradeSendTimeout {
		t.Fatalf("returned after %v, want a bounded wait of at least %v", elapsed, tradeSendTimeout)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("blocked for %v, the wait must be bounded", elapsed)
	}
}

func TestSession_DialFailureWrapsDisconnectSentinel(t *testing.T) {
	events := make(chan domain.StrategyEvent, 1)
	a := NewActor("ws://127.0.0.1:1", 500*time.Millisecond, events, nil, testLogger())

	err := a.session(context.Background())
	if err == nil {
		t.Fatal("dialing a closed port must fail")
	}
	if !errors.Is(err, domain.ErrWSDisconnect) {
		t.Fatalf("err = %v, want it to wrap ErrWSDisconnect", err)
	}
}

func TestSession_ServerCloseWrapsDisconnectSentinel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	events := make(chan domain.StrategyEvent, 1)
	a := NewActor("ws"+strings.TrimPrefix(srv.URL, "http"), 500*time.Millisecond, events, nil, testLogger())

	err := a.session(context.Background())
	if !errors.Is(err, domain.ErrWSDisconnect) {
		t.Fatalf("err = %v, want it to wrap ErrWSDisconnect", err)
	}
}

// wsTestServer accepts one websocket client and records every text frame.
func wsTestServer(t *testing.T, frames chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- string(msg)
		}
	}))
}

func TestRun_SwitchOrdering(t *testing.T) {
	frames := make(chan string, 8)
	srv := wsTestServer(t, frames)
	defer srv.Close()

	events := make(chan domain.StrategyEvent, 8)
	commands := make(chan domain.MarketDataCommand, 8)

	a := NewActor("ws"+strings.TrimPrefix(srv.URL, "http"), 500*time.Millisecond, events, commands, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = a.Run(ctx)
		close(done)
	}()

	// First switch: no prior symbol, so no unsubscribe frame.
	commands <- domain.SwitchSymbol{Symbol: "FOOUSDT", PriceChange24h: 0.08, Specs: domain.DefaultSpecs("FOOUSDT")}

	changed := waitEvent(t, events)
	sc, ok := changed.(domain.SymbolChanged)
	if !ok || sc.Symbol != "FOOUSDT" {
		t.Fatalf("first event = %#v, want SymbolChanged(FOOUSDT)", changed)
	}

	sub := waitFrame(t, frames)
	if !strings.Contains(sub, `"subscribe"`) || !strings.Contains(sub, "orderbook.1.FOOUSDT") {
		t.Fatalf("first frame = %s, want subscribe FOOUSDT", sub)
	}

	// Second switch: unsubscribe old, SymbolChanged, subscribe new — in order.
	commands <- domain.SwitchSymbol{Symbol: "AXSUSDT", PriceChange24h: 0.02, Specs: domain.DefaultSpecs("AXSUSDT")}

	unsub := waitFrame(t, frames)
	if !strings.Contains(unsub, `"unsubscribe"`) || !strings.Contains(unsub, "FOOUSDT") {
		t.Fatalf("frame = %s, want unsubscribe FOOUSDT", unsub)
	}

	changed = waitEvent(t, events)
	if sc, ok := changed.(domain.SymbolChanged); !ok || sc.Symbol != "AXSUSDT" {
		t.Fatalf("event = %#v, want SymbolChanged(AXSUSDT)", changed)
	}

	sub = waitFrame(t, frames)
	if !strings.Contains(sub, `"subscribe"`) || !strings.Contains(sub, "publicTrade.AXSUSDT") {
		t.Fatalf("frame = %s, want subscribe AXSUSDT", sub)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("actor did not stop on context cancel")
	}
}

func waitEvent(t *testing.T, events <-chan domain.StrategyEvent) domain.StrategyEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for strategy event")
		return nil
	}
}

func waitFrame(t *testing.T, frames <-chan string) string {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for websocket frame")
		return ""
	}
}
