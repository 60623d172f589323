package bybit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dkozel/scalperbot/internal/domain"
)

// Public-stream topics for one symbol: top-of-book and trade prints.
func orderbookTopic(symbol domain.Symbol) string { return "orderbook.1." + symbol.String() }
func tradeTopic(symbol domain.Symbol) string     { return "publicTrade." + symbol.String() }

// wsCommand is the subscribe/unsubscribe frame format of the public stream.
type wsCommand struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// SubscribeFrame returns the frame subscribing to symbol's orderbook and
// trade topics.
func SubscribeFrame(symbol domain.Symbol) ([]byte, error) {
	return json.Marshal(wsCommand{
		Op:   "subscribe",
		Args: []string{orderbookTopic(symbol), tradeTopic(symbol)},
	})
}

// UnsubscribeFrame returns the frame unsubscribing from symbol's topics.
func UnsubscribeFrame(symbol domain.Symbol) ([]byte, error) {
	return json.Marshal(wsCommand{
		Op:   "unsubscribe",
		Args: []string{orderbookTopic(symbol), tradeTopic(symbol)},
	})
}

// wsEnvelope is the outer shape of every data frame on the public stream.
type wsEnvelope struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Ts    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

type wsOrderbookData struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"` // [price, size]
	Asks   [][]string `json:"a"`
}

type wsTradeData struct {
	Timestamp int64  `json:"T"`
	Symbol    string `json:"s"`
	Side      string `json:"S"`
	Size      string `json:"v"`
	Price     string `json:"p"`
}

// ParseStreamMessage decodes one raw frame from the public stream. Exactly one
// of the returns is populated for data frames; operational frames (subscribe
// acks, pongs) yield all-nil.
func ParseStreamMessage(raw []byte) (*domain.OrderBookSnapshot, []domain.TradeTick, error) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("bybit: decode stream frame: %w", err)
	}
	if env.Topic == "" || env.Data == nil {
		return nil, nil, nil
	}

	switch {
	case strings.HasPrefix(env.Topic, "orderbook."):
		snap, err := parseOrderbook(env)
		return snap, nil, err
	case strings.HasPrefix(env.Topic, "publicTrade."):
		ticks, err := parseTrades(env)
		return nil, ticks, err
	}
	return nil, nil, nil
}

func parseOrderbook(env wsEnvelope) (*domain.OrderBookSnapshot, error) {
	var data wsOrderbookData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("bybit: decode orderbook data: %w", err)
	}
	if len(data.Bids) == 0 || len(data.Asks) == 0 {
		return nil, nil
	}

	bid, bidSize, err := parseLevel(data.Bids[0])
	if err != nil {
		return nil, fmt.Errorf("bybit: orderbook bid level: %w", err)
	}
	ask, askSize, err := parseLevel(data.Asks[0])
	if err != nil {
		return nil, fmt.Errorf("bybit: orderbook ask level: %w", err)
	}

	snap := domain.NewOrderBookSnapshot(domain.Symbol(data.Symbol), env.Ts, bid, ask, bidSize, askSize)
	return &snap, nil
}

func parseLevel(level []string) (price, size decimal.Decimal, err error) {
	if len(level) < 2 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("level has %d fields", len(level))
	}
	price, err = decimal.NewFromString(level[0])
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	size, err = decimal.NewFromString(level[1])
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return price, size, nil
}

func parseTrades(env wsEnvelope) ([]domain.TradeTick, error) {
	var trades []wsTradeData
	if err := json.Unmarshal(env.Data, &trades); err != nil {
		return nil, fmt.Errorf("bybit: decode trade data: %w", err)
	}

	ticks := make([]domain.TradeTick, 0, len(trades))
	for _, tr := range trades {
		price, err := decimal.NewFromString(tr.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(tr.Size)
		if err != nil {
			continue
		}
		side := domain.TradeSideSell
		if tr.Side == "Buy" {
			side = domain.TradeSideBuy
		}
		ticks = append(ticks, domain.TradeTick{
			Symbol:    domain.Symbol(tr.Symbol),
			Timestamp: tr.Timestamp,
			Price:     price,
			Size:      size,
			Side:      side,
		})
	}
	return ticks, nil
}
