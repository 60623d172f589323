package domain

import "github.com/shopspring/decimal"

// OrderBookSnapshot is a top-of-book view of one symbol. MidPrice and
// SpreadBps are derived at construction time; the struct is immutable after
// NewOrderBookSnapshot returns.
type OrderBookSnapshot struct {
	Symbol    Symbol
	Timestamp int64 // venue timestamp, ms
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	BidSize   decimal.Decimal
	AskSize   decimal.Decimal
	MidPrice  decimal.Decimal
	SpreadBps float64
}

var two = decimal.NewFromInt(2)

// NewOrderBookSnapshot computes the derived mid price and spread (in basis
// points) from the raw top-of-book levels.
func NewOrderBookSnapshot(symbol Symbol, timestamp int64, bestBid, bestAsk, bidSize, askSize decimal.Decimal) OrderBookSnapshot {
	mid := bestBid.Add(bestAsk).Div(two)

	spreadBps := 0.0
	if mid.IsPositive() {
		spreadBps = bestAsk.Sub(bestBid).Div(mid).InexactFloat64() * 10_000
	}

	return OrderBookSnapshot{
		Symbol:    symbol,
		Timestamp: timestamp,
		BestBid:   bestBid,
		BestAsk:   bestAsk,
		BidSize:   bidSize,
		AskSize:   askSize,
		MidPrice:  mid,
		SpreadBps: spreadBps,
	}
}

var minLiquidSize = decimal.NewFromInt(100)

// IsLiquid reports whether the book is tight and deep enough for aggressive
// market orders.
func (s OrderBookSnapshot) IsLiquid() bool {
	return s.SpreadBps < 10.0 &&
		s.BidSize.GreaterThan(minLiquidSize) &&
		s.AskSize.GreaterThan(minLiquidSize)
}

var minDeepNotional = decimal.NewFromInt(500)

// IsDeeplyLiquid is a stricter predicate: very tight spread and at least $500
// notional resting on both sides of the book.
func (s OrderBookSnapshot) IsDeeplyLiquid() bool {
	bidValue := s.BidSize.Mul(s.BestBid)
	askValue := s.AskSize.Mul(s.BestAsk)

	return s.SpreadBps < 5.0 &&
		bidValue.GreaterThanOrEqual(minDeepNotional) &&
		askValue.GreaterThanOrEqual(minDeepNotional)
}
