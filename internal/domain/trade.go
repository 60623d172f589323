package domain

import "github.com/shopspring/decimal"

// TradeSide is the aggressor side of a public trade.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "Buy"
	TradeSideSell TradeSide = "Sell"
)

// TradeTick is a single public trade execution. Immutable once parsed.
type TradeTick struct {
	Symbol    Symbol
	Timestamp int64 // venue timestamp, ms
	Price     decimal.Decimal
	Size      decimal.Decimal
	Side      TradeSide
}
