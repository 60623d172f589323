package domain

import "github.com/shopspring/decimal"

// PositionSide is the direction of an open position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "Long"
	PositionSideShort PositionSide = "Short"
)

// CloseSide returns the order side that reduces this position.
func (p PositionSide) CloseSide() OrderSide {
	if p == PositionSideLong {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Position is an open position as reconciled against the venue.
// CurrentPrice is authoritative from order-book mid prices only; trade ticks
// must not write it.
type Position struct {
	Symbol       Symbol
	Side         PositionSide
	Size         decimal.Decimal
	EntryPrice   decimal.Decimal
	CurrentPrice decimal.Decimal
	StopLoss     decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// PnLPercent returns the unrealized profit of the position in percent of the
// entry price. Positive is favorable for both sides.
func (p Position) PnLPercent() float64 {
	if p.EntryPrice.IsZero() {
		return 0
	}

	var ratio decimal.Decimal
	switch p.Side {
	case PositionSideLong:
		ratio = p.CurrentPrice.Sub(p.EntryPrice).Div(p.EntryPrice)
	default:
		ratio = p.EntryPrice.Sub(p.CurrentPrice).Div(p.EntryPrice)
	}

	return ratio.Mul(hundred).InexactFloat64()
}
