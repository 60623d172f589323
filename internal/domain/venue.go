package domain

import "github.com/shopspring/decimal"

// TickerStats is one row of the venue's 24h ticker snapshot, parsed into the
// numeric fields the scanner scores on.
type TickerStats struct {
	Symbol         Symbol
	LastPrice      float64
	Turnover24h    float64 // quote-currency turnover, USD
	PriceChange24h float64 // fraction, e.g. 0.0275 = +2.75%
}

// VenuePosition is the venue's raw view of one position row.
type VenuePosition struct {
	Symbol   Symbol
	Side     OrderSide // venue reports entry side: Buy = long, Sell = short
	Size     decimal.Decimal
	AvgPrice decimal.Decimal
}

// PositionSide maps the venue's entry side to a position direction.
func (v VenuePosition) PositionSide() PositionSide {
	if v.Side == OrderSideBuy {
		return PositionSideLong
	}
	return PositionSideShort
}
