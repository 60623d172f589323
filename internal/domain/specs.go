package domain

import "github.com/shopspring/decimal"

// SymbolSpecs holds the per-instrument precision rules the venue enforces on
// order quantities and prices.
type SymbolSpecs struct {
	Symbol      Symbol
	QtyStep     decimal.Decimal
	MinOrderQty decimal.Decimal
	MaxOrderQty decimal.Decimal
	TickSize    decimal.Decimal
}

// DefaultSpecs returns conservative fallback precision for a symbol whose
// instrument info could not be fetched.
func DefaultSpecs(symbol Symbol) SymbolSpecs {
	return SymbolSpecs{
		Symbol:      symbol,
		QtyStep:     decimal.New(1, -2), // 0.01
		MinOrderQty: decimal.New(1, -2), // 0.01
		MaxOrderQty: decimal.New(1, 9),  // effectively unbounded
		TickSize:    decimal.New(1, -4), // 0.0001
	}
}

// RoundQty floors qty to the instrument's quantity step.
func (s SymbolSpecs) RoundQty(qty decimal.Decimal) decimal.Decimal {
	return roundToStep(qty, s.QtyStep)
}

// RoundPrice floors price to the instrument's tick size.
func (s SymbolSpecs) RoundPrice(price decimal.Decimal) decimal.Decimal {
	return roundToStep(price, s.TickSize)
}

// ClampQty rounds qty to step and forces it inside [MinOrderQty, MaxOrderQty].
func (s SymbolSpecs) ClampQty(qty decimal.Decimal) decimal.Decimal {
	rounded := s.RoundQty(qty)
	if rounded.LessThan(s.MinOrderQty) {
		return s.MinOrderQty
	}
	if s.MaxOrderQty.IsPositive() && rounded.GreaterThan(s.MaxOrderQty) {
		return s.MaxOrderQty
	}
	return rounded
}

func roundToStep(value, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}
