package domain

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestNewOrderBookSnapshot_Derived(t *testing.T) {
	snap := NewOrderBookSnapshot("BTCUSDT", 1700000000000,
		dec("100.00"), dec("100.10"), dec("500"), dec("500"))

	if !snap.MidPrice.Equal(dec("100.05")) {
		t.Fatalf("MidPrice = %s, want 100.05", snap.MidPrice)
	}
	// spread = 0.10 / 100.05 * 10000 ≈ 9.995 bps
	if math.Abs(snap.SpreadBps-9.995) > 0.01 {
		t.Fatalf("SpreadBps = %f, want ≈9.995", snap.SpreadBps)
	}
}

func TestNewOrderBookSnapshot_ZeroMid(t *testing.T) {
	snap := NewOrderBookSnapshot("XUSDT", 0, dec("0"), dec("0"), dec("0"), dec("0"))
	if snap.SpreadBps != 0 {
		t.Fatalf("SpreadBps = %f, want 0 for empty book", snap.SpreadBps)
	}
}

func TestOrderBookSnapshot_IsLiquid(t *testing.T) {
	tests := []struct {
		name                   string
		bid, ask               string
		bidSize, askSize       string
		want                   bool
	}{
		{"tight and deep", "100.00", "100.05", "500", "500", true},
		{"wide spread", "100.00", "100.50", "500", "500", false},
		{"thin bid", "100.00", "100.05", "50", "500", false},
		{"thin ask", "100.00", "100.05", "500", "50", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := NewOrderBookSnapshot("AXSUSDT", 0,
				dec(tt.bid), dec(tt.ask), dec(tt.bidSize), dec(tt.askSize))
			if got := snap.IsLiquid(); got != tt.want {
				t.Fatalf("IsLiquid = %v, want %v (spread %.2f bps)", got, tt.want, snap.SpreadBps)
			}
		})
	}
}

func TestOrderBookSnapshot_IsDeeplyLiquid(t *testing.T) {
	// 2 bps spread, $50k notional both sides.
	deep := NewOrderBookSnapshot("SOLUSDT", 0, dec("100.00"), dec("100.02"), dec("500"), dec("500"))
	if !deep.IsDeeplyLiquid() {
		t.Fatalf("deep book not recognized (spread %.2f bps)", deep.SpreadBps)
	}

	// Tight but thin: 3 units × $100 = $300 < $500.
	thin := NewOrderBookSnapshot("SOLUSDT", 0, dec("100.00"), dec("100.02"), dec("3"), dec("500"))
	if thin.IsDeeplyLiquid() {
		t.Fatal("thin book should not be deeply liquid")
	}
}
