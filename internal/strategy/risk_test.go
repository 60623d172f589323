package strategy

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeDynamicRisk_Clamps(t *testing.T) {
	tests := []struct {
		name   string
		volPct float64
		volOK  bool
		wantSL float64
	}{
		{"clamped to floor", 0.1, true, 0.7},
		{"within range", 0.5, true, 1.0},
		{"clamped to cap", 5.0, true, 3.0},
		{"fallback floors static sl", 0, false, 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			risk := computeDynamicRisk(tt.volPct, tt.volOK, 2.0, 0.5)
			if math.Abs(risk.SLPercent-tt.wantSL) > 1e-9 {
				t.Fatalf("SL = %f, want %f", risk.SLPercent, tt.wantSL)
			}
			if math.Abs(risk.TPPercent-1.5*tt.wantSL) > 1e-9 {
				t.Fatalf("TP = %f, want %f", risk.TPPercent, 1.5*tt.wantSL)
			}
		})
	}
}

func TestComputeDynamicRisk_ZeroStaticConfig(t *testing.T) {
	// stop_loss_percent configured as 0 with the volatility fallback: the
	// minimum floor must still produce a usable, positive stop.
	risk := computeDynamicRisk(0, false, 2.0, 0)
	if risk.SLPercent != minStopLossPercent {
		t.Fatalf("SL = %f, want floor %f", risk.SLPercent, minStopLossPercent)
	}
}

func TestPositionQty(t *testing.T) {
	// $0.30 risk at 0.7% stop → $42.86 position; at mid 100 → ~0.4286.
	qty, err := positionQty(0.30, 0.7, 1000, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("positionQty: %v", err)
	}
	want := 0.30 / 0.007 / 100
	if math.Abs(qty.InexactFloat64()-want) > 1e-6 {
		t.Fatalf("qty = %s, want %f", qty, want)
	}
}

func TestPositionQty_CapsAtMaxPosition(t *testing.T) {
	// $0.30 at 0.7% is ~$42.9; a $10 cap must bind.
	qty, err := positionQty(0.30, 0.7, 10, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("positionQty: %v", err)
	}
	if math.Abs(qty.InexactFloat64()-0.1) > 1e-9 {
		t.Fatalf("qty = %s, want 0.1 (capped)", qty)
	}
}

func TestPositionQty_RejectsZeroStop(t *testing.T) {
	if _, err := positionQty(0.30, 0, 1000, decimal.NewFromInt(100)); err == nil {
		t.Fatal("zero stop must abort, not divide by zero")
	}
	if _, err := positionQty(0.30, -1, 1000, decimal.NewFromInt(100)); err == nil {
		t.Fatal("negative stop must abort")
	}
	if _, err := positionQty(0.30, 0.7, 1000, decimal.Zero); err == nil {
		t.Fatal("zero mid price must abort")
	}
}

func TestStopLossPrice(t *testing.T) {
	long := stopLossPrice(decimal.NewFromInt(100), 0.7, true)
	if !long.Equal(decimal.RequireFromString("99.3")) {
		t.Fatalf("long stop = %s, want 99.3", long)
	}
	short := stopLossPrice(decimal.NewFromInt(100), 0.7, false)
	if !short.Equal(decimal.RequireFromString("100.7")) {
		t.Fatalf("short stop = %s, want 100.7", short)
	}
}
