package strategy

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/dkozel/scalperbot/internal/domain"
)

// indicators wraps the tick ring buffer together with the cached derived
// values. Caches are invalidated by comparing the buffer's monotone push
// counter — never its length, which saturates at capacity and would freeze
// the caches exactly when the buffer is busiest.
type indicators struct {
	buf         *domain.RingBuffer[domain.TradeTick]
	shortWindow int
	longWindow  int

	cachedVWAPShort  *decimal.Decimal
	cachedVWAPLong   *decimal.Decimal
	cachedVolatility *float64

	lastCacheUpdateCounter uint64
}

func newIndicators(capacity, shortWindow, longWindow int) *indicators {
	return &indicators{
		buf:         domain.NewRingBuffer[domain.TradeTick](capacity),
		shortWindow: shortWindow,
		longWindow:  longWindow,
	}
}

// Push appends a tick and invalidates the caches when the push counter moved.
func (i *indicators) Push(tick domain.TradeTick) {
	i.buf.Push(tick)
	if i.buf.PushCount() != i.lastCacheUpdateCounter {
		i.invalidate()
		i.lastCacheUpdateCounter = i.buf.PushCount()
	}
}

func (i *indicators) invalidate() {
	i.cachedVWAPShort = nil
	i.cachedVWAPLong = nil
	i.cachedVolatility = nil
}

// Reset drops all ticks, caches, and counters. Called on symbol switch so no
// indicator value of the previous symbol survives into the new one.
func (i *indicators) Reset() {
	i.buf.Clear()
	i.invalidate()
	i.lastCacheUpdateCounter = 0
}

func (i *indicators) Len() int          { return i.buf.Len() }
func (i *indicators) TickCount() uint64 { return i.buf.PushCount() }

// LastPrice returns the price of the newest tick.
func (i *indicators) LastPrice() (decimal.Decimal, bool) {
	tick, ok := i.buf.Last()
	if !ok {
		return decimal.Zero, false
	}
	return tick.Price, true
}

// VWAPShort returns Σ(price×size)/Σ(size) over the last shortWindow ticks.
func (i *indicators) VWAPShort() (decimal.Decimal, bool) {
	if i.cachedVWAPShort != nil {
		return *i.cachedVWAPShort, true
	}
	v, ok := i.vwap(i.shortWindow)
	if !ok {
		return decimal.Zero, false
	}
	i.cachedVWAPShort = &v
	return v, true
}

// VWAPLong returns the volume-weighted average over the last longWindow ticks.
func (i *indicators) VWAPLong() (decimal.Decimal, bool) {
	if i.cachedVWAPLong != nil {
		return *i.cachedVWAPLong, true
	}
	v, ok := i.vwap(i.longWindow)
	if !ok {
		return decimal.Zero, false
	}
	i.cachedVWAPLong = &v
	return v, true
}

func (i *indicators) vwap(window int) (decimal.Decimal, bool) {
	if i.buf.Len() < window {
		return decimal.Zero, false
	}

	totalValue := decimal.Zero
	totalVolume := decimal.Zero
	seen := 0
	i.buf.EachNewest(func(t domain.TradeTick) bool {
		totalValue = totalValue.Add(t.Price.Mul(t.Size))
		totalVolume = totalVolume.Add(t.Size)
		seen++
		return seen < window
	})

	if totalVolume.IsZero() {
		return decimal.Zero, false
	}
	return totalValue.Div(totalVolume), true
}

// Momentum is (last − VWAP_short) / VWAP_short. The division is exact
// decimal; only the final value is converted to float for the threshold
// comparison.
func (i *indicators) Momentum() (float64, bool) {
	last, ok := i.LastPrice()
	if !ok {
		return 0, false
	}
	vwap, ok := i.VWAPShort()
	if !ok || vwap.IsZero() {
		return 0, false
	}
	return last.Sub(vwap).Div(vwap).InexactFloat64(), true
}

// Volatility is the population standard deviation of tick-over-tick returns
// across the long window, expressed in percent. Unavailable until the long
// window has filled.
func (i *indicators) Volatility() (float64, bool) {
	if i.cachedVolatility != nil {
		return *i.cachedVolatility, true
	}
	if i.buf.Len() < i.longWindow {
		return 0, false
	}

	prices := make([]float64, 0, i.longWindow)
	seen := 0
	i.buf.EachNewest(func(t domain.TradeTick) bool {
		prices = append(prices, t.Price.InexactFloat64())
		seen++
		return seen < i.longWindow
	})

	// prices is newest-first; adjacent pairs are adjacent either way.
	returns := make([]float64, 0, len(prices)-1)
	for j := 0; j+1 < len(prices); j++ {
		if prices[j+1] == 0 {
			continue
		}
		returns = append(returns, prices[j]/prices[j+1]-1)
	}
	if len(returns) < 2 {
		return 0, false
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	vol := math.Sqrt(variance) * 100
	i.cachedVolatility = &vol
	return vol, true
}
