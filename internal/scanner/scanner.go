// Package scanner periodically ranks every linear-perpetual ticker by a pure
// volatility score and decides when the engine should hop to a hotter symbol.
// It never issues orders and never reads strategy state.
package scanner

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dkozel/scalperbot/internal/domain"
)

// Venue is the slice of the REST client the scanner needs.
type Venue interface {
	GetTickers(ctx context.Context, category string) ([]domain.TickerStats, error)
	GetInstrumentInfo(ctx context.Context, symbol domain.Symbol) (domain.SymbolSpecs, error)
}

// Config holds the scan cadence and selection thresholds.
type Config struct {
	Interval        time.Duration
	QuoteSuffix     string  // e.g. "USDT"
	MinTurnover24h  float64 // USD
	SwitchThreshold float64 // new score must exceed current × threshold
}

// Majors are excluded outright: too stable to scalp.
var majors = map[string]struct{}{
	"BTCUSDT": {},
	"ETHUSDT": {},
}

// Stablecoin bases never move; their pairs are noise in a volatility ranking.
var stablecoinBases = map[string]struct{}{
	"USDC": {},
	"BUSD": {},
	"DAI":  {},
	"TUSD": {},
}

// Scored is one ranked candidate.
type Scored struct {
	Symbol         domain.Symbol
	Score          float64
	Turnover24h    float64
	PriceChange24h float64
}

// Rank filters and scores the ticker snapshot. The score is pure:
// turnover × |24h change|, no whitelists, no boosts. Ordering is descending
// score with lexicographic symbol as the tie-break, so the ranking is fully
// deterministic for a given snapshot.
func Rank(tickers []domain.TickerStats, cfg Config) []Scored {
	candidates := make([]Scored, 0, len(tickers))

	for _, t := range tickers {
		symbol := t.Symbol.String()

		if !strings.HasSuffix(symbol, cfg.QuoteSuffix) {
			continue
		}
		if _, excluded := majors[symbol]; excluded {
			continue
		}
		base := strings.TrimSuffix(symbol, cfg.QuoteSuffix)
		if _, stable := stablecoinBases[base]; stable {
			continue
		}
		if t.Turnover24h < cfg.MinTurnover24h {
			continue
		}

		candidates = append(candidates, Scored{
			Symbol:         t.Symbol,
			Score:          t.Turnover24h * math.Abs(t.PriceChange24h),
			Turnover24h:    t.Turnover24h,
			PriceChange24h: t.PriceChange24h,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Symbol < candidates[j].Symbol
	})

	return candidates
}

// ShouldSwitch applies the hysteresis gate: switch when nothing is selected
// yet, or when the top candidate is a different symbol whose score strictly
// exceeds the current score scaled by the threshold multiplier.
func ShouldSwitch(top Scored, current domain.Symbol, currentScore float64, threshold float64) bool {
	if current == "" {
		return true
	}
	return top.Symbol != current && top.Score > currentScore*threshold
}

// Actor runs the periodic scan loop and emits switch decisions to the
// market-data actor.
type Actor struct {
	venue     Venue
	cfg       Config
	commandCh chan<- domain.MarketDataCommand
	logger    *slog.Logger

	currentSymbol domain.Symbol
	currentScore  float64
	specsCache    map[domain.Symbol]domain.SymbolSpecs
}

// NewActor creates the scanner actor. commandCh is the control-plane channel
// to the market-data actor; sends block, drops are forbidden.
func NewActor(venue Venue, cfg Config, commandCh chan<- domain.MarketDataCommand, logger *slog.Logger) *Actor {
	return &Actor{
		venue:      venue,
		cfg:        cfg,
		commandCh:  commandCh,
		logger:     logger.With(slog.String("component", "scanner")),
		specsCache: make(map[domain.Symbol]domain.SymbolSpecs),
	}
}

// Run scans immediately, then on every interval tick until ctx is cancelled.
// Scan failures are logged and skipped; the loop never dies on them.
func (a *Actor) Run(ctx context.Context) error {
	a.logger.Info("scanner started", slog.Duration("interval", a.cfg.Interval))
	defer a.logger.Info("scanner stopped")

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	if err := a.scan(ctx); err != nil {
		a.logger.Error("initial scan failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.scan(ctx); err != nil {
				a.logger.Error("scan failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *Actor) scan(ctx context.Context) error {
	tickers, err := a.venue.GetTickers(ctx, "linear")
	if err != nil {
		return err
	}

	candidates := Rank(tickers, a.cfg)
	if len(candidates) == 0 {
		a.logger.Warn("no candidates survived the filters")
		return nil
	}
	top := candidates[0]

	// Refresh the current symbol's score from the live snapshot. A symbol
	// that fell out of the filters scores zero, which forces a switch.
	if a.currentSymbol != "" {
		a.currentScore = 0
		for _, c := range candidates {
			if c.Symbol == a.currentSymbol {
				a.currentScore = c.Score
				break
			}
		}
	}

	a.logger.Debug("scan complete",
		slog.String("top", top.Symbol.String()),
		slog.Float64("top_score", top.Score),
		slog.Float64("current_score", a.currentScore),
	)

	if !ShouldSwitch(top, a.currentSymbol, a.currentScore, a.cfg.SwitchThreshold) {
		a.logger.Info("current symbol still optimal", slog.String("symbol", a.currentSymbol.String()))

		// Keep the strategy's 24h statistics fresh even without a switch,
		// otherwise a symbol that pumps mid-session keeps its stale figure.
		for _, c := range candidates {
			if c.Symbol == a.currentSymbol {
				a.send(ctx, domain.UpdateStats{
					Symbol:         a.currentSymbol,
					PriceChange24h: c.PriceChange24h,
				})
				break
			}
		}
		return nil
	}

	specs := a.specsFor(ctx, top.Symbol)

	a.logger.Info("switching symbol",
		slog.String("from", a.currentSymbol.String()),
		slog.String("to", top.Symbol.String()),
		slog.Float64("score", top.Score),
		slog.Float64("change_24h", top.PriceChange24h),
	)

	a.currentSymbol = top.Symbol
	a.currentScore = top.Score

	a.send(ctx, domain.SwitchSymbol{
		Symbol:         top.Symbol,
		Score:          top.Score,
		PriceChange24h: top.PriceChange24h,
		Specs:          specs,
	})
	return nil
}

// specsFor returns cached instrument specs, fetching on first use. A fetch
// failure falls back to conservative defaults rather than blocking the switch.
func (a *Actor) specsFor(ctx context.Context, symbol domain.Symbol) domain.SymbolSpecs {
	if specs, ok := a.specsCache[symbol]; ok {
		return specs
	}
	specs, err := a.venue.GetInstrumentInfo(ctx, symbol)
	if err != nil {
		a.logger.Warn("instrument info fetch failed, using defaults",
			slog.String("symbol", symbol.String()),
			slog.String("error", err.Error()),
		)
		return domain.DefaultSpecs(symbol)
	}
	a.specsCache[symbol] = specs
	return specs
}

// send delivers a command on the control-plane channel. Blocking by design;
// a dropped switch command would desynchronize the whole pipeline.
func (a *Actor) send(ctx context.Context, cmd domain.MarketDataCommand) {
	select {
	case a.commandCh <- cmd:
	case <-ctx.Done():
		a.logger.Error("context cancelled while sending scanner command")
	}
}
