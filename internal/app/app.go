// Package app assembles the actor pipeline and runs it to completion.
package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dkozel/scalperbot/internal/config"
	"github.com/dkozel/scalperbot/internal/domain"
	"github.com/dkozel/scalperbot/internal/executor"
	"github.com/dkozel/scalperbot/internal/feed"
	"github.com/dkozel/scalperbot/internal/scanner"
	"github.com/dkozel/scalperbot/internal/strategy"
)

// Channel capacities, sized deliberately per edge: the market-data fan-out is
// the only high-rate edge; the rest are control plane.
const (
	commandChannelCap  = 256  // scanner → feed
	eventChannelCap    = 1024 // feed → strategy
	executionChanCap   = 100  // strategy → executor
	feedbackChannelCap = 100  // executor → strategy
)

// App owns the four actors and the channels joining them.
type App struct {
	cfg    *config.Config
	deps   *Dependencies
	logger *slog.Logger
}

// New creates the application from wired dependencies.
func New(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *App {
	return &App{cfg: cfg, deps: deps, logger: logger}
}

// Run builds the channel topology, starts one goroutine per actor, and blocks
// until the context is cancelled or an actor fails.
func (a *App) Run(ctx context.Context) error {
	commandCh := make(chan domain.MarketDataCommand, commandChannelCap)
	eventCh := make(chan domain.StrategyEvent, eventChannelCap)
	executionCh := make(chan domain.ExecutionCommand, executionChanCap)
	feedbackCh := make(chan domain.ExecutionFeedback, feedbackChannelCap)

	scan := scanner.NewActor(a.deps.Venue, scanner.Config{
		Interval:        a.cfg.Scanner.Interval(),
		QuoteSuffix:     a.cfg.Scanner.QuoteSuffix,
		MinTurnover24h:  a.cfg.Scanner.MinTurnover24hUSD,
		SwitchThreshold: a.cfg.Scanner.SwitchThresholdMultiplier,
	}, commandCh, a.logger)

	market := feed.NewActor(
		a.cfg.Bybit.StreamURL(),
		a.cfg.Market.StaleThreshold(),
		eventCh,
		commandCh,
		a.logger,
	)

	strat := strategy.NewEngine(strategy.Config{
		MomentumThreshold:      a.cfg.Strategy.MomentumThreshold,
		ConfirmationRequired:   a.cfg.Strategy.ConfirmationRequired,
		ShortWindow:            a.cfg.Strategy.ShortWindow,
		LongWindow:             a.cfg.Strategy.LongWindow,
		RingCapacity:           a.cfg.Strategy.RingCapacity,
		MaxSpreadBps:           a.cfg.Market.MaxSpreadBps,
		PumpThreshold:          a.cfg.Strategy.PumpThreshold,
		StaleDataThreshold:     a.cfg.Market.StaleThreshold(),
		SigmaMultiplier:        a.cfg.Risk.SigmaMultiplier,
		StopLossPercent:        a.cfg.Risk.StopLossPercent,
		TakeProfitPercent:      a.cfg.Risk.TakeProfitPercent,
		RiskBudgetUSD:          a.cfg.Risk.RiskBudgetUSD,
		MaxPositionUSD:         a.cfg.Risk.MaxPositionUSD,
		PositionVerifyInterval: a.cfg.Strategy.VerifyInterval(),
	}, eventCh, feedbackCh, executionCh, a.deps.Notifier, a.deps.Publisher, a.logger)

	exec := executor.NewActor(a.deps.Venue, executionCh, feedbackCh, a.deps.Journal, a.logger)

	a.logger.Info("starting actor pipeline",
		slog.String("rest", a.cfg.Bybit.RestURL()),
		slog.String("stream", a.cfg.Bybit.StreamURL()),
		slog.Duration("scan_interval", a.cfg.Scanner.Interval()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scan.Run(gctx) })
	g.Go(func() error { return market.Run(gctx) })
	g.Go(func() error { return strat.Run(gctx) })
	g.Go(func() error { return exec.Run(gctx) })

	err := g.Wait()

	// Give in-flight notification goroutines a moment to flush.
	time.Sleep(100 * time.Millisecond)
	return err
}
