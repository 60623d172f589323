// Package config defines the engine's immutable configuration: defaults,
// TOML file merge, SCALP_* environment overrides, and validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration. It is captured once at startup and never
// mutated afterwards.
type Config struct {
	LogLevel string `toml:"log_level"`

	Bybit    BybitConfig    `toml:"bybit"`
	Risk     RiskConfig     `toml:"risk"`
	Scanner  ScannerConfig  `toml:"scanner"`
	Market   MarketConfig   `toml:"market"`
	Strategy StrategyConfig `toml:"strategy"`
	Notify   NotifyConfig   `toml:"notify"`
	Journal  JournalConfig  `toml:"journal"`
	Redis    RedisConfig    `toml:"redis"`
}

// BybitConfig holds credentials and endpoint selection.
type BybitConfig struct {
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	// Network selects the endpoint set: "mainnet", "testnet", or "demo".
	Network string `toml:"network"`
	// Explicit URL overrides; normally derived from Network.
	RestBaseURL string `toml:"rest_base_url"`
	WsURL       string `toml:"ws_url"`
}

// RestURL returns the REST API root for the configured network.
func (b BybitConfig) RestURL() string {
	if b.RestBaseURL != "" {
		return b.RestBaseURL
	}
	switch b.Network {
	case "testnet":
		return "https://api-testnet.bybit.com"
	case "demo":
		return "https://api-demo.bybit.com"
	default:
		return "https://api.bybit.com"
	}
}

// StreamURL returns the public websocket endpoint for the configured network.
func (b BybitConfig) StreamURL() string {
	if b.WsURL != "" {
		return b.WsURL
	}
	switch b.Network {
	case "testnet":
		return "wss://stream-testnet.bybit.com/v5/public/linear"
	default:
		return "wss://stream.bybit.com/v5/public/linear"
	}
}

// RiskConfig sizes positions and the static stop/target fallbacks.
type RiskConfig struct {
	MaxPositionUSD    float64 `toml:"max_position_usd"`
	StopLossPercent   float64 `toml:"stop_loss_percent"`
	TakeProfitPercent float64 `toml:"take_profit_percent"`
	RiskBudgetUSD     float64 `toml:"risk_budget_usd"`
	SigmaMultiplier   float64 `toml:"sigma_multiplier"`
}

// ScannerConfig controls symbol selection.
type ScannerConfig struct {
	ScanIntervalSecs          int     `toml:"scan_interval_secs"`
	MinTurnover24hUSD         float64 `toml:"min_turnover_24h_usd"`
	SwitchThresholdMultiplier float64 `toml:"switch_threshold_multiplier"`
	QuoteSuffix               string  `toml:"quote_suffix"`
}

// Interval returns the scan cadence as a duration.
func (s ScannerConfig) Interval() time.Duration {
	return time.Duration(s.ScanIntervalSecs) * time.Second
}

// MarketConfig bounds acceptable market quality.
type MarketConfig struct {
	MaxSpreadBps         float64 `toml:"max_spread_bps"`
	StaleDataThresholdMs int64   `toml:"stale_data_threshold_ms"`
}

// StaleThreshold returns the staleness cutoff as a duration.
func (m MarketConfig) StaleThreshold() time.Duration {
	return time.Duration(m.StaleDataThresholdMs) * time.Millisecond
}

// StrategyConfig tunes the signal pipeline.
type StrategyConfig struct {
	MomentumThreshold          float64 `toml:"momentum_threshold"`
	ConfirmationRequired       int     `toml:"confirmation_required"`
	ShortWindow                int     `toml:"short_window"`
	LongWindow                 int     `toml:"long_window"`
	RingCapacity               int     `toml:"ring_capacity"`
	PumpThreshold              float64 `toml:"pump_threshold"`
	PositionVerifyIntervalSecs int     `toml:"position_verify_interval_secs"`
}

// VerifyInterval returns the periodic reconciliation cadence.
func (s StrategyConfig) VerifyInterval() time.Duration {
	return time.Duration(s.PositionVerifyIntervalSecs) * time.Second
}

// NotifyConfig configures the notification side-channel. Empty credentials
// disable the corresponding sender.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// JournalConfig enables the optional Postgres trade journal.
type JournalConfig struct {
	DSN string `toml:"dsn"`
}

// RedisConfig enables the optional live state publisher.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Defaults returns the built-in configuration. Values match the audited demo
// regime; everything is overridable by file or environment.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Bybit: BybitConfig{
			Network: "mainnet",
		},
		Risk: RiskConfig{
			MaxPositionUSD:    1000,
			StopLossPercent:   0.5,
			TakeProfitPercent: 1.0,
			RiskBudgetUSD:     0.30,
			SigmaMultiplier:   2.0,
		},
		Scanner: ScannerConfig{
			ScanIntervalSecs:          60,
			MinTurnover24hUSD:         10_000_000,
			SwitchThresholdMultiplier: 1.2,
			QuoteSuffix:               "USDT",
		},
		Market: MarketConfig{
			MaxSpreadBps:         20,
			StaleDataThresholdMs: 500,
		},
		Strategy: StrategyConfig{
			MomentumThreshold:          0.001,
			ConfirmationRequired:       12,
			ShortWindow:                50,
			LongWindow:                 150,
			RingCapacity:               300,
			PumpThreshold:              0.15,
			PositionVerifyIntervalSecs: 60,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bybit.APIKey) == "" {
		return fmt.Errorf("config: bybit.api_key is required")
	}
	if strings.TrimSpace(c.Bybit.APISecret) == "" {
		return fmt.Errorf("config: bybit.api_secret is required")
	}
	switch c.Bybit.Network {
	case "mainnet", "testnet", "demo":
	default:
		return fmt.Errorf("config: bybit.network %q must be mainnet, testnet, or demo", c.Bybit.Network)
	}

	if c.Scanner.ScanIntervalSecs <= 0 {
		return fmt.Errorf("config: scanner.scan_interval_secs must be positive")
	}
	if c.Scanner.SwitchThresholdMultiplier <= 0 {
		return fmt.Errorf("config: scanner.switch_threshold_multiplier must be positive")
	}
	if c.Scanner.QuoteSuffix == "" {
		return fmt.Errorf("config: scanner.quote_suffix is required")
	}

	if c.Strategy.ShortWindow <= 0 || c.Strategy.LongWindow <= 0 || c.Strategy.RingCapacity <= 0 {
		return fmt.Errorf("config: strategy windows and ring capacity must be positive")
	}
	if c.Strategy.ShortWindow > c.Strategy.LongWindow {
		return fmt.Errorf("config: strategy.short_window %d exceeds long_window %d",
			c.Strategy.ShortWindow, c.Strategy.LongWindow)
	}
	if c.Strategy.LongWindow > c.Strategy.RingCapacity {
		return fmt.Errorf("config: strategy.long_window %d exceeds ring_capacity %d",
			c.Strategy.LongWindow, c.Strategy.RingCapacity)
	}
	if c.Strategy.ConfirmationRequired <= 0 {
		return fmt.Errorf("config: strategy.confirmation_required must be positive")
	}
	if c.Strategy.MomentumThreshold <= 0 {
		return fmt.Errorf("config: strategy.momentum_threshold must be positive")
	}

	if c.Risk.RiskBudgetUSD <= 0 {
		return fmt.Errorf("config: risk.risk_budget_usd must be positive")
	}
	if c.Risk.MaxPositionUSD <= 0 {
		return fmt.Errorf("config: risk.max_position_usd must be positive")
	}
	if c.Market.MaxSpreadBps <= 0 {
		return fmt.Errorf("config: market.max_spread_bps must be positive")
	}
	if c.Market.StaleDataThresholdMs <= 0 {
		return fmt.Errorf("config: market.stale_data_threshold_ms must be positive")
	}

	return nil
}
