package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path (when it exists), merges it over the
// built-in defaults, applies SCALP_* environment overrides, and returns the
// result. The caller should invoke Validate afterwards. A missing file is not
// an error — an environment-only deployment is supported.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SCALP_* environment variables and
// overwrites the corresponding fields when set. This lets operators inject
// secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Venue ──
	setStr(&cfg.Bybit.APIKey, "SCALP_BYBIT_API_KEY")
	setStr(&cfg.Bybit.APISecret, "SCALP_BYBIT_API_SECRET")
	setStr(&cfg.Bybit.Network, "SCALP_BYBIT_NETWORK")
	setStr(&cfg.Bybit.RestBaseURL, "SCALP_BYBIT_REST_BASE_URL")
	setStr(&cfg.Bybit.WsURL, "SCALP_BYBIT_WS_URL")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxPositionUSD, "SCALP_RISK_MAX_POSITION_USD")
	setFloat64(&cfg.Risk.StopLossPercent, "SCALP_RISK_STOP_LOSS_PERCENT")
	setFloat64(&cfg.Risk.TakeProfitPercent, "SCALP_RISK_TAKE_PROFIT_PERCENT")
	setFloat64(&cfg.Risk.RiskBudgetUSD, "SCALP_RISK_BUDGET_USD")
	setFloat64(&cfg.Risk.SigmaMultiplier, "SCALP_RISK_SIGMA_MULTIPLIER")

	// ── Scanner ──
	setInt(&cfg.Scanner.ScanIntervalSecs, "SCALP_SCANNER_SCAN_INTERVAL_SECS")
	setFloat64(&cfg.Scanner.MinTurnover24hUSD, "SCALP_SCANNER_MIN_TURNOVER_24H_USD")
	setFloat64(&cfg.Scanner.SwitchThresholdMultiplier, "SCALP_SCANNER_SWITCH_THRESHOLD_MULTIPLIER")
	setStr(&cfg.Scanner.QuoteSuffix, "SCALP_SCANNER_QUOTE_SUFFIX")

	// ── Market ──
	setFloat64(&cfg.Market.MaxSpreadBps, "SCALP_MARKET_MAX_SPREAD_BPS")
	setInt64(&cfg.Market.StaleDataThresholdMs, "SCALP_MARKET_STALE_DATA_THRESHOLD_MS")

	// ── Strategy ──
	setFloat64(&cfg.Strategy.MomentumThreshold, "SCALP_STRATEGY_MOMENTUM_THRESHOLD")
	setInt(&cfg.Strategy.ConfirmationRequired, "SCALP_STRATEGY_CONFIRMATION_REQUIRED")
	setInt(&cfg.Strategy.ShortWindow, "SCALP_STRATEGY_SHORT_WINDOW")
	setInt(&cfg.Strategy.LongWindow, "SCALP_STRATEGY_LONG_WINDOW")
	setInt(&cfg.Strategy.RingCapacity, "SCALP_STRATEGY_RING_CAPACITY")
	setFloat64(&cfg.Strategy.PumpThreshold, "SCALP_STRATEGY_PUMP_THRESHOLD")
	setInt(&cfg.Strategy.PositionVerifyIntervalSecs, "SCALP_STRATEGY_POSITION_VERIFY_INTERVAL_SECS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SCALP_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SCALP_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SCALP_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SCALP_NOTIFY_EVENTS")

	// ── Journal / Redis ──
	setStr(&cfg.Journal.DSN, "SCALP_JOURNAL_DSN")
	setStr(&cfg.Redis.Addr, "SCALP_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SCALP_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SCALP_REDIS_DB")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "SCALP_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
