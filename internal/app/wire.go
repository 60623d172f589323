package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dkozel/scalperbot/internal/cache/redis"
	"github.com/dkozel/scalperbot/internal/config"
	"github.com/dkozel/scalperbot/internal/crypto"
	"github.com/dkozel/scalperbot/internal/domain"
	"github.com/dkozel/scalperbot/internal/notify"
	"github.com/dkozel/scalperbot/internal/platform/bybit"
	"github.com/dkozel/scalperbot/internal/store/postgres"
)

// Dependencies bundles everything the actors need beyond their channels.
// Journal and Publisher are nil when their backends are not configured.
type Dependencies struct {
	Venue     *bybit.Client
	Notifier  *notify.Notifier
	Journal   domain.Journal
	Publisher domain.StatePublisher
}

// Wire constructs the concrete dependencies from the configuration and
// returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Venue REST client ---
	auth := &crypto.HMACAuth{
		Key:    cfg.Bybit.APIKey,
		Secret: cfg.Bybit.APISecret,
	}
	deps.Venue = bybit.NewClient(cfg.Bybit.RestURL(), auth, logger)

	// --- Trade journal (optional) ---
	if cfg.Journal.DSN != "" {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{DSN: cfg.Journal.DSN})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if err := pgClient.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres schema: %w", err)
		}
		deps.Journal = postgres.NewJournalStore(pgClient.Pool())
		logger.Info("trade journal enabled")
	}

	// --- Live state publisher (optional) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Publisher = redis.NewStatePublisher(redisClient)
		logger.Info("live state publisher enabled")
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}
