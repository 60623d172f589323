package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dkozel/scalperbot/internal/domain"
)

const (
	statusKey   = "scalper:status"
	positionKey = "scalper:position"

	// stateTTL lets dashboards detect a dead engine: the keys expire when
	// publishing stops.
	stateTTL = 5 * time.Minute
)

// StatePublisher implements domain.StatePublisher using Redis hashes.
type StatePublisher struct {
	rdb *redis.Client
}

// NewStatePublisher creates a StatePublisher backed by the given client.
func NewStatePublisher(c *Client) *StatePublisher {
	return &StatePublisher{rdb: c.Underlying()}
}

// PublishStatus writes the engine status hash.
func (p *StatePublisher) PublishStatus(ctx context.Context, status domain.EngineStatus) error {
	fields := map[string]any{
		"symbol":       status.Symbol.String(),
		"state":        status.State,
		"updated_at":   strconv.FormatInt(status.UpdatedAt.UnixMilli(), 10),
		"pnl_percent":  strconv.FormatFloat(status.PnLPercent, 'f', -1, 64),
		"has_position": strconv.FormatBool(status.HasPos),
	}

	pipe := p.rdb.Pipeline()
	pipe.HSet(ctx, statusKey, fields)
	pipe.Expire(ctx, statusKey, stateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish status: %w", err)
	}
	return nil
}

// PublishPosition writes the position hash, or deletes the key when flat.
func (p *StatePublisher) PublishPosition(ctx context.Context, pos *domain.Position) error {
	if pos == nil {
		if err := p.rdb.Del(ctx, positionKey).Err(); err != nil {
			return fmt.Errorf("redis: clear position: %w", err)
		}
		return nil
	}

	fields := map[string]any{
		"symbol":        pos.Symbol.String(),
		"side":          string(pos.Side),
		"size":          pos.Size.String(),
		"entry_price":   pos.EntryPrice.String(),
		"current_price": pos.CurrentPrice.String(),
		"pnl_percent":   strconv.FormatFloat(pos.PnLPercent(), 'f', -1, 64),
	}

	pipe := p.rdb.Pipeline()
	pipe.HSet(ctx, positionKey, fields)
	pipe.Expire(ctx, positionKey, stateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish position: %w", err)
	}
	return nil
}
