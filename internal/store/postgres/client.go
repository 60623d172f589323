// Package postgres implements the optional trade journal on PostgreSQL via
// pgx. The journal is an append-only record of order outcomes and position
// events; nothing in the trading path reads it back.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ClientConfig holds connection parameters for the journal database.
type ClientConfig struct {
	DSN      string
	MaxConns int
}

// Client wraps a pgxpool.Pool and owns schema setup.
type Client struct {
	pool *pgxpool.Pool
}

// New connects a pool and verifies connectivity with a ping.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Client{pool: pool}, nil
}

// EnsureSchema creates the journal tables when they do not exist yet.
func (c *Client) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS order_journal (
			id            BIGSERIAL PRIMARY KEY,
			order_id      TEXT NOT NULL,
			order_link_id TEXT,
			symbol        TEXT NOT NULL,
			side          TEXT NOT NULL,
			order_type    TEXT NOT NULL,
			qty           TEXT NOT NULL,
			price         TEXT,
			time_in_force TEXT NOT NULL,
			reduce_only   BOOLEAN NOT NULL DEFAULT FALSE,
			status        TEXT NOT NULL,
			reason        TEXT,
			created_at    TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS order_journal_symbol_idx ON order_journal (symbol, created_at);

		CREATE TABLE IF NOT EXISTS position_journal (
			id          BIGSERIAL PRIMARY KEY,
			symbol      TEXT NOT NULL,
			side        TEXT NOT NULL,
			size        TEXT NOT NULL,
			entry_price TEXT NOT NULL,
			event       TEXT NOT NULL,
			pnl_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
			at          TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS position_journal_symbol_idx ON position_journal (symbol, at);`

	if _, err := c.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// Pool exposes the underlying pool to the stores.
func (c *Client) Pool() *pgxpool.Pool { return c.pool }

// Close releases the connection pool.
func (c *Client) Close() { c.pool.Close() }
