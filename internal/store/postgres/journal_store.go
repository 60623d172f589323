package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkozel/scalperbot/internal/domain"
)

// JournalStore implements domain.Journal using PostgreSQL.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a JournalStore backed by the given pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// RecordOrder appends one order lifecycle row.
func (s *JournalStore) RecordOrder(ctx context.Context, rec domain.OrderRecord) error {
	const query = `
		INSERT INTO order_journal (
			order_id, order_link_id, symbol, side, order_type,
			qty, price, time_in_force, reduce_only, status, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		rec.OrderID, rec.OrderLinkID, string(rec.Symbol), string(rec.Side), string(rec.Type),
		rec.Qty, nullable(rec.Price), string(rec.TimeInForce), rec.ReduceOnly,
		rec.Status, nullable(rec.Reason), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record order %s: %w", rec.OrderID, err)
	}
	return nil
}

// RecordPosition appends one position open/close row.
func (s *JournalStore) RecordPosition(ctx context.Context, rec domain.PositionRecord) error {
	const query = `
		INSERT INTO position_journal (symbol, side, size, entry_price, event, pnl_percent, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		string(rec.Symbol), string(rec.Side), rec.Size, rec.EntryPrice,
		rec.Event, rec.PnLPercent, rec.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: record position event %s/%s: %w", rec.Symbol, rec.Event, err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
