package domain

import (
	"context"
	"time"
)

// OrderRecord is a journal row describing an order's lifecycle outcome.
type OrderRecord struct {
	OrderID     string
	OrderLinkID string
	Symbol      Symbol
	Side        OrderSide
	Type        OrderType
	Qty         string
	Price       string // empty for market orders
	TimeInForce TimeInForce
	ReduceOnly  bool
	Status      string
	Reason      string
	CreatedAt   time.Time
}

// PositionEvent values for PositionRecord.Event.
const (
	PositionEventOpen  = "open"
	PositionEventClose = "close"
)

// PositionRecord is a journal row describing a position opening or closing.
type PositionRecord struct {
	Symbol     Symbol
	Side       PositionSide
	Size       string
	EntryPrice string
	Event      string
	PnLPercent float64
	At         time.Time
}

// Journal persists order and position history. Implementations must be pure
// side effects: a journal failure is logged by the caller and never alters
// the trading path.
type Journal interface {
	RecordOrder(ctx context.Context, rec OrderRecord) error
	RecordPosition(ctx context.Context, rec PositionRecord) error
}

// EngineStatus is a snapshot of the engine published for external dashboards.
type EngineStatus struct {
	Symbol     Symbol
	State      string
	UpdatedAt  time.Time
	PnLPercent float64
	HasPos     bool
}

// StatePublisher pushes live engine state to an external store. Fire and
// forget: the core never blocks on it.
type StatePublisher interface {
	PublishStatus(ctx context.Context, status EngineStatus) error
	PublishPosition(ctx context.Context, pos *Position) error
}
