package domain

import "github.com/shopspring/decimal"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "Buy"
	OrderSideSell OrderSide = "Sell"
)

// Opposite returns the side that would flatten a fill on this side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

// TimeInForce is the order's time-in-force policy.
type TimeInForce string

const (
	TimeInForceGTC      TimeInForce = "GTC"      // good till cancelled
	TimeInForceIOC      TimeInForce = "IOC"      // immediate or cancel
	TimeInForcePostOnly TimeInForce = "PostOnly" // maker only
)

// Order is an order request as the strategy expresses it, before the venue
// assigns an ID. Price is nil for market orders.
type Order struct {
	Symbol      Symbol
	Side        OrderSide
	Type        OrderType
	Qty         decimal.Decimal
	Price       *decimal.Decimal
	TimeInForce TimeInForce
	ReduceOnly  bool
}

// Venue order status values, as returned by the order-status query.
const (
	OrderStatusNew             = "New"
	OrderStatusPartiallyFilled = "PartiallyFilled"
	OrderStatusFilled          = "Filled"
	OrderStatusCancelled       = "Cancelled"
	OrderStatusRejected        = "Rejected"
)

// OrderStatus is the venue's view of an order at one point in time.
type OrderStatus struct {
	OrderID    string
	Status     string
	Qty        decimal.Decimal
	CumExecQty decimal.Decimal
	AvgPrice   decimal.Decimal
}

// Terminal reports whether the venue will not change this status again.
func (o OrderStatus) Terminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}
