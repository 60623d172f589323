package domain

// Messages exchanged between the actors. Each direction has its own sealed
// interface so a channel can only carry the message kinds its consumer
// understands.

// MarketDataCommand is sent by the scanner to the market-data actor.
type MarketDataCommand interface{ isMarketDataCommand() }

// SwitchSymbol asks the market-data actor to hot-swap its subscriptions to a
// new symbol. Specs and the 24h change ride along so the strategy receives
// them with the resulting SymbolChanged event.
type SwitchSymbol struct {
	Symbol         Symbol
	Score          float64
	PriceChange24h float64 // fraction, e.g. 0.0275 = +2.75%
	Specs          SymbolSpecs
}

// UpdateStats refreshes the 24h statistics of the currently subscribed symbol
// without switching. Forwarded to the strategy as a StatsUpdated event.
type UpdateStats struct {
	Symbol         Symbol
	PriceChange24h float64
}

func (SwitchSymbol) isMarketDataCommand() {}
func (UpdateStats) isMarketDataCommand()  {}

// StrategyEvent is consumed by the strategy actor: market data fan-out from
// the feed plus the symbol-switch handshake.
type StrategyEvent interface{ isStrategyEvent() }

// OrderBookUpdate carries a fresh top-of-book snapshot.
type OrderBookUpdate struct{ Snapshot OrderBookSnapshot }

// TradeUpdate carries one public trade tick.
type TradeUpdate struct{ Tick TradeTick }

// SymbolChanged tells the strategy the feed has moved to a new symbol. The
// strategy must flatten and reset before trading it.
type SymbolChanged struct {
	Symbol         Symbol
	PriceChange24h float64
	Specs          SymbolSpecs
}

// StatsUpdated refreshes the 24h change of the current symbol mid-session.
type StatsUpdated struct {
	Symbol         Symbol
	PriceChange24h float64
}

func (OrderBookUpdate) isStrategyEvent() {}
func (TradeUpdate) isStrategyEvent()     {}
func (SymbolChanged) isStrategyEvent()   {}
func (StatsUpdated) isStrategyEvent()    {}

// ExecutionCommand is sent by the strategy to the execution actor.
type ExecutionCommand interface{ isExecutionCommand() }

// PlaceOrder requests a new entry order.
type PlaceOrder struct{ Order Order }

// ClosePosition requests an immediate reduce-only close of the live position.
type ClosePosition struct {
	Symbol Symbol
	Side   PositionSide
}

// GetPosition requests a read-only reconciliation against the venue.
type GetPosition struct{ Symbol Symbol }

func (PlaceOrder) isExecutionCommand()    {}
func (ClosePosition) isExecutionCommand() {}
func (GetPosition) isExecutionCommand()   {}

// ExecutionFeedback flows from the execution actor back to the strategy.
// These are control-plane messages: senders block, drops are forbidden.
type ExecutionFeedback interface{ isExecutionFeedback() }

// OrderFilled reports that an entry order was confirmed filled by the venue.
type OrderFilled struct{ Symbol Symbol }

// OrderFailed reports a terminal failure of an entry or close order.
type OrderFailed struct{ Reason string }

// PositionUpdate carries the venue's authoritative position view. A nil
// Position means the venue confirmed flat.
type PositionUpdate struct{ Position *Position }

func (OrderFilled) isExecutionFeedback()    {}
func (OrderFailed) isExecutionFeedback()    {}
func (PositionUpdate) isExecutionFeedback() {}
