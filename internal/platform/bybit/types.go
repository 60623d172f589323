package bybit

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/dkozel/scalperbot/internal/domain"
)

// apiResponse is the envelope every V5 endpoint wraps its result in.
type apiResponse[T any] struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  T      `json:"result"`
}

// Venue error codes surfaced as sentinel errors.
const (
	codeInsufficientMargin = 110007
	codeRateLimited        = 10006
)

type tickersResult struct {
	Category string       `json:"category"`
	List     []tickerInfo `json:"list"`
}

// tickerInfo carries the string-typed 24h statistics of one symbol.
type tickerInfo struct {
	Symbol         string `json:"symbol"`
	LastPrice      string `json:"lastPrice"`
	Turnover24h    string `json:"turnover24h"`
	PriceChange24h string `json:"price24hPcnt"` // fraction: "0.0275" = +2.75%
}

// toStats parses the numeric fields. Rows with unparseable numbers are
// reported as not ok and skipped by the caller.
func (t tickerInfo) toStats() (domain.TickerStats, bool) {
	turnover, err := strconv.ParseFloat(t.Turnover24h, 64)
	if err != nil {
		return domain.TickerStats{}, false
	}
	change, err := strconv.ParseFloat(t.PriceChange24h, 64)
	if err != nil {
		return domain.TickerStats{}, false
	}
	last, err := strconv.ParseFloat(t.LastPrice, 64)
	if err != nil {
		return domain.TickerStats{}, false
	}
	return domain.TickerStats{
		Symbol:         domain.Symbol(t.Symbol),
		LastPrice:      last,
		Turnover24h:    turnover,
		PriceChange24h: change,
	}, true
}

type instrumentsResult struct {
	List []instrumentInfo `json:"list"`
}

type instrumentInfo struct {
	Symbol        string `json:"symbol"`
	LotSizeFilter struct {
		QtyStep     string `json:"qtyStep"`
		MinOrderQty string `json:"minOrderQty"`
		MaxOrderQty string `json:"maxOrderQty"`
	} `json:"lotSizeFilter"`
	PriceFilter struct {
		TickSize string `json:"tickSize"`
	} `json:"priceFilter"`
}

func (i instrumentInfo) toSpecs() domain.SymbolSpecs {
	specs := domain.DefaultSpecs(domain.Symbol(i.Symbol))
	if v, err := decimal.NewFromString(i.LotSizeFilter.QtyStep); err == nil {
		specs.QtyStep = v
	}
	if v, err := decimal.NewFromString(i.LotSizeFilter.MinOrderQty); err == nil {
		specs.MinOrderQty = v
	}
	if v, err := decimal.NewFromString(i.LotSizeFilter.MaxOrderQty); err == nil {
		specs.MaxOrderQty = v
	}
	if v, err := decimal.NewFromString(i.PriceFilter.TickSize); err == nil {
		specs.TickSize = v
	}
	return specs
}

// placeOrderRequest is the POST /v5/order/create body. Field order matters:
// the marshalled byte-string is signed and transmitted verbatim.
type placeOrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce"`
	ReduceOnly  bool   `json:"reduceOnly,omitempty"`
	OrderLinkID string `json:"orderLinkId"`
}

type placeOrderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// cancelOrderRequest is the POST /v5/order/cancel body.
type cancelOrderRequest struct {
	Category string `json:"category"`
	Symbol   string `json:"symbol"`
	OrderID  string `json:"orderId"`
}

type orderListResult struct {
	List []orderInfo `json:"list"`
}

type orderInfo struct {
	OrderID     string `json:"orderId"`
	OrderStatus string `json:"orderStatus"`
	Qty         string `json:"qty"`
	CumExecQty  string `json:"cumExecQty"`
	AvgPrice    string `json:"avgPrice"`
}

func (o orderInfo) toStatus() domain.OrderStatus {
	return domain.OrderStatus{
		OrderID:    o.OrderID,
		Status:     o.OrderStatus,
		Qty:        decimalOrZero(o.Qty),
		CumExecQty: decimalOrZero(o.CumExecQty),
		AvgPrice:   decimalOrZero(o.AvgPrice),
	}
}

type positionListResult struct {
	List []positionInfo `json:"list"`
}

type positionInfo struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Size     string `json:"size"`
	AvgPrice string `json:"avgPrice"`
}

func (p positionInfo) toVenuePosition() domain.VenuePosition {
	return domain.VenuePosition{
		Symbol:   domain.Symbol(p.Symbol),
		Side:     domain.OrderSide(p.Side),
		Size:     decimalOrZero(p.Size),
		AvgPrice: decimalOrZero(p.AvgPrice),
	}
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
