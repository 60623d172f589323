// Package bybit is the REST and websocket wire layer for the venue's V5 API.
// The Client owns signing, retries, timeouts, and connection pooling; it is
// the only component that talks to the authenticated endpoints.
package bybit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dkozel/scalperbot/internal/crypto"
	"github.com/dkozel/scalperbot/internal/domain"
)

const (
	requestTimeout = 10 * time.Second
	maxRetries     = 3
	categoryLinear = "linear"
)

// Client is the authenticated REST client for the venue.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a REST client for the given API root, e.g.
// "https://api.bybit.com". The underlying transport keeps connections warm
// and disables Nagle's algorithm.
func NewClient(baseURL string, auth *crypto.HMACAuth, logger *slog.Logger) *Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tcp, ok := conn.(*net.TCPConn); ok {
				_ = tcp.SetNoDelay(true)
			}
			return conn, nil
		},
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   requestTimeout,
			Transport: transport,
		},
		auth:    auth,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		logger:  logger.With(slog.String("component", "bybit_client")),
	}
}

// GetTickers fetches the 24h statistics of every symbol in the category.
// Rows with unparseable numeric fields are skipped.
func (c *Client) GetTickers(ctx context.Context, category string) ([]domain.TickerStats, error) {
	body, err := c.doGet(ctx, "/v5/market/tickers", "category="+category, false)
	if err != nil {
		return nil, fmt.Errorf("bybit: get tickers: %w", err)
	}

	var resp apiResponse[tickersResult]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("bybit: decode tickers: %w", err)
	}
	if err := checkRetCode(resp.RetCode, resp.RetMsg); err != nil {
		return nil, fmt.Errorf("bybit: get tickers: %w", err)
	}

	stats := make([]domain.TickerStats, 0, len(resp.Result.List))
	for _, t := range resp.Result.List {
		if s, ok := t.toStats(); ok {
			stats = append(stats, s)
		}
	}
	return stats, nil
}

// GetInstrumentInfo fetches the precision specs for one symbol.
func (c *Client) GetInstrumentInfo(ctx context.Context, symbol domain.Symbol) (domain.SymbolSpecs, error) {
	query := "category=" + categoryLinear + "&symbol=" + symbol.String()
	body, err := c.doGet(ctx, "/v5/market/instruments-info", query, false)
	if err != nil {
		return domain.SymbolSpecs{}, fmt.Errorf("bybit: get instrument info %s: %w", symbol, err)
	}

	var resp apiResponse[instrumentsResult]
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SymbolSpecs{}, fmt.Errorf("bybit: decode instrument info: %w", err)
	}
	if err := checkRetCode(resp.RetCode, resp.RetMsg); err != nil {
		return domain.SymbolSpecs{}, fmt.Errorf("bybit: get instrument info %s: %w", symbol, err)
	}
	if len(resp.Result.List) == 0 {
		return domain.SymbolSpecs{}, fmt.Errorf("bybit: instrument info %s: %w", symbol, domain.ErrNotFound)
	}
	return resp.Result.List[0].toSpecs(), nil
}

// PlaceOrder submits an order and returns the venue-assigned order ID. The
// order's qty and price must already be rounded to the instrument's steps.
func (c *Client) PlaceOrder(ctx context.Context, order domain.Order) (string, error) {
	req := placeOrderRequest{
		Category:    categoryLinear,
		Symbol:      order.Symbol.String(),
		Side:        string(order.Side),
		OrderType:   string(order.Type),
		Qty:         order.Qty.String(),
		TimeInForce: string(order.TimeInForce),
		ReduceOnly:  order.ReduceOnly,
		OrderLinkID: uuid.NewString(),
	}
	if order.Price != nil {
		req.Price = order.Price.String()
	}

	body, err := c.doPost(ctx, "/v5/order/create", req)
	if err != nil {
		return "", fmt.Errorf("bybit: place order: %w", err)
	}

	var resp apiResponse[placeOrderResult]
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("bybit: decode place order: %w", err)
	}
	if err := checkRetCode(resp.RetCode, resp.RetMsg); err != nil {
		return "", fmt.Errorf("bybit: place order: %w", err)
	}
	return resp.Result.OrderID, nil
}

// GetOrderStatus queries the live status of one order.
func (c *Client) GetOrderStatus(ctx context.Context, symbol domain.Symbol, orderID string) (domain.OrderStatus, error) {
	query := "category=" + categoryLinear + "&symbol=" + symbol.String() + "&orderId=" + orderID
	body, err := c.doGet(ctx, "/v5/order/realtime", query, true)
	if err != nil {
		return domain.OrderStatus{}, fmt.Errorf("bybit: get order status %s: %w", orderID, err)
	}

	var resp apiResponse[orderListResult]
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderStatus{}, fmt.Errorf("bybit: decode order status: %w", err)
	}
	if err := checkRetCode(resp.RetCode, resp.RetMsg); err != nil {
		return domain.OrderStatus{}, fmt.Errorf("bybit: get order status %s: %w", orderID, err)
	}
	if len(resp.Result.List) == 0 {
		return domain.OrderStatus{}, fmt.Errorf("bybit: order %s: %w", orderID, domain.ErrNotFound)
	}
	return resp.Result.List[0].toStatus(), nil
}

// CancelOrder cancels one order by ID.
func (c *Client) CancelOrder(ctx context.Context, symbol domain.Symbol, orderID string) error {
	req := cancelOrderRequest{
		Category: categoryLinear,
		Symbol:   symbol.String(),
		OrderID:  orderID,
	}

	body, err := c.doPost(ctx, "/v5/order/cancel", req)
	if err != nil {
		return fmt.Errorf("bybit: cancel order %s: %w", orderID, err)
	}

	var resp apiResponse[json.RawMessage]
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("bybit: decode cancel response: %w", err)
	}
	if err := checkRetCode(resp.RetCode, resp.RetMsg); err != nil {
		return fmt.Errorf("bybit: cancel order %s: %w", orderID, err)
	}
	return nil
}

// GetPosition returns the venue's position rows for one symbol. The list may
// be empty during replication lag even when a position exists; callers retry.
func (c *Client) GetPosition(ctx context.Context, symbol domain.Symbol) ([]domain.VenuePosition, error) {
	query := "category=" + categoryLinear + "&symbol=" + symbol.String()
	body, err := c.doGet(ctx, "/v5/position/list", query, true)
	if err != nil {
		return nil, fmt.Errorf("bybit: get position %s: %w", symbol, err)
	}

	var resp apiResponse[positionListResult]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("bybit: decode position list: %w", err)
	}
	if err := checkRetCode(resp.RetCode, resp.RetMsg); err != nil {
		return nil, fmt.Errorf("bybit: get position %s: %w", symbol, err)
	}

	positions := make([]domain.VenuePosition, 0, len(resp.Result.List))
	for _, p := range resp.Result.List {
		if v := p.toVenuePosition(); !v.Size.IsZero() {
			positions = append(positions, v)
		}
	}
	return positions, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends a GET request. The query string is built by the caller in
// literal transmission order; when signed is true, the exact same string is
// both signed and appended to the URL. Retries 5xx and transport errors with
// exponential backoff; 4xx is authoritative and never retried.
func (c *Client) doGet(ctx context.Context, path, query string, signed bool) ([]byte, error) {
	url := c.baseURL + path
	if query != "" {
		url += "?" + query
	}

	return c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		if signed {
			for k, v := range c.auth.Headers(query) {
				req.Header.Set(k, v)
			}
		}
		return req, nil
	})
}

// doPost marshals payload exactly once; the resulting byte-string is signed
// and transmitted verbatim so the signature always matches the body.
func (c *Client) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	headers := c.auth.Headers(string(body))

	return c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
}

// doWithRetry sends the request built by build, retrying transport errors and
// 5xx responses up to maxRetries times with 2s/4s/8s backoff.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Transport errors are treated like 5xx.
			lastErr = fmt.Errorf("http request: %w", err)
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("read response: %w", readErr)
			} else if resp.StatusCode >= 500 {
				lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
			} else if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
				return nil, err
			} else {
				return body, nil
			}
		}

		if attempt >= maxRetries {
			return nil, lastErr
		}

		backoff := time.Duration(1<<(attempt+1)) * time.Second // 2s, 4s, 8s
		c.logger.Warn("request failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
			slog.String("error", lastErr.Error()),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// checkHTTPStatus maps non-2xx status codes to sentinel domain errors.
// 5xx never reaches here; doWithRetry handles it.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrRejected, statusCode, bodyStr)
	}
}

// checkRetCode maps the venue's envelope-level error codes.
func checkRetCode(code int, msg string) error {
	switch code {
	case 0:
		return nil
	case codeInsufficientMargin:
		return fmt.Errorf("%w: %s", domain.ErrInsufficientMargin, msg)
	case codeRateLimited:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	default:
		return fmt.Errorf("%w: %d %s", domain.ErrRejected, code, msg)
	}
}
