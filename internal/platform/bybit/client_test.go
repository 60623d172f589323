package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dkozel/scalperbot/internal/crypto"
	"github.com/dkozel/scalperbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(url string) *Client {
	return NewClient(url, &crypto.HMACAuth{Key: "test_key", Secret: "test_secret"}, testLogger())
}

// verifySignature recomputes the expected signature from the request headers
// and the signed payload and compares it against X-SIGN.
func verifySignature(t *testing.T, r *http.Request, payload string) {
	t.Helper()

	ts := r.Header.Get(crypto.HeaderTimestamp)
	if ts == "" {
		t.Fatal("missing timestamp header")
	}
	if r.Header.Get(crypto.HeaderRecvWindow) != crypto.RecvWindow {
		t.Fatalf("recv window = %q, want %q", r.Header.Get(crypto.HeaderRecvWindow), crypto.RecvWindow)
	}

	mac := hmac.New(sha256.New, []byte("test_secret"))
	mac.Write([]byte(ts + "test_key" + crypto.RecvWindow + payload))
	want := hex.EncodeToString(mac.Sum(nil))

	if got := r.Header.Get(crypto.HeaderSign); got != want {
		t.Fatalf("signature mismatch: got %s, want %s (payload %q)", got, want, payload)
	}
}

func TestGetPosition_SignsTransmittedQueryVerbatim(t *testing.T) {
	var served bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served = true

		// The signed payload must be the literal query string as transmitted.
		if r.URL.RawQuery != "category=linear&symbol=BTCUSDT" {
			t.Fatalf("raw query = %q", r.URL.RawQuery)
		}
		verifySignature(t, r, r.URL.RawQuery)

		json.NewEncoder(w).Encode(map[string]any{
			"retCode": 0, "retMsg": "OK",
			"result": map[string]any{"list": []map[string]any{
				{"symbol": "BTCUSDT", "side": "Buy", "size": "0.5", "avgPrice": "50000"},
			}},
		})
	}))
	defer srv.Close()

	positions, err := newTestClient(srv.URL).GetPosition(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if !served {
		t.Fatal("server not hit")
	}
	if len(positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(positions))
	}
	if positions[0].PositionSide() != domain.PositionSideLong {
		t.Fatalf("side = %v, want Long", positions[0].PositionSide())
	}
	if !positions[0].Size.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("size = %s, want 0.5", positions[0].Size)
	}
}

func TestPlaceOrder_SignsExactBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}

		// The signed string must be byte-identical to the transmitted body.
		verifySignature(t, r, string(body))

		var req placeOrderRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		if req.Category != "linear" || req.Symbol != "AXSUSDT" || req.Side != "Buy" {
			t.Fatalf("unexpected body: %s", body)
		}
		if req.OrderType != "Market" || req.TimeInForce != "IOC" {
			t.Fatalf("unexpected order style: %s", body)
		}
		if req.Price != "" {
			t.Fatalf("market order must not carry a price: %s", body)
		}
		if req.OrderLinkID == "" {
			t.Fatal("missing orderLinkId")
		}

		json.NewEncoder(w).Encode(map[string]any{
			"retCode": 0, "retMsg": "OK",
			"result": map[string]any{"orderId": "ord-1", "orderLinkId": req.OrderLinkID},
		})
	}))
	defer srv.Close()

	order := domain.Order{
		Symbol:      "AXSUSDT",
		Side:        domain.OrderSideBuy,
		Type:        domain.OrderTypeMarket,
		Qty:         decimal.RequireFromString("12.3"),
		TimeInForce: domain.TimeInForceIOC,
	}

	orderID, err := newTestClient(srv.URL).PlaceOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if orderID != "ord-1" {
		t.Fatalf("orderID = %q, want ord-1", orderID)
	}
}

func TestDoWithRetry_Retries5xx(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"retCode": 0, "retMsg": "OK",
			"result": map[string]any{"category": "linear", "list": []any{}},
		})
	}))
	defer srv.Close()

	// Shrink the backoff by driving through the internal helper is not
	// possible without sleeping; keep the test honest but bounded by making
	// the server recover on the third hit (2s + 4s worst case).
	if testing.Short() {
		t.Skip("retry backoff sleeps; skipped in -short")
	}

	_, err := newTestClient(srv.URL).GetTickers(context.Background(), "linear")
	if err != nil {
		t.Fatalf("GetTickers after retries: %v", err)
	}
	if hits != 3 {
		t.Fatalf("server hit %d times, want 3", hits)
	}
}

func TestDoWithRetry_4xxIsAuthoritative(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GetPosition(context.Background(), "BTCUSDT")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if hits != 1 {
		t.Fatalf("4xx retried: server hit %d times, want 1", hits)
	}
}

func TestCheckRetCode(t *testing.T) {
	if err := checkRetCode(0, "OK"); err != nil {
		t.Fatalf("retCode 0: %v", err)
	}
	if err := checkRetCode(codeInsufficientMargin, "margin"); !errors.Is(err, domain.ErrInsufficientMargin) {
		t.Fatalf("err = %v, want ErrInsufficientMargin", err)
	}
	if err := checkRetCode(codeRateLimited, "slow down"); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if err := checkRetCode(10001, "params"); !errors.Is(err, domain.ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
}

func TestGetOrderStatus_ParsesVenueView(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "category=linear&symbol=FOOUSDT&orderId=ord-9" {
			t.Fatalf("raw query = %q", r.URL.RawQuery)
		}
		verifySignature(t, r, r.URL.RawQuery)

		json.NewEncoder(w).Encode(map[string]any{
			"retCode": 0, "retMsg": "OK",
			"result": map[string]any{"list": []map[string]any{{
				"orderId": "ord-9", "orderStatus": "PartiallyFilled",
				"qty": "100", "cumExecQty": "60", "avgPrice": "1.05",
			}}},
		})
	}))
	defer srv.Close()

	status, err := newTestClient(srv.URL).GetOrderStatus(context.Background(), "FOOUSDT", "ord-9")
	if err != nil {
		t.Fatalf("GetOrderStatus: %v", err)
	}
	if status.Status != domain.OrderStatusPartiallyFilled {
		t.Fatalf("status = %q", status.Status)
	}
	if !status.CumExecQty.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("cumExecQty = %s, want 60", status.CumExecQty)
	}
	if status.Terminal() {
		t.Fatal("PartiallyFilled must not be terminal")
	}
}
