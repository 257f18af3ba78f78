package exchange

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinTrade/internal/domain/models"
	drepo "FinTrade/internal/domain/repository"
	"FinTrade/pkg/logger"
)

const (
	testKey    = "test-key"
	testSecret = "test-secret"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return log
}

// fakeExchange serves the v5 endpoints the gateway calls. Signed
// endpoints verify the signature against the shared test secret.
type fakeExchange struct {
	t  *testing.T
	mu sync.Mutex

	calls     map[string]int
	lastQuery url.Values
	orders    []orderCreateRequest

	klineRows [][]string
	balances  map[string]string
	positions []map[string]string
	qtyStep   string
	minQty    string
	retCode   int
	retMsg    string
}

func newFakeExchange(t *testing.T) *fakeExchange {
	return &fakeExchange{
		t:       t,
		calls:   make(map[string]int),
		qtyStep: "0.001",
		minQty:  "0.001",
	}
}

func (f *fakeExchange) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeExchange) query() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery
}

func (f *fakeExchange) lastOrder() orderCreateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(f.t, f.orders)
	return f.orders[len(f.orders)-1]
}

func (f *fakeExchange) verifySignature(r *http.Request, payload string) {
	ts := r.Header.Get("X-BAPI-TIMESTAMP")
	recv := r.Header.Get("X-BAPI-RECV-WINDOW")
	assert.NotEmpty(f.t, ts)
	assert.Equal(f.t, testKey, r.Header.Get("X-BAPI-API-KEY"))
	assert.Equal(f.t, "5000", recv)
	assert.Equal(f.t, sign(testSecret, ts+testKey+recv+payload), r.Header.Get("X-BAPI-SIGN"))
}

func (f *fakeExchange) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[r.URL.Path]++
	f.lastQuery = r.URL.Query()
	f.mu.Unlock()

	if f.retCode != 0 {
		writeEnvelope(w, f.retCode, f.retMsg, map[string]any{})
		return
	}

	switch r.URL.Path {
	case pathKline:
		writeEnvelope(w, 0, "OK", map[string]any{
			"symbol": r.URL.Query().Get("symbol"),
			"list":   f.klineRows,
		})
	case pathInstruments:
		writeEnvelope(w, 0, "OK", map[string]any{"list": []map[string]any{{
			"symbol":        r.URL.Query().Get("symbol"),
			"lotSizeFilter": map[string]string{"basePrecision": f.qtyStep, "minOrderQty": f.minQty},
			"priceFilter":   map[string]string{"tickSize": "0.01"},
		}}})
	case pathWalletBalance:
		f.verifySignature(r, r.URL.RawQuery)
		coins := make([]map[string]string, 0, len(f.balances))
		for coin, bal := range f.balances {
			coins = append(coins, map[string]string{"coin": coin, "walletBalance": bal})
		}
		writeEnvelope(w, 0, "OK", map[string]any{"list": []map[string]any{{
			"accountType": "UNIFIED",
			"coin":        coins,
		}}})
	case pathPositionList:
		f.verifySignature(r, r.URL.RawQuery)
		writeEnvelope(w, 0, "OK", map[string]any{"list": f.positions})
	case pathOrderCreate:
		body, err := io.ReadAll(r.Body)
		assert.NoError(f.t, err)
		f.verifySignature(r, string(body))
		var req orderCreateRequest
		assert.NoError(f.t, json.Unmarshal(body, &req))
		f.mu.Lock()
		f.orders = append(f.orders, req)
		f.mu.Unlock()
		writeEnvelope(w, 0, "OK", map[string]string{"orderId": "1234"})
	default:
		http.NotFound(w, r)
	}
}

func writeEnvelope(w http.ResponseWriter, code int, msg string, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"retCode": code,
		"retMsg":  msg,
		"result":  result,
	})
}

func newTestGateway(t *testing.T, f *fakeExchange) *Gateway {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	g, err := New(Config{
		BaseURL:    srv.URL,
		APIKey:     testKey,
		APISecret:  testSecret,
		RatePerSec: 1000,
		RateBurst:  1000,
	}, testLogger(t))
	require.NoError(t, err)
	return g
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{BaseURL: "http://localhost"}, testLogger(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}

func TestRecentPrices(t *testing.T) {
	f := newFakeExchange(t)
	f.klineRows = [][]string{
		{"1717329720000", "101", "102", "100", "101.5", "12", "1218"},
		{"1717329660000", "100", "101", "99", "100.5", "10", "1005"},
		{"1717329600000", "99", "100", "98", "99.5", "11", "1094"},
	}
	g := newTestGateway(t, f)

	w, err := g.RecentPrices(context.Background(), "BTC/USDT", drepo.TF1m, 3)
	require.NoError(t, err)
	require.Equal(t, 3, w.Len())
	require.Equal(t, "BTC/USDT", w.Symbol)
	require.Equal(t, "1m", w.Timeframe)

	q := f.query()
	require.Equal(t, "spot", q.Get("category"))
	require.Equal(t, "BTCUSDT", q.Get("symbol"))
	require.Equal(t, "1", q.Get("interval"))
	require.Equal(t, "3", q.Get("limit"))

	// Rows arrive newest first and come back oldest first.
	require.Equal(t, []float64{99.5, 100.5, 101.5}, w.Close)
	require.Equal(t, []float64{99, 100, 101}, w.Open)
	require.Equal(t, int64(1717329600000), w.Time[0].UnixMilli())
	require.True(t, w.Time[0].Before(w.Time[2]))
	require.Empty(t, w.Indicators)
}

func TestRecentPricesDefaultLimit(t *testing.T) {
	f := newFakeExchange(t)
	g := newTestGateway(t, f)

	_, err := g.RecentPrices(context.Background(), "BTC/USDT", drepo.TF1h, 0)
	require.NoError(t, err)

	q := f.query()
	require.Equal(t, "200", q.Get("limit"))
	require.Equal(t, "60", q.Get("interval"))
}

func TestRecentPricesMalformedRow(t *testing.T) {
	f := newFakeExchange(t)
	f.klineRows = [][]string{{"1717329600000", "99", "100"}}
	g := newTestGateway(t, f)

	_, err := g.RecentPrices(context.Background(), "BTC/USDT", drepo.TF1m, 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "kline row")
}

func TestBalance(t *testing.T) {
	f := newFakeExchange(t)
	f.balances = map[string]string{"USDT": "10000.5", "BTC": "0.25", "ETH": ""}
	g := newTestGateway(t, f)

	got, err := g.Balance(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]float64{"USDT": 10000.5, "BTC": 0.25, "ETH": 0}, got)

	q := f.query()
	require.Equal(t, "UNIFIED", q.Get("accountType"))
}

func TestOpenPosition(t *testing.T) {
	f := newFakeExchange(t)
	f.positions = []map[string]string{{
		"symbol":         "BTCUSDT",
		"side":           "Buy",
		"size":           "0.5",
		"avgPrice":       "30000",
		"markPrice":      "31000",
		"unrealisedPnl":  "500",
		"curRealisedPnl": "12.5",
		"updatedTime":    "1717329600000",
	}}
	g := newTestGateway(t, f)

	pos, err := g.OpenPosition(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.Equal(t, "BTC/USDT", pos.Symbol)
	require.Equal(t, 0.5, pos.Size)
	require.Equal(t, 30000.0, pos.AvgPrice)
	require.Equal(t, 31000.0, pos.MarkPrice)
	require.Equal(t, 500.0, pos.UnrealizedPnL)
	require.Equal(t, 12.5, pos.RealizedPnL)
	require.Equal(t, int64(1717329600000), pos.Timestamp.UnixMilli())
}

func TestOpenPositionFlat(t *testing.T) {
	f := newFakeExchange(t)
	g := newTestGateway(t, f)

	pos, err := g.OpenPosition(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.Equal(t, "BTC/USDT", pos.Symbol)
	require.Zero(t, pos.Size)
	require.False(t, pos.Timestamp.IsZero())
}

func TestOpenPositionShortIsNegative(t *testing.T) {
	f := newFakeExchange(t)
	f.positions = []map[string]string{{
		"symbol": "BTCUSDT",
		"side":   "Sell",
		"size":   "0.5",
	}}
	g := newTestGateway(t, f)

	pos, err := g.OpenPosition(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.Equal(t, -0.5, pos.Size)
}

func TestPlaceOrderRoundsQtyToStep(t *testing.T) {
	f := newFakeExchange(t)
	g := newTestGateway(t, f)

	ord, err := g.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "BTC/USDT",
		Side:   models.SideBuy,
		Type:   models.OrderMarket,
		Qty:    0.0123456,
	})
	require.NoError(t, err)
	require.Equal(t, "1234", ord.ID)
	require.Equal(t, models.OrderOpen, ord.Status)
	require.Equal(t, 0.012, ord.Qty)

	sent := f.lastOrder()
	require.Equal(t, "spot", sent.Category)
	require.Equal(t, "BTCUSDT", sent.Symbol)
	require.Equal(t, "Buy", sent.Side)
	require.Equal(t, "Market", sent.OrderType)
	require.Equal(t, "0.012", sent.Qty)
	require.Empty(t, sent.Price)
}

func TestPlaceOrderLimitCarriesPrice(t *testing.T) {
	f := newFakeExchange(t)
	g := newTestGateway(t, f)

	_, err := g.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "BTC/USDT",
		Side:   models.SideSell,
		Type:   models.OrderLimit,
		Qty:    0.5,
		Price:  31000.5,
	})
	require.NoError(t, err)

	sent := f.lastOrder()
	require.Equal(t, "Sell", sent.Side)
	require.Equal(t, "Limit", sent.OrderType)
	require.Equal(t, "31000.5", sent.Price)
	require.Equal(t, "GTC", sent.TimeInForce)
}

func TestPlaceOrderBelowStepRejected(t *testing.T) {
	f := newFakeExchange(t)
	g := newTestGateway(t, f)

	_, err := g.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "BTC/USDT",
		Side:   models.SideBuy,
		Type:   models.OrderMarket,
		Qty:    0.0004,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "rounds to zero")
	require.Zero(t, f.count(pathOrderCreate))
}

func TestPlaceOrderBelowMinimumRejected(t *testing.T) {
	f := newFakeExchange(t)
	f.minQty = "0.05"
	g := newTestGateway(t, f)

	_, err := g.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "BTC/USDT",
		Side:   models.SideBuy,
		Type:   models.OrderMarket,
		Qty:    0.012,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "below instrument minimum")
	require.Zero(t, f.count(pathOrderCreate))
}

func TestPlaceOrderRejectsUnknownSide(t *testing.T) {
	f := newFakeExchange(t)
	g := newTestGateway(t, f)

	_, err := g.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "BTC/USDT",
		Side:   models.OrderSide("short"),
		Qty:    1,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported order side")
	require.Zero(t, f.count(pathInstruments))
}

func TestInstrumentMetadataCached(t *testing.T) {
	f := newFakeExchange(t)
	g := newTestGateway(t, f)

	for i := 0; i < 2; i++ {
		_, err := g.PlaceOrder(context.Background(), models.OrderRequest{
			Symbol: "BTC/USDT",
			Side:   models.SideBuy,
			Type:   models.OrderMarket,
			Qty:    0.01,
		})
		require.NoError(t, err)
	}
	require.Equal(t, 1, f.count(pathInstruments))
	require.Equal(t, 2, f.count(pathOrderCreate))
}

func TestAPIErrorSurfaces(t *testing.T) {
	f := newFakeExchange(t)
	f.retCode = 10001
	f.retMsg = "params error"
	g := newTestGateway(t, f)

	_, err := g.RecentPrices(context.Background(), "BTC/USDT", drepo.TF1m, 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "api error 10001")
	require.Contains(t, err.Error(), "params error")
}

func TestRateLimitBlocksImmediately(t *testing.T) {
	f := newFakeExchange(t)
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	g, err := New(Config{
		BaseURL:    srv.URL,
		APIKey:     testKey,
		APISecret:  testSecret,
		RateBurst:  1,
		RatePerSec: 0.0001,
	}, testLogger(t))
	require.NoError(t, err)

	_, err = g.RecentPrices(context.Background(), "BTC/USDT", drepo.TF1m, 10)
	require.NoError(t, err)

	_, err = g.RecentPrices(context.Background(), "BTC/USDT", drepo.TF1m, 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "rate limit exceeded")
	require.Equal(t, 1, f.count(pathKline))
}
