package paper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinTrade/internal/domain/models"
	drepo "FinTrade/internal/domain/repository"
	"FinTrade/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func fixedClock() func() time.Time {
	at := time.Date(2025, 6, 2, 12, 30, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func newTestGateway(t *testing.T, opts ...Option) *Gateway {
	t.Helper()
	g := NewGateway(testLogger(t), append([]Option{WithSeed(42)}, opts...)...)
	g.now = fixedClock()
	return g
}

func TestGatewayRecentPrices(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	w, err := g.RecentPrices(ctx, "BTC/USDT", drepo.TF1m, 200)
	require.NoError(t, err)
	require.Equal(t, 200, w.Len())
	assert.Equal(t, "BTC/USDT", w.Symbol)
	assert.Equal(t, "1m", w.Timeframe)

	require.Len(t, w.Time, 200)
	for i := 1; i < len(w.Time); i++ {
		assert.Equal(t, time.Minute, w.Time[i].Sub(w.Time[i-1]))
	}
	for i, c := range w.Close {
		assert.Greater(t, c, 0.0, "bar %d", i)
		assert.GreaterOrEqual(t, w.High[i], w.Low[i], "bar %d", i)
	}

	// full default indicator set attached
	for _, col := range defaultColumns() {
		vals, ok := w.Column(col)
		require.True(t, ok, "column %s", col)
		assert.Len(t, vals, 200)
	}
}

func TestGatewayDeterministicWithSeed(t *testing.T) {
	g1 := newTestGateway(t)
	g2 := newTestGateway(t)
	ctx := context.Background()

	w1, err := g1.RecentPrices(ctx, "BTC/USDT", drepo.TF1m, 50)
	require.NoError(t, err)
	w2, err := g2.RecentPrices(ctx, "BTC/USDT", drepo.TF1m, 50)
	require.NoError(t, err)

	assert.Equal(t, w1.Close, w2.Close)
	assert.Equal(t, w1.Volume, w2.Volume)
}

func TestGatewayWindowIsolation(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	w1, err := g.RecentPrices(ctx, "BTC/USDT", drepo.TF1m, 10)
	require.NoError(t, err)
	before := append([]float64(nil), w1.Close...)

	// later reads jitter the walk's own buffers, never returned windows
	_, err = g.RecentPrices(ctx, "BTC/USDT", drepo.TF1m, 10)
	require.NoError(t, err)
	assert.Equal(t, before, w1.Close)
}

func TestGatewayBuyAccounting(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	order, err := g.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "XYZ/USDT", Side: models.SideBuy, Type: models.OrderLimit, Qty: 0.5, Price: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderOpen, order.Status)
	assert.Equal(t, 100.0, order.Price)
	assert.Equal(t, 0.5, order.Filled)
	assert.InDelta(t, 50.0, order.Cost, 1e-9)
	assert.InDelta(t, 0.05, order.Fee, 1e-9)
	assert.Equal(t, "USDT", order.FeeAsset)

	bal, err := g.Balance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10000-50.05, bal["USDT"], 1e-9)
	assert.InDelta(t, 0.5, bal["XYZ"], 1e-12)

	pos, err := g.OpenPosition(ctx, "XYZ/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, pos.Size, 1e-12)
	assert.InDelta(t, 100.0, pos.AvgPrice, 1e-9)
}

func TestGatewayAverageEntryAndRealizedPnL(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	buy := func(qty, price float64) {
		_, err := g.PlaceOrder(ctx, models.OrderRequest{
			Symbol: "XYZ/USDT", Side: models.SideBuy, Type: models.OrderLimit, Qty: qty, Price: price,
		})
		require.NoError(t, err)
	}
	buy(0.5, 100)
	buy(0.5, 200)

	pos, err := g.OpenPosition(ctx, "XYZ/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pos.Size, 1e-12)
	assert.InDelta(t, 150.0, pos.AvgPrice, 1e-9)

	_, err = g.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "XYZ/USDT", Side: models.SideSell, Type: models.OrderLimit, Qty: 1.0, Price: 200,
	})
	require.NoError(t, err)

	pos, err = g.OpenPosition(ctx, "XYZ/USDT")
	require.NoError(t, err)
	assert.Zero(t, pos.Size)
	assert.Zero(t, pos.AvgPrice) // closed position resets the entry
	assert.InDelta(t, 50.0, pos.RealizedPnL, 1e-9)

	bal, err := g.Balance(ctx)
	require.NoError(t, err)
	// 10000 - 50.05 - 100.10 + 199.80
	assert.InDelta(t, 10049.65, bal["USDT"], 1e-9)
	assert.Zero(t, bal["XYZ"])
}

func TestGatewaySellClampsToHeld(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	_, err := g.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "XYZ/USDT", Side: models.SideBuy, Type: models.OrderLimit, Qty: 0.3, Price: 100,
	})
	require.NoError(t, err)

	order, err := g.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "XYZ/USDT", Side: models.SideSell, Type: models.OrderLimit, Qty: 5.0, Price: 100,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.3, order.Filled, 1e-12)

	pos, err := g.OpenPosition(ctx, "XYZ/USDT")
	require.NoError(t, err)
	assert.Zero(t, pos.Size)
}

func TestGatewaySellWithoutPosition(t *testing.T) {
	g := newTestGateway(t)

	order, err := g.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "XYZ/USDT", Side: models.SideSell, Type: models.OrderLimit, Qty: 1.0, Price: 100,
	})
	assert.Error(t, err)
	assert.Equal(t, models.OrderRejected, order.Status)
}

func TestGatewayBuyClampsToBalance(t *testing.T) {
	g := newTestGateway(t, WithInitialBalance(map[string]float64{"USDT": 100}))
	ctx := context.Background()

	order, err := g.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "XYZ/USDT", Side: models.SideBuy, Type: models.OrderLimit, Qty: 50, Price: 10,
	})
	require.NoError(t, err)

	// qty shrinks so cost+fee spends exactly the free balance
	wantQty := 100.0 / 1.001 / 10.0
	assert.InDelta(t, wantQty, order.Filled, 1e-9)

	bal, err := g.Balance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, bal["USDT"], 1e-9)
}

func TestGatewayBuyWithEmptyBalance(t *testing.T) {
	g := newTestGateway(t, WithInitialBalance(map[string]float64{"USDT": 0}))

	order, err := g.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "XYZ/USDT", Side: models.SideBuy, Type: models.OrderLimit, Qty: 1, Price: 10,
	})
	assert.Error(t, err)
	assert.Equal(t, models.OrderRejected, order.Status)
}

func TestGatewayRejectsUnknownSide(t *testing.T) {
	g := newTestGateway(t)
	_, err := g.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "XYZ/USDT", Side: "short", Qty: 1,
	})
	assert.Error(t, err)
}

func TestGatewayMarketOrderUsesLastPrice(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	order, err := g.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "BTC/USDT", Side: models.SideBuy, Type: models.OrderMarket, Qty: 0.001,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderClosed, order.Status)
	assert.Greater(t, order.Price, 0.0)
}

func TestGatewayEquityRoughlyConserved(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	_, err := g.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "BTC/USDT", Side: models.SideBuy, Type: models.OrderMarket, Qty: 0.01,
	})
	require.NoError(t, err)

	// buying converts quote into inventory; only the fee and the bar
	// jitter move total equity
	assert.InDelta(t, 10000.0, g.Equity(), 50.0)
}

func TestGatewayOrderHistory(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.PlaceOrder(ctx, models.OrderRequest{
			Symbol: "XYZ/USDT", Side: models.SideBuy, Type: models.OrderLimit, Qty: 0.1, Price: 100,
		})
		require.NoError(t, err)
	}

	orders := g.Orders()
	require.Len(t, orders, 3)
	assert.Equal(t, "paper_1", orders[0].ID)
	assert.Equal(t, "paper_3", orders[2].ID)
	require.NoError(t, g.Close())
}
