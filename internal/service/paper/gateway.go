// Package paper is an in-memory exchange for paper trading. It
// synthesizes market data with a seeded random walk and fills spot
// orders against a decimal-accurate balance ledger, so the rest of the
// system runs unchanged without touching a real exchange.
package paper

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"FinTrade/internal/domain/models"
	drepo "FinTrade/internal/domain/repository"
	"FinTrade/pkg/logger"
)

const (
	defaultQuoteAsset   = "USDT"
	defaultQuoteBalance = 10_000.0
	defaultHistoryBars  = 500
	defaultSeed         = 1
	pricingTimeframe    = drepo.TF1m
	defaultTakerFee     = 0.001
)

// dust is the position size below which a position counts as closed.
var dust = decimal.New(1, -12)

// book is the spot accounting state for one symbol.
type book struct {
	size     decimal.Decimal
	avgPrice decimal.Decimal
	realized decimal.Decimal
}

// Gateway implements the exchange port against synthetic data.
type Gateway struct {
	mu       sync.Mutex
	rng      *rand.Rand
	now      func() time.Time
	feeRate  decimal.Decimal
	series   map[string]*series
	balances map[string]decimal.Decimal
	books    map[string]*book
	orders   []models.Order
	orderSeq int64
	columns  []string
	log      *logger.Logger
}

type Option func(*Gateway)

// WithSeed fixes the walk's randomness for reproducible runs.
func WithSeed(seed int64) Option {
	return func(g *Gateway) { g.rng = rand.New(rand.NewSource(seed)) }
}

// WithColumns sets the indicator columns to synthesize, normally the
// union of what the registered producers declare.
func WithColumns(cols []string) Option {
	return func(g *Gateway) {
		if len(cols) > 0 {
			g.columns = cols
		}
	}
}

// WithInitialBalance overrides the starting ledger.
func WithInitialBalance(balances map[string]float64) Option {
	return func(g *Gateway) {
		if len(balances) == 0 {
			return
		}
		g.balances = make(map[string]decimal.Decimal, len(balances))
		for asset, amount := range balances {
			g.balances[asset] = decimal.NewFromFloat(amount)
		}
	}
}

// WithFeeRate overrides the taker fee.
func WithFeeRate(rate float64) Option {
	return func(g *Gateway) {
		if rate >= 0 {
			g.feeRate = decimal.NewFromFloat(rate)
		}
	}
}

func NewGateway(log *logger.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		rng:     rand.New(rand.NewSource(defaultSeed)),
		now:     time.Now,
		feeRate: decimal.NewFromFloat(defaultTakerFee),
		series:  make(map[string]*series),
		balances: map[string]decimal.Decimal{
			defaultQuoteAsset: decimal.NewFromFloat(defaultQuoteBalance),
		},
		books:   make(map[string]*book),
		columns: defaultColumns(),
		log:     log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var _ drepo.ExchangeGateway = (*Gateway)(nil)

// RecentPrices returns the newest limit bars of the synthetic series,
// with the requested indicator columns attached.
func (g *Gateway) RecentPrices(_ context.Context, symbol string, tf drepo.Timeframe, limit int) (*models.MarketWindow, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.freshSeries(symbol, tf)
	times, open, high, low, clos, volume := s.tail(limit)

	w := &models.MarketWindow{
		Symbol:    symbol,
		Timeframe: string(tf),
		Time:      times,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     clos,
		Volume:    volume,
	}
	enrich(w, g.columns)
	return w, nil
}

// freshSeries returns the series for symbol+tf advanced to now. Callers
// hold g.mu.
func (g *Gateway) freshSeries(symbol string, tf drepo.Timeframe) *series {
	key := symbol + "|" + string(tf)
	s, ok := g.series[key]
	if !ok {
		s = newSeries(g.rng, symbolProfile(symbol), tf.Duration(), defaultHistoryBars, g.now())
		g.series[key] = s
	}
	s.advance(g.rng, g.now())
	return s
}

// lastPrice marks positions and fills market orders. Callers hold g.mu.
func (g *Gateway) lastPrice(symbol string) decimal.Decimal {
	s := g.freshSeries(symbol, pricingTimeframe)
	return decimal.NewFromFloat(s.close[len(s.close)-1])
}

// Balance returns the free balance per asset.
func (g *Gateway) Balance(_ context.Context) (map[string]float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]float64, len(g.balances))
	for asset, amount := range g.balances {
		out[asset] = amount.InexactFloat64()
	}
	return out, nil
}

// OpenPosition reports the spot position for symbol, zero-size when flat.
func (g *Gateway) OpenPosition(_ context.Context, symbol string) (models.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos := models.Position{Symbol: symbol, Timestamp: g.now().UTC()}
	b, ok := g.books[symbol]
	if !ok {
		return pos, nil
	}

	mark := g.lastPrice(symbol)
	pos.Size = b.size.InexactFloat64()
	pos.AvgPrice = b.avgPrice.InexactFloat64()
	pos.MarkPrice = mark.InexactFloat64()
	pos.RealizedPnL = b.realized.InexactFloat64()
	if b.size.IsPositive() {
		pos.UnrealizedPnL = mark.Sub(b.avgPrice).Mul(b.size).InexactFloat64()
	}
	return pos, nil
}

// PlaceOrder fills a spot order at the last price (or the limit price).
// Sells are clamped to the held size, buys to the available quote
// balance; shorts are impossible.
func (g *Gateway) PlaceOrder(_ context.Context, req models.OrderRequest) (models.Order, error) {
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		return models.Order{Status: models.OrderRejected}, fmt.Errorf("unknown order side %q", req.Side)
	}
	orderType := req.Type
	if orderType == "" {
		orderType = models.OrderMarket
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	execPrice := g.lastPrice(req.Symbol)
	if orderType == models.OrderLimit && req.Price > 0 {
		execPrice = decimal.NewFromFloat(req.Price)
	}
	if !execPrice.IsPositive() {
		return models.Order{Status: models.OrderRejected}, fmt.Errorf("no price for %s", req.Symbol)
	}

	base, quote := splitSymbol(req.Symbol)
	qty := decimal.NewFromFloat(req.Qty)

	b, ok := g.books[req.Symbol]
	if !ok {
		b = &book{}
		g.books[req.Symbol] = b
	}

	if req.Side == models.SideSell && qty.GreaterThan(b.size) {
		qty = b.size // sell no more than held
	}
	if !qty.IsPositive() {
		return models.Order{Status: models.OrderRejected}, fmt.Errorf("nothing to fill: qty %s", qty)
	}

	one := decimal.NewFromInt(1)
	cost := execPrice.Mul(qty)
	fee := cost.Mul(g.feeRate)

	if req.Side == models.SideBuy {
		free := g.balances[quote]
		if cost.Add(fee).GreaterThan(free) {
			// shrink to what the balance can cover, fee included
			qty = free.Div(one.Add(g.feeRate)).Div(execPrice)
			cost = execPrice.Mul(qty)
			fee = cost.Mul(g.feeRate)
		}
		if !qty.IsPositive() {
			return models.Order{Status: models.OrderRejected}, fmt.Errorf("insufficient %s balance", quote)
		}
		g.balances[quote] = free.Sub(cost).Sub(fee)
		g.balances[base] = g.balances[base].Add(qty)

		newSize := b.size.Add(qty)
		b.avgPrice = b.size.Mul(b.avgPrice).Add(qty.Mul(execPrice)).Div(newSize)
		b.size = newSize
	} else {
		g.balances[base] = g.balances[base].Sub(qty)
		g.balances[quote] = g.balances[quote].Add(cost.Sub(fee))
		b.realized = b.realized.Add(execPrice.Sub(b.avgPrice).Mul(qty))
		b.size = b.size.Sub(qty)
		if b.size.Cmp(dust) <= 0 {
			b.size = decimal.Zero
			b.avgPrice = decimal.Zero
		}
	}

	g.orderSeq++
	status := models.OrderClosed
	if orderType == models.OrderLimit {
		status = models.OrderOpen
	}
	order := models.Order{
		ID:        fmt.Sprintf("paper_%d", g.orderSeq),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      orderType,
		Price:     execPrice.InexactFloat64(),
		Qty:       qty.InexactFloat64(),
		Filled:    qty.InexactFloat64(),
		Cost:      cost.InexactFloat64(),
		Fee:       fee.InexactFloat64(),
		FeeAsset:  quote,
		Status:    status,
		Timestamp: g.now().UTC(),
	}
	g.orders = append(g.orders, order)

	g.log.Info("paper order filled",
		logger.String("order_id", order.ID),
		logger.String("symbol", order.Symbol),
		logger.String("side", string(order.Side)),
		logger.Any("qty", order.Qty),
		logger.Any("price", order.Price),
		logger.Any("fee", order.Fee))
	return order, nil
}

// Orders returns a copy of the fill history, oldest first.
func (g *Gateway) Orders() []models.Order {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.Order(nil), g.orders...)
}

// Equity values the portfolio in the quote currency: free quote plus
// every USDT-quoted position at its mark price.
func (g *Gateway) Equity() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	total := g.balances[defaultQuoteAsset]
	for symbol, b := range g.books {
		if !b.size.IsPositive() {
			continue
		}
		if _, quote := splitSymbol(symbol); quote != defaultQuoteAsset {
			continue
		}
		total = total.Add(b.size.Mul(g.lastPrice(symbol)))
	}
	return total.InexactFloat64()
}

func (g *Gateway) Close() error {
	g.log.Info("paper gateway closed", logger.Int("orders", len(g.Orders())))
	return nil
}

func splitSymbol(symbol string) (base, quote string) {
	if i := strings.Index(symbol, "/"); i > 0 {
		return symbol[:i], symbol[i+1:]
	}
	return symbol, defaultQuoteAsset
}
