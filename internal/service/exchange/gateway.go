// Package exchange implements the live market gateway over the Bybit
// v5 REST API. It covers exactly what the engine consumes: klines,
// wallet balances, open positions and order placement. Failed calls
// are returned as-is; the engine counts them as missed cycles, so no
// retry policy lives here.
package exchange

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"FinTrade/internal/domain/models"
	drepo "FinTrade/internal/domain/repository"
	"FinTrade/internal/service/cache"
	"FinTrade/internal/service/ratelimit"
	pkghttp "FinTrade/pkg/http"
	"FinTrade/pkg/logger"
)

const defaultKlineLimit = 200

// Config holds the connection settings for the live gateway.
type Config struct {
	BaseURL       string
	APIKey        string
	APISecret     string
	Timeout       time.Duration
	RecvWindow    time.Duration
	Category      string
	AccountType   string
	RatePerSec    float64
	RateBurst     float64
	InstrumentTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.bybit.com"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RecvWindow <= 0 {
		c.RecvWindow = 5 * time.Second
	}
	if c.Category == "" {
		c.Category = "spot"
	}
	if c.AccountType == "" {
		c.AccountType = "UNIFIED"
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 10
	}
	if c.InstrumentTTL <= 0 {
		c.InstrumentTTL = 10 * time.Minute
	}
}

// Gateway talks to the exchange REST API. Market data endpoints are
// public; balance, position and order endpoints are signed.
type Gateway struct {
	cfg         Config
	http        *pkghttp.Client
	limiter     *ratelimit.Limiter
	instruments *cache.TTLCache[*instrument]
	log         *logger.Logger
	now         func() time.Time
}

var _ drepo.ExchangeGateway = (*Gateway)(nil)

func New(cfg Config, log *logger.Logger) (*Gateway, error) {
	cfg.applyDefaults()
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("exchange gateway: api key and secret required")
	}
	return &Gateway{
		cfg:         cfg,
		http:        pkghttp.NewClient(pkghttp.WithTimeout(cfg.Timeout)),
		limiter:     ratelimit.New(),
		instruments: cache.NewTTLCache[*instrument](),
		log:         log,
		now:         time.Now,
	}, nil
}

// RecentPrices fetches the most recent klines, oldest bar first. The
// exchange returns raw OHLCV only; indicator columns are attached
// upstream of the decision core.
func (g *Gateway) RecentPrices(ctx context.Context, symbol string, tf drepo.Timeframe, limit int) (*models.MarketWindow, error) {
	if limit <= 0 {
		limit = defaultKlineLimit
	}
	vals := url.Values{}
	vals.Set("category", g.cfg.Category)
	vals.Set("symbol", marketSymbol(symbol))
	vals.Set("interval", klineInterval(tf))
	vals.Set("limit", strconv.Itoa(limit))

	var res klineResult
	if err := g.get(ctx, pathKline, vals, false, &res); err != nil {
		return nil, fmt.Errorf("fetch klines: %w", err)
	}
	return res.window(symbol, tf)
}

// Balance returns wallet balances per coin across the configured
// account type.
func (g *Gateway) Balance(ctx context.Context) (map[string]float64, error) {
	vals := url.Values{}
	vals.Set("accountType", g.cfg.AccountType)

	var res walletResult
	if err := g.get(ctx, pathWalletBalance, vals, true, &res); err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}
	out := make(map[string]float64)
	for _, acct := range res.List {
		for _, c := range acct.Coins {
			out[c.Coin] = float64(c.WalletBalance)
		}
	}
	return out, nil
}

// OpenPosition returns the open position for symbol, or a zero-size
// position when flat. Short positions carry a negative size.
func (g *Gateway) OpenPosition(ctx context.Context, symbol string) (models.Position, error) {
	vals := url.Values{}
	vals.Set("category", g.cfg.Category)
	vals.Set("symbol", marketSymbol(symbol))

	var res positionResult
	if err := g.get(ctx, pathPositionList, vals, true, &res); err != nil {
		return models.Position{}, fmt.Errorf("fetch position: %w", err)
	}
	for _, p := range res.List {
		if p.Symbol != marketSymbol(symbol) || p.Size == 0 {
			continue
		}
		size := float64(p.Size)
		if strings.EqualFold(p.Side, "sell") {
			size = -size
		}
		ts := g.now().UTC()
		if ms, err := strconv.ParseInt(p.UpdatedTime, 10, 64); err == nil && ms > 0 {
			ts = time.UnixMilli(ms).UTC()
		}
		return models.Position{
			Symbol:        symbol,
			Size:          size,
			AvgPrice:      float64(p.AvgPrice),
			MarkPrice:     float64(p.MarkPrice),
			UnrealizedPnL: float64(p.UnrealisedPnl),
			RealizedPnL:   float64(p.CurRealisedPnl),
			Timestamp:     ts,
		}, nil
	}
	return models.Position{Symbol: symbol, Timestamp: g.now().UTC()}, nil
}

// PlaceOrder submits an order with the quantity floored to the
// instrument's lot step. The returned Order reports acceptance, not
// the fill: the exchange only hands back an order ID here.
func (g *Gateway) PlaceOrder(ctx context.Context, req models.OrderRequest) (models.Order, error) {
	side, err := orderSide(req.Side)
	if err != nil {
		return models.Order{}, err
	}
	typ, err := orderType(req.Type)
	if err != nil {
		return models.Order{}, err
	}
	qty, err := g.roundQty(ctx, req)
	if err != nil {
		return models.Order{}, err
	}

	body := orderCreateRequest{
		Category:  g.cfg.Category,
		Symbol:    marketSymbol(req.Symbol),
		Side:      side,
		OrderType: typ,
		Qty:       qty.String(),
	}
	if req.Type == models.OrderLimit {
		body.Price = decimal.NewFromFloat(req.Price).String()
		body.TimeInForce = "GTC"
	}

	var res orderCreateResult
	if err := g.post(ctx, pathOrderCreate, body, &res); err != nil {
		return models.Order{}, fmt.Errorf("create order: %w", err)
	}

	ord := models.Order{
		ID:        res.OrderID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Price:     req.Price,
		Qty:       qty.InexactFloat64(),
		Status:    models.OrderOpen,
		Timestamp: g.now().UTC(),
	}
	g.log.Info("order submitted",
		logger.String("symbol", req.Symbol),
		logger.String("side", string(req.Side)),
		logger.String("qty", qty.String()),
		logger.String("order_id", ord.ID),
	)
	return ord, nil
}

// Close releases nothing persistent; the HTTP client carries no state.
func (g *Gateway) Close() error {
	g.log.Info("exchange gateway closed")
	return nil
}

// roundQty floors the requested quantity to the instrument's lot step
// and enforces the minimum order size.
func (g *Gateway) roundQty(ctx context.Context, req models.OrderRequest) (decimal.Decimal, error) {
	inst, err := g.instrument(ctx, req.Symbol)
	if err != nil {
		return decimal.Zero, err
	}
	qty := decimal.NewFromFloat(req.Qty)
	if inst.qtyStep.IsPositive() {
		qty = qty.Div(inst.qtyStep).Floor().Mul(inst.qtyStep)
	}
	if !qty.IsPositive() {
		return decimal.Zero, fmt.Errorf("quantity %v rounds to zero at step %s", req.Qty, inst.qtyStep)
	}
	if inst.minQty.IsPositive() && qty.LessThan(inst.minQty) {
		return decimal.Zero, fmt.Errorf("quantity %s below instrument minimum %s", qty, inst.minQty)
	}
	return qty, nil
}

type instrument struct {
	symbol   string
	qtyStep  decimal.Decimal
	minQty   decimal.Decimal
	tickSize decimal.Decimal
}

// instrument returns the cached lot filters for symbol, refreshing
// from the instruments-info endpoint when the cache entry expired.
func (g *Gateway) instrument(ctx context.Context, symbol string) (*instrument, error) {
	key := "instrument:" + marketSymbol(symbol)
	if inst, ok := g.instruments.Get(key); ok {
		return inst, nil
	}

	vals := url.Values{}
	vals.Set("category", g.cfg.Category)
	vals.Set("symbol", marketSymbol(symbol))

	var res instrumentsResult
	if err := g.get(ctx, pathInstruments, vals, false, &res); err != nil {
		return nil, fmt.Errorf("fetch instrument info: %w", err)
	}
	if len(res.List) == 0 {
		return nil, fmt.Errorf("unknown instrument %s", symbol)
	}

	raw := res.List[0]
	step := raw.LotSizeFilter.QtyStep
	if step == "" {
		step = raw.LotSizeFilter.BasePrecision
	}
	inst := &instrument{symbol: raw.Symbol}
	var err error
	if inst.qtyStep, err = parseDecimal(step); err != nil {
		return nil, fmt.Errorf("instrument %s qty step: %w", symbol, err)
	}
	if inst.minQty, err = parseDecimal(raw.LotSizeFilter.MinOrderQty); err != nil {
		return nil, fmt.Errorf("instrument %s min qty: %w", symbol, err)
	}
	if inst.tickSize, err = parseDecimal(raw.PriceFilter.TickSize); err != nil {
		return nil, fmt.Errorf("instrument %s tick size: %w", symbol, err)
	}

	g.instruments.Set(key, inst, g.cfg.InstrumentTTL)
	return inst, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
