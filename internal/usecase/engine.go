package usecase

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sync"
	"time"

	"FinTrade/internal/domain/models"
	drepo "FinTrade/internal/domain/repository"
	"FinTrade/internal/middleware"
	"FinTrade/pkg/logger"
)

const gatewayCloseTimeout = 5 * time.Second

// EngineConfig carries the trading loop parameters.
type EngineConfig struct {
	Symbol         string
	Timeframe      drepo.Timeframe
	QuoteAsset     string
	Interval       time.Duration
	PriceLimit     int
	TargetFraction float64
	MinQuantity    float64
}

func (c *EngineConfig) applyDefaults() {
	if c.Symbol == "" {
		c.Symbol = "BTC/USDT"
	}
	if c.Timeframe == "" {
		c.Timeframe = drepo.DefaultTimeframe()
	}
	if c.QuoteAsset == "" {
		c.QuoteAsset = "USDT"
	}
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.PriceLimit <= 0 {
		c.PriceLimit = 200
	}
	if c.TargetFraction <= 0 {
		c.TargetFraction = 0.01
	}
	if c.MinQuantity <= 0 {
		c.MinQuantity = 0.0001
	}
}

// TradingEngine drives the decision loop: fetch a market window, ask the
// strategy manager for a decision, execute it through the exchange
// gateway, then distribute the cycle snapshot. One goroutine owns the
// loop and all execution state; readers get published copies.
type TradingEngine struct {
	cfg     EngineConfig
	manager *StrategyManager
	gateway drepo.ExchangeGateway
	proc    *DecisionProcessor
	pipe    *middleware.SnapshotPipeline
	log     *logger.Logger
	metrics drepo.Metrics

	// execution state, loop goroutine only
	positionSize float64
	lastAction   int
	cycle        int64
	missed       int64
	tradeCount   int64
	buyCount     int64
	sellCount    int64
	holdCount    int64
	lastDecision time.Time

	mu       sync.RWMutex
	stats    models.EngineStats
	lastSnap *models.CycleSnapshot
}

// NewTradingEngine wires the loop to its collaborators. proc and pipe may
// be nil when audit or state distribution is disabled.
func NewTradingEngine(
	cfg EngineConfig,
	manager *StrategyManager,
	gateway drepo.ExchangeGateway,
	proc *DecisionProcessor,
	pipe *middleware.SnapshotPipeline,
	log *logger.Logger,
	metrics drepo.Metrics,
) *TradingEngine {
	cfg.applyDefaults()
	return &TradingEngine{
		cfg:     cfg,
		manager: manager,
		gateway: gateway,
		proc:    proc,
		pipe:    pipe,
		log:     log,
		metrics: metrics,
		stats: models.EngineStats{
			Symbol:    cfg.Symbol,
			Timeframe: string(cfg.Timeframe),
		},
	}
}

// Run executes trading cycles until ctx is cancelled. The loop survives
// every per-cycle failure; a failed cycle is counted and the next one
// starts on schedule.
func (e *TradingEngine) Run(ctx context.Context) error {
	if e.gateway == nil {
		return fmt.Errorf("trading engine requires an exchange gateway")
	}

	e.log.Info("trading engine started",
		logger.String("symbol", e.cfg.Symbol),
		logger.String("timeframe", string(e.cfg.Timeframe)),
		logger.String("aggregator", e.manager.AggregatorName()),
		logger.Duration("interval", e.cfg.Interval))

	defer e.closeGateway()

	for {
		e.runCycle(ctx)
		select {
		case <-ctx.Done():
			e.log.Info("trading engine stopping",
				logger.Int64("cycles", e.cycle),
				logger.Int64("trades", e.tradeCount))
			return nil
		case <-time.After(e.cfg.Interval):
		}
	}
}

// runCycle performs one fetch-decide-execute-distribute round. A panic
// from a collaborator is contained here so the loop keeps its schedule.
func (e *TradingEngine) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.missed++
			e.metrics.RecordError("cycle_panic")
			e.log.Error("trading cycle panic", logger.Any("panic", r))
			e.publishStats()
		}
	}()

	start := time.Now()
	e.cycle++

	window, err := e.gateway.RecentPrices(ctx, e.cfg.Symbol, e.cfg.Timeframe, e.cfg.PriceLimit)
	if err != nil || window.Len() == 0 {
		e.missed++
		e.metrics.RecordError("market_data")
		e.log.Warn("no market data, cycle skipped",
			logger.String("symbol", e.cfg.Symbol),
			logger.Int64("cycle", e.cycle),
			logger.Error(err))
		e.publishStats()
		return
	}

	price := window.LastClose()
	e.metrics.RecordLastPrice(e.cfg.Symbol, price)

	decision := e.manager.MakeDecision(ctx, window)
	e.lastDecision = decision.Timestamp
	e.metrics.RecordDecision(e.cfg.Symbol, decision.Action.String())

	traded := false
	switch decision.Action {
	case models.Buy:
		if e.lastAction != 1 {
			traded = e.executeBuy(ctx, price)
		} else {
			e.log.Debug("already long, buy skipped", logger.String("symbol", e.cfg.Symbol))
		}
	case models.Sell:
		if e.lastAction != -1 {
			traded = e.executeSell(ctx)
		} else {
			e.log.Debug("already flat, sell skipped", logger.String("symbol", e.cfg.Symbol))
		}
	case models.Hold:
		e.holdCount++
	}

	if traded && e.tradeCount > 0 && e.tradeCount%10 == 0 {
		e.log.Info("engine stats",
			logger.Int64("trades", e.tradeCount),
			logger.Int64("buys", e.buyCount),
			logger.Int64("sells", e.sellCount),
			logger.Int64("holds", e.holdCount),
			logger.Int64("missed", e.missed),
			logger.Any("position", e.positionSize))
	}

	e.metrics.RecordPosition(e.cfg.Symbol, e.positionSize, e.lastAction)
	e.distribute(ctx, &decision, price)
	e.metrics.RecordCycle(e.cfg.Symbol, time.Since(start).Seconds())
}

// executeBuy sizes and places a market buy. Position state changes only
// after the gateway accepted the order.
func (e *TradingEngine) executeBuy(ctx context.Context, price float64) bool {
	balance, err := e.gateway.Balance(ctx)
	if err != nil {
		e.missed++
		e.metrics.RecordError("balance")
		e.log.Warn("balance unavailable, buy skipped", logger.Error(err))
		return false
	}

	quote := balance[e.cfg.QuoteAsset]
	var maxQty float64
	if price > 0 {
		maxQty = quote * e.cfg.TargetFraction / price
	}
	qty := math.Max(0, math.Min(maxQty, e.cfg.MinQuantity+maxQty*0.5))
	if qty <= 0 {
		e.log.Warn("insufficient balance for buy",
			logger.String("asset", e.cfg.QuoteAsset),
			logger.Any("free", quote))
		return false
	}

	order, err := e.gateway.PlaceOrder(ctx, models.OrderRequest{
		Symbol: e.cfg.Symbol,
		Side:   models.SideBuy,
		Type:   models.OrderMarket,
		Qty:    qty,
	})
	if err != nil {
		e.missed++
		e.metrics.RecordOrder("buy", "failed")
		e.log.Error("buy order failed", logger.Error(err))
		return false
	}

	e.positionSize += qty
	e.lastAction = 1
	e.buyCount++
	e.tradeCount++
	e.metrics.RecordOrder("buy", "filled")
	e.log.Info("buy order placed",
		logger.String("order_id", order.ID),
		logger.Any("qty", qty),
		logger.Any("price", price))
	return true
}

// executeSell closes whatever is larger: the exchange-reported position
// or the locally tracked one. A failed position lookup sells the tracked
// size.
func (e *TradingEngine) executeSell(ctx context.Context) bool {
	var held float64
	pos, err := e.gateway.OpenPosition(ctx, e.cfg.Symbol)
	if err != nil {
		e.log.Debug("position lookup failed, using tracked size", logger.Error(err))
	} else {
		held = pos.Size
	}

	qty := math.Max(held, e.positionSize)
	if qty <= 0 {
		e.log.Warn("no position to sell", logger.String("symbol", e.cfg.Symbol))
		return false
	}

	order, err := e.gateway.PlaceOrder(ctx, models.OrderRequest{
		Symbol: e.cfg.Symbol,
		Side:   models.SideSell,
		Type:   models.OrderMarket,
		Qty:    qty,
	})
	if err != nil {
		e.missed++
		e.metrics.RecordOrder("sell", "failed")
		e.log.Error("sell order failed", logger.Error(err))
		return false
	}

	e.positionSize = 0
	e.lastAction = -1
	e.sellCount++
	e.tradeCount++
	e.metrics.RecordOrder("sell", "filled")
	e.log.Info("sell order placed",
		logger.String("order_id", order.ID),
		logger.Any("qty", qty))
	return true
}

// distribute publishes the cycle snapshot and the audit record. Neither
// path may fail the cycle.
func (e *TradingEngine) distribute(ctx context.Context, decision *models.AggregatedDecision, price float64) {
	snap := &models.CycleSnapshot{
		Timestamp:    decision.Timestamp,
		Symbol:       e.cfg.Symbol,
		Cycle:        e.cycle,
		Action:       decision.Action,
		Confidence:   decision.Confidence,
		Reasoning:    decision.Reasoning,
		Votes:        maps.Clone(decision.Votes),
		Price:        price,
		PositionSize: e.positionSize,
		LastAction:   e.lastAction,
		TradeCount:   e.tradeCount,
		BuyCount:     e.buyCount,
		SellCount:    e.sellCount,
		HoldCount:    e.holdCount,
	}

	e.publish(snap)

	if e.pipe != nil {
		if err := e.pipe.Process(ctx, snap); err != nil {
			e.log.Debug("snapshot distribution degraded", logger.Error(err))
		}
	}

	if e.proc != nil {
		rec := &models.DecisionRecord{
			Timestamp:  decision.Timestamp,
			Symbol:     e.cfg.Symbol,
			Cycle:      e.cycle,
			Action:     decision.Action,
			Confidence: decision.Confidence,
			Reasoning:  decision.Reasoning,
			Votes:      maps.Clone(decision.Votes),
			Price:      price,
		}
		if err := e.proc.Process(ctx, rec); err != nil {
			e.log.Error("decision audit failed", logger.Error(err))
		}
	}
}

// publish refreshes the read-side copies under lock. Published snapshots
// are never mutated afterwards.
func (e *TradingEngine) publish(snap *models.CycleSnapshot) {
	e.mu.Lock()
	e.setStatsLocked()
	e.lastSnap = snap
	e.mu.Unlock()
}

// publishStats refreshes the counters without touching the snapshot, so
// missed cycles stay visible to the operator API.
func (e *TradingEngine) publishStats() {
	e.mu.Lock()
	e.setStatsLocked()
	e.mu.Unlock()
}

func (e *TradingEngine) setStatsLocked() {
	last := e.lastDecision
	e.stats = models.EngineStats{
		Symbol:       e.cfg.Symbol,
		Timeframe:    string(e.cfg.Timeframe),
		Cycle:        e.cycle,
		MissedCycles: e.missed,
		TradeCount:   e.tradeCount,
		BuyCount:     e.buyCount,
		SellCount:    e.sellCount,
		HoldCount:    e.holdCount,
		PositionSize: e.positionSize,
		LastAction:   e.lastAction,
	}
	if !last.IsZero() {
		e.stats.LastDecision = &last
	}
}

// Stats returns the engine counters as of the last completed cycle.
func (e *TradingEngine) Stats() models.EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// LastSnapshot returns the most recent published snapshot, nil before the
// first completed cycle.
func (e *TradingEngine) LastSnapshot() *models.CycleSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSnap
}

// Symbol names the traded instrument.
func (e *TradingEngine) Symbol() string { return e.cfg.Symbol }

// Manager exposes the producer registry for the operator API.
func (e *TradingEngine) Manager() *StrategyManager { return e.manager }

// closeGateway closes the gateway without letting a hung connection block
// shutdown.
func (e *TradingEngine) closeGateway() {
	done := make(chan error, 1)
	go func() { done <- e.gateway.Close() }()
	select {
	case err := <-done:
		if err != nil {
			e.log.Warn("gateway close failed", logger.Error(err))
		}
	case <-time.After(gatewayCloseTimeout):
		e.log.Warn("gateway close timed out")
	}
}
