package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"

	"FinTrade/internal/domain/models"
	drepo "FinTrade/internal/domain/repository"
	domsvc "FinTrade/internal/domain/service"
	"FinTrade/pkg/logger"
)

// registration pairs a producer with its lifecycle state.
type registration struct {
	producer  domsvc.Producer
	status    models.ProducerStatus
	lastError string
}

// StrategyManager owns the producer registry, collects signals once per
// cycle, isolates producer failures and keeps bounded signal and decision
// history. Exactly one engine goroutine drives the cycle path; the mutex
// exists because the operator API may flip statuses and read history
// concurrently with a running cycle.
type StrategyManager struct {
	mu         sync.RWMutex
	order      []string
	producers  map[string]*registration
	aggregator domsvc.Aggregator
	minSignals int

	signalHistory   *models.History[models.StrategySignal]
	decisionHistory *models.History[models.AggregatedDecision]

	log     *logger.Logger
	metrics drepo.Metrics
}

// NewStrategyManager builds an empty registry bound to one aggregator.
// Producers are registered explicitly; there is no ambient global set.
func NewStrategyManager(aggregator domsvc.Aggregator, log *logger.Logger, metrics drepo.Metrics, minSignals, historyCapacity int) *StrategyManager {
	if minSignals <= 0 {
		minSignals = 1
	}
	return &StrategyManager{
		order:           make([]string, 0, 8),
		producers:       make(map[string]*registration, 8),
		aggregator:      aggregator,
		minSignals:      minSignals,
		signalHistory:   models.NewHistory[models.StrategySignal](historyCapacity),
		decisionHistory: models.NewHistory[models.AggregatedDecision](historyCapacity),
		log:             log,
		metrics:         metrics,
	}
}

// Register adds a producer under name, replacing any previous registration
// with the same name. New registrations start active.
func (m *StrategyManager) Register(name string, p domsvc.Producer) error {
	if name == "" || p == nil {
		return fmt.Errorf("producer registration requires a name and an implementation")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.producers[name]; !exists {
		m.order = append(m.order, name)
	}
	m.producers[name] = &registration{producer: p, status: models.StatusActive}
	m.metrics.RecordProducerStatus(name, models.StatusActive)
	m.log.Info("producer registered", logger.String("producer", name))
	return nil
}

// Unregister removes a producer from the registry.
func (m *StrategyManager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.producers[name]; !exists {
		return
	}
	delete(m.producers, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.log.Info("producer unregistered", logger.String("producer", name))
}

// SetStatus transitions a registered producer. Unknown names are an error.
func (m *StrategyManager) SetStatus(name string, status models.ProducerStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid producer status %q", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, exists := m.producers[name]
	if !exists {
		return fmt.Errorf("producer %q not registered", name)
	}
	reg.status = status
	if status != models.StatusError {
		reg.lastError = ""
	}
	m.metrics.RecordProducerStatus(name, status)
	m.log.Info("producer status changed",
		logger.String("producer", name),
		logger.String("status", string(status)))
	return nil
}

// Reset returns a producer to active and clears its recorded error.
func (m *StrategyManager) Reset(name string) error {
	return m.SetStatus(name, models.StatusActive)
}

// CollectSignals evaluates every active producer sequentially. A failing
// producer is logged, marked ERROR and skipped from this and all later
// cycles until reset; it never aborts the cycle for the others.
func (m *StrategyManager) CollectSignals(ctx context.Context, window *models.MarketWindow) []models.StrategySignal {
	type task struct {
		name string
		reg  *registration
	}
	m.mu.RLock()
	tasks := make([]task, 0, len(m.order))
	for _, name := range m.order {
		reg := m.producers[name]
		if reg != nil && reg.status == models.StatusActive {
			tasks = append(tasks, task{name: name, reg: reg})
		}
	}
	m.mu.RUnlock()

	signals := make([]models.StrategySignal, 0, len(tasks))
	for _, t := range tasks {
		raw, err := m.evaluate(ctx, t.reg.producer, window)
		if err == nil {
			var sig models.StrategySignal
			sig, err = models.NewStrategySignal(t.name, raw, m.confidence(t.reg.producer, raw, window), map[string]any{
				"strategy_type": fmt.Sprintf("%T", t.reg.producer),
				"data_length":   window.Len(),
			})
			if err == nil {
				signals = append(signals, sig)
				m.metrics.RecordSignal(t.name, sig.Signal.String())
				continue
			}
		}

		m.log.Error("producer evaluation failed",
			logger.String("producer", t.name),
			logger.Error(err))
		m.failProducer(t.name, err)
	}

	m.mu.Lock()
	for _, sig := range signals {
		m.signalHistory.Push(sig)
	}
	m.mu.Unlock()

	return signals
}

// evaluate runs one producer with panic isolation.
func (m *StrategyManager) evaluate(ctx context.Context, p domsvc.Producer, window *models.MarketWindow) (raw int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("producer panic: %v", r)
		}
	}()
	return p.Evaluate(ctx, window)
}

// confidence prefers the producer's own estimate and otherwise applies the
// observation-count heuristic: more history, more confidence, and zero for
// a hold since it carries no direction.
func (m *StrategyManager) confidence(p domsvc.Producer, raw int, window *models.MarketWindow) float64 {
	if sc, ok := p.(domsvc.SelfConfident); ok {
		return sc.Confidence(window)
	}
	if raw == 0 {
		return 0
	}
	return math.Min(float64(window.Len())/100.0, 1.0)
}

func (m *StrategyManager) failProducer(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, exists := m.producers[name]
	if !exists {
		return
	}
	reg.status = models.StatusError
	if err != nil {
		reg.lastError = err.Error()
	}
	m.metrics.RecordProducerError(name)
	m.metrics.RecordProducerStatus(name, models.StatusError)
}

// MakeDecision runs one aggregation round: collect, record, and either
// short-circuit on too few signals or delegate to the aggregator.
func (m *StrategyManager) MakeDecision(ctx context.Context, window *models.MarketWindow) models.AggregatedDecision {
	signals := m.CollectSignals(ctx, window)

	var decision models.AggregatedDecision
	if len(signals) < m.minSignals {
		decision = models.NewHoldDecision(
			fmt.Sprintf("Insufficient signals: %d < %d", len(signals), m.minSignals), nil)
	} else {
		decision = m.aggregator.Aggregate(signals, window)
	}

	m.mu.Lock()
	m.decisionHistory.Push(decision)
	m.mu.Unlock()

	m.log.Debug("decision made",
		logger.String("action", decision.Action.String()),
		logger.Any("confidence", decision.Confidence),
		logger.String("reasoning", decision.Reasoning),
		logger.Int("signals", len(signals)))
	return decision
}

// AggregatorName names the configured aggregation mode.
func (m *StrategyManager) AggregatorName() string { return m.aggregator.Name() }

// Producers returns the current status per registered producer.
func (m *StrategyManager) Producers() map[string]models.ProducerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]models.ProducerStatus, len(m.producers))
	for name, reg := range m.producers {
		out[name] = reg.status
	}
	return out
}

// Performance derives per-producer statistics from the signal history.
func (m *StrategyManager) Performance() map[string]models.ProducerPerformance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]models.ProducerPerformance, len(m.producers))
	sums := make(map[string]float64, len(m.producers))
	for name, reg := range m.producers {
		out[name] = models.ProducerPerformance{Status: reg.status, LastError: reg.lastError}
	}
	for _, sig := range m.signalHistory.Items() {
		perf, tracked := out[sig.Producer]
		if !tracked {
			continue
		}
		perf.TotalSignals++
		switch sig.Signal {
		case models.Buy:
			perf.BuySignals++
		case models.Sell:
			perf.SellSignals++
		default:
			perf.HoldSignals++
		}
		sums[sig.Producer] += sig.Confidence
		out[sig.Producer] = perf
	}
	for name, perf := range out {
		if perf.TotalSignals > 0 {
			perf.AvgConfidence = sums[name] / float64(perf.TotalSignals)
			out[name] = perf
		}
	}
	return out
}

// SignalHistory returns the newest limit signals, oldest first.
func (m *StrategyManager) SignalHistory(limit int) []models.StrategySignal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.signalHistory.Tail(limit)
}

// DecisionHistory returns the newest limit decisions, oldest first.
func (m *StrategyManager) DecisionHistory(limit int) []models.AggregatedDecision {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.decisionHistory.Tail(limit)
}

// ClearHistory drops both history buffers.
func (m *StrategyManager) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signalHistory.Clear()
	m.decisionHistory.Clear()
	m.log.Info("history cleared")
}
