package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"FinTrade/internal/domain/models"
	drepo "FinTrade/internal/domain/repository"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cycleDuration  *prometheus.HistogramVec
	decisionsTotal *prometheus.CounterVec
	ordersTotal    *prometheus.CounterVec
	signalsTotal   *prometheus.CounterVec
	producerErrors *prometheus.CounterVec
	producerStatus *prometheus.GaugeVec
	positionSize   *prometheus.GaugeVec
	lastAction     *prometheus.GaugeVec
	lastPrice      *prometheus.GaugeVec
	eventsSent     *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

var _ drepo.Metrics = (*Recorder)(nil)

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		cycleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fintrade_cycle_duration_seconds",
				Help:    "Duration of decision cycles in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"symbol"},
		),
		decisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrade_decisions_total",
				Help: "Total number of aggregated decisions by action",
			},
			[]string{"symbol", "action"},
		),
		ordersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrade_orders_total",
				Help: "Total number of orders by side and outcome",
			},
			[]string{"side", "status"},
		),
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrade_signals_total",
				Help: "Total number of producer signals by direction",
			},
			[]string{"producer", "signal"},
		),
		producerErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrade_producer_errors_total",
				Help: "Total number of producer evaluation failures",
			},
			[]string{"producer"},
		),
		producerStatus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fintrade_producer_status",
				Help: "Producer status: 1 active, 0 inactive, -1 disabled, -2 error",
			},
			[]string{"producer"},
		),
		positionSize: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fintrade_position_size",
				Help: "Current position size in base asset",
			},
			[]string{"symbol"},
		),
		lastAction: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fintrade_last_action",
				Help: "Last executed action: 1 buy, -1 sell, 0 none",
			},
			[]string{"symbol"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fintrade_last_price",
				Help: "Last observed close price for a symbol",
			},
			[]string{"symbol"},
		),
		eventsSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrade_events_sent_total",
				Help: "Total number of decision events shipped to a backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrade_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fintrade_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordCycle records one decision cycle duration.
func (r *Recorder) RecordCycle(symbol string, seconds float64) {
	r.cycleDuration.WithLabelValues(symbol).Observe(seconds)
}

// RecordDecision counts an aggregated decision by action.
func (r *Recorder) RecordDecision(symbol, action string) {
	r.decisionsTotal.WithLabelValues(symbol, action).Inc()
}

// RecordOrder counts an order attempt by side and outcome.
func (r *Recorder) RecordOrder(side, status string) {
	r.ordersTotal.WithLabelValues(side, status).Inc()
}

// RecordSignal counts a producer signal by direction.
func (r *Recorder) RecordSignal(producer, signal string) {
	r.signalsTotal.WithLabelValues(producer, signal).Inc()
}

// RecordProducerError counts a producer evaluation failure.
func (r *Recorder) RecordProducerError(producer string) {
	r.producerErrors.WithLabelValues(producer).Inc()
}

// RecordProducerStatus tracks the producer lifecycle state.
func (r *Recorder) RecordProducerStatus(producer string, status models.ProducerStatus) {
	var v float64
	switch status {
	case models.StatusActive:
		v = 1
	case models.StatusInactive:
		v = 0
	case models.StatusDisabled:
		v = -1
	case models.StatusError:
		v = -2
	}
	r.producerStatus.WithLabelValues(producer).Set(v)
}

// RecordPosition tracks position size and the last executed action.
func (r *Recorder) RecordPosition(symbol string, size float64, lastAction int) {
	r.positionSize.WithLabelValues(symbol).Set(size)
	r.lastAction.WithLabelValues(symbol).Set(float64(lastAction))
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordEventSent records a decision event shipped to a backend.
func (r *Recorder) RecordEventSent(backend, symbol string) {
	r.eventsSent.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
