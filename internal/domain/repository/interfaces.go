package repository

import (
	"context"
	"time"

	"FinTrade/internal/domain/models"
)

// Publisher ships decision events to the event stream backend.
type Publisher interface {
	Publish(ctx context.Context, rec *models.DecisionRecord) error
	PublishBatch(ctx context.Context, recs []*models.DecisionRecord) error
	Close() error
}

// Storage is the decision audit trail.
type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, rec *models.DecisionRecord) error
	StoreBatch(ctx context.Context, recs []*models.DecisionRecord) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.DecisionRecord, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// StateSink keeps the latest cycle snapshot available to external
// observers (dashboards, other services).
type StateSink interface {
	Put(ctx context.Context, snap *models.CycleSnapshot) error
	Get(ctx context.Context, symbol string) (*models.CycleSnapshot, error)
	Close() error
}

type Metrics interface {
	RecordCycle(symbol string, seconds float64)
	RecordDecision(symbol, action string)
	RecordOrder(side, status string)
	RecordSignal(producer, signal string)
	RecordProducerError(producer string)
	RecordProducerStatus(producer string, status models.ProducerStatus)
	RecordPosition(symbol string, size float64, lastAction int)
	RecordLastPrice(symbol string, price float64)
	RecordEventSent(backend, symbol string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
