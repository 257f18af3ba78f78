package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinTrade/internal/domain/models"
	drepo "FinTrade/internal/domain/repository"
	"FinTrade/pkg/logger"
)

// Audit backends the processor can route decisions to.
const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// DecisionProcessor routes decision records to the configured audit
// backend. Kafka publishes per decision; ClickHouse buffers and flushes
// by size or age so slow inserts never sit on the trading cycle.
type DecisionProcessor struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	log     *logger.Logger
	backend string
	batchSz int
	batchTO time.Duration

	mu  sync.Mutex
	buf []*models.DecisionRecord

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDecisionProcessor creates a new DecisionProcessor instance.
func NewDecisionProcessor(
	pub drepo.Publisher,
	store drepo.Storage,
	metrics drepo.Metrics,
	log *logger.Logger,
	backend string,
	batchSz int,
	batchTO time.Duration,
) *DecisionProcessor {
	if batchSz <= 0 {
		batchSz = 100
	}
	if batchTO <= 0 {
		batchTO = 2 * time.Second
	}
	return &DecisionProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		log:     log,
		backend: backend,
		batchSz: batchSz,
		batchTO: batchTO,
		buf:     make([]*models.DecisionRecord, 0, batchSz),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the age-based flusher. Only the ClickHouse backend
// buffers, so other backends make Start a no-op.
func (p *DecisionProcessor) Start(ctx context.Context) {
	if p.backend != BackendClickHouse {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.batchTO)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				if err := p.Flush(ctx); err != nil {
					p.log.Error("decision flush failed", logger.Error(err))
				}
			}
		}
	}()
}

// Process routes a single decision record to the configured backend.
func (p *DecisionProcessor) Process(ctx context.Context, rec *models.DecisionRecord) error {
	if rec == nil {
		return fmt.Errorf("decision record is nil")
	}

	start := time.Now()

	switch p.backend {
	case BackendKafka:
		if err := p.pub.Publish(ctx, rec); err != nil {
			p.metrics.RecordError("process")
			return fmt.Errorf("process decision: %w", err)
		}
	case BackendClickHouse:
		if batch := p.enqueue(rec); batch != nil {
			if err := p.storeBatch(ctx, batch); err != nil {
				return fmt.Errorf("process decision: %w", err)
			}
		}
		return nil
	default:
		p.metrics.RecordError("process")
		return fmt.Errorf("unknown backend: %s", p.backend)
	}

	p.metrics.RecordEventSent(p.backend, rec.Symbol)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())

	return nil
}

// ProcessBatch routes multiple decision records in one call, bypassing
// the size buffer.
func (p *DecisionProcessor) ProcessBatch(ctx context.Context, recs []*models.DecisionRecord) error {
	if len(recs) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case BackendKafka:
		err = p.pub.PublishBatch(ctx, recs)
	case BackendClickHouse:
		err = p.store.StoreBatch(ctx, recs)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for _, rec := range recs {
		p.metrics.RecordEventSent(p.backend, rec.Symbol)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())

	return nil
}

// enqueue appends to the buffer and returns a full batch ready to store,
// or nil when the buffer still has room.
func (p *DecisionProcessor) enqueue(rec *models.DecisionRecord) []*models.DecisionRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = append(p.buf, rec)
	if len(p.buf) < p.batchSz {
		return nil
	}
	batch := p.buf
	p.buf = make([]*models.DecisionRecord, 0, p.batchSz)
	return batch
}

// Flush stores whatever the buffer holds right now.
func (p *DecisionProcessor) Flush(ctx context.Context) error {
	p.mu.Lock()
	if len(p.buf) == 0 {
		p.mu.Unlock()
		return nil
	}
	batch := p.buf
	p.buf = make([]*models.DecisionRecord, 0, p.batchSz)
	p.mu.Unlock()

	return p.storeBatch(ctx, batch)
}

func (p *DecisionProcessor) storeBatch(ctx context.Context, batch []*models.DecisionRecord) error {
	start := time.Now()
	if err := p.store.StoreBatch(ctx, batch); err != nil {
		p.metrics.RecordError("decision_flush")
		// requeue once if the buffer has room, otherwise count the loss
		p.mu.Lock()
		if len(p.buf)+len(batch) <= p.batchSz*2 {
			p.buf = append(batch, p.buf...)
		} else {
			p.metrics.RecordError("decision_buffer_drop")
		}
		p.mu.Unlock()
		return fmt.Errorf("store decisions: %w", err)
	}
	for _, rec := range batch {
		p.metrics.RecordEventSent(p.backend, rec.Symbol)
	}
	p.metrics.RecordLatency("decision_flush", time.Since(start).Seconds())
	return nil
}

// Close stops the flusher, drains the buffer and closes underlying
// resources if available.
func (p *DecisionProcessor) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	if err := p.Flush(context.Background()); err != nil {
		p.log.Error("final decision flush failed", logger.Error(err))
	}
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
