package usecase

import (
	"context"
	"encoding/json"
	"time"

	"FinTrade/internal/domain/models"
	domrepo "FinTrade/internal/domain/repository"
	pkgkafka "FinTrade/pkg/kafka"
)

// KafkaDecisionsHandler consumes decision events and writes the audit rows.
// It is the ingest side of the kafka audit backend: the engine publishes,
// this handler persists.
type KafkaDecisionsHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewKafkaDecisionsHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaDecisionsHandler {
	return &KafkaDecisionsHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaDecisionsHandler) Topic() string { return h.topic }

// Handle decodes one decision event and stores it. A malformed payload is
// dropped with a metric; retrying would never make it parse.
func (h *KafkaDecisionsHandler) Handle(ctx context.Context, b []byte) error {
	var rec models.DecisionRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if rec.Symbol == "" {
		h.metrics.RecordError("consumer_invalid")
		return nil
	}
	// E2E latency from decision time to now (approx)
	if !rec.Timestamp.IsZero() {
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(rec.Timestamp).Seconds())
	}

	start := time.Now()
	err := h.storage.Store(ctx, &rec)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordEventSent("clickhouse", rec.Symbol)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaDecisionsHandler)(nil)
