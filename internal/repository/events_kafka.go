package repository

import (
	"context"

	"FinTrade/internal/domain/models"
	"FinTrade/internal/domain/repository"
	pkgkafka "FinTrade/pkg/kafka"
)

// DecisionPublisher implements Publisher on Kafka. Records are keyed by
// symbol so one symbol's decisions stay ordered within a partition.
type DecisionPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewDecisionPublisher creates a Kafka-backed decision publisher.
func NewDecisionPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &DecisionPublisher{producer: producer, topic: topic}
}

func (p *DecisionPublisher) Publish(ctx context.Context, rec *models.DecisionRecord) error {
	return p.producer.Publish(ctx, p.topic, []byte(rec.Symbol), rec)
}

func (p *DecisionPublisher) PublishBatch(ctx context.Context, recs []*models.DecisionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(recs))
	for i, rec := range recs {
		msgs[i] = pkgkafka.Message{Key: []byte(rec.Symbol), Value: rec}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *DecisionPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
