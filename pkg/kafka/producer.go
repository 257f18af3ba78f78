// Package kafka wraps segmentio/kafka-go with the producer and consumer
// surface the engine needs: JSON-encoding publishers with partition
// affinity by key, and a worker-pool consumer with retries, DLQ routing
// and a hook chain.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Producer publishes messages through a shared kafka-go writer.
type Producer struct {
	w    *kafka.Writer
	comp string
}

// Message is one batch entry. Value follows the same encoding rules as
// Publish: []byte and string pass through, everything else is JSON.
type Message struct {
	Key   []byte
	Value interface{}
}

// NewProducer builds a writer from the options.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "gzip",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	var bal kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}

	registerProducerMetrics()
	return &Producer{
		comp: cfg.Compression,
		w: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     bal,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  parseCompression(cfg.Compression),
			MaxAttempts:  cfg.MaxAttempts,
			WriteTimeout: cfg.WriteTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			BatchSize:    cfg.BatchSize,
			BatchBytes:   int64(cfg.BatchBytes),
			BatchTimeout: cfg.BatchTimeout,
			Async:        cfg.Async,
		},
	}, nil
}

// Publish sends one message to topic.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	payload, err := encodeValue(value)
	if err != nil {
		return err
	}

	start := time.Now()
	err = p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: payload,
		Time:  start,
	})
	p.observe(topic, len(payload), 1, time.Since(start), err)
	return err
}

// PublishBatch sends all messages to topic in one writer call.
func (p *Producer) PublishBatch(ctx context.Context, topic string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	now := time.Now()
	out := make([]kafka.Message, len(msgs))
	var payloadBytes int
	for i, m := range msgs {
		payload, err := encodeValue(m.Value)
		if err != nil {
			return fmt.Errorf("encode message %d: %w", i, err)
		}
		out[i] = kafka.Message{Topic: topic, Key: m.Key, Value: payload, Time: now}
		payloadBytes += len(payload)
	}

	start := time.Now()
	err := p.w.WriteMessages(ctx, out...)
	p.observe(topic, payloadBytes, len(out), time.Since(start), err)
	return err
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	if p.w != nil {
		return p.w.Close()
	}
	return nil
}

func encodeValue(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return b, nil
	}
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

var (
	producerMetricsOnce sync.Once
	producerMetrics     struct {
		published *prometheus.CounterVec
		errors    *prometheus.CounterVec
		bytes     *prometheus.CounterVec
		latency   *prometheus.HistogramVec
	}
)

func registerProducerMetrics() {
	producerMetricsOnce.Do(func() {
		producerMetrics.published = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fintrade_kafka_producer_messages_total",
			Help: "Messages published to Kafka",
		}, []string{"topic", "compression", "result"})
		producerMetrics.errors = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fintrade_kafka_producer_errors_total",
			Help: "Producer errors",
		}, []string{"topic"})
		producerMetrics.bytes = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fintrade_kafka_producer_bytes_total",
			Help: "Payload bytes published",
		}, []string{"topic", "compression"})
		producerMetrics.latency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fintrade_kafka_producer_publish_seconds",
			Help:    "Publish latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	})
}

func (p *Producer) observe(topic string, payloadBytes, count int, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		producerMetrics.errors.WithLabelValues(topic).Inc()
	}
	producerMetrics.published.WithLabelValues(topic, p.comp, result).Add(float64(count))
	producerMetrics.bytes.WithLabelValues(topic, p.comp).Add(float64(payloadBytes))
	producerMetrics.latency.WithLabelValues(topic).Observe(d.Seconds())
}
