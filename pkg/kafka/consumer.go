package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer fetches from registered topics and hands messages to a worker
// pool. Offsets commit only after handling succeeded, or after the DLQ
// accepted the message, which keeps delivery at-least-once. In-flight is
// capped at one message per topic partition so a slow handler cannot
// reorder a partition.
type Consumer struct {
	cfg      *ConsumerConfig
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	dlq      *kafka.Writer
	hook     ConsumerHook

	msgCh    chan *fetched
	stopCh   chan struct{}
	stopOnce sync.Once
	fetchWG  sync.WaitGroup
	workWG   sync.WaitGroup

	lockMu    sync.Mutex
	partLocks map[string]map[int]*sync.Mutex
}

type fetched struct {
	topic string
	km    kafka.Message
}

var errConsumerStopped = errors.New("consumer stopping")

// NewConsumer builds a consumer from the options.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "default",
		StartOffset: "earliest",
		Workers:     1,
		BufferSize:  10,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    10e3,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:       cfg,
		readers:   make(map[string]*kafka.Reader),
		handlers:  make(map[string]MessageHandler),
		msgCh:     make(chan *fetched, cfg.BufferSize),
		stopCh:    make(chan struct{}),
		partLocks: make(map[string]map[int]*sync.Mutex),
		hook:      NoopHook{},
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	registerConsumerMetrics()
	return c, nil
}

// RegisterHandler binds a handler to its topic. Register before Start.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	topic := h.Topic()
	if _, dup := c.handlers[topic]; dup {
		log.Printf("kafka consumer: handler already registered for %s", topic)
		return
	}
	c.handlers[topic] = h
}

// WithConsumerHook installs the lifecycle hook. Call before Start.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start opens one reader per registered topic and launches the workers.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}

	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: startOffset(c.cfg.StartOffset),
		})
	}

	for i := 0; i < c.cfg.Workers; i++ {
		c.workWG.Add(1)
		go c.worker()
	}
	for topic, r := range c.readers {
		c.fetchWG.Add(1)
		go c.fetch(topic, r)
	}
	log.Printf("kafka consumer: started topics=%d workers=%d", len(c.readers), c.cfg.Workers)
	return nil
}

// Stop shuts down in phases: fetchers first, then the queue and workers,
// then the readers and DLQ writer. msgCh closes only after every fetcher
// exited, so a fetcher can never send on a closed channel. The context
// bounds each wait.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stopCh)

		err = waitGroup(ctx, &c.fetchWG)
		if err == nil {
			close(c.msgCh)
			err = waitGroup(ctx, &c.workWG)
		}
		if err != nil {
			err = fmt.Errorf("stop consumer: %w", err)
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				log.Printf("kafka consumer: close reader %s: %v", topic, cerr)
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				log.Printf("kafka consumer: close dlq writer: %v", cerr)
			}
		}
	})
	return err
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func startOffset(s string) int64 {
	if s == "latest" {
		return kafka.LastOffset
	}
	return kafka.FirstOffset
}

// fetch reads one topic and feeds the worker pool. FetchMessage leaves
// offset commits to the workers.
func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	defer c.fetchWG.Done()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		km, err := r.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				log.Printf("kafka consumer: fetch %s: %v", topic, err)
			}
			continue
		}
		if !c.enqueue(&fetched{topic: topic, km: km}) {
			return
		}
	}
}

// enqueue blocks until the message is buffered or shutdown begins. Past
// 80% fill the fetcher naps instead of spinning.
func (c *Consumer) enqueue(m *fetched) bool {
	for {
		select {
		case c.msgCh <- m:
			depth := float64(len(c.msgCh))
			consumerMetrics.queueDepth.WithLabelValues(m.topic).Set(depth)
			consumerMetrics.queueFullness.WithLabelValues(m.topic).Set(depth / float64(cap(c.msgCh)))
			return true
		case <-c.stopCh:
			return false
		default:
			if float64(len(c.msgCh))/float64(cap(c.msgCh)) > 0.8 {
				time.Sleep(10 * time.Millisecond)
			} else {
				runtime.Gosched()
			}
		}
	}
}

func (c *Consumer) worker() {
	defer c.workWG.Done()
	for m := range c.msgCh {
		if h := c.handlers[m.topic]; h != nil {
			c.handle(h, m)
		}
	}
}

// handle runs one message through the hook chain and handler. Panics are
// contained per message.
func (c *Consumer) handle(h MessageHandler, m *fetched) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("kafka consumer: panic handling %s: %v", m.topic, r)
		}
	}()

	lock := c.partitionLock(m.topic, m.km.Partition)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	defer func() {
		consumerMetrics.handleLatency.WithLabelValues(m.topic).Observe(time.Since(start).Seconds())
	}()

	err := c.process(h, m)
	if errors.Is(err, errConsumerStopped) {
		// abandoned mid-retry; the uncommitted offset redelivers it
		return
	}
	if err != nil {
		c.hook.OnError(context.Background(), m.topic, m.km, m.km.Value, err)
		log.Printf("kafka consumer: handling %s failed after retries: %v", m.topic, err)
		if !c.deadLetter(m) {
			return
		}
	}
	if r := c.readers[m.topic]; r != nil {
		c.commit(r, m.km)
	}
}

// process retries the hook-wrapped handler with jittered exponential
// backoff until success or the retry budget runs out.
func (c *Consumer) process(h MessageHandler, m *fetched) error {
	var err error
	for attempt := 1; ; attempt++ {
		hctx, hkm, hdata, herr := c.hook.BeforeHandle(context.Background(), m.topic, m.km, m.km.Value)
		if herr != nil {
			return herr
		}
		err = h.Handle(hctx, hdata)
		c.hook.AfterHandle(hctx, m.topic, hkm, hdata, err)
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}
		c.hook.OnError(hctx, m.topic, hkm, hdata, err)

		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stopCh:
			return errConsumerStopped
		}
	}
}

// deadLetter forwards the failed message and reports whether it is safe
// to commit the offset.
func (c *Consumer) deadLetter(m *fetched) bool {
	if c.dlq == nil {
		return false
	}
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Value:   m.km.Value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(m.topic)}},
	})
	if err != nil {
		log.Printf("kafka consumer: dlq write %s: %v", c.cfg.DLQTopic, err)
		return false
	}
	return true
}

// commit retries a few times. Consumer-group commits are high-water
// marks, so the next successful commit also covers a failed one.
func (c *Consumer) commit(r *kafka.Reader, km kafka.Message) {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	log.Printf("kafka consumer: commit failed: %v", err)
}

// partitionLock returns the mutex serializing one topic partition.
// Workers race to create locks, so the registry itself is guarded.
func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()

	byPart := c.partLocks[topic]
	if byPart == nil {
		byPart = make(map[int]*sync.Mutex)
		c.partLocks[topic] = byPart
	}
	l := byPart[partition]
	if l == nil {
		l = &sync.Mutex{}
		byPart[partition] = l
	}
	return l
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := min
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	if half := int64(d) / 2; half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}

var (
	consumerMetricsOnce sync.Once
	consumerMetrics     struct {
		queueDepth    *prometheus.GaugeVec
		queueFullness *prometheus.GaugeVec
		handleLatency *prometheus.HistogramVec
	}
)

func registerConsumerMetrics() {
	consumerMetricsOnce.Do(func() {
		consumerMetrics.queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fintrade_kafka_consumer_queue_depth",
			Help: "Messages waiting in the consumer queue",
		}, []string{"topic"})
		consumerMetrics.queueFullness = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fintrade_kafka_consumer_queue_fullness",
			Help: "Queue utilization ratio",
		}, []string{"topic"})
		consumerMetrics.handleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name: "fintrade_kafka_consumer_handle_seconds",
			Help: "Handling time per message",
		}, []string{"topic"})
	})
}
