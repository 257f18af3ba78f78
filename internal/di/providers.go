package di

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"FinTrade/internal/domain/models"
	"FinTrade/internal/domain/repository"
	domsvc "FinTrade/internal/domain/service"
	"FinTrade/internal/handler/api"
	mid "FinTrade/internal/middleware"
	internalrepo "FinTrade/internal/repository"
	"FinTrade/internal/service/exchange"
	svcmetrics "FinTrade/internal/service/metrics"
	"FinTrade/internal/service/paper"
	"FinTrade/internal/services/aggregate"
	"FinTrade/internal/services/producers"
	"FinTrade/internal/usecase"
	pkgcache "FinTrade/pkg/cache"
	pkgch "FinTrade/pkg/clickhouse"
	"FinTrade/pkg/config"
	pkgkafka "FinTrade/pkg/kafka"
	applogger "FinTrade/pkg/logger"
	"FinTrade/pkg/metrics"
	"FinTrade/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and prepares the
// decision audit schema. Both audit backends end in ClickHouse: the
// clickhouse backend writes directly, the kafka backend writes through
// the consumer.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// sql.Open is lazy; surface connectivity problems before the DDL runs.
	if err := client.Health(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	db := cfg.ClickHouse.Database
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		"CREATE TABLE IF NOT EXISTS " + db + ".decisions (" +
			"ts DateTime64(3), symbol String, cycle Int64, action Int8, " +
			"confidence Float64, reasoning String, votes String, price Float64" +
			") ENGINE = MergeTree ORDER BY (symbol, ts)",
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideDecisionStorage creates the ClickHouse decision store.
func ProvideDecisionStorage(chClient *pkgch.Client, cfg *config.Config) repository.Storage {
	return internalrepo.NewDecisionStore(chClient.DB(), cfg.ClickHouse.Database+".decisions")
}

// ProvidePublisher creates the Kafka decision publisher. The clickhouse
// backend stores directly and gets no publisher.
func ProvidePublisher(cfg *config.Config, log *applogger.Logger) (repository.Publisher, error) {
	if cfg.Backend.Type != usecase.BackendKafka {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	// The decision producer doubles as the transport for aggregated
	// warn/error records when a log topic is configured.
	if cfg.Logging.KafkaTopic != "" {
		log.AddCollector(&applogger.CollectionConfig{
			Topic:     cfg.Logging.KafkaTopic,
			Publisher: producer,
		})
	}

	return internalrepo.NewDecisionPublisher(producer, cfg.Kafka.Topic), nil
}

// ProvideConsumer creates the audit-side Kafka consumer that moves
// published decisions into ClickHouse. Nil unless the kafka backend is
// configured.
func ProvideConsumer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Backend.Type != usecase.BackendKafka {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerStartOffset(cfg.Kafka.Consumer.StartOffset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(auditHook(log))
	return consumer, nil
}

// auditHook threads receive time and trace id through message handling
// and routes consumer failures into the structured log.
func auditHook(log *applogger.Logger) pkgkafka.ConsumerHook {
	tracing := pkgkafka.HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			ctx = pkgkafka.WithStartTime(ctx, time.Now())
			if id := pkgkafka.ExtractTraceID(km); id != "" {
				ctx = pkgkafka.WithTraceID(ctx, id)
			}
			return ctx, km, data, nil
		},
	}
	logging := pkgkafka.HookFuncs{
		After: func(ctx context.Context, topic string, _ kafka.Message, _ []byte, err error) {
			if err != nil {
				return
			}
			start, ok := pkgkafka.StartTime(ctx)
			if !ok {
				return
			}
			fields := []applogger.Field{
				applogger.String("topic", topic),
				applogger.Duration("elapsed", time.Since(start)),
			}
			if id := pkgkafka.TraceID(ctx); id != "" {
				fields = append(fields, applogger.String("trace_id", id))
			}
			log.Debug("audit event stored", fields...)
		},
		Err: func(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
			log.Warn("audit consume failed",
				applogger.String("topic", topic),
				applogger.Int("partition", km.Partition),
				applogger.Int64("offset", km.Offset),
				applogger.Error(err))
		},
	}
	return pkgkafka.NewHookChain(tracing, logging)
}

// ProvideMessageHandler creates the decision ingest handler for the
// kafka backend.
func ProvideMessageHandler(cfg *config.Config, store repository.Storage, m repository.Metrics) pkgkafka.MessageHandler {
	if cfg.Backend.Type != usecase.BackendKafka {
		return nil
	}
	return usecase.NewKafkaDecisionsHandler(cfg.Kafka.Topic, store, m)
}

// ProvideCacheService selects the shared cache backend: layered
// memory-over-Redis when Redis is enabled, plain in-process memory
// otherwise.
func ProvideCacheService(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		// Lock keys live 30s; sweep faster than the default so expired
		// entries do not linger between cycles.
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(time.Minute)), nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
		pkgcache.WithRedisPool(20, 5, 3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	// The shared cache holds a handful of state and lock keys; snapshots
	// refresh every cycle, so a short L1 window cannot serve stale state.
	return pkgcache.NewLayeredCache(rc,
		pkgcache.WithLayeredMemorySize(256),
		pkgcache.WithLayeredL1TTL(2*time.Second),
	), nil
}

// ProvideStateSink keeps the latest snapshot per symbol in the shared
// cache for out-of-process readers.
func ProvideStateSink(c pkgcache.Service, cfg *config.Config) repository.StateSink {
	return internalrepo.NewRedisStateSink(c, cfg.Redis.StateTTL)
}

// ProvideProducers builds the configured producer set. The model scorer
// joins only when a service URL is configured.
func ProvideProducers(cfg *config.Config) ([]domsvc.Producer, error) {
	prods, err := producers.Build(cfg.Producers.Enabled)
	if err != nil {
		return nil, err
	}
	if cfg.Producers.Model.BaseURL != "" {
		svcmetrics.Register()
		prods = append(prods, producers.NewModelScorer(
			cfg.Producers.Model.BaseURL,
			cfg.Producers.Model.Horizon,
			cfg.Producers.Model.Timeout,
		))
	}
	return prods, nil
}

// ProvideAggregator builds the configured aggregation strategy.
func ProvideAggregator(cfg *config.Config) (domsvc.Aggregator, error) {
	return aggregate.New(
		cfg.Strategy.Aggregator,
		cfg.Strategy.Weights,
		cfg.Strategy.Consensus.MinRatio,
		cfg.Strategy.Adaptive.VolatilityThreshold,
	)
}

// ProvideStrategyManager registers every producer with the manager.
func ProvideStrategyManager(
	agg domsvc.Aggregator,
	prods []domsvc.Producer,
	log *applogger.Logger,
	m repository.Metrics,
	cfg *config.Config,
) (*usecase.StrategyManager, error) {
	mgr := usecase.NewStrategyManager(agg, log, m, cfg.Strategy.MinSignals, cfg.Strategy.HistoryCapacity)
	for _, p := range prods {
		if err := mgr.Register(p.Name(), p); err != nil {
			return nil, fmt.Errorf("register producer %s: %w", p.Name(), err)
		}
	}
	return mgr, nil
}

// ProvideGateway selects the exchange implementation. The paper gateway
// learns the indicator columns to synthesize from the producer set.
func ProvideGateway(cfg *config.Config, log *applogger.Logger, prods []domsvc.Producer) (repository.ExchangeGateway, error) {
	if cfg.Gateway.Type == "exchange" {
		gw, err := exchange.New(exchange.Config{
			BaseURL:       cfg.Gateway.Exchange.BaseURL,
			APIKey:        cfg.Gateway.Exchange.APIKey,
			APISecret:     cfg.Gateway.Exchange.APISecret,
			Timeout:       cfg.Gateway.Exchange.Timeout,
			RecvWindow:    time.Duration(cfg.Gateway.Exchange.RecvWindow) * time.Millisecond,
			Category:      cfg.Gateway.Exchange.Category,
			AccountType:   cfg.Gateway.Exchange.AccountType,
			RatePerSec:    cfg.Gateway.Exchange.RateRPS,
			RateBurst:     cfg.Gateway.Exchange.RateBurst,
			InstrumentTTL: cfg.Gateway.Exchange.CacheTTL,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("exchange gateway: %w", err)
		}
		return gw, nil
	}

	opts := []paper.Option{
		paper.WithFeeRate(cfg.Gateway.Paper.FeeRate),
		paper.WithInitialBalance(cfg.Gateway.Paper.InitialBalance),
	}
	if cfg.Gateway.Paper.Seed != 0 {
		opts = append(opts, paper.WithSeed(cfg.Gateway.Paper.Seed))
	}
	if cols := requiredColumns(prods); len(cols) > 0 {
		opts = append(opts, paper.WithColumns(cols))
	}
	return paper.NewGateway(log, opts...), nil
}

// requiredColumns unions the indicator columns the producers declare.
func requiredColumns(prods []domsvc.Producer) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, p := range prods {
		ca, ok := p.(domsvc.ColumnAware)
		if !ok {
			continue
		}
		for _, col := range ca.RequiredColumns() {
			if _, dup := seen[col]; dup {
				continue
			}
			seen[col] = struct{}{}
			cols = append(cols, col)
		}
	}
	return cols
}

// ProvideDecisionProcessor routes decision records to the audit backend.
func ProvideDecisionProcessor(
	pub repository.Publisher,
	store repository.Storage,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.DecisionProcessor {
	return usecase.NewDecisionProcessor(pub, store, m, log,
		cfg.Backend.Type, cfg.Backend.BatchSize, cfg.Backend.BatchTimeout)
}

// ProvideHub creates the websocket snapshot fanout.
func ProvideHub(log *applogger.Logger) *api.Hub {
	return api.NewHub(log)
}

// ProvideSnapshotPipeline stands between the engine and state
// distribution, fanning each snapshot out to the cache sink and the
// websocket hub.
func ProvideSnapshotPipeline(sink repository.StateSink, hub *api.Hub, m repository.Metrics) *mid.SnapshotPipeline {
	cacheSink := mid.ProcFunc(func(ctx context.Context, snap *models.CycleSnapshot) error {
		return sink.Put(ctx, snap)
	})
	wsSink := mid.ProcFunc(func(_ context.Context, snap *models.CycleSnapshot) error {
		hub.Broadcast(snap)
		return nil
	})
	return mid.NewSnapshotPipeline(mid.Fanout(cacheSink, wsSink), m,
		mid.WithMaxRPS(20),
		mid.WithBufferSize(1000),
	)
}

// ProvideEngine assembles the trading loop.
func ProvideEngine(
	cfg *config.Config,
	mgr *usecase.StrategyManager,
	gw repository.ExchangeGateway,
	proc *usecase.DecisionProcessor,
	pipe *mid.SnapshotPipeline,
	log *applogger.Logger,
	m repository.Metrics,
) *usecase.TradingEngine {
	return usecase.NewTradingEngine(usecase.EngineConfig{
		Symbol:         cfg.Engine.Symbol,
		Timeframe:      repository.NormalizeTimeframe(cfg.Engine.Timeframe),
		QuoteAsset:     cfg.Engine.QuoteAsset,
		Interval:       cfg.Engine.UpdateInterval,
		PriceLimit:     cfg.Engine.PriceLimit,
		TargetFraction: cfg.Engine.TargetFraction,
		MinQuantity:    cfg.Engine.MinQuantity,
	}, mgr, gw, proc, pipe, log, m)
}

// ProvideDecisionsUseCase serves ranged decision queries off the store.
func ProvideDecisionsUseCase(store repository.Storage) *usecase.DecisionsUseCase {
	return usecase.NewDecisionsUseCase(store)
}

// ProvideOperatorHandler wires the operator API surface.
func ProvideOperatorHandler(
	log *applogger.Logger,
	engine *usecase.TradingEngine,
	decisions *usecase.DecisionsUseCase,
	hub *api.Hub,
	cfg *config.Config,
) *api.OperatorHandler {
	h := api.NewOperatorHandler(log, engine, decisions, hub)
	h.SetRateLimit(cfg.HTTP.Rate.Capacity, cfg.HTTP.Rate.Refill)
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	engine *usecase.TradingEngine,
	pipe *mid.SnapshotPipeline,
	proc *usecase.DecisionProcessor,
	cacheSvc pkgcache.Service,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	hub *api.Hub,
	handler *api.OperatorHandler,
) *server.App {
	app := server.New(cfg, log, engine, pipe, proc, cacheSvc, consumer, kh, chClient, hub)
	app.SetHTTPHandler(handler)
	return app
}
