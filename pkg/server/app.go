package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FinTrade/internal/handler/api"
	"FinTrade/internal/middleware"
	"FinTrade/internal/usecase"
	pkgcache "FinTrade/pkg/cache"
	pkgch "FinTrade/pkg/clickhouse"
	"FinTrade/pkg/config"
	xhttp "FinTrade/pkg/http"
	pkgkafka "FinTrade/pkg/kafka"
	applogger "FinTrade/pkg/logger"
)

// instanceLockTTL bounds how long a crashed instance blocks its successor.
const instanceLockTTL = 30 * time.Second

// App encapsulates the entire application lifecycle: HTTP surface,
// snapshot distribution, decision audit and the trading engine itself.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	engine      *usecase.TradingEngine
	pipe        *middleware.SnapshotPipeline
	proc        *usecase.DecisionProcessor
	cache       pkgcache.Service
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	chClient    *pkgch.Client
	hub         *api.Hub
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	lockKey     string
}

// New creates a new App instance with all dependencies. The consumer,
// handler and ClickHouse client are optional; the kafka audit backend
// runs without its ingest side when no brokers reach back here.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	engine *usecase.TradingEngine,
	pipe *middleware.SnapshotPipeline,
	proc *usecase.DecisionProcessor,
	cache pkgcache.Service,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	hub *api.Hub,
) *App {
	return &App{
		cfg:      cfg,
		log:      log,
		engine:   engine,
		pipe:     pipe,
		proc:     proc,
		cache:    cache,
		consumer: consumer,
		kh:       kh,
		chClient: chClient,
		hub:      hub,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts every component and blocks until a shutdown signal arrives
// or the engine refuses to start. Startup order matters: the instance
// lock comes first so two processes never trade the same symbol against
// one account, then the HTTP surface and the distribution path come up
// before the first cycle so the first snapshot has somewhere to go.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.lockKey = pkgcache.GenerateKey("lock:engine", a.cfg.Engine.Symbol)
	locked, err := a.cache.TryLock(ctx, a.lockKey, instanceLockTTL)
	if err != nil {
		return fmt.Errorf("instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("instance lock: another process is already trading %s", a.cfg.Engine.Symbol)
	}
	go a.renewInstanceLock(ctx)

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithHost(a.cfg.HTTP.Host),
		xhttp.WithPort(a.cfg.HTTP.Port),
		xhttp.WithTimeouts(a.cfg.HTTP.ReadTimeout, a.cfg.HTTP.WriteTimeout, a.cfg.HTTP.ShutdownTimeout),
		xhttp.WithCORS(!a.cfg.HTTP.CORS.Disabled),
		xhttp.WithLogger(a.log),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		_ = a.cache.Unlock(ctx, a.lockKey)
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.HTTP.Port))

	a.pipe.Start(ctx)
	a.proc.Start(ctx)

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	engineDone := make(chan error, 1)
	go func() { engineDone <- a.engine.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		a.log.Info("shutdown signal received", applogger.String("signal", sig.String()))
		cancel()
		<-engineDone
	case err := <-engineDone:
		// The engine only exits on its own when it could not start.
		runErr = err
	}

	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// renewInstanceLock keeps the lock alive while the engine runs. A lock
// that cannot be renewed is only logged; trading on transient Redis
// failures is safer than stopping mid-position.
func (a *App) renewInstanceLock(ctx context.Context) {
	t := time.NewTicker(instanceLockTTL / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ok, err := a.cache.Expire(ctx, a.lockKey, instanceLockTTL)
			if err != nil {
				a.log.Warn("instance lock renew error", applogger.Error(err))
			} else if !ok {
				a.log.Warn("instance lock lost", applogger.String("key", a.lockKey))
			}
		}
	}
}

// shutdown gracefully stops all services. The engine is already down
// (it owns the gateway and closes it on exit), so the lock is released
// first to let a standby take over while this process drains; then
// everything downstream of the engine drains in flow order, with the
// HTTP server last so operators can watch the drain.
func (a *App) shutdown() error {
	a.log.Info("shutting down...")

	if a.lockKey != "" {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.cache.Unlock(unlockCtx, a.lockKey); err != nil {
			a.log.Warn("instance lock release error", applogger.Error(err))
		}
		cancel()
	}

	a.pipe.Stop()

	// Flush aggregated log records while the kafka producer is still up;
	// proc.Close below is what closes it.
	a.log.RemoveCollector()
	a.proc.Close()

	if a.consumer != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		if err := a.consumer.Stop(stopCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
		cancel()
	}

	if a.hub != nil {
		a.hub.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
