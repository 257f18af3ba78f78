//go:build wireinject
// +build wireinject

package di

import (
	"FinTrade/pkg/config"
	"FinTrade/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvidePublisher,
		ProvideConsumer,
		ProvideCacheService,

		// Repositories
		ProvideDecisionStorage,
		ProvideMessageHandler,
		ProvideStateSink,

		// Strategy layer
		ProvideProducers,
		ProvideAggregator,
		ProvideStrategyManager,
		ProvideGateway,

		// Use cases and distribution
		ProvideDecisionProcessor,
		ProvideHub,
		ProvideSnapshotPipeline,
		ProvideEngine,
		ProvideDecisionsUseCase,
		ProvideOperatorHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
