//go:build wireinject
// +build wireinject

package di

import (
	"MetalPulse/pkg/config"
	"MetalPulse/pkg/server"

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
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisCache,
		ProvideTriggerQueue,

		// Repositories
		ProvideStore,
		ProvideCycleLock,

		// Services
		ProvidePriceSource,
		ProvideNarrator,
		ProvideAnalyzer,
		ProvideStreamHub,

		// Use cases
		ProvideOrchestrator,
		ProvideScheduler,
		ProvideQueryService,
		ProvideTriggerHandler,
		ProvideCollectJob,

		// Transport
		ProvidePricesHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeToolkit wires the store, orchestrator and queries without the
// HTTP server or background loops.
func InitializeToolkit(cfg *config.Config) (*Toolkit, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideKafkaProducer,
		ProvideRedisCache,
		ProvideStore,
		ProvideCycleLock,
		ProvidePriceSource,
		ProvideNarrator,
		ProvideAnalyzer,
		ProvideStreamHub,
		ProvideOrchestrator,
		ProvideQueryService,
		ProvideTriggerQueue,
		ProvideToolkit,
	)
	return &Toolkit{}, nil
}
