//go:build wireinject
// +build wireinject

package di

import (
	"RollSwap/pkg/config"
	"RollSwap/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Logging and metrics
		ProvideLogger,
		ProvideRecorder,
		ProvideMetrics,
		ProvideEngineMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisClient,
		ProvideCache,
		ProvideQueryCache,

		// Repositories
		ProvideTradeStorage,
		ProvideTradePublisher,
		ProvideVenueStream,

		// Engine
		ProvideVenue,
		ProvideCustody,
		ProvideMirror,
		ProvideEngine,

		// Use cases
		ProvideFeedCollector,
		ProvideKafkaSettlementsHandler,
		ProvideTradeRecorder,
		ProvideQueue,
		ProvideTradingService,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
