//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/mack4pf/telegram-automated-signal/pkg/config"
	"github.com/mack4pf/telegram-automated-signal/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideStore,
		ProvideTelegramBot,
		ProvideKafkaProducer,
		ProvideJournal,

		// Repositories and services
		ProvideStateStore,
		ProvideLimiter,
		ProvideDeliveryQueue,
		ProvidePriceTape,
		ProvideRenderer,
		ProvideForwarder,

		// Use cases
		ProvideRegistry,
		ProvideCorrelator,
		ProvideBroadcaster,
		ProvidePipeline,

		// Transport
		ProvideAdmission,
		ProvideWebhookHandler,
		ProvideHTTPServer,
		ProvideAdminBot,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
