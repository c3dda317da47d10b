// Package backend opens the storage driver and event publisher shared by the
// serve commands.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/chunkstream/api"
	"github.com/papercomputeco/chunkstream/pkg/config"
	"github.com/papercomputeco/chunkstream/pkg/eventstream"
	"github.com/papercomputeco/chunkstream/pkg/eventstream/kafka"
	"github.com/papercomputeco/chunkstream/pkg/eventstream/nop"
	"github.com/papercomputeco/chunkstream/pkg/logger"
	"github.com/papercomputeco/chunkstream/pkg/storage"
	"github.com/papercomputeco/chunkstream/pkg/storage/inmemory"
	"github.com/papercomputeco/chunkstream/pkg/storage/postgres"
	"github.com/papercomputeco/chunkstream/pkg/storage/sqlite"
	"github.com/papercomputeco/chunkstream/proxy"
)

// NewStorageDriver opens the configured transcript store. PostgreSQL wins
// over SQLite; with neither configured transcripts are kept in memory.
func NewStorageDriver(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Driver, error) {
	switch {
	case cfg.PostgresDSN != "":
		driver, err := postgres.NewDriver(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		logger.Info("using PostgreSQL storage")
		return driver, nil

	case cfg.SQLitePath != "":
		driver, err := sqlite.NewSQLiteDriver(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		logger.Info("using SQLite storage", "path", cfg.SQLitePath)
		return driver, nil

	default:
		logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil
	}
}

// NewPublisher opens the configured event publisher. Publishing is a no-op
// when no Kafka brokers are configured.
func NewPublisher(cfg config.EventStreamConfig, logger *slog.Logger) (eventstream.Publisher, error) {
	brokers := cfg.KafkaBrokerList()
	if len(brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	publisher, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   cfg.KafkaTopic,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
	}

	logger.Info("publishing transcript events to Kafka",
		"brokers", cfg.KafkaBrokers,
		"topic", cfg.KafkaTopic,
	)
	return publisher, nil
}

// ProxyConfig maps the resolved settings onto the proxy server configuration.
func ProxyConfig(cfg *config.Config, listen string, publisher eventstream.Publisher) proxy.Config {
	return proxy.Config{
		ListenAddr:     listen,
		UpstreamURL:    cfg.Proxy.Upstream,
		StrictTrailing: cfg.Decoder.StrictTrailing,
		MaxBufferSize:  cfg.Decoder.MaxBuffer,
		NumWorkers:     cfg.Proxy.Workers,
		QueueSize:      cfg.Proxy.QueueSize,
		Publisher:      publisher,
	}
}

// APIConfig maps the resolved settings onto the API server configuration.
func APIConfig(cfg *config.Config, listen string) api.Config {
	return api.Config{
		ListenAddr:    listen,
		MaxBufferSize: cfg.Decoder.MaxBuffer,
		DisableMCP:    cfg.API.DisableMCP,
	}
}

// NewLogger builds the service logger shared by the serve commands.
func NewLogger(debug bool) *slog.Logger {
	return logger.New(logger.WithDebug(debug))
}
