package api

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chunkstream/api/mcp"
	"github.com/papercomputeco/chunkstream/pkg/openai"
	"github.com/papercomputeco/chunkstream/pkg/storage"
)

// Server is the API server for decoding streams and querying transcripts
type Server struct {
	config Config
	driver storage.Driver
	chunks *openai.ChunkDecoder
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
// The driver is injected to allow sharing with other components
// (e.g., the proxy when both run in one process).
func NewServer(config Config, driver storage.Driver, logger *slog.Logger) (*Server, error) {
	chunks, err := openai.NewChunkDecoder()
	if err != nil {
		return nil, err
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Driver: driver,
		Noop:   config.DisableMCP,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create MCP server: %w", err)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		driver: driver,
		chunks: chunks,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/v1/transcripts", s.handleListTranscripts)
	app.Get("/v1/transcripts/:id", s.handleGetTranscript)
	app.Post("/v1/decode", s.handleDecode)
	app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
