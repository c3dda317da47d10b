// Package mcp provides an MCP (Model Context Protocol) server exposing
// stream decoding and stored transcripts as tools.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/chunkstream/pkg/openai"
	"github.com/papercomputeco/chunkstream/pkg/storage"
	"github.com/papercomputeco/chunkstream/pkg/utils"
)

type Config struct {
	// Driver loads stored transcripts
	Driver storage.Driver

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	chunks    *openai.ChunkDecoder
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the decode and transcript tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	// Create the MCP server
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "chunkstream",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Driver == nil {
			return nil, errors.New("storage driver is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		chunks, err := openai.NewChunkDecoder()
		if err != nil {
			return nil, err
		}
		s.chunks = chunks

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        decodeToolName,
			Description: decodeDescription,
		}, s.handleDecode)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        getTranscriptToolName,
			Description: getTranscriptDescription,
		}, s.handleGetTranscript)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        listTranscriptsToolName,
			Description: listTranscriptsDescription,
		}, s.handleListTranscripts)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// errorResult wraps a tool failure the model should see.
func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
