// Package api provides an HTTP API server for decoding streams and
// inspecting recorded transcripts.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// MaxBufferSize bounds a single incomplete frame in decode requests.
	// Zero leaves it unbounded.
	MaxBufferSize int

	// DisableMCP serves an MCP endpoint with no tools.
	DisableMCP bool
}
