package proxy

import "github.com/papercomputeco/chunkstream/pkg/eventstream"

// Config is the proxy server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// UpstreamURL is the upstream API root requests are forwarded to
	// (e.g., "https://api.openai.com"). The client's path is appended as is.
	UpstreamURL string

	// StrictTrailing records a stream that ends inside an unterminated frame
	// as failed. By default such a stream is recorded as complete.
	StrictTrailing bool

	// MaxBufferSize bounds how large a single incomplete frame may grow
	// while decoding. Zero leaves it unbounded. Exceeding it stops decoding
	// for the transcript but never interrupts the client's stream.
	MaxBufferSize int

	// NumWorkers and QueueSize size the persistence worker pool.
	NumWorkers uint
	QueueSize  uint

	// Publisher announces recorded transcripts. Optional.
	Publisher eventstream.Publisher
}
