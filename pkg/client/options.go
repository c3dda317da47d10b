package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/papercomputeco/chunkstream/pkg/sse"
)

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the bearer token. Without it New reads OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithBaseURL sets the API root, e.g. "https://api.openai.com/v1" or the
// address of a chunkstream proxy.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTimeout bounds non-streaming requests. Streams are bounded only by the
// context passed to CreateChatCompletionStream.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the logger. It is also handed to stream decoders.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDecoderOptions sets the options of every stream decoder the client
// creates.
func WithDecoderOptions(opts ...sse.Option) Option {
	return func(c *Client) {
		c.decoderOpts = append(c.decoderOpts, opts...)
	}
}
