// Package client is a small OpenAI chat completions client whose streaming
// responses are decoded by pkg/sse.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/papercomputeco/chunkstream/pkg/logger"
	"github.com/papercomputeco/chunkstream/pkg/openai"
	"github.com/papercomputeco/chunkstream/pkg/sse"
)

const (
	// DefaultBaseURL is the public OpenAI API root.
	DefaultBaseURL = "https://api.openai.com/v1"

	// APIKeyEnv is the environment variable read when no key is configured.
	APIKeyEnv = "OPENAI_API_KEY"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 2 * time.Minute
)

// ErrAPIKeyNotSet is returned by New when no API key is configured and
// OPENAI_API_KEY is empty.
var ErrAPIKeyNotSet = errors.New("OpenAI API key is not set")

// Client talks to an OpenAI compatible API.
type Client struct {
	apiKey      string
	baseURL     string
	timeout     time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
	decoderOpts []sse.Option
	chunks      *openai.ChunkDecoder
}

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    DefaultBaseURL,
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv(APIKeyEnv)
	}
	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	if _, err := url.Parse(c.baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", c.baseURL, err)
	}
	c.baseURL = strings.TrimSuffix(c.baseURL, "/")

	chunks, err := openai.NewChunkDecoder()
	if err != nil {
		return nil, err
	}
	c.chunks = chunks

	return c, nil
}

// BaseURL returns the API root requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CreateChatCompletion sends a non-streaming chat completion request.
func (c *Client) CreateChatCompletion(ctx context.Context, req *openai.ChatRequest) (*openai.ChatCompletion, error) {
	body := *req
	body.Stream = false
	body.StreamOptions = nil

	var out openai.ChatCompletion
	if err := c.doJSON(ctx, http.MethodPost, "/chat/completions", &body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateChatCompletionStream sends a streaming chat completion request and
// returns the decoded stream. When includeUsage is set the final chunk
// carries token usage.
//
// The returned Stream must be closed. The stream ends when ctx is cancelled.
func (c *Client) CreateChatCompletionStream(ctx context.Context, req *openai.ChatRequest, includeUsage bool) (*Stream, error) {
	body := req.WithStreaming(includeUsage)

	resp, err := c.send(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("chat completion stream opened",
		"model", req.Model,
		"status", resp.StatusCode,
		"include_usage", includeUsage,
	)

	return newStream(resp.Body, c.chunks, append([]sse.Option{sse.WithLogger(c.logger)}, c.decoderOpts...)), nil
}

// ListModels lists the models available to the API key.
func (c *Client) ListModels(ctx context.Context) (*openai.ModelList, error) {
	var out openai.ModelList
	if err := c.doJSON(ctx, http.MethodGet, "/models", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetrieveModel returns one model by ID.
func (c *Client) RetrieveModel(ctx context.Context, id string) (*openai.Model, error) {
	var out openai.Model
	if err := c.doJSON(ctx, http.MethodGet, "/models/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateEmbeddings converts the request input into vectors.
func (c *Client) CreateEmbeddings(ctx context.Context, req *openai.EmbeddingRequest) (*openai.EmbeddingResponse, error) {
	body := *req
	if body.EncodingFormat == "" {
		body.EncodingFormat = openai.EncodingFormatFloat
	}

	var out openai.EmbeddingResponse
	if err := c.doJSON(ctx, http.MethodPost, "/embeddings", &body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// doJSON performs a bounded request and decodes the JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.send(ctx, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// send performs the request and returns the response when its status is
// 2xx. Other statuses are returned as *openai.APIError.
func (c *Client) send(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		apiErr := openai.ParseAPIError(resp.StatusCode, raw)
		c.logger.Debug("api error", "path", path, "status", resp.StatusCode, "message", apiErr.Message)
		return nil, apiErr
	}

	return resp, nil
}
