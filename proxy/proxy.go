// Package proxy provides an OpenAI API proxy that records chat completions.
//
// Requests are forwarded to the upstream untouched. Streaming chat
// completions are teed: the client receives the exact upstream bytes while a
// decoder reads the same bytes, folds the chunks into a completion and hands
// the resulting transcript to the worker pool.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"

	"github.com/papercomputeco/chunkstream/pkg/eventstream"
	"github.com/papercomputeco/chunkstream/pkg/openai"
	"github.com/papercomputeco/chunkstream/pkg/sse"
	"github.com/papercomputeco/chunkstream/pkg/storage"
	"github.com/papercomputeco/chunkstream/pkg/transcript"
	"github.com/papercomputeco/chunkstream/pkg/utils"
	"github.com/papercomputeco/chunkstream/proxy/header"
	"github.com/papercomputeco/chunkstream/proxy/worker"
)

const chatCompletionsSuffix = "/chat/completions"

// errNotEventStream is recorded for streaming requests whose upstream
// response is not an event stream.
var errNotEventStream = errors.New("upstream did not return an event stream")

// errorResponse is the body of errors produced by the proxy itself, in the
// API's error envelope.
type errorResponse struct {
	Error openai.APIError `json:"error"`
}

func proxyError(msg string) errorResponse {
	return errorResponse{Error: openai.APIError{Message: msg, Type: "proxy_error"}}
}

// Proxy is a transparent OpenAI API proxy that records chat completions.
type Proxy struct {
	config        Config
	driver        storage.Driver
	workerPool    *worker.Pool
	logger        *slog.Logger
	httpClient    *http.Client
	server        *fiber.App
	chunks        *openai.ChunkDecoder
	headerHandler *header.Handler
}

// New creates a new Proxy.
// The driver is injected to handle async persistence of transcripts.
func New(config Config, driver storage.Driver, logger *slog.Logger) (*Proxy, error) {
	if config.UpstreamURL == "" {
		return nil, errors.New("upstream URL is required")
	}
	config.UpstreamURL = strings.TrimSuffix(config.UpstreamURL, "/")

	chunks, err := openai.NewChunkDecoder()
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	// Add compression middleware to handle responses
	app.Use(compress.New())

	wp, err := worker.NewPool(&worker.Config{
		Driver:     driver,
		Publisher:  config.Publisher,
		Source:     eventstream.EventSource{Component: "proxy", Upstream: config.UpstreamURL},
		NumWorkers: config.NumWorkers,
		QueueSize:  config.QueueSize,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	p := &Proxy{
		config:        config,
		driver:        driver,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		chunks:        chunks,
		headerHandler: header.NewHandler(),
		httpClient: &http.Client{
			// Long generations stream for minutes
			Timeout: 10 * time.Minute,
		},
	}

	// Register transparent proxy route - forwards any path to upstream
	app.All("/*", p.handleProxy)

	return p, nil
}

// Run starts the proxy server on the given listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		"listen", p.config.ListenAddr,
		"upstream", p.config.UpstreamURL,
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting proxy server",
		"listen", listener.Addr().String(),
		"upstream", p.config.UpstreamURL,
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the proxy and waits for the worker pool to drain
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.workerPool.Close()
	return err
}

// chatProbe reads the fields of a chat request the proxy routes on. Message
// content is left alone so multimodal requests never fail to parse.
type chatProbe struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// handleProxy is a transparent proxy handler that forwards requests to
// upstream and records chat completions.
func (p *Proxy) handleProxy(c *fiber.Ctx) error {
	path := c.Path()
	method := c.Method()
	body := c.Body()

	var t *transcript.Transcript
	streaming := false

	if method == fiber.MethodPost && strings.HasSuffix(path, chatCompletionsSuffix) && len(body) > 0 && !p.headerHandler.RecordingDisabled(c) {
		var probe chatProbe
		if err := json.Unmarshal(body, &probe); err != nil {
			p.logger.Warn("failed to parse chat request", "error", err, "path", path)
		} else {
			streaming = probe.Stream
			t = transcript.New(path, probe.Model, streaming)
			t.Request = json.RawMessage(bytes.Clone(body))
			p.logger.Debug("parsed chat request",
				"transcript_id", t.ID,
				"model", probe.Model,
				"stream", streaming,
			)
		}
	}

	if t != nil && streaming {
		return p.handleStreamingProxy(c, path, body, t)
	}

	return p.handleNonStreamingProxy(c, path, method, body, t)
}

// handleNonStreamingProxy handles non-streaming requests. t is nil for
// requests that are not recorded.
func (p *Proxy) handleNonStreamingProxy(c *fiber.Ctx, path, method string, body []byte, t *transcript.Transcript) error {
	upstreamURL := p.upstreamURL(c, path)

	// Create upstream request
	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(c.Context(), method, upstreamURL, reqBody)
	if err != nil {
		p.logger.Error("failed to create upstream request", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(proxyError("internal error"))
	}

	p.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	p.logger.Debug("forwarding request to upstream",
		"method", method,
		"url", upstreamURL,
	)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed", "error", err)
		if t != nil {
			t.Fail(err)
			p.workerPool.Enqueue(worker.Job{Transcript: t})
		}
		return c.Status(fiber.StatusBadGateway).JSON(proxyError("upstream request failed"))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		p.logger.Error("failed to read upstream response", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(proxyError("failed to read upstream response"))
	}

	p.headerHandler.SetClientResponseHeaders(c, httpResp)

	if t != nil {
		p.recordCompletion(t, httpResp.StatusCode, respBody)
		c.Set(header.TranscriptIDHeader, t.ID.String())
		p.workerPool.Enqueue(worker.Job{Transcript: t})
	}

	// Return response to client immediately
	return c.Status(httpResp.StatusCode).Send(respBody)
}

// recordCompletion fills t from a non-streaming upstream response.
func (p *Proxy) recordCompletion(t *transcript.Transcript, status int, body []byte) {
	if status < 200 || status > 299 {
		t.Fail(openai.ParseAPIError(status, body))
		return
	}

	var completion openai.ChatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		p.logger.Warn("failed to parse chat completion", "error", err, "transcript_id", t.ID)
		t.Fail(fmt.Errorf("parsing chat completion: %w", err))
		return
	}

	t.Complete(&completion)
	p.logger.Debug("received chat completion",
		"transcript_id", t.ID,
		"model", completion.Model,
		"duration", t.Duration(),
	)
}

// handleStreamingProxy handles streaming chat requests.
func (p *Proxy) handleStreamingProxy(c *fiber.Ctx, path string, body []byte, t *transcript.Transcript) error {
	upstreamURL := p.upstreamURL(c, path)

	// Use context.Background() instead of c.Context() because fasthttp recycles
	// its RequestCtx after the handler returns, but the streaming callback runs
	// asynchronously in a separate goroutine and needs the upstream connection
	// to remain open.
	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, upstreamURL, bytes.NewReader(body))
	if err != nil {
		p.logger.Error("failed to create upstream request", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(proxyError("internal error"))
	}

	p.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	p.logger.Debug("forwarding streaming request to upstream", "url", upstreamURL)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed", "error", err)
		t.Fail(err)
		p.workerPool.Enqueue(worker.Job{Transcript: t})
		return c.Status(fiber.StatusBadGateway).JSON(proxyError("upstream request failed"))
	}
	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		p.logger.Error("upstream returned error",
			"status", httpResp.StatusCode,
			"body", string(respBody),
		)
		t.Fail(openai.ParseAPIError(httpResp.StatusCode, respBody))
		p.workerPool.Enqueue(worker.Job{Transcript: t})
		p.headerHandler.SetClientResponseHeaders(c, httpResp)
		return c.Status(httpResp.StatusCode).Send(respBody)
	}

	p.headerHandler.SetClientResponseHeaders(c, httpResp)
	c.Set(header.TranscriptIDHeader, t.ID.String())

	// Use io.Pipe + SetBodyStream instead of SetBodyStreamWriter.
	// SetBodyStreamWriter uses an internal PipeConns with a buffered channel
	// (capacity 4) and two bufio.Writers, which means Flush() in the callback
	// only pushes data into the pipe, not to the TCP socket.
	//
	// With io.Pipe, pw.Write blocks until the reader consumes the data, and
	// the reader is fasthttp's writeBodyChunked which flushes to TCP after
	// every chunk.
	pr, pw := io.Pipe()
	go p.handleHTTPRespToPipeWriter(httpResp, pw, t)

	// Set the pipe reader as the body stream with unknown size (-1),
	// which triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

func (p *Proxy) handleHTTPRespToPipeWriter(httpResp *http.Response, pw *io.PipeWriter, t *transcript.Transcript) {
	// Close the upstream response body once streaming is complete.
	defer httpResp.Body.Close()
	defer pw.Close()
	defer p.workerPool.Enqueue(worker.Job{Transcript: t})

	if ct := httpResp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		p.logger.Warn("streaming response is not an event stream",
			"transcript_id", t.ID,
			"content_type", ct,
		)
		if _, err := io.Copy(pw, httpResp.Body); err != nil {
			p.logger.Error("error forwarding stream", "error", err)
		}
		t.Fail(errNotEventStream)
		return
	}

	p.handleSSEStream(httpResp.Body, pw, t)
}

// handleSSEStream forwards the upstream event stream verbatim to w while
// decoding it into t.
//
// Decoding problems never reach the client: malformed frames are skipped,
// and when decoding stops early the rest of the upstream body is copied
// through unchanged. Only a failure to read upstream or to write to the
// client ends the forwarding.
func (p *Proxy) handleSSEStream(upstream io.Reader, w io.Writer, t *transcript.Transcript) {
	opts := []sse.Option{
		sse.WithMalformedPolicy(sse.SkipMalformed),
		sse.WithLogger(p.logger),
	}
	if p.config.StrictTrailing {
		opts = append(opts, sse.WithTrailingPolicy(sse.TrailingError))
	}
	if p.config.MaxBufferSize > 0 {
		opts = append(opts, sse.WithMaxBufferSize(p.config.MaxBufferSize))
	}

	src := sse.NewTeeSource(sse.NewReaderSource(upstream, 0), w)
	dec := sse.NewDecoder[openai.ChatCompletionChunk](src, p.chunks, opts...)
	acc := openai.NewAccumulator()

	var streamErr error
	for chunk, err := range dec.All(context.Background()) {
		if err != nil {
			streamErr = err
			break
		}
		acc.Add(chunk)
	}

	t.RecordStats(dec.Stats())
	t.Complete(acc.Completion())

	var transportErr *sse.TransportError
	switch {
	case errors.As(streamErr, &transportErr):
		p.logger.Error("error reading SSE stream", "transcript_id", t.ID, "error", streamErr)
		t.Fail(streamErr)
		return

	case streamErr != nil:
		p.logger.Warn("stopped decoding SSE stream", "transcript_id", t.ID, "error", streamErr)
		t.Fail(streamErr)
	}

	// Forward anything the upstream sends after the decoder stopped.
	if _, err := io.Copy(w, upstream); err != nil {
		p.logger.Error("error forwarding stream tail", "transcript_id", t.ID, "error", err)
	}

	p.logger.Debug("streaming complete",
		"transcript_id", t.ID,
		"content_preview", utils.Truncate(t.Content, 80),
		"chunk_count", t.ChunkCount,
		"skipped_frames", t.SkippedFrames,
		"duration", t.Duration(),
	)
}

// upstreamURL builds the upstream URL for path, keeping the query string.
func (p *Proxy) upstreamURL(c *fiber.Ctx, path string) string {
	u := p.config.UpstreamURL + path
	if q := string(c.Request().URI().QueryString()); q != "" {
		u += "?" + q
	}
	return u
}
