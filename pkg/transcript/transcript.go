// Package transcript records what happened on one proxied or client-side
// chat completion: the request, the decoded stream and its outcome.
package transcript

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/chunkstream/pkg/openai"
	"github.com/papercomputeco/chunkstream/pkg/sse"
)

// Transcript is the record of one chat completion exchange.
type Transcript struct {
	ID          uuid.UUID `json:"id"`
	Model       string    `json:"model"`
	Path        string    `json:"path"`
	Streaming   bool      `json:"streaming"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`

	// Content is the text of the first choice.
	Content      string              `json:"content"`
	FinishReason openai.FinishReason `json:"finish_reason,omitempty"`
	Usage        *openai.Usage       `json:"usage,omitempty"`

	// Stream counters. Zero for non-streaming exchanges.
	ChunkCount    int   `json:"chunk_count"`
	SkippedFrames int   `json:"skipped_frames"`
	BytesReceived int64 `json:"bytes_received"`

	// Error is set when the exchange or its stream failed.
	Error string `json:"error,omitempty"`

	Request    json.RawMessage        `json:"request,omitempty"`
	Completion *openai.ChatCompletion `json:"completion,omitempty"`
}

// New starts a transcript for a request to path.
func New(path, model string, streaming bool) *Transcript {
	return &Transcript{
		ID:        uuid.New(),
		Model:     model,
		Path:      path,
		Streaming: streaming,
		StartedAt: time.Now().UTC(),
	}
}

// Complete records the final completion.
func (t *Transcript) Complete(c *openai.ChatCompletion) {
	t.CompletedAt = time.Now().UTC()
	if c == nil {
		return
	}

	t.Completion = c
	t.Content = c.Text()
	if c.Model != "" {
		t.Model = c.Model
	}
	if len(c.Choices) > 0 {
		t.FinishReason = c.Choices[0].FinishReason
	}
	if c.Usage != nil {
		u := *c.Usage
		t.Usage = &u
	}
}

// RecordStats copies the decoder counters of a streamed exchange.
func (t *Transcript) RecordStats(s sse.Stats) {
	t.ChunkCount = s.Frames
	t.SkippedFrames = s.Skipped
	t.BytesReceived = s.BytesReceived
}

// Fail records err as the outcome of the exchange.
func (t *Transcript) Fail(err error) {
	if t.CompletedAt.IsZero() {
		t.CompletedAt = time.Now().UTC()
	}
	if err != nil {
		t.Error = err.Error()
	}
}

// Failed reports whether the exchange ended with an error.
func (t *Transcript) Failed() bool {
	return t.Error != ""
}

// Duration is the time between the start and the end of the exchange, or
// zero while it is still running.
func (t *Transcript) Duration() time.Duration {
	if t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}
