package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/chunkstream/pkg/openai"
	"github.com/papercomputeco/chunkstream/pkg/sse"
	"github.com/papercomputeco/chunkstream/pkg/storage"
	"github.com/papercomputeco/chunkstream/pkg/transcript"
)

var (
	decodeToolName    = "decode_stream"
	decodeDescription = "Decode a captured OpenAI chat completion event stream (the raw 'data: ...' text). Returns every decoded chunk, the completion they add up to, and decoder statistics."

	getTranscriptToolName    = "get_transcript"
	getTranscriptDescription = "Fetch a recorded chat completion transcript by its ID."

	listTranscriptsToolName    = "list_transcripts"
	listTranscriptsDescription = "List the most recently recorded chat completion transcripts, newest first."
)

// DecodeInput represents the input arguments for the decode tool.
type DecodeInput struct {
	Stream         string `json:"stream" jsonschema:"the raw event stream text"`
	SkipMalformed  bool   `json:"skip_malformed,omitempty" jsonschema:"skip frames that fail to decode instead of stopping"`
	StrictTrailing bool   `json:"strict_trailing,omitempty" jsonschema:"report a stream that ends inside a frame as an error"`
}

// GetTranscriptInput represents the input arguments for the get_transcript tool.
type GetTranscriptInput struct {
	ID string `json:"id" jsonschema:"the transcript ID"`
}

// ListTranscriptsInput represents the input arguments for the list_transcripts tool.
type ListTranscriptsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"number of transcripts to return (default: 50)"`
}

// TranscriptSummary is the tool view of a stored transcript.
type TranscriptSummary struct {
	ID            string        `json:"id"`
	Model         string        `json:"model"`
	Path          string        `json:"path"`
	Streaming     bool          `json:"streaming"`
	StartedAt     string        `json:"started_at"`
	CompletedAt   string        `json:"completed_at,omitempty"`
	Content       string        `json:"content"`
	FinishReason  string        `json:"finish_reason,omitempty"`
	Usage         *openai.Usage `json:"usage,omitempty"`
	ChunkCount    int           `json:"chunk_count"`
	SkippedFrames int           `json:"skipped_frames"`
	BytesReceived int64         `json:"bytes_received"`
	Error         string        `json:"error,omitempty"`
}

// GetTranscriptOutput represents the output of the get_transcript tool.
type GetTranscriptOutput struct {
	Transcript TranscriptSummary `json:"transcript"`
}

// ListTranscriptsOutput represents the output of the list_transcripts tool.
type ListTranscriptsOutput struct {
	Transcripts []TranscriptSummary `json:"transcripts"`
	Count       int                 `json:"count"`
}

func summarize(t *transcript.Transcript) TranscriptSummary {
	out := TranscriptSummary{
		ID:            t.ID.String(),
		Model:         t.Model,
		Path:          t.Path,
		Streaming:     t.Streaming,
		StartedAt:     t.StartedAt.Format(time.RFC3339Nano),
		Content:       t.Content,
		FinishReason:  string(t.FinishReason),
		Usage:         t.Usage,
		ChunkCount:    t.ChunkCount,
		SkippedFrames: t.SkippedFrames,
		BytesReceived: t.BytesReceived,
		Error:         t.Error,
	}
	if !t.CompletedAt.IsZero() {
		out.CompletedAt = t.CompletedAt.Format(time.RFC3339Nano)
	}
	return out
}

// handleDecode decodes a captured stream. Decode failures are reported in
// the result rather than as a tool error so the partial output stays
// visible.
func (s *Server) handleDecode(ctx context.Context, _ *mcp.CallToolRequest, input DecodeInput) (*mcp.CallToolResult, openai.StreamResult, error) {
	logger := s.config.Logger

	var opts []sse.Option
	if input.SkipMalformed {
		opts = append(opts, sse.WithMalformedPolicy(sse.SkipMalformed))
	}
	if input.StrictTrailing {
		opts = append(opts, sse.WithTrailingPolicy(sse.TrailingError))
	}

	src := sse.NewReaderSource(strings.NewReader(input.Stream), 0)
	res, err := openai.DecodeStream(ctx, src, s.chunks, opts...)
	if err != nil {
		logger.Debug("MCP decode stopped early", "error", err, "chunks", len(res.Chunks))
	}

	return textResult(res), *res, nil
}

// handleGetTranscript loads one transcript.
func (s *Server) handleGetTranscript(ctx context.Context, _ *mcp.CallToolRequest, input GetTranscriptInput) (*mcp.CallToolResult, GetTranscriptOutput, error) {
	id, err := uuid.Parse(input.ID)
	if err != nil {
		return errorResult(fmt.Sprintf("Invalid transcript ID %q: %v", input.ID, err)), GetTranscriptOutput{}, nil
	}

	t, err := s.config.Driver.Get(ctx, id)
	if err != nil {
		var notFound storage.NotFoundError
		if errors.As(err, &notFound) {
			return errorResult(notFound.Error()), GetTranscriptOutput{}, nil
		}
		s.config.Logger.Error("failed to load transcript", "id", id, "error", err)
		return errorResult(fmt.Sprintf("Failed to load transcript: %v", err)), GetTranscriptOutput{}, nil
	}

	// The text block carries the full record, request and completion included.
	return textResult(t), GetTranscriptOutput{Transcript: summarize(t)}, nil
}

// handleListTranscripts lists recent transcripts.
func (s *Server) handleListTranscripts(ctx context.Context, _ *mcp.CallToolRequest, input ListTranscriptsInput) (*mcp.CallToolResult, ListTranscriptsOutput, error) {
	ts, err := s.config.Driver.List(ctx, input.Limit)
	if err != nil {
		s.config.Logger.Error("failed to list transcripts", "error", err)
		return errorResult(fmt.Sprintf("Failed to list transcripts: %v", err)), ListTranscriptsOutput{}, nil
	}

	out := ListTranscriptsOutput{
		Transcripts: make([]TranscriptSummary, 0, len(ts)),
		Count:       len(ts),
	}
	for _, t := range ts {
		out.Transcripts = append(out.Transcripts, summarize(t))
	}
	return textResult(out), out, nil
}

// textResult serializes structured output as JSON into a TextContent block
// for clients that do not read structured content.
func textResult(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}
