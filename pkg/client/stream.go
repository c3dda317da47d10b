package client

import (
	"context"
	"io"
	"iter"

	"github.com/papercomputeco/chunkstream/pkg/openai"
	"github.com/papercomputeco/chunkstream/pkg/sse"
)

// Stream is an open streaming chat completion.
type Stream struct {
	body io.ReadCloser
	dec  *sse.Decoder[openai.ChatCompletionChunk]
}

func newStream(body io.ReadCloser, chunks *openai.ChunkDecoder, opts []sse.Option) *Stream {
	return &Stream{
		body: body,
		dec:  sse.NewDecoder[openai.ChatCompletionChunk](sse.NewReaderSource(body, 0), chunks, opts...),
	}
}

// Recv returns the next chunk. io.EOF marks the end of the stream; any other
// error is terminal.
func (s *Stream) Recv(ctx context.Context) (openai.ChatCompletionChunk, error) {
	return s.dec.Next(ctx)
}

// All iterates the remaining chunks.
func (s *Stream) All(ctx context.Context) iter.Seq2[openai.ChatCompletionChunk, error] {
	return s.dec.All(ctx)
}

// Decoder exposes the underlying decoder for its state and counters.
func (s *Stream) Decoder() *sse.Decoder[openai.ChatCompletionChunk] {
	return s.dec
}

// Close releases the response body. Calls to Recv after Close fail with a
// transport error or io.EOF.
func (s *Stream) Close() error {
	return s.body.Close()
}
