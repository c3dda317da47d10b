package openai

import (
	"context"

	"github.com/papercomputeco/chunkstream/pkg/sse"
)

// StreamResult is everything decoded from one chat completion stream.
type StreamResult struct {
	Chunks     []ChatCompletionChunk `json:"chunks"`
	Completion *ChatCompletion       `json:"completion"`
	Stats      sse.Stats             `json:"stats"`

	// Error is the terminal decode error, if any. The chunks decoded before
	// it are kept.
	Error string `json:"error,omitempty"`
}

// DecodeStream reads src to its end and folds every chunk into a
// StreamResult. The result is never nil: when decoding fails it holds what
// was decoded up to the failure and err is the failure.
func DecodeStream(ctx context.Context, src sse.Source, dec *ChunkDecoder, opts ...sse.Option) (*StreamResult, error) {
	d := sse.NewDecoder[ChatCompletionChunk](src, dec, opts...)
	acc := NewAccumulator()
	res := &StreamResult{Chunks: []ChatCompletionChunk{}}

	var decodeErr error
	for chunk, err := range d.All(ctx) {
		if err != nil {
			decodeErr = err
			break
		}
		res.Chunks = append(res.Chunks, chunk)
		acc.Add(chunk)
	}

	res.Completion = acc.Completion()
	res.Stats = d.Stats()
	if decodeErr != nil {
		res.Error = decodeErr.Error()
	}

	return res, decodeErr
}
