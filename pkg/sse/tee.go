package sse

import (
	"context"
	"io"
)

// TeeSource pulls chunks from a source Source while simultaneously writing
// every raw byte verbatim to a destination io.Writer.
//
// ┌──────────────────┐
// │   source Source  │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌───────────────────────┐
// │ TeeSource.Pull() │──▶│ destination io.Writer │
// └──────────────────┘   └───────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │     Decoder      │
// └──────────────────┘
//
// A downstream client io.Writer receives the exact copy of the stream,
// including filler and any frame the decoder rejects, while the caller
// inspects decoded events.
type TeeSource struct {
	src  Source
	dest io.Writer
}

// NewTeeSource returns a Source that forwards all bytes pulled from src to
// dest. The dest writer typically backs an io.Pipe connected to the
// downstream HTTP response.
func NewTeeSource(src Source, dest io.Writer) *TeeSource {
	return &TeeSource{src: src, dest: dest}
}

// Pull returns the next chunk from the source after writing it to the
// destination. A destination write failure is reported as the Pull error so
// the decoder stops reading from an upstream nobody is listening to.
func (t *TeeSource) Pull(ctx context.Context) ([]byte, error) {
	chunk, err := t.src.Pull(ctx)
	if len(chunk) > 0 {
		if _, werr := t.dest.Write(chunk); werr != nil {
			return nil, werr
		}
	}
	return chunk, err
}
