package sse

import (
	"context"
	"io"
)

const defaultReadSize = 32 * 1024

// Source yields the raw bytes of a stream, one chunk per Pull.
//
// Pull returns io.EOF once the stream is exhausted; a chunk may accompany it.
// Any other error is a transport failure. The returned slice is only valid
// until the next Pull.
type Source interface {
	Pull(ctx context.Context) ([]byte, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) ([]byte, error)

func (f SourceFunc) Pull(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// ReaderSource pulls chunks from an io.Reader, typically an HTTP response
// body. Each Pull performs exactly one Read.
type ReaderSource struct {
	r   io.Reader
	buf []byte
}

// NewReaderSource returns a Source reading at most size bytes per Pull.
// A non-positive size selects a 32KiB read buffer.
func NewReaderSource(r io.Reader, size int) *ReaderSource {
	if size <= 0 {
		size = defaultReadSize
	}
	return &ReaderSource{r: r, buf: make([]byte, size)}
}

// Pull reads the next chunk. Blocking reads are bounded by the reader itself;
// an HTTP body honors the deadline of the request context it was created
// with.
func (s *ReaderSource) Pull(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, err := s.r.Read(s.buf)
	return s.buf[:n], err
}

type chunkSource struct {
	chunks [][]byte
	next   int
}

// Chunks returns a Source that replays the given chunks in order and then
// reports io.EOF.
func Chunks(chunks ...[]byte) Source {
	return &chunkSource{chunks: chunks}
}

func (s *chunkSource) Pull(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.chunks) {
		return nil, io.EOF
	}

	chunk := s.chunks[s.next]
	s.next++
	return chunk, nil
}
