// Package sse provides a minimal, purpose-built incremental decoder for the
// "data: <payload>\n\n" event streams produced by OpenAI-compatible chat
// completion endpoints.
//
// Bytes arrive from a Source in arbitrary chunks. The Decoder accumulates
// them in a Buffer, locates complete frames with MatchFrame, and hands each
// payload to a PayloadDecoder which produces the typed value yielded to the
// caller:
//
// ┌────────────────┐    ┌────────┐    ┌────────────┐    ┌────────────────┐
// │ Source.Pull()  │───▶│ Buffer │───▶│ MatchFrame │───▶│ PayloadDecoder │
// └────────────────┘    └────────┘    └────────────┘    └────────────────┘
//
// Only the "data: " field is recognized, and only at the start of a line.
// Anything preceding a frame (blank keep-alive lines, ": comment" lines) is
// treated as filler and skipped. The
// literal "[DONE]" payload terminates the stream.
//
// This package intentionally does NOT implement the full SSE specification
// (event names, ids, retry directives, multi-line data fields).
package sse

import (
	"bytes"
	"encoding/json"
)

const (
	// FramePrefix starts every frame.
	FramePrefix = "data: "

	// FrameDelimiter terminates every frame.
	FrameDelimiter = "\n\n"

	// DoneSentinel is the payload of the termination frame.
	DoneSentinel = "[DONE]"
)

var (
	framePrefix     = []byte(FramePrefix)
	lineFramePrefix = []byte("\n" + FramePrefix)
	frameDelimiter  = []byte(FrameDelimiter)
	doneSentinel    = []byte(DoneSentinel)
)

// PayloadDecoder converts the verbatim payload text of one frame into a typed
// value. Implementations return ErrDone for the termination sentinel.
//
// The payload slice aliases the decoder's buffer and is only valid for the
// duration of the call.
type PayloadDecoder[T any] interface {
	Decode(payload []byte) (T, error)
}

// PayloadDecoderFunc adapts a function to the PayloadDecoder interface.
type PayloadDecoderFunc[T any] func(payload []byte) (T, error)

func (f PayloadDecoderFunc[T]) Decode(payload []byte) (T, error) {
	return f(payload)
}

// IsDone reports whether payload is exactly the termination sentinel.
func IsDone(payload []byte) bool {
	return bytes.Equal(payload, doneSentinel)
}

// JSON returns a PayloadDecoder that unmarshals each payload into T with
// encoding/json.
func JSON[T any]() PayloadDecoder[T] {
	return PayloadDecoderFunc[T](func(payload []byte) (T, error) {
		var v T
		if IsDone(payload) {
			return v, ErrDone
		}
		err := json.Unmarshal(payload, &v)
		return v, err
	})
}

// Encode renders payload as a single frame. Matching the result with
// MatchFrame yields payload back unchanged.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, len(framePrefix)+len(payload)+len(frameDelimiter))
	out = append(out, framePrefix...)
	out = append(out, payload...)
	return append(out, frameDelimiter...)
}
