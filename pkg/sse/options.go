package sse

import (
	"log/slog"

	"github.com/papercomputeco/chunkstream/pkg/logger"
)

// MalformedPolicy selects what the Decoder does with a frame whose payload
// fails to decode.
type MalformedPolicy int

const (
	// FailClosed yields a *MalformedFrameError and closes the stream.
	FailClosed MalformedPolicy = iota

	// SkipMalformed drops the frame and keeps decoding.
	SkipMalformed
)

// TrailingPolicy selects what the Decoder does when the Source ends while an
// unterminated frame is still buffered.
type TrailingPolicy int

const (
	// TrailingSilent ends the stream with io.EOF. Some upstreams close the
	// connection before flushing the final delimiter.
	TrailingSilent TrailingPolicy = iota

	// TrailingError ends the stream with a *PrematureEndError.
	TrailingError
)

type options struct {
	malformed MalformedPolicy
	trailing  TrailingPolicy
	maxBuffer int
	logger    *slog.Logger
}

// Option configures a Decoder.
type Option func(*options)

// WithMalformedPolicy sets the malformed frame policy. Defaults to FailClosed.
func WithMalformedPolicy(p MalformedPolicy) Option {
	return func(o *options) {
		o.malformed = p
	}
}

// WithTrailingPolicy sets the trailing fragment policy. Defaults to
// TrailingSilent.
func WithTrailingPolicy(p TrailingPolicy) Option {
	return func(o *options) {
		o.trailing = p
	}
}

// WithMaxBufferSize bounds the bytes an incomplete frame may occupy.
// Zero, the default, leaves the buffer unbounded.
func WithMaxBufferSize(n int) Option {
	return func(o *options) {
		o.maxBuffer = n
	}
}

// WithLogger sets the logger used for debug tracing.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(opts []Option) options {
	o := options{logger: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
