package sse

import (
	"context"
	"errors"
	"io"
	"iter"
)

// State is the lifecycle state of a Decoder.
type State int

const (
	// StateActive means the Source may still produce bytes.
	StateActive State = iota

	// StateDraining means the Source reported end-of-input and the remaining
	// buffered bytes are being matched without further pulls.
	StateDraining

	// StateClosed means no further values will ever be produced.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	default:
		return "closed"
	}
}

// Stats counts what a Decoder has processed so far.
type Stats struct {
	// Frames is the number of payloads decoded successfully.
	Frames int `json:"frames"`

	// Skipped is the number of malformed frames dropped under SkipMalformed.
	Skipped int `json:"skipped"`

	// BytesReceived is the total number of bytes pulled from the Source.
	BytesReceived int64 `json:"bytes_received"`

	// FillerBytes is the number of bytes discarded as non-frame filler.
	FillerBytes int64 `json:"filler_bytes"`
}

// Decoder turns the chunks of a Source into a sequence of values of type T.
//
// A Decoder is a single-consumer pull iterator: it performs no locking, owns
// its buffer exclusively and only blocks inside Source.Pull. Dropping a
// Decoder between calls to Next has no side effect beyond releasing its
// buffer.
type Decoder[T any] struct {
	src     Source
	payload PayloadDecoder[T]
	opts    options

	buf    Buffer
	resume int
	state  State
	stats  Stats
}

// NewDecoder returns a Decoder reading frames from src and decoding their
// payloads with payload.
func NewDecoder[T any](src Source, payload PayloadDecoder[T], opts ...Option) *Decoder[T] {
	return &Decoder[T]{
		src:     src,
		payload: payload,
		opts:    newOptions(opts),
	}
}

// State returns the current lifecycle state.
func (d *Decoder[T]) State() State {
	return d.state
}

// Stats returns the processing counters.
func (d *Decoder[T]) Stats() Stats {
	return d.stats
}

// Buffered returns the number of received bytes not yet matched into a
// frame.
func (d *Decoder[T]) Buffered() int {
	return d.buf.Len()
}

// Next returns the next decoded value.
//
// io.EOF signals a clean end: the termination frame was seen, or the Source
// ended. A *TransportError or *MalformedFrameError (and, when configured,
// *PrematureEndError or ErrBufferLimit) is the terminal value of the
// sequence. Once any terminal result is returned, Next returns io.EOF.
func (d *Decoder[T]) Next(ctx context.Context) (T, error) {
	var zero T

	for {
		if d.state == StateClosed {
			return zero, io.EOF
		}

		v, ok, err := d.extract()
		if err != nil {
			return zero, err
		}
		if ok {
			return v, nil
		}

		if d.opts.maxBuffer > 0 && d.buf.Len() > d.opts.maxBuffer {
			d.opts.logger.Debug("buffer limit exceeded",
				"buffered", d.buf.Len(),
				"limit", d.opts.maxBuffer,
			)
			d.close()
			return zero, ErrBufferLimit
		}

		if d.state == StateDraining {
			return zero, d.finishDrain()
		}

		if err := d.pull(ctx); err != nil {
			return zero, err
		}
	}
}

// All returns an iterator over the remaining values. A terminal error is
// yielded once, after which iteration stops. A clean end is not yielded.
func (d *Decoder[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, err := d.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

// extract matches buffered frames until one decodes, the buffer runs out of
// complete frames, or the stream terminates.
func (d *Decoder[T]) extract() (T, bool, error) {
	var zero T

	for {
		m := MatchFrame(d.buf.Bytes(), d.resume)
		d.stats.FillerBytes += int64(m.Skip)

		switch m.Kind {
		case MatchTermination:
			d.buf.Consume(m.Consumed)
			d.opts.logger.Debug("termination frame received", "frames", d.stats.Frames)
			d.close()
			return zero, false, io.EOF

		case MatchFound:
			v, err := d.payload.Decode(m.Payload)
			var merr *MalformedFrameError
			if err != nil && !errors.Is(err, ErrDone) {
				merr = &MalformedFrameError{Payload: string(m.Payload), Err: err}
			}
			d.buf.Consume(m.Consumed)
			d.resume = 0

			switch {
			case errors.Is(err, ErrDone):
				d.close()
				return zero, false, io.EOF

			case merr != nil && d.opts.malformed == SkipMalformed:
				d.stats.Skipped++
				d.opts.logger.Debug("skipping malformed frame",
					"error", err,
					"payload_bytes", len(merr.Payload),
				)
				continue

			case merr != nil:
				d.close()
				return zero, false, merr
			}

			d.stats.Frames++
			return v, true, nil

		default:
			d.buf.Consume(m.Skip)
			d.resume = m.Resume
			return zero, false, nil
		}
	}
}

// pull appends the next chunk from the Source and advances the state machine
// on end-of-input or failure.
func (d *Decoder[T]) pull(ctx context.Context) error {
	chunk, err := d.src.Pull(ctx)
	if len(chunk) > 0 {
		d.buf.Append(chunk)
		d.stats.BytesReceived += int64(len(chunk))
	}

	switch {
	case err == nil:
		return nil

	case errors.Is(err, io.EOF):
		if d.buf.IsEmpty() {
			d.close()
			return io.EOF
		}
		d.opts.logger.Debug("source ended, draining buffer", "buffered", d.buf.Len())
		d.state = StateDraining
		return nil

	default:
		d.opts.logger.Debug("source failed", "error", err)
		d.close()
		return &TransportError{Err: err}
	}
}

// finishDrain ends a drained stream whose remaining bytes can never complete
// a frame. Leftover filler, including a partial "data: ", is a clean end.
func (d *Decoder[T]) finishDrain() error {
	remaining := d.buf.Len()
	started := d.resume > 0
	d.close()

	if remaining == 0 || !started {
		return io.EOF
	}

	d.opts.logger.Debug("stream ended with unterminated frame", "remaining", remaining)
	if d.opts.trailing == TrailingError {
		return &PrematureEndError{Remaining: remaining}
	}

	return io.EOF
}

func (d *Decoder[T]) close() {
	d.state = StateClosed
	d.resume = 0
	d.buf.Reset()
}
