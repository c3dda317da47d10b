package sse

import (
	"errors"
	"fmt"
)

var (
	// ErrDone is returned by a PayloadDecoder when the payload is the
	// termination sentinel. The Decoder treats it as a clean end of stream.
	ErrDone = errors.New("sse: stream terminated by [DONE]")

	// ErrBufferLimit is returned when an incomplete frame grows beyond the
	// limit configured with WithMaxBufferSize.
	ErrBufferLimit = errors.New("sse: buffered frame exceeds configured limit")
)

// TransportError reports a failure of the upstream Source.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sse: transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedFrameError reports a complete frame whose payload could not be
// decoded.
type MalformedFrameError struct {
	// Payload is a copy of the frame payload text.
	Payload string
	Err     error
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("sse: malformed frame: %v", e.Err)
}

func (e *MalformedFrameError) Unwrap() error {
	return e.Err
}

// PrematureEndError reports that the Source ended with an unterminated frame
// still buffered. It is only returned under the TrailingError policy.
type PrematureEndError struct {
	// Remaining is the number of buffered bytes that never formed a frame.
	Remaining int
}

func (e *PrematureEndError) Error() string {
	return fmt.Sprintf("sse: stream ended with %d unterminated bytes", e.Remaining)
}
