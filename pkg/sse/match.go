package sse

import "bytes"

// MatchKind is the outcome of a MatchFrame call.
type MatchKind int

const (
	// MatchIncomplete means no complete frame is buffered yet.
	MatchIncomplete MatchKind = iota

	// MatchFound means a complete data frame was located.
	MatchFound

	// MatchTermination means a complete "[DONE]" frame was located.
	MatchTermination
)

func (k MatchKind) String() string {
	switch k {
	case MatchFound:
		return "found"
	case MatchTermination:
		return "termination"
	default:
		return "incomplete"
	}
}

// Match describes the first frame in a buffer.
type Match struct {
	Kind MatchKind

	// Payload is the verbatim text between the prefix and the delimiter.
	// It aliases the matched buffer. Set for MatchFound and MatchTermination.
	Payload []byte

	// Consumed is the number of leading bytes to drop once the frame is
	// handled: skipped filler, the frame itself and its delimiter.
	Consumed int

	// Skip is the number of leading filler bytes that can never be part of a
	// frame. For MatchIncomplete the caller may drop them right away.
	Skip int

	// Resume is the offset, relative to the buffer after Skip bytes are
	// dropped, from which the next call may continue searching for the
	// delimiter. Zero means no frame prefix has been seen yet.
	Resume int
}

// MatchFrame locates the first complete frame in buf.
//
// A frame starts with "data: " at the beginning of a line: offset zero of buf
// or right after a newline. The same text anywhere else in a line is filler.
// Pass resume=0 for a fresh scan, or the Resume value of a previous
// MatchIncomplete result once its Skip bytes were dropped and new bytes were
// appended. Bytes that could still grow into a frame start are never
// reported as skippable.
func MatchFrame(buf []byte, resume int) Match {
	start := 0
	if resume <= 0 {
		start = frameStart(buf)
		if start < 0 {
			return Match{Kind: MatchIncomplete, Skip: skippable(buf)}
		}
		resume = len(framePrefix)
	}

	frame := buf[start:]
	from := max(resume, len(framePrefix))
	if from > len(frame) {
		from = len(frame)
	}

	j := bytes.Index(frame[from:], frameDelimiter)
	if j < 0 {
		// The delimiter may straddle the end of the buffer, so resume one
		// byte back.
		return Match{
			Kind:   MatchIncomplete,
			Skip:   start,
			Resume: max(len(frame)-1, len(framePrefix)),
		}
	}

	end := from + j
	m := Match{
		Kind:     MatchFound,
		Payload:  frame[len(framePrefix):end],
		Consumed: start + end + len(frameDelimiter),
		Skip:     start,
	}
	if IsDone(m.Payload) {
		m.Kind = MatchTermination
	}

	return m
}

// frameStart returns the offset of the first "data: " that begins a line,
// or -1.
func frameStart(buf []byte) int {
	if bytes.HasPrefix(buf, framePrefix) {
		return 0
	}
	if i := bytes.Index(buf, lineFramePrefix); i >= 0 {
		return i + 1
	}
	return -1
}

// skippable returns how many leading bytes of buf can be dropped when buf
// holds no frame start.
//
// A partial "data: " at the start of the last line is kept whole. Otherwise
// the last line is reduced to its final byte, or its final two bytes when the
// last one is 'd', so the kept bytes can never read as a frame start at
// offset zero once more data arrives.
func skippable(buf []byte) int {
	line := bytes.LastIndexByte(buf, '\n') + 1
	tail := buf[line:]
	if bytes.HasPrefix(framePrefix, tail) {
		return line
	}

	keep := 1
	if tail[len(tail)-1] == framePrefix[0] {
		keep = 2
	}
	return len(buf) - keep
}
