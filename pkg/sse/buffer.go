package sse

// Buffer accumulates received bytes that have not been matched into a frame.
//
// Consume advances a read offset without copying. Append compacts the live
// region to the front at most once, and only when growing would otherwise be
// needed, so the tail is never reallocated twice per call.
//
// The zero value is an empty buffer ready to use.
type Buffer struct {
	data []byte
	off  int
}

// Append copies p to the tail of the buffer.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}

	if b.off > 0 && len(b.data)+len(p) > cap(b.data) {
		n := copy(b.data, b.data[b.off:])
		b.data = b.data[:n]
		b.off = 0
	}

	b.data = append(b.data, p...)
}

// Consume drops the first n buffered bytes. It panics if n exceeds Len.
func (b *Buffer) Consume(n int) {
	if n <= 0 {
		return
	}
	if n > b.Len() {
		panic("sse: consume beyond buffered length")
	}

	b.off += n
	if b.off == len(b.data) {
		b.data = b.data[:0]
		b.off = 0
	}
}

// Bytes returns the unconsumed bytes. The slice is valid until the next
// Append.
func (b *Buffer) Bytes() []byte {
	return b.data[b.off:]
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.off
}

// IsEmpty reports whether every received byte has been consumed.
func (b *Buffer) IsEmpty() bool {
	return b.Len() == 0
}

// Reset drops all buffered bytes and releases the backing array.
func (b *Buffer) Reset() {
	b.data = nil
	b.off = 0
}
