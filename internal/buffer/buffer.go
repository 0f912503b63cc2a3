// Package buffer provides a reusable byte container with head-reserved
// prefix space, so framing code (length prefixes, delimiters) can prepend
// bytes without shifting the payload that has already been written.
package buffer

// DefaultPrefix is the amount of head room reserved by New for framing.
const DefaultPrefix = 16

// Buffer wraps a []byte together with a read cursor into reserved prefix
// space. Data lives in buf[start:len(buf)]; Prepend grows start backwards.
type Buffer struct {
	buf   []byte
	start int
}

// New allocates a buffer with cap bytes of payload capacity plus
// DefaultPrefix bytes of reserved head room.
func New(cap int) *Buffer {
	return NewWithPrefix(cap, DefaultPrefix)
}

// NewWithPrefix allocates a buffer with an explicit prefix reservation.
func NewWithPrefix(cap, prefix int) *Buffer {
	b := &Buffer{buf: make([]byte, prefix, prefix+cap), start: prefix}
	return b
}

// FromBytes wraps an existing slice with no reserved prefix.
func FromBytes(b []byte) *Buffer {
	return &Buffer{buf: b, start: 0}
}

// Bytes returns the buffer's current payload, excluding unused prefix.
func (b *Buffer) Bytes() []byte { return b.buf[b.start:] }

// Len returns the current payload length.
func (b *Buffer) Len() int { return len(b.buf) - b.start }

// Append grows the buffer, copying p onto the end of the payload.
func (b *Buffer) Append(p []byte) { b.buf = append(b.buf, p...) }

// Prepend writes p immediately before the current payload, consuming
// reserved prefix space. It panics if there isn't enough head room — callers
// that prepend framing should size the prefix reservation up front.
func (b *Buffer) Prepend(p []byte) {
	if b.start < len(p) {
		panic("buffer: not enough head room to prepend")
	}
	b.start -= len(p)
	copy(b.buf[b.start:], p)
}

// Reset clears the payload back to empty, keeping the underlying array and
// prefix reservation for reuse.
func (b *Buffer) Reset(prefix int) {
	b.buf = b.buf[:prefix]
	b.start = prefix
}

// Grow ensures capacity for n additional payload bytes without reallocating
// on the next Append, when possible.
func (b *Buffer) Grow(n int) {
	if cap(b.buf)-len(b.buf) >= n {
		return
	}
	grown := make([]byte, len(b.buf), len(b.buf)+n)
	copy(grown, b.buf)
	b.buf = grown
}
