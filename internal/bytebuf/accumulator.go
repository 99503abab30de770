package bytebuf

import (
	"bytes"
	"io"
	"sync"

	"media-cache/internal/logging"
)

// ReadChunkSize is the size of the chunks read by AppendFrom.
const ReadChunkSize = 4096

// Accumulator is an ordered, append-only sequence of bytes. Appended bytes
// are never rewritten; the only mutation besides append is Clear.
// An Accumulator is safe for concurrent use.
type Accumulator struct {
	mu  sync.RWMutex
	buf []byte
}

// New returns an empty accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

// FromBytes returns an accumulator seeded with a copy of p.
func FromBytes(p []byte) *Accumulator {
	a := New()
	a.Append(p)
	return a
}

// FromReader returns an accumulator seeded with the contents of r.
// See AppendFrom for the error and close semantics.
func FromReader(r io.Reader) *Accumulator {
	a := New()
	a.AppendFrom(r)
	return a
}

// AppendByte appends a single byte.
func (a *Accumulator) AppendByte(b byte) {
	a.mu.Lock()
	a.buf = append(a.buf, b)
	a.mu.Unlock()
}

// Append appends all of p, including zero bytes.
func (a *Accumulator) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	a.mu.Lock()
	a.buf = append(a.buf, p...)
	a.mu.Unlock()
}

// AppendSlices appends each chunk in order.
func (a *Accumulator) AppendSlices(chunks [][]byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range chunks {
		a.buf = append(a.buf, c...)
	}
}

// Write implements io.Writer. It never fails.
func (a *Accumulator) Write(p []byte) (int, error) {
	a.Append(p)
	return len(p), nil
}

// AppendFrom reads r in ReadChunkSize chunks until EOF and appends every byte
// read. A read error stops the loop without being reported; the bytes read
// before it are kept. If r is an io.Closer it is closed in both cases.
// It returns the number of bytes appended.
func (a *Accumulator) AppendFrom(r io.Reader) int64 {
	if r == nil {
		return 0
	}
	if c, ok := r.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				logging.Debug("bytebuf: failed to close source: %v", err)
			}
		}()
	}

	chunk := make([]byte, ReadChunkSize)
	var total int64
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			a.Append(chunk[:n])
			total += int64(n)
		}
		if err != nil {
			if err != io.EOF {
				logging.Debug("bytebuf: read stopped after %d bytes: %v", total, err)
			}
			return total
		}
	}
}

// Clear drops all bytes.
func (a *Accumulator) Clear() {
	a.mu.Lock()
	a.buf = nil
	a.mu.Unlock()
}

// Len returns the number of bytes held.
func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.buf)
}

// ByteAt returns the byte at index i, or 0 when i is out of range.
func (a *Accumulator) ByteAt(i int) byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if i < 0 || i >= len(a.buf) {
		return 0
	}
	return a.buf[i]
}

// Bytes returns a copy of the accumulated bytes.
func (a *Accumulator) Bytes() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]byte, len(a.buf))
	copy(out, a.buf)
	return out
}

// Reader returns a reader over the bytes held at the time of the call,
// without copying them. Held bytes are never rewritten, so later appends
// and Clear do not change what the reader returns.
func (a *Accumulator) Reader() *bytes.Reader {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return bytes.NewReader(a.buf[:len(a.buf):len(a.buf)])
}
