package logging

import (
	"os"
	"sync"
)

// RingBuffer keeps the most recent log output in memory so it can be dumped
// after a crash or a session teardown failure. It implements io.Writer and
// overwrites the oldest bytes once full.
type RingBuffer struct {
	mu      sync.Mutex
	buf     []byte
	next    int
	wrapped bool
}

// NewRingBuffer creates a ring buffer holding up to size bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 4 * 1024 * 1024
	}
	return &RingBuffer{buf: make([]byte, size)}
}

// Write implements io.Writer. It never fails.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	size := len(rb.buf)
	if n >= size {
		copy(rb.buf, p[n-size:])
		rb.next = 0
		rb.wrapped = true
		return n, nil
	}

	first := copy(rb.buf[rb.next:], p)
	if first < n {
		copy(rb.buf, p[first:])
		rb.wrapped = true
	}
	rb.next = (rb.next + n) % size
	if rb.next == 0 && n > 0 {
		rb.wrapped = true
	}
	return n, nil
}

// Len returns the number of buffered bytes.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.wrapped {
		return len(rb.buf)
	}
	return rb.next
}

// Bytes returns the buffered bytes, oldest first.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if !rb.wrapped {
		out := make([]byte, rb.next)
		copy(out, rb.buf[:rb.next])
		return out
	}
	out := make([]byte, 0, len(rb.buf))
	out = append(out, rb.buf[rb.next:]...)
	return append(out, rb.buf[:rb.next]...)
}

// DumpToFile writes the buffered bytes to path.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o600)
}
