package pty

import (
	"io"
	"log/slog"
	"time"

	"github.com/manav03panchal/humanssh/internal/logging"
)

// DefaultReadBufferSize is the PTY read buffer.
const DefaultReadBufferSize = 32 * 1024

// DefaultQueueSize is the capacity, in chunks, of the output channel.
const DefaultQueueSize = 1024

// pump copies r into out one chunk per read until r fails or stop closes.
// A full out blocks the pump, which stops reading and lets the kernel
// buffer (and ultimately the child) absorb the pressure. out is closed on
// return; that close is the end-of-stream sentinel for the consumer.
func pump(r io.Reader, out chan<- []byte, stop <-chan struct{}, bufSize int, log *slog.Logger) {
	defer close(out)

	buf := make([]byte, bufSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !send(out, chunk, stop) {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Debug("pty_read_end", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// send delivers chunk unless stop closes first. Time spent waiting on a
// full channel is reported as backpressure.
func send(out chan<- []byte, chunk []byte, stop <-chan struct{}) bool {
	select {
	case out <- chunk:
		return true
	default:
	}

	began := time.Now()
	select {
	case out <- chunk:
		logging.AggregateValue(logging.CompPTY, "backpressure_wait_ms", time.Since(began).Milliseconds())
		return true
	case <-stop:
		return false
	}
}
