//go:build !windows

package pty

import (
	"log/slog"
)

// Write queues b for the writer goroutine and returns without waiting for
// the PTY. Input is never dropped; once a write to the PTY fails, that
// error is returned from every later call.
func (p *Process) Write(b []byte) error {
	if we := p.wErr.Load(); we != nil {
		return we
	}
	if p.closed.Load() {
		return ErrClosed
	}
	if len(b) == 0 {
		return nil
	}

	buf := make([]byte, len(b))
	copy(buf, b)

	p.inMu.Lock()
	p.pending = append(p.pending, buf)
	p.inMu.Unlock()

	select {
	case p.inReady <- struct{}{}:
	default:
	}
	return nil
}

func (p *Process) writeLoop() {
	for {
		select {
		case <-p.stop:
			return
		case <-p.inReady:
		}

		p.inMu.Lock()
		batch := p.pending
		p.pending = nil
		p.inMu.Unlock()

		for _, b := range batch {
			if _, err := p.ptmx.Write(b); err != nil {
				p.wErr.Store(&WriteError{Err: err})
				p.log.Warn("pty_write_failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}
