// Package terminal turns a PTY byte stream into renderable state. A Grid
// wraps the VT interpreter behind one mutex, a Processor feeds it from the
// reader's channel, and Session ties both to a supervised shell.
package terminal

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/hinshun/vt10x"
)

// ErrSessionClosed is returned by reads of a grid whose session is gone.
var ErrSessionClosed = errors.New("session closed")

// ErrInvalidSize is returned for non-positive grid dimensions.
var ErrInvalidSize = errors.New("invalid grid size")

// Grid is the interpreter state shared between the processor, which is its
// only parser writer, and the control goroutine, which takes snapshots,
// resizes, and edits the selection. Every access holds mu; mu is never held
// across channel operations or while taking another lock.
type Grid struct {
	mu sync.Mutex

	vt      vt10x.Terminal
	replies bytes.Buffer
	carry   []byte

	cols, rows int
	sel        selection
	modes      modeTracker
	detached   bool
}

// NewGrid creates a cols x rows grid.
func NewGrid(cols, rows int) *Grid {
	g := &Grid{cols: cols, rows: rows}
	g.vt = vt10x.New(vt10x.WithSize(cols, rows), vt10x.WithWriter(&g.replies))
	return g
}

// Feed interprets b and returns any bytes the interpreter wants sent back to
// the child (device status and cursor position reports). An incomplete
// UTF-8 sequence at the end of b is held until the next call, so the result
// does not depend on how the stream was chunked.
func (g *Grid) Feed(b []byte) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.detached {
		return nil
	}
	g.modes.feed(b)

	if len(g.carry) > 0 {
		b = append(g.carry, b...)
		g.carry = nil
	}
	complete, tail := splitIncomplete(b)
	if len(tail) > 0 {
		g.carry = append([]byte(nil), tail...)
	}
	if len(complete) > 0 {
		_, _ = g.vt.Write(complete)
	}

	if g.replies.Len() == 0 {
		return nil
	}
	out := make([]byte, g.replies.Len())
	copy(out, g.replies.Bytes())
	g.replies.Reset()
	return out
}

// splitIncomplete separates a trailing partial UTF-8 sequence from b.
func splitIncomplete(b []byte) (complete, tail []byte) {
	// Walk back over at most UTFMax-1 bytes to the start of the last rune.
	for i := len(b) - 1; i >= 0 && i >= len(b)-(utf8.UTFMax-1); i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return b, nil
		}
		return b[:i], b[i:]
	}
	return b, nil
}

// Resize changes the grid dimensions and clears the selection.
func (g *Grid) Resize(cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, cols, rows)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.detached {
		return ErrSessionClosed
	}
	if cols == g.cols && rows == g.rows {
		return nil
	}
	g.vt.Resize(cols, rows)
	g.cols, g.rows = cols, rows
	g.sel = selection{}
	return nil
}

// Size returns (cols, rows).
func (g *Grid) Size() (cols, rows int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cols, g.rows
}

// Title is the window title last set with OSC 0 or OSC 2.
func (g *Grid) Title() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.vt.Title()
}

// Text returns the visible screen as lines with trailing blanks removed.
func (g *Grid) Text() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	lines := make([]string, g.rows)
	for y := range g.rows {
		lines[y] = g.lineLocked(y, 0, g.cols)
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// lineLocked returns columns [from, to) of row y with trailing spaces trimmed.
func (g *Grid) lineLocked(y, from, to int) string {
	var sb strings.Builder
	for x := from; x < to && x < g.cols; x++ {
		c := g.vt.Cell(x, y).Char
		if c == 0 {
			c = ' '
		}
		sb.WriteRune(c)
	}
	return strings.TrimRight(sb.String(), " ")
}

// Detach releases the grid. Later snapshots fail with ErrSessionClosed and
// feeds are ignored.
func (g *Grid) Detach() {
	g.mu.Lock()
	g.detached = true
	g.sel = selection{}
	g.mu.Unlock()
}

// Replay feeds a recorded session into the grid, applying its resizes.
// Timing is ignored.
func (g *Grid) Replay(c *Cast) {
	for _, ev := range c.Events {
		switch ev.Kind {
		case EventOutput:
			g.Feed([]byte(ev.Data))
		case EventResize:
			var cols, rows int
			if _, err := fmt.Sscanf(ev.Data, "%dx%d", &cols, &rows); err == nil {
				_ = g.Resize(cols, rows)
			}
		}
	}
}
