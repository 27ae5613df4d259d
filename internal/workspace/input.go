//go:build !windows

package workspace

import (
	"strings"

	"github.com/manav03panchal/humanssh/internal/clipboard"
	"github.com/manav03panchal/humanssh/internal/pane"
	"github.com/manav03panchal/humanssh/internal/terminal"
)

// drag is a selection in progress.
type drag struct {
	session *terminal.Session
	rect    pane.Rect
	anchor  terminal.Point
	moved   bool
}

// Paste sends text to the focused session the way a terminal pastes:
// newlines become carriage returns, and the text is bracketed when the
// child asked for it.
func (w *Workspace) Paste(text string) error {
	s, ok := w.Focused()
	if !ok {
		return ErrNoTab
	}
	return s.Write(encodePaste(text, s.Grid().InputModes().BracketedPaste))
}

func encodePaste(text string, bracketed bool) []byte {
	text = strings.ReplaceAll(text, "\r\n", "\r")
	text = strings.ReplaceAll(text, "\n", "\r")
	if !bracketed {
		return []byte(text)
	}
	// An embedded end marker would turn the rest of the paste into typed
	// input.
	text = strings.ReplaceAll(text, "\x1b[201~", "")
	return []byte("\x1b[200~" + text + "\x1b[201~")
}

// CopySelection copies the focused session's selection to the clipboard.
func (w *Workspace) CopySelection() (*clipboard.CopyResult, error) {
	s, ok := w.Focused()
	if !ok {
		return nil, ErrNoTab
	}
	text := s.Grid().SelectedText()
	if text == "" {
		return nil, clipboard.ErrEmpty
	}
	return clipboard.Copy(text, true)
}

// SelectAll selects the focused session's whole screen.
func (w *Workspace) SelectAll() {
	if s, ok := w.Focused(); ok {
		s.Grid().SelectAll()
	}
}

// PointerDown focuses the pane under (x, y), in workspace coordinates, and
// anchors a selection there. It reports whether a pane was hit.
func (w *Workspace) PointerDown(x, y int) bool {
	tab := w.ActiveTab()
	if tab == nil {
		return false
	}
	for _, p := range tab.tree.Layout(w.area) {
		r := p.Rect
		if x < r.X || x >= r.X+r.W || y < r.Y || y >= r.Y+r.H {
			continue
		}
		s, ok := SessionOf(p.Leaf)
		if !ok {
			return false
		}
		_ = tab.tree.Focus(p.Leaf.ID())
		w.drag = &drag{session: s, rect: r, anchor: terminal.Point{Col: x - r.X, Row: y - r.Y}}
		return true
	}
	return false
}

// PointerDrag extends the selection started by PointerDown. Points outside
// the pane are clamped to its edges.
func (w *Workspace) PointerDrag(x, y int) {
	d := w.drag
	if d == nil {
		return
	}
	head := terminal.Point{
		Col: min(max(x-d.rect.X, 0), d.rect.W-1),
		Row: min(max(y-d.rect.Y, 0), d.rect.H-1),
	}
	if head == d.anchor && !d.moved {
		return
	}
	d.moved = true
	d.session.Grid().SetSelection(d.anchor, head)
}

// PointerUp finishes a drag. A click that never moved clears the
// selection.
func (w *Workspace) PointerUp() {
	d := w.drag
	w.drag = nil
	if d != nil && !d.moved {
		d.session.Grid().ClearSelection()
	}
}
