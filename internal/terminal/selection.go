package terminal

import "strings"

// Point is a grid coordinate.
type Point struct {
	Col, Row int
}

// before reports whether p comes earlier than q in reading order.
func (p Point) before(q Point) bool {
	return p.Row < q.Row || (p.Row == q.Row && p.Col < q.Col)
}

// selection is a linear (stream) selection between two inclusive points.
type selection struct {
	active      bool
	anchor, end Point
}

func (s selection) ordered() (start, end Point) {
	if s.end.before(s.anchor) {
		return s.end, s.anchor
	}
	return s.anchor, s.end
}

// span returns the inclusive column range selected on row, and false when
// the row is outside the selection.
func (s selection) span(row, cols int) (from, to int, ok bool) {
	if !s.active {
		return 0, 0, false
	}
	start, end := s.ordered()
	if row < start.Row || row > end.Row {
		return 0, 0, false
	}
	from, to = 0, cols-1
	if row == start.Row {
		from = start.Col
	}
	if row == end.Row {
		to = end.Col
	}
	if from > to {
		return 0, 0, false
	}
	return from, to, true
}

// SetSelection selects from anchor to head inclusive; either may come first.
// Points are clamped to the grid.
func (g *Grid) SetSelection(anchor, head Point) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sel = selection{active: true, anchor: g.clampLocked(anchor), end: g.clampLocked(head)}
}

// SelectAll selects the whole visible screen.
func (g *Grid) SelectAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sel = selection{active: true, end: Point{Col: g.cols - 1, Row: g.rows - 1}}
}

// ClearSelection drops the selection.
func (g *Grid) ClearSelection() {
	g.mu.Lock()
	g.sel = selection{}
	g.mu.Unlock()
}

// HasSelection reports whether a selection is active.
func (g *Grid) HasSelection() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sel.active
}

// SelectedText returns the selected characters, one line per row, with
// trailing blanks removed from each line.
func (g *Grid) SelectedText() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.sel.active || g.detached {
		return ""
	}
	start, end := g.sel.ordered()
	var lines []string
	for y := start.Row; y <= end.Row; y++ {
		from, to, ok := g.sel.span(y, g.cols)
		if !ok {
			lines = append(lines, "")
			continue
		}
		lines = append(lines, g.lineLocked(y, from, to+1))
	}
	return strings.Join(lines, "\n")
}

func (g *Grid) clampLocked(p Point) Point {
	p.Col = min(max(p.Col, 0), g.cols-1)
	p.Row = min(max(p.Row, 0), g.rows-1)
	return p
}
