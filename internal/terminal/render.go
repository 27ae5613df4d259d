package terminal

import (
	"github.com/hinshun/vt10x"
	"github.com/mattn/go-runewidth"

	"github.com/manav03panchal/humanssh/internal/pty"
)

// ColorKind says how to interpret a Color.
type ColorKind uint8

const (
	ColorDefault ColorKind = iota
	ColorIndexed
)

// Color is a cell colour: the theme default or a 256-colour palette index.
// The interpreter has no 24-bit colour, so children are not told it does.
type Color struct {
	Kind  ColorKind
	Index uint8
}

// Flags are SGR attributes of a cell.
type Flags uint8

const (
	FlagBold Flags = 1 << iota
	FlagItalic
	FlagUnderline
	FlagReverse
	FlagBlink
)

// Attribute bits in vt10x.Glyph.Mode.
const (
	vtReverse   = 1 << 0
	vtUnderline = 1 << 1
	vtBold      = 1 << 2
	vtItalic    = 1 << 4
	vtBlink     = 1 << 5
)

// Cell is one rendered character. Rows carry exactly one Cell per grid
// column. Width is the display width of Char; the interpreter does not
// track it, so a wide rune still occupies a single grid column.
type Cell struct {
	Char  rune
	FG    Color
	BG    Color
	Flags Flags
	Width uint8
}

// CursorState is the cursor relative to the viewport.
type CursorState struct {
	Col, Row int
	Visible  bool
}

// SelectionRegion is the selected column range [StartCol, EndCol) on one
// viewport row.
type SelectionRegion struct {
	Row      int
	StartCol int
	EndCol   int
}

// Viewport picks the rows to copy. Height 0 means every row from Top.
type Viewport struct {
	Top    int
	Height int
}

// RenderData is an immutable copy of what a renderer needs for one frame.
type RenderData struct {
	Cols, Rows int
	Cells      [][]Cell
	Cursor     CursorState
	Selection  []SelectionRegion
	Title      string
	Exit       pty.ExitStatus
	Badge      Badge
}

// Snapshot copies the viewport rows under the grid lock.
func (g *Grid) Snapshot(v Viewport) (*RenderData, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.detached {
		return nil, ErrSessionClosed
	}

	top := min(max(v.Top, 0), g.rows)
	height := v.Height
	if height <= 0 || top+height > g.rows {
		height = g.rows - top
	}

	rd := &RenderData{
		Cols:  g.cols,
		Rows:  height,
		Cells: make([][]Cell, height),
		Title: g.vt.Title(),
	}

	for r := range height {
		y := top + r
		row := make([]Cell, 0, g.cols)
		for x := range g.cols {
			row = append(row, convertGlyph(g.vt.Cell(x, y)))
		}
		rd.Cells[r] = row

		if from, to, ok := g.sel.span(y, g.cols); ok {
			rd.Selection = append(rd.Selection, SelectionRegion{Row: r, StartCol: from, EndCol: to + 1})
		}
	}

	cur := g.vt.Cursor()
	rd.Cursor = CursorState{
		Col:     cur.X,
		Row:     cur.Y - top,
		Visible: g.vt.CursorVisible() && cur.Y >= top && cur.Y < top+height,
	}
	return rd, nil
}

func convertGlyph(gl vt10x.Glyph) Cell {
	c := Cell{
		Char:  gl.Char,
		FG:    convertColor(gl.FG),
		BG:    convertColor(gl.BG),
		Width: 1,
	}
	if c.Char == 0 {
		c.Char = ' '
	}
	if runewidth.RuneWidth(c.Char) == 2 {
		c.Width = 2
	}
	m := gl.Mode
	if m&vtBold != 0 {
		c.Flags |= FlagBold
	}
	if m&vtItalic != 0 {
		c.Flags |= FlagItalic
	}
	if m&vtUnderline != 0 {
		c.Flags |= FlagUnderline
	}
	if m&vtReverse != 0 {
		c.Flags |= FlagReverse
	}
	if m&vtBlink != 0 {
		c.Flags |= FlagBlink
	}
	return c
}

// convertColor decodes vt10x colours: below 256 is a palette index,
// anything else (DefaultFG, DefaultBG) the theme default.
func convertColor(c vt10x.Color) Color {
	if c < 256 {
		return Color{Kind: ColorIndexed, Index: uint8(c)}
	}
	return Color{}
}

// Badge summarises how a session's child ended.
type Badge uint8

const (
	BadgeRunning Badge = iota
	BadgeSuccess
	BadgeFailed
)

// BadgeFor derives the badge from an exit status.
func BadgeFor(st pty.ExitStatus) Badge {
	code, exited := st.Code()
	switch {
	case !exited:
		return BadgeRunning
	case code == 0:
		return BadgeSuccess
	default:
		return BadgeFailed
	}
}

func (b Badge) String() string {
	switch b {
	case BadgeSuccess:
		return "success"
	case BadgeFailed:
		return "failed"
	default:
		return "running"
	}
}
