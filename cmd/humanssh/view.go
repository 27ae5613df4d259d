package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/manav03panchal/humanssh/internal/pane"
	"github.com/manav03panchal/humanssh/internal/terminal"
)

var (
	tabStyle       = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("245"))
	activeTabStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).
			Foreground(lipgloss.Color("231")).Background(lipgloss.Color("62"))
	tabBarStyle = lipgloss.NewStyle().Background(lipgloss.Color("236"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// paneView is one pane ready to draw.
type paneView struct {
	rect    pane.Rect
	data    *terminal.RenderData
	focused bool
}

type cellStyle struct {
	fg, bg terminal.Color
	flags  terminal.Flags
}

type canvasCell struct {
	text  string
	style cellStyle
	// spacer marks the right half of a wide rune.
	spacer bool
}

// renderPanes draws panes into a width x height block of text.
func renderPanes(width, height int, panes []paneView) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	canvas := make([][]canvasCell, height)
	for y := range canvas {
		canvas[y] = make([]canvasCell, width)
		for x := range canvas[y] {
			canvas[y][x].text = " "
		}
	}
	for _, p := range panes {
		drawPane(canvas, p)
	}

	var b strings.Builder
	for y, row := range canvas {
		if y > 0 {
			b.WriteByte('\n')
		}
		writeRow(&b, row)
	}
	return b.String()
}

func drawPane(canvas [][]canvasCell, p paneView) {
	if p.data == nil {
		return
	}
	selected := make(map[int][2]int, len(p.data.Selection))
	for _, s := range p.data.Selection {
		selected[s.Row] = [2]int{s.StartCol, s.EndCol}
	}

	for r, cells := range p.data.Cells {
		if r >= p.rect.H {
			break
		}
		y := p.rect.Y + r
		if y < 0 || y >= len(canvas) {
			continue
		}
		// Cells are grid columns; col is the screen column, which runs
		// ahead of gx after wide runes.
		col := 0
		for gx, c := range cells {
			w := int(c.Width)
			if w < 1 {
				w = 1
			}
			if col+w > p.rect.W {
				break
			}
			x := p.rect.X + col
			if x+w > len(canvas[y]) {
				break
			}
			st := cellStyle{fg: c.FG, bg: c.BG, flags: c.Flags}
			if span, ok := selected[r]; ok && gx >= span[0] && gx < span[1] {
				st.flags ^= terminal.FlagReverse
			}
			cur := p.data.Cursor
			if p.focused && cur.Visible && cur.Row == r && cur.Col == gx {
				st.flags ^= terminal.FlagReverse
			}
			ch := c.Char
			if ch == 0 {
				ch = ' '
			}
			canvas[y][x] = canvasCell{text: string(ch), style: st}
			if w == 2 {
				canvas[y][x+1] = canvasCell{style: st, spacer: true}
			}
			col += w
		}
	}

	if p.data.Badge != terminal.BadgeRunning && p.rect.H > 0 {
		drawNotice(canvas, p.rect, exitNotice(p.data))
	}
}

func exitNotice(rd *terminal.RenderData) string {
	code, _ := rd.Exit.Code()
	return fmt.Sprintf(" [process exited %d] ", code)
}

// drawNotice overlays msg on the bottom row of r.
func drawNotice(canvas [][]canvasCell, r pane.Rect, msg string) {
	y := r.Y + r.H - 1
	if y < 0 || y >= len(canvas) {
		return
	}
	x := r.X
	for _, ch := range msg {
		if x >= r.X+r.W || x >= len(canvas[y]) {
			break
		}
		canvas[y][x] = canvasCell{text: string(ch), style: cellStyle{flags: terminal.FlagReverse}}
		x++
	}
}

// writeRow emits runs of equally styled cells with one style each.
func writeRow(b *strings.Builder, row []canvasCell) {
	var run strings.Builder
	var cur cellStyle
	flush := func() {
		if run.Len() == 0 {
			return
		}
		b.WriteString(styleFor(cur).Render(run.String()))
		run.Reset()
	}
	for i, c := range row {
		if c.spacer {
			continue
		}
		if i == 0 || c.style != cur {
			flush()
			cur = c.style
		}
		run.WriteString(c.text)
	}
	flush()
}

func styleFor(c cellStyle) lipgloss.Style {
	s := lipgloss.NewStyle()
	if fg, ok := lipglossColor(c.fg); ok {
		s = s.Foreground(fg)
	}
	if bg, ok := lipglossColor(c.bg); ok {
		s = s.Background(bg)
	}
	if c.flags&terminal.FlagBold != 0 {
		s = s.Bold(true)
	}
	if c.flags&terminal.FlagItalic != 0 {
		s = s.Italic(true)
	}
	if c.flags&terminal.FlagUnderline != 0 {
		s = s.Underline(true)
	}
	if c.flags&terminal.FlagReverse != 0 {
		s = s.Reverse(true)
	}
	if c.flags&terminal.FlagBlink != 0 {
		s = s.Blink(true)
	}
	return s
}

func lipglossColor(c terminal.Color) (lipgloss.Color, bool) {
	switch c.Kind {
	case terminal.ColorIndexed:
		return lipgloss.Color(strconv.Itoa(int(c.Index))), true
	default:
		return "", false
	}
}

// renderTabBar draws the tab labels, truncated to width.
func renderTabBar(width int, titles []string, active int, notice string) string {
	var parts []string
	for i, t := range titles {
		label := runewidth.Truncate(fmt.Sprintf("%d %s", i+1, t), 24, "…")
		if i == active {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, tabStyle.Render(label))
		}
	}
	bar := lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	if notice != "" {
		bar = lipgloss.JoinHorizontal(lipgloss.Top, bar, " ", noticeStyle.Render(notice))
	}
	return tabBarStyle.Width(width).MaxWidth(width).Render(bar)
}
