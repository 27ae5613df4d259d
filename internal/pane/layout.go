package pane

import "math"

// Rect is an area in terminal cells.
type Rect struct {
	X, Y, W, H int
}

// Placement is where a leaf lands in a layout.
type Placement struct {
	Leaf *Leaf
	Rect Rect
}

// Layout divides area among the leaves in Leaves() order. Each side of a
// split keeps at least one cell whenever the area allows it.
func (t *Tree) Layout(area Rect) []Placement {
	var out []Placement
	var walk func(Node, Rect)
	walk = func(n Node, r Rect) {
		switch n := n.(type) {
		case *Leaf:
			out = append(out, Placement{Leaf: n, Rect: r})
		case *Split:
			a, b := divide(r, n.Orientation, n.Ratio)
			walk(n.Left, a)
			walk(n.Right, b)
		}
	}
	if t.root != nil {
		walk(t.root, area)
	}
	return out
}

func divide(r Rect, o Orientation, ratio float64) (Rect, Rect) {
	if o == Horizontal {
		w := share(r.W, ratio)
		return Rect{X: r.X, Y: r.Y, W: w, H: r.H}, Rect{X: r.X + w, Y: r.Y, W: r.W - w, H: r.H}
	}
	h := share(r.H, ratio)
	return Rect{X: r.X, Y: r.Y, W: r.W, H: h}, Rect{X: r.X, Y: r.Y + h, W: r.W, H: r.H - h}
}

func share(total int, ratio float64) int {
	if total < 2 {
		return total
	}
	n := int(math.Round(float64(total) * ratio))
	return min(max(n, 1), total-1)
}
