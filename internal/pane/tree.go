// Package pane keeps the split layout of one tab: a binary tree whose
// leaves hold pane content and whose inner nodes divide an area between two
// children. The tree is owned by the control goroutine and is not locked.
package pane

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/manav03panchal/humanssh/internal/logging"
)

var paneLog = logging.ForComponent(logging.CompPane)

var (
	// ErrNoSuchPane is returned when an ID does not name a node of the
	// expected kind in this tree.
	ErrNoSuchPane = errors.New("no such pane")

	// ErrEmptyTree is returned by operations that need at least one leaf.
	ErrEmptyTree = errors.New("pane tree is empty")
)

// Ratio bounds for splits.
const (
	MinRatio = 0.05
	MaxRatio = 0.95
)

// ID identifies a node within its tree.
type ID uint64

// Orientation of a split.
type Orientation uint8

const (
	// Horizontal places the children side by side, Left then Right.
	Horizontal Orientation = iota
	// Vertical stacks the children, Left on top.
	Vertical
)

func (o Orientation) String() string {
	if o == Vertical {
		return "vertical"
	}
	return "horizontal"
}

// Kind is the closed set of things a leaf can show.
type Kind uint8

const (
	KindTerminal Kind = iota + 1
)

// Content is what a leaf displays.
type Content interface {
	Kind() Kind
}

// Node is a *Leaf or a *Split.
type Node interface {
	ID() ID
	isNode()
}

// Leaf holds one pane's content.
type Leaf struct {
	id      ID
	Content Content
}

func (l *Leaf) ID() ID { return l.id }
func (*Leaf) isNode()  {}

// Split divides its area between Left and Right; Ratio is Left's share.
type Split struct {
	id          ID
	Orientation Orientation
	Ratio       float64
	Left, Right Node
}

func (s *Split) ID() ID { return s.id }
func (*Split) isNode()  {}

// Tree is the layout of one tab.
type Tree struct {
	root    Node
	focused ID
	lastID  ID
}

// New returns a tree holding a single focused leaf.
func New(c Content) *Tree {
	t := &Tree{}
	leaf := t.newLeaf(c)
	t.root = leaf
	t.focused = leaf.id
	return t
}

func (t *Tree) newLeaf(c Content) *Leaf {
	t.lastID++
	return &Leaf{id: t.lastID, Content: c}
}

// Root returns the root node, or nil once the last leaf has been closed.
func (t *Tree) Root() Node { return t.root }

// Empty reports whether every leaf has been closed.
func (t *Tree) Empty() bool { return t.root == nil }

// Len is the number of leaves.
func (t *Tree) Len() int { return len(t.Leaves()) }

// Leaves returns the leaves depth-first, left before right. The order
// depends only on the tree's shape.
func (t *Tree) Leaves() []*Leaf {
	var out []*Leaf
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case *Leaf:
			out = append(out, n)
		case *Split:
			walk(n.Left)
			walk(n.Right)
		}
	}
	if t.root != nil {
		walk(t.root)
	}
	return out
}

// Leaf looks up a leaf by ID.
func (t *Tree) Leaf(id ID) (*Leaf, bool) {
	l, ok := t.find(id).(*Leaf)
	return l, ok
}

func (t *Tree) find(id ID) Node {
	var found Node
	var walk func(Node) bool
	walk = func(n Node) bool {
		if n.ID() == id {
			found = n
			return true
		}
		if s, ok := n.(*Split); ok {
			return walk(s.Left) || walk(s.Right)
		}
		return false
	}
	if t.root != nil {
		walk(t.root)
	}
	return found
}

// Focused returns the focused leaf, or nil if the tree is empty.
func (t *Tree) Focused() *Leaf {
	l, _ := t.Leaf(t.focused)
	return l
}

// Focus moves focus to leaf id.
func (t *Tree) Focus(id ID) error {
	if _, ok := t.Leaf(id); !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchPane, id)
	}
	t.focused = id
	return nil
}

// FocusNext moves focus to the following leaf, wrapping at the end.
func (t *Tree) FocusNext() *Leaf { return t.cycle(1) }

// FocusPrevious moves focus to the preceding leaf, wrapping at the start.
func (t *Tree) FocusPrevious() *Leaf { return t.cycle(-1) }

func (t *Tree) cycle(step int) *Leaf {
	leaves := t.Leaves()
	if len(leaves) == 0 {
		return nil
	}
	cur := 0
	for i, l := range leaves {
		if l.id == t.focused {
			cur = i
			break
		}
	}
	next := leaves[(cur+step+len(leaves))%len(leaves)]
	t.focused = next.id
	return next
}

// Split replaces leaf target with a split holding target on the left (or
// top) and a new leaf for c on the right (or bottom). The new leaf gets
// focus. ratio is clamped to [MinRatio, MaxRatio].
func (t *Tree) Split(target ID, o Orientation, ratio float64, c Content) (*Leaf, error) {
	if t.root == nil {
		return nil, ErrEmptyTree
	}
	old, ok := t.Leaf(target)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchPane, target)
	}

	leaf := t.newLeaf(c)
	t.lastID++
	split := &Split{id: t.lastID, Orientation: o, Ratio: clampRatio(ratio), Left: old, Right: leaf}
	t.replace(old, split)
	t.focused = leaf.id

	paneLog.Debug("pane_split", slog.Uint64("target", uint64(target)),
		slog.Uint64("leaf", uint64(leaf.id)), slog.String("orientation", o.String()))
	return leaf, nil
}

// Close removes leaf target and returns its content. Its parent split
// collapses into the sibling. Closing the only leaf empties the tree. When
// the focused leaf closes, focus moves to the first leaf of the sibling.
func (t *Tree) Close(target ID) (Content, error) {
	leaf, ok := t.Leaf(target)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchPane, target)
	}

	if t.root == Node(leaf) {
		t.root = nil
		t.focused = 0
		paneLog.Debug("pane_closed_last", slog.Uint64("leaf", uint64(target)))
		return leaf.Content, nil
	}

	parent := t.parentOf(leaf)
	sibling := parent.Left
	if sibling == Node(leaf) {
		sibling = parent.Right
	}
	t.replace(parent, sibling)

	if t.focused == target {
		t.focused = firstLeaf(sibling).id
	}
	paneLog.Debug("pane_closed", slog.Uint64("leaf", uint64(target)))
	return leaf.Content, nil
}

// ResizeRatio sets the ratio of split id, clamped to [MinRatio, MaxRatio].
func (t *Tree) ResizeRatio(id ID, ratio float64) error {
	s, ok := t.find(id).(*Split)
	if !ok {
		return fmt.Errorf("%w: split %d", ErrNoSuchPane, id)
	}
	s.Ratio = clampRatio(ratio)
	return nil
}

// ParentSplit returns the split directly containing node id, if any.
func (t *Tree) ParentSplit(id ID) (*Split, bool) {
	n := t.find(id)
	if n == nil {
		return nil, false
	}
	p := t.parentOf(n)
	return p, p != nil
}

func (t *Tree) parentOf(child Node) *Split {
	var parent *Split
	var walk func(Node) bool
	walk = func(n Node) bool {
		s, ok := n.(*Split)
		if !ok {
			return false
		}
		if s.Left == child || s.Right == child {
			parent = s
			return true
		}
		return walk(s.Left) || walk(s.Right)
	}
	if t.root != nil {
		walk(t.root)
	}
	return parent
}

// replace swaps old for repl wherever old hangs in the tree.
func (t *Tree) replace(old, repl Node) {
	if t.root == old {
		t.root = repl
		return
	}
	p := t.parentOf(old)
	if p.Left == old {
		p.Left = repl
	} else {
		p.Right = repl
	}
}

func firstLeaf(n Node) *Leaf {
	for {
		switch v := n.(type) {
		case *Leaf:
			return v
		case *Split:
			n = v.Left
		}
	}
}

func clampRatio(r float64) float64 {
	if math.IsNaN(r) {
		return 0.5
	}
	return math.Min(math.Max(r, MinRatio), MaxRatio)
}
