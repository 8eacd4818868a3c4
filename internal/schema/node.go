// Package schema holds the X12 map trees that govern which loop and segment
// each input segment belongs to, and the index that picks a map for an
// interchange.
package schema

import (
	"slices"

	"github.com/dgallion1/x12ctx/internal/x12"
)

// Kind distinguishes root, loop and segment nodes.
type Kind uint8

const (
	KindRoot Kind = iota
	KindLoop
	KindSegment
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindLoop:
		return "loop"
	case KindSegment:
		return "segment"
	default:
		return "unknown"
	}
}

// Qualifier restricts a segment node to segments whose element holds one of Values,
// e.g. NM101 = 85 for the billing provider name.
type Qualifier struct {
	Element string   `yaml:"element" json:"element"`
	Values  []string `yaml:"values" json:"values"`
}

// Node is one loop or segment of a loaded map. The structure is read-only once
// loaded; only the instance counter changes while reading.
type Node struct {
	ID        string
	Name      string
	Kind      Kind
	Usage     string // R, S or N
	MaxUse    int    // 0 means unbounded
	Qualifier *Qualifier

	Parent   *Node
	Children []*Node

	index int
	path  string
	count int
}

// Path returns the '/'-delimited address of the node from the map root.
func (n *Node) Path() string { return n.path }

func (n *Node) IsRoot() bool    { return n.Kind == KindRoot }
func (n *Node) IsLoop() bool    { return n.Kind == KindLoop }
func (n *Node) IsSegment() bool { return n.Kind == KindSegment }

// CanRepeat reports whether more than one instance is allowed.
func (n *Node) CanRepeat() bool { return n.MaxUse != 1 }

// OverMax reports whether the instance counter has exceeded MaxUse.
func (n *Node) OverMax() bool { return n.MaxUse > 0 && n.count > n.MaxUse }

// FirstSegment returns the first direct segment child, or nil.
func (n *Node) FirstSegment() *Node {
	for _, c := range n.Children {
		if c.IsSegment() {
			return c
		}
	}
	return nil
}

// IsFirstSegmentInLoop reports whether n is the segment that opens its loop.
func (n *Node) IsFirstSegmentInLoop() bool {
	if !n.IsSegment() || n.Parent == nil || !n.Parent.IsLoop() {
		return false
	}
	return n.Parent.FirstSegment() == n
}

// ParentLoop walks up from n to the nearest enclosing loop, or the root.
func (n *Node) ParentLoop() *Node {
	p := n.Parent
	for p != nil && !p.IsLoop() && !p.IsRoot() {
		p = p.Parent
	}
	return p
}

// AncestorLoop searches n and its ancestors for a loop with the given id.
func (n *Node) AncestorLoop(id string) *Node {
	for cur := n; cur != nil && !cur.IsRoot(); cur = cur.Parent {
		if cur.IsLoop() && cur.ID == id {
			return cur
		}
	}
	return nil
}

// NextSiblings returns the nodes following n inside its parent.
func (n *Node) NextSiblings() []*Node {
	if n.Parent == nil {
		return nil
	}
	return n.Parent.Children[n.index+1:]
}

// Matches reports whether seg is an instance of this segment node.
func (n *Node) Matches(seg *x12.Segment) bool {
	if !n.IsSegment() || seg == nil || seg.ID != n.ID {
		return false
	}
	if n.Qualifier == nil {
		return true
	}
	return slices.Contains(n.Qualifier.Values, seg.Get(n.Qualifier.Element))
}

func (n *Node) Count() int     { return n.count }
func (n *Node) SetCount(c int) { n.count = c }
func (n *Node) IncrCount()     { n.count++ }

// ResetCount zeroes the counter of n and every descendant.
func (n *Node) ResetCount() {
	n.count = 0
	n.ResetChildCounts()
}

// ResetChildCounts zeroes the counters below n, leaving n's own count alone.
func (n *Node) ResetChildCounts() {
	for _, c := range n.Children {
		c.ResetCount()
	}
}

// walk visits n and its descendants depth first.
func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.walk(fn)
	}
}
