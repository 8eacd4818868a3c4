// Package doctree holds the document trees rebuilt from a flat segment stream.
// A Tree is an arena: nodes refer to their parent and children by index.
package doctree

import (
	"encoding/json"
	"iter"

	"github.com/dgallion1/x12ctx/internal/schema"
	"github.com/dgallion1/x12ctx/internal/x12"
)

// NodeID indexes a node inside one Tree.
type NodeID int32

// None is the parent of a tree's root.
const None NodeID = -1

// Kind separates segment nodes, which carry data, from loop nodes, which don't.
type Kind uint8

const (
	KindSegment Kind = iota
	KindLoop
)

func (k Kind) String() string {
	if k == KindLoop {
		return "loop"
	}
	return "segment"
}

type node struct {
	kind     Kind
	ref      *schema.Node // map node from the tree active when this node was created
	seg      *x12.Segment // nil for loops
	parent   NodeID
	children []NodeID
}

// Tree is one yielded document tree: a single segment in flat mode, or one
// repeat of a tracked loop.
type Tree struct {
	nodes []node
}

// NewLoopTree starts a tree whose root is a loop node for ref.
func NewLoopTree(ref *schema.Node) *Tree {
	return &Tree{nodes: []node{{kind: KindLoop, ref: ref, parent: None}}}
}

// NewSegmentTree returns a tree holding the single segment seg.
func NewSegmentTree(ref *schema.Node, seg *x12.Segment) *Tree {
	return &Tree{nodes: []node{{kind: KindSegment, ref: ref, seg: seg, parent: None}}}
}

func (t *Tree) Root() NodeID { return 0 }
func (t *Tree) Len() int     { return len(t.nodes) }

func (t *Tree) Kind(id NodeID) Kind         { return t.nodes[id].kind }
func (t *Tree) Ref(id NodeID) *schema.Node  { return t.nodes[id].ref }
func (t *Tree) Parent(id NodeID) NodeID     { return t.nodes[id].parent }
func (t *Tree) Children(id NodeID) []NodeID { return t.nodes[id].children }
func (t *Tree) IsLoop(id NodeID) bool       { return t.nodes[id].kind == KindLoop }

func (t *Tree) Segment(id NodeID) (*x12.Segment, bool) {
	n := &t.nodes[id]
	return n.seg, n.kind == KindSegment
}

// ID returns the map identity of the node, e.g. "2300" or "CLM".
func (t *Tree) ID(id NodeID) string { return t.nodes[id].ref.ID }

// Path returns the map address of the node.
func (t *Tree) Path(id NodeID) string { return t.nodes[id].ref.Path() }

// Depth returns the number of parent steps from id to the root.
func (t *Tree) Depth(id NodeID) int {
	d := 0
	for p := t.nodes[id].parent; p != None; p = t.nodes[p].parent {
		d++
	}
	return d
}

// AddLoop appends a loop node under parent and returns it.
func (t *Tree) AddLoop(parent NodeID, ref *schema.Node) NodeID {
	return t.add(parent, node{kind: KindLoop, ref: ref})
}

// AddSegment appends a segment node under parent and returns it.
func (t *Tree) AddSegment(parent NodeID, ref *schema.Node, seg *x12.Segment) NodeID {
	return t.add(parent, node{kind: KindSegment, ref: ref, seg: seg})
}

func (t *Tree) add(parent NodeID, n node) NodeID {
	id := NodeID(len(t.nodes))
	n.parent = parent
	t.nodes = append(t.nodes, n)
	t.nodes[parent].children = append(t.nodes[parent].children, id)
	return id
}

// Segments yields the segments of the tree in document order.
func (t *Tree) Segments() iter.Seq[*x12.Segment] {
	return func(yield func(*x12.Segment) bool) {
		t.walk(t.Root(), func(ev Event) bool {
			if ev.Type != EventSegment {
				return true
			}
			return yield(ev.Segment)
		})
	}
}

// EventType tags the items produced by Events.
type EventType uint8

const (
	EventLoopStart EventType = iota
	EventSegment
	EventLoopEnd
)

// Event is one step of a document-order walk.
type Event struct {
	Type    EventType
	Node    NodeID
	ID      string
	Ref     *schema.Node
	Segment *x12.Segment
}

// Events walks the tree in document order, bracketing each loop with start
// and end events.
func (t *Tree) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		t.walk(t.Root(), yield)
	}
}

func (t *Tree) walk(id NodeID, yield func(Event) bool) bool {
	n := &t.nodes[id]
	if n.kind == KindLoop {
		if !yield(Event{Type: EventLoopStart, Node: id, ID: n.ref.ID, Ref: n.ref}) {
			return false
		}
	} else if !yield(Event{Type: EventSegment, Node: id, ID: n.ref.ID, Ref: n.ref, Segment: n.seg}) {
		return false
	}
	for _, c := range n.children {
		if !t.walk(c, yield) {
			return false
		}
	}
	if n.kind == KindLoop {
		return yield(Event{Type: EventLoopEnd, Node: id, ID: n.ref.ID, Ref: n.ref})
	}
	return true
}

type jsonNode struct {
	Type     string      `json:"type"`
	ID       string      `json:"id"`
	Path     string      `json:"path"`
	Segment  string      `json:"segment,omitempty"`
	Children []*jsonNode `json:"children,omitempty"`
}

// MarshalJSON renders the tree as nested objects.
func (t *Tree) MarshalJSON() ([]byte, error) {
	var build func(id NodeID) *jsonNode
	build = func(id NodeID) *jsonNode {
		n := &t.nodes[id]
		jn := &jsonNode{Type: n.kind.String(), ID: n.ref.ID, Path: n.ref.Path()}
		if n.seg != nil {
			jn.Segment = n.seg.String()
		}
		for _, c := range n.children {
			jn.Children = append(jn.Children, build(c))
		}
		return jn
	}
	return json.Marshal(build(t.Root()))
}
