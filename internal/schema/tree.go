package schema

import (
	"errors"
	"fmt"
)

// ErrNodeNotFound is returned by NodeAt for an address the map does not have.
var ErrNodeNotFound = errors.New("schema node not found")

// Tree is a loaded map. A Tree carries mutable instance counters, so it must
// not be shared between two readers.
type Tree struct {
	ID      string
	Name    string
	Version string

	root   *Node
	byPath map[string]*Node
}

func (t *Tree) Root() *Node { return t.root }

// NodeAt looks up a node by its address, e.g. "/ISA_LOOP/GS_LOOP/GS".
func (t *Tree) NodeAt(path string) (*Node, error) {
	n, ok := t.byPath[JoinPath(SplitPath(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %s in map %s", ErrNodeNotFound, path, t.ID)
	}
	return n, nil
}

// Counts returns every nonzero instance counter in the tree keyed by address.
func (t *Tree) Counts() map[string]int {
	out := make(map[string]int)
	t.root.walk(func(n *Node) {
		if n.count != 0 && !n.IsRoot() {
			out[n.path] = n.count
		}
	})
	return out
}

// CountsFrom returns the nonzero counters of n and its ancestors.
func CountsFrom(n *Node) map[string]int {
	out := make(map[string]int)
	for cur := n; cur != nil && !cur.IsRoot(); cur = cur.Parent {
		if cur.count != 0 {
			out[cur.path] = cur.count
		}
	}
	return out
}

// ApplyCounts copies counters onto the nodes at the same addresses and
// returns the addresses this tree does not have.
func (t *Tree) ApplyCounts(counts map[string]int) (missing []string) {
	for path, c := range counts {
		n, ok := t.byPath[path]
		if !ok {
			missing = append(missing, path)
			continue
		}
		n.count = c
	}
	return missing
}

func (t *Tree) index() {
	t.byPath = make(map[string]*Node)
	t.root.walk(func(n *Node) {
		if n.Parent != nil {
			n.path = n.Parent.path + "/" + n.ID
		}
		if _, dup := t.byPath[n.path]; !dup {
			t.byPath[n.path] = n
		}
	})
}
