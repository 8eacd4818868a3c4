package doctree

import (
	"slices"

	"github.com/dgallion1/x12ctx/internal/schema"
	"github.com/dgallion1/x12ctx/internal/x12"
	"github.com/dgallion1/x12ctx/internal/x12err"
)

// Place attaches seg, resolved to the segment map node ref, and returns the new
// segment node, which becomes the next cursor.
//
// Starting from cursor, Place closes the loop levels of the cursor's address
// that are not shared with the address of ref's enclosing loop, then opens a
// loop node for each remaining level of that address. Addresses are compared
// token by token, so a cursor created under a map that has since been
// swapped out still lines up with nodes of the new map.
func Place(t *Tree, cursor NodeID, ref *schema.Node, seg *x12.Segment) (NodeID, error) {
	if !ref.IsSegment() {
		return None, x12err.Structuref("cannot place %s node %s", ref.Kind, ref.Path())
	}
	target := schema.SplitPath(ref.ParentLoop().Path())
	current := schema.SplitPath(t.Path(cursor))

	if !slices.Equal(target, current) {
		matchIdx := schema.MatchIndex(current, target)
		// A repeating loop must be reopened, not reused.
		if ref.IsFirstSegmentInLoop() && matchIdx == len(target) && matchIdx > 0 {
			matchIdx--
		}
		for range current[matchIdx:] {
			parent := t.Parent(cursor)
			if parent == None {
				return None, x12err.Structuref("segment %s at %s closes past the tree root %s",
					seg.ID, ref.Path(), t.Path(t.Root()))
			}
			cursor = parent
		}
		for _, id := range target[matchIdx:] {
			cursor = openLoop(t, cursor, id, ref)
			if cursor == None {
				return None, x12err.Structuref("no loop %s above %s", id, ref.Path())
			}
		}
	}
	return t.AddSegment(cursor, ref, seg), nil
}

// openLoop adds a loop node for the ancestor of ref named id under cursor.
func openLoop(t *Tree, cursor NodeID, id string, ref *schema.Node) NodeID {
	loop := ref.AncestorLoop(id)
	if loop == nil {
		return None
	}
	return t.AddLoop(cursor, loop)
}
