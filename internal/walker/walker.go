// Package walker advances a schema cursor by one input segment.
package walker

import (
	"fmt"

	"github.com/dgallion1/x12ctx/internal/errh"
	"github.com/dgallion1/x12ctx/internal/schema"
	"github.com/dgallion1/x12ctx/internal/x12"
	"github.com/dgallion1/x12ctx/internal/x12err"
)

// Diagnostic codes recorded by the walker.
const (
	codeLoopOverMax    = "4"
	codeSegmentOverMax = "5"
)

// Walker finds the schema node for the next segment, starting from the node
// the previous segment was placed at. It keeps no state of its own; loop and
// segment instance counters live on the schema nodes.
type Walker struct{}

func New() *Walker { return &Walker{} }

// Walk returns the node seg belongs to. From the cursor it tries, at each level
// on the way up to the map root: another instance of the current node, then
// the following siblings (entering sibling loops through their first segment).
// When nothing matches the mismatch is recorded on h and Walk returns nil, nil.
func (w *Walker) Walk(cur *schema.Node, seg *x12.Segment, h errh.Handler, pos x12.Position) (*schema.Node, error) {
	if cur == nil {
		return nil, x12err.Structuref("walk from nil cursor for segment %s", seg.ID)
	}
	for node := cur; node != nil && !node.IsRoot(); node = node.Parent {
		if node.CanRepeat() {
			if chain := firstChain(node, seg); chain != nil {
				return w.open(chain, h, seg, pos), nil
			}
		}
		for _, sib := range node.NextSiblings() {
			if chain := firstChain(sib, seg); chain != nil {
				return w.open(chain, h, seg, pos), nil
			}
		}
	}
	h.RecordError(x12.Diagnostic{
		Source:  x12.SourceStructure,
		Code:    x12err.PlacementMismatch,
		Message: fmt.Sprintf("Segment %s not found after %s", seg.ID, cur.ID),
		SegID:   seg.ID,
		Path:    cur.Path(),
		Pos:     pos,
	})
	return nil, nil
}

// firstChain returns n and the first-child descendants leading to a segment
// that matches seg, or nil. For a segment node the chain is just n.
func firstChain(n *schema.Node, seg *x12.Segment) []*schema.Node {
	switch {
	case n.IsSegment():
		if n.Matches(seg) {
			return []*schema.Node{n}
		}
	case n.IsLoop():
		if len(n.Children) == 0 {
			return nil
		}
		if sub := firstChain(n.Children[0], seg); sub != nil {
			return append([]*schema.Node{n}, sub...)
		}
	}
	return nil
}

// open starts a new instance of every node in chain and returns the segment at its end.
func (w *Walker) open(chain []*schema.Node, h errh.Handler, seg *x12.Segment, pos x12.Position) *schema.Node {
	for _, n := range chain {
		n.IncrCount()
		if n.IsLoop() {
			n.ResetChildCounts()
		}
		if !n.OverMax() {
			continue
		}
		code, what := codeSegmentOverMax, "Segment"
		if n.IsLoop() {
			code, what = codeLoopOverMax, "Loop"
		}
		h.RecordError(x12.Diagnostic{
			Source:  x12.SourceStructure,
			Code:    code,
			Message: fmt.Sprintf("%s %s exceeds maximum use of %d", what, n.ID, n.MaxUse),
			SegID:   seg.ID,
			Path:    n.Path(),
			Pos:     pos,
		})
	}
	return chain[len(chain)-1]
}
