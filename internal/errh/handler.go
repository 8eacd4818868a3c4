// Package errh receives envelope boundaries and diagnostics from the reader and
// groups them by interchange, functional group and transaction set.
package errh

import (
	"github.com/dgallion1/x12ctx/internal/schema"
	"github.com/dgallion1/x12ctx/internal/x12"
)

// Handler is notified as the reader crosses envelope boundaries and places segments.
type Handler interface {
	OpenInterchange(seg *x12.Segment, pos x12.Position)
	CloseInterchange(node *schema.Node, seg *x12.Segment, pos x12.Position)
	OpenGroup(seg *x12.Segment, pos x12.Position)
	CloseGroup(node *schema.Node, seg *x12.Segment, pos x12.Position)
	OpenTransaction(seg *x12.Segment, pos x12.Position)
	CloseTransaction(node *schema.Node, seg *x12.Segment, pos x12.Position)

	// RecordSegment notes a segment placed at node.
	RecordSegment(node *schema.Node, seg *x12.Segment, pos x12.Position)
	// RecordError records one diagnostic against the innermost open envelope.
	RecordError(d x12.Diagnostic)
	// HandleErrors drains a batch of diagnostics, typically from the segment source.
	HandleErrors(ds []x12.Diagnostic)
}
