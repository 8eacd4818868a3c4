package reader

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"

	"github.com/dgallion1/x12ctx/internal/doctree"
	"github.com/dgallion1/x12ctx/internal/schema"
	"github.com/dgallion1/x12ctx/internal/x12"
)

type state uint8

const (
	stateIdle state = iota
	stateFlat
	stateBuffering
)

// Iterator yields document trees in stream order. With a tracked loop id
// each repeat of that loop becomes one tree holding everything nested in it;
// every other segment is yielded as a single-node tree.
type Iterator struct {
	r      *Reader
	loopID string

	state  state
	tree   *doctree.Tree
	cursor doctree.NodeID
	ready  []*doctree.Tree

	done bool
	err  error
}

// Iterate starts iteration. An empty loopID yields every segment on its own.
// The reader must not be iterated twice.
func (r *Reader) Iterate(loopID string) *Iterator {
	return &Iterator{r: r, loopID: loopID, cursor: doctree.None}
}

// Next returns the next tree, io.EOF once the stream is exhausted, or the
// fatal error that stopped iteration. After an error every call returns it again.
func (it *Iterator) Next() (*doctree.Tree, error) {
	for {
		if len(it.ready) > 0 {
			t := it.ready[0]
			it.ready = it.ready[1:]
			return t, nil
		}
		if it.err != nil {
			return nil, it.err
		}
		if it.done {
			return nil, io.EOF
		}

		seg, err := it.r.src.Next()
		if errors.Is(err, io.EOF) {
			it.done = true
			it.flush()
			continue
		}
		if err != nil {
			it.fail(fmt.Errorf("read segment: %w", err))
			continue
		}
		node, err := it.r.resolve(seg)
		if err != nil {
			it.fail(err)
			continue
		}
		if node == nil {
			continue
		}
		if err := it.assemble(node, seg); err != nil {
			it.fail(err)
		}
	}
}

// All adapts Next to a range-over-func sequence. It ends silently at EOF
// and yields a fatal error once before stopping.
func (it *Iterator) All() iter.Seq2[*doctree.Tree, error] {
	return func(yield func(*doctree.Tree, error) bool) {
		for {
			t, err := it.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(t, err) || err != nil {
				return
			}
		}
	}
}

func (it *Iterator) assemble(node *schema.Node, seg *x12.Segment) error {
	if loop := it.trackedLoop(node); loop != nil {
		path := schema.SplitPath(node.Path())
		startsRepeat := len(path) >= 2 && path[len(path)-2] == it.loopID && node.IsFirstSegmentInLoop()
		switch {
		case startsRepeat:
			it.flush()
			it.start(node.Parent)
		case it.tree == nil:
			// Mid-loop segment with nothing buffered, e.g. after a mismatch
			// swallowed the loop's first segment.
			it.start(loop)
		}
		cursor, err := doctree.Place(it.tree, it.cursor, node, seg)
		if err != nil {
			return err
		}
		it.cursor = cursor
		return nil
	}

	it.flush()
	it.state = stateFlat
	it.ready = append(it.ready, doctree.NewSegmentTree(node, seg))
	return nil
}

// trackedLoop returns the tracked loop enclosing node, nil when node is
// outside it or no loop is tracked.
func (it *Iterator) trackedLoop(node *schema.Node) *schema.Node {
	if it.loopID == "" || !slices.Contains(schema.SplitPath(node.Path()), it.loopID) {
		return nil
	}
	return node.AncestorLoop(it.loopID)
}

func (it *Iterator) start(loop *schema.Node) {
	it.tree = doctree.NewLoopTree(loop)
	it.cursor = it.tree.Root()
	it.state = stateBuffering
}

func (it *Iterator) flush() {
	if it.tree != nil {
		it.ready = append(it.ready, it.tree)
	}
	it.tree = nil
	it.cursor = doctree.None
	it.state = stateIdle
}

// fail makes err sticky and drops the partially built tree.
func (it *Iterator) fail(err error) {
	it.err = err
	it.tree = nil
	it.cursor = doctree.None
	it.state = stateIdle
}
