// Package x12 reads ANSI X12 interchanges into a stream of segments.
package x12

import (
	"strconv"
	"strings"
)

// Segment is one decoded segment of an interchange.
type Segment struct {
	ID       string   // Segment identifier, e.g. "ISA", "CLM"
	Elements []string // Element values; Elements[0] is element 01

	componentSep byte
}

// NewSegment builds a segment from its identifier and element values.
// Composite elements are split on ':' unless the segment came from a Reader.
func NewSegment(id string, elements ...string) *Segment {
	return &Segment{ID: id, Elements: elements, componentSep: ':'}
}

// Value returns element n (1-based), or "" if the segment is shorter.
func (s *Segment) Value(n int) string {
	if n < 1 || n > len(s.Elements) {
		return ""
	}
	return s.Elements[n-1]
}

// Get looks up an element by reference designator: "CLM05" for the whole element,
// "CLM05-1" for the first component of a composite. The segment prefix of the
// reference is not checked against s.ID so "05" and "05-1" work as well.
func (s *Segment) Get(ref string) string {
	elem, comp, hasComp := strings.Cut(ref, "-")
	if len(elem) < 2 {
		return ""
	}
	n, err := strconv.Atoi(elem[len(elem)-2:])
	if err != nil {
		return ""
	}
	v := s.Value(n)
	if !hasComp {
		return v
	}
	c, err := strconv.Atoi(comp)
	if err != nil || c < 1 {
		return ""
	}
	parts := strings.Split(v, string(s.componentSep))
	if c > len(parts) {
		return ""
	}
	return parts[c-1]
}

// String renders the segment with '*' element separators and no terminator.
func (s *Segment) String() string {
	if len(s.Elements) == 0 {
		return s.ID
	}
	return s.ID + "*" + strings.Join(s.Elements, "*")
}

// Position is the stream metadata of the most recently read segment.
type Position struct {
	SegCount int    `json:"seg_count"`        // 1-based count of segments read so far
	Line     int    `json:"line"`             // 1-based source line the segment started on
	SubID    string `json:"sub_id,omitempty"` // LS01 of an open LS/LE wrapper, if any
}

// Diagnostic is a structural or envelope problem found while reading.
type Diagnostic struct {
	Source  string   `json:"source"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
	SegID   string   `json:"seg_id,omitempty"`
	Path    string   `json:"path,omitempty"`
	Pos     Position `json:"position"`
}

// Diagnostic sources. A code is only meaningful together with its source.
const (
	SourceSegment   = "segment"   // tokenizer
	SourceStructure = "structure" // map placement
	SourceEnvelope  = "envelope"  // ISA/GS/ST trailers and nesting
)
