package x12

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// isaLen is the fixed width of an ISA segment including its terminator.
const isaLen = 106

// ErrNoISA is returned when the input does not open with an interchange header.
var ErrNoISA = errors.New("x12: input does not start with an ISA segment")

// Reader splits an interchange into segments. The separators are taken from
// the fixed-width ISA segment, so one Reader handles exactly one delimiter set;
// a later ISA must use the same delimiters.
type Reader struct {
	r *bufio.Reader

	elemSep byte
	compSep byte
	repSep  byte
	segTerm byte

	started bool
	line    int
	pos     Position
	subID   string
	errs    []Diagnostic
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r), line: 1}
}

// Next returns the next segment, or io.EOF once the input is exhausted.
func (r *Reader) Next() (*Segment, error) {
	if !r.started {
		return r.readISA()
	}
	for {
		raw, err := r.r.ReadBytes(r.segTerm)
		if len(raw) == 0 && err != nil {
			return nil, err
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read segment: %w", err)
		}
		body := bytes.TrimSuffix(raw, []byte{r.segTerm})
		lead := len(body) - len(bytes.TrimLeft(body, " \t\r\n"))
		r.line += bytes.Count(body[:lead], []byte{'\n'})
		startLine := r.line
		r.line += bytes.Count(body[lead:], []byte{'\n'})
		if r.segTerm == '\n' && len(raw) > len(body) {
			// The terminator itself ends the line.
			r.line++
		}
		body = bytes.TrimSpace(body)

		if len(body) == 0 {
			if err == io.EOF {
				return nil, io.EOF
			}
			r.pos = Position{SegCount: r.pos.SegCount, Line: startLine, SubID: r.subID}
			r.addError("EMPTY_SEGMENT", "Segment is empty", "")
			continue
		}
		seg := r.decode(string(body), startLine)
		if err == io.EOF {
			r.addError("MISSING_TERMINATOR", "Last segment is missing the segment terminator", seg.ID)
		}
		return seg, nil
	}
}

// Position reports stream metadata for the last segment returned by Next.
func (r *Reader) Position() Position {
	return r.pos
}

// PopErrors returns the diagnostics found since the previous call and clears them.
func (r *Reader) PopErrors() []Diagnostic {
	errs := r.errs
	r.errs = nil
	return errs
}

// Separators returns the element, component, repetition and segment
// separators learned from the ISA segment.
func (r *Reader) Separators() (elem, comp, rep, term byte) {
	return r.elemSep, r.compSep, r.repSep, r.segTerm
}

func (r *Reader) readISA() (*Segment, error) {
	for {
		b, err := r.r.Peek(1)
		if err != nil {
			if err == io.EOF {
				return nil, ErrNoISA
			}
			return nil, fmt.Errorf("read interchange header: %w", err)
		}
		if b[0] != ' ' && b[0] != '\t' && b[0] != '\r' && b[0] != '\n' {
			break
		}
		if b[0] == '\n' {
			r.line++
		}
		r.r.ReadByte()
	}
	hdr := make([]byte, isaLen)
	n, err := io.ReadFull(r.r, hdr)
	if n < 4 || string(hdr[:3]) != "ISA" {
		return nil, ErrNoISA
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header is %d bytes, want %d", ErrNoISA, n, isaLen)
	}
	r.elemSep = hdr[3]
	r.repSep = hdr[82]
	r.compSep = hdr[104]
	r.segTerm = hdr[105]
	r.started = true

	seg := r.decode(string(hdr[:isaLen-1]), r.line)
	if r.segTerm == '\n' {
		r.line++
	}
	if len(seg.Elements) != 16 {
		r.addError("ISA_LENGTH", fmt.Sprintf("ISA has %d elements, want 16", len(seg.Elements)), "ISA")
	}
	return seg, nil
}

func (r *Reader) decode(body string, line int) *Segment {
	fields := strings.Split(body, string(r.elemSep))
	seg := &Segment{ID: fields[0], Elements: fields[1:], componentSep: r.compSep}

	r.pos = Position{SegCount: r.pos.SegCount + 1, Line: line, SubID: r.subID}
	switch seg.ID {
	case "LS":
		r.subID = seg.Value(1)
		r.pos.SubID = r.subID
	case "LE":
		r.subID = ""
	}

	if seg.ID != "ISA" && len(seg.Elements) > 0 && seg.Elements[len(seg.Elements)-1] == "" {
		r.addError("SEG1", "Segment has trailing element separators", seg.ID)
		for len(seg.Elements) > 0 && seg.Elements[len(seg.Elements)-1] == "" {
			seg.Elements = seg.Elements[:len(seg.Elements)-1]
		}
	}
	return seg
}

func (r *Reader) addError(code, msg, segID string) {
	r.errs = append(r.errs, Diagnostic{Source: SourceSegment, Code: code, Message: msg, SegID: segID, Pos: r.pos})
}
