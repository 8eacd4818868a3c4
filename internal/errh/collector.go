package errh

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/itchyny/timefmt-go"

	"github.com/dgallion1/x12ctx/internal/schema"
	"github.com/dgallion1/x12ctx/internal/x12"
)

// Interchange is one ISA/IEA envelope and what was found inside it.
type Interchange struct {
	ControlNumber string           `json:"control_number"`
	Sender        string           `json:"sender"`
	Receiver      string           `json:"receiver"`
	Version       string           `json:"version"`
	Date          time.Time        `json:"date"`
	Groups        []*Group         `json:"groups"`
	Diagnostics   []x12.Diagnostic `json:"diagnostics"`
}

// Group is one GS/GE functional group.
type Group struct {
	FunctionalID  string           `json:"functional_id"`
	Version       string           `json:"version"`
	ControlNumber string           `json:"control_number"`
	Transactions  []*Transaction   `json:"transactions"`
	Diagnostics   []x12.Diagnostic `json:"diagnostics"`
}

// Transaction is one ST/SE transaction set.
type Transaction struct {
	ID            string           `json:"id"`
	ControlNumber string           `json:"control_number"`
	Segments      int              `json:"segments"`
	Diagnostics   []x12.Diagnostic `json:"diagnostics"`

	startSeg int
}

// Collector is a Handler that keeps every diagnostic in memory, grouped by envelope,
// and checks trailer counts and control numbers as envelopes close.
type Collector struct {
	log *slog.Logger

	interchanges []*Interchange
	orphans      []x12.Diagnostic
	segments     int
	total        int

	isa *Interchange
	gs  *Group
	st  *Transaction
}

func NewCollector(log *slog.Logger) *Collector {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Collector{log: log}
}

func (c *Collector) OpenInterchange(seg *x12.Segment, pos x12.Position) {
	isa := &Interchange{
		ControlNumber: seg.Get("ISA13"),
		Sender:        strings.TrimRight(seg.Get("ISA06"), " "),
		Receiver:      strings.TrimRight(seg.Get("ISA08"), " "),
		Version:       seg.Get("ISA12"),
	}
	c.interchanges = append(c.interchanges, isa)
	c.isa, c.gs, c.st = isa, nil, nil

	date, err := timefmt.Parse(seg.Get("ISA09")+seg.Get("ISA10"), "%y%m%d%H%M")
	if err != nil {
		c.RecordError(x12.Diagnostic{Source: x12.SourceEnvelope, Code: "014", Message: "Invalid interchange date/time", SegID: "ISA", Pos: pos})
	} else {
		isa.Date = date
	}
	c.log.Debug("interchange opened", "control_number", isa.ControlNumber, "line", pos.Line)
}

func (c *Collector) CloseInterchange(node *schema.Node, seg *x12.Segment, pos x12.Position) {
	if c.isa == nil {
		c.RecordError(x12.Diagnostic{Source: x12.SourceEnvelope, Code: "023", Message: "IEA without an open interchange", SegID: seg.ID, Pos: pos})
		return
	}
	if n, err := strconv.Atoi(seg.Get("IEA01")); err != nil || n != len(c.isa.Groups) {
		c.RecordError(trailerError("021", "Invalid number of included groups", seg, node, pos, seg.Get("IEA01"), len(c.isa.Groups)))
	}
	if seg.Get("IEA02") != c.isa.ControlNumber {
		c.RecordError(x12.Diagnostic{Source: x12.SourceEnvelope, Code: "001", Message: "Interchange control number mismatch", SegID: seg.ID, Path: node.Path(), Pos: pos})
	}
	c.isa, c.gs, c.st = nil, nil, nil
}

func (c *Collector) OpenGroup(seg *x12.Segment, pos x12.Position) {
	gs := &Group{
		FunctionalID:  seg.Get("GS01"),
		Version:       seg.Get("GS08"),
		ControlNumber: seg.Get("GS06"),
	}
	if c.isa == nil {
		c.RecordError(x12.Diagnostic{Source: x12.SourceEnvelope, Code: "024", Message: "GS outside of an interchange", SegID: seg.ID, Pos: pos})
		c.isa = &Interchange{}
		c.interchanges = append(c.interchanges, c.isa)
	}
	c.isa.Groups = append(c.isa.Groups, gs)
	c.gs, c.st = gs, nil
}

func (c *Collector) CloseGroup(node *schema.Node, seg *x12.Segment, pos x12.Position) {
	if c.gs == nil {
		c.RecordError(x12.Diagnostic{Source: x12.SourceEnvelope, Code: "2", Message: "GE without an open functional group", SegID: seg.ID, Pos: pos})
		return
	}
	if n, err := strconv.Atoi(seg.Get("GE01")); err != nil || n != len(c.gs.Transactions) {
		c.RecordError(trailerError("5", "Number of included transaction sets does not match", seg, node, pos, seg.Get("GE01"), len(c.gs.Transactions)))
	}
	if seg.Get("GE02") != c.gs.ControlNumber {
		c.RecordError(x12.Diagnostic{Source: x12.SourceEnvelope, Code: "4", Message: "Group control number mismatch", SegID: seg.ID, Path: node.Path(), Pos: pos})
	}
	c.gs, c.st = nil, nil
}

func (c *Collector) OpenTransaction(seg *x12.Segment, pos x12.Position) {
	st := &Transaction{
		ID:            seg.Get("ST01"),
		ControlNumber: seg.Get("ST02"),
		startSeg:      pos.SegCount,
	}
	if c.gs == nil {
		c.RecordError(x12.Diagnostic{Source: x12.SourceEnvelope, Code: "2", Message: "ST outside of a functional group", SegID: seg.ID, Pos: pos})
		c.OpenGroup(x12.NewSegment("GS"), pos)
	}
	c.gs.Transactions = append(c.gs.Transactions, st)
	c.st = st
	c.segments++
}

func (c *Collector) CloseTransaction(node *schema.Node, seg *x12.Segment, pos x12.Position) {
	if c.st == nil {
		c.RecordError(x12.Diagnostic{Source: x12.SourceEnvelope, Code: "2", Message: "SE without an open transaction set", SegID: seg.ID, Pos: pos})
		return
	}
	c.segments++
	c.st.Segments = pos.SegCount - c.st.startSeg + 1
	if n, err := strconv.Atoi(seg.Get("SE01")); err != nil || n != c.st.Segments {
		c.RecordError(trailerError("4", "Number of included segments does not match actual count", seg, node, pos, seg.Get("SE01"), c.st.Segments))
	}
	if seg.Get("SE02") != c.st.ControlNumber {
		c.RecordError(x12.Diagnostic{Source: x12.SourceEnvelope, Code: "3", Message: "Transaction set control number mismatch", SegID: seg.ID, Path: node.Path(), Pos: pos})
	}
	c.st = nil
}

func (c *Collector) RecordSegment(node *schema.Node, seg *x12.Segment, pos x12.Position) {
	c.segments++
}

func (c *Collector) RecordError(d x12.Diagnostic) {
	c.total++
	c.log.Debug("diagnostic", "code", d.Code, "message", d.Message, "seg_id", d.SegID, "line", d.Pos.Line)
	switch {
	case c.st != nil:
		c.st.Diagnostics = append(c.st.Diagnostics, d)
	case c.gs != nil:
		c.gs.Diagnostics = append(c.gs.Diagnostics, d)
	case c.isa != nil:
		c.isa.Diagnostics = append(c.isa.Diagnostics, d)
	default:
		c.orphans = append(c.orphans, d)
	}
}

func (c *Collector) HandleErrors(ds []x12.Diagnostic) {
	for _, d := range ds {
		c.RecordError(d)
	}
}

// Interchanges returns the envelopes seen so far in stream order.
func (c *Collector) Interchanges() []*Interchange { return c.interchanges }

// Orphans returns diagnostics recorded outside of any interchange.
func (c *Collector) Orphans() []x12.Diagnostic { return c.orphans }

// Count returns the number of diagnostics recorded.
func (c *Collector) Count() int { return c.total }

// Segments returns the number of segments recorded inside transaction sets.
func (c *Collector) Segments() int { return c.segments }

// All returns every diagnostic in envelope order.
func (c *Collector) All() []x12.Diagnostic {
	out := append([]x12.Diagnostic(nil), c.orphans...)
	for _, isa := range c.interchanges {
		out = append(out, isa.Diagnostics...)
		for _, gs := range isa.Groups {
			out = append(out, gs.Diagnostics...)
			for _, st := range gs.Transactions {
				out = append(out, st.Diagnostics...)
			}
		}
	}
	return out
}

func trailerError(code, msg string, seg *x12.Segment, node *schema.Node, pos x12.Position, got string, want int) x12.Diagnostic {
	return x12.Diagnostic{
		Source:  x12.SourceEnvelope,
		Code:    code,
		Message: fmt.Sprintf("%s: trailer says %q, counted %d", msg, got, want),
		SegID:   seg.ID,
		Path:    node.Path(),
		Pos:     pos,
	}
}
