// Package reader drives an X12 segment stream through the schema maps and
// rebuilds the loop structure the flat input leaves implicit.
package reader

import (
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/dgallion1/x12ctx/internal/errh"
	"github.com/dgallion1/x12ctx/internal/schema"
	"github.com/dgallion1/x12ctx/internal/walker"
	"github.com/dgallion1/x12ctx/internal/x12"
	"github.com/dgallion1/x12ctx/internal/x12err"
)

// Fixed addresses shared by the control map and every transaction map.
const (
	pathISALoop = "/ISA_LOOP"
	pathISA     = "/ISA_LOOP/ISA"
	pathGSLoop  = "/ISA_LOOP/GS_LOOP"
	pathGS      = "/ISA_LOOP/GS_LOOP/GS"
	pathBHT     = "/ISA_LOOP/GS_LOOP/ST_LOOP/HEADER/BHT"
)

const (
	DefaultControlMap = "x12.control.00401.yaml"
	DefaultIndexFile  = "maps.yaml"
)

// Versions whose map is chosen per transaction from BHT02.
var subTypeVersions = []string{"004010X094", "004010X094A1"}

// Config locates the map set.
type Config struct {
	MapPath    string // directory holding the maps and the index
	ControlMap string // control map file name, DefaultControlMap if empty
	IndexFile  string // index file name, DefaultIndexFile if empty
	Log        *slog.Logger
}

// Source produces segments in stream order, io.EOF at the end.
type Source interface {
	Next() (*x12.Segment, error)
	Position() x12.Position
	PopErrors() []x12.Diagnostic
}

// Reader tracks the schema cursor across the stream. It owns its map trees
// and its source; it is not safe for concurrent use.
type Reader struct {
	cfg    Config
	log    *slog.Logger
	h      errh.Handler
	src    Source
	walker *walker.Walker
	index  *schema.Index

	control *schema.Tree
	tree    *schema.Tree // active map
	mapFile string       // file the active map was loaded from
	cur     *schema.Node

	// Envelope values needed for index lookups.
	icvn    string // ISA12
	fic     string // GS01
	vriic   string // GS08
	tspc    string // BHT02
	seenISA bool
	seenGS  bool
}

// Open loads the control map and the map index and positions the cursor at
// the interchange header.
func Open(cfg Config, h errh.Handler, src Source) (*Reader, error) {
	if cfg.ControlMap == "" {
		cfg.ControlMap = DefaultControlMap
	}
	if cfg.IndexFile == "" {
		cfg.IndexFile = DefaultIndexFile
	}
	log := cfg.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	ctlPath := filepath.Join(cfg.MapPath, cfg.ControlMap)
	control, err := schema.LoadFile(ctlPath)
	if err != nil {
		return nil, &x12err.ConfigError{Resource: ctlPath, Err: err}
	}
	isa, err := control.NodeAt(pathISA)
	if err != nil {
		return nil, &x12err.ConfigError{Resource: ctlPath, Err: err}
	}
	idxPath := filepath.Join(cfg.MapPath, cfg.IndexFile)
	index, err := schema.LoadIndex(idxPath)
	if err != nil {
		return nil, &x12err.ConfigError{Resource: idxPath, Err: err}
	}

	return &Reader{
		cfg:     cfg,
		log:     log,
		h:       h,
		src:     src,
		walker:  walker.New(),
		index:   index,
		control: control,
		tree:    control,
		mapFile: cfg.ControlMap,
		cur:     isa,
	}, nil
}

// Tree returns the active map.
func (r *Reader) Tree() *schema.Tree { return r.tree }

// MapFile returns the file name of the active map.
func (r *Reader) MapFile() string { return r.mapFile }

// Cursor returns the map node the last placed segment resolved to.
func (r *Reader) Cursor() *schema.Node { return r.cur }

// resolve moves the cursor for seg and handles envelope bookkeeping. It
// returns nil, nil when seg could not be placed; the walker has already
// recorded why.
func (r *Reader) resolve(seg *x12.Segment) (*schema.Node, error) {
	orig := r.cur
	pos := r.src.Position()

	var (
		next *schema.Node
		err  error
	)
	switch seg.ID {
	case "ISA":
		next, err = r.controlNode(pathISA)
	case "GS":
		next, err = r.controlNode(pathGS)
	default:
		next, err = r.walker.Walk(r.cur, seg, r.h, pos)
	}
	if err != nil {
		return nil, err
	}
	if next == nil {
		r.cur = orig
		r.h.HandleErrors(r.src.PopErrors())
		return nil, nil
	}
	r.cur = next

	switch seg.ID {
	case "ISA":
		// Counters of the previous interchange live in whichever map was
		// active when it closed.
		for _, t := range []*schema.Tree{r.control, r.tree} {
			if err := resetInterchangeCounts(t); err != nil {
				return nil, err
			}
		}
		r.h.OpenInterchange(seg, pos)
		r.icvn = seg.Get("ISA12")
		r.fic, r.vriic, r.tspc = "", "", ""
		r.seenISA, r.seenGS = true, false
		r.h.HandleErrors(r.src.PopErrors())
	case "IEA":
		r.h.HandleErrors(r.src.PopErrors())
		r.h.CloseInterchange(r.cur, seg, pos)
	case "GS":
		if err := r.openGroup(seg, pos); err != nil {
			return nil, err
		}
	case "BHT":
		if err := r.transactionType(seg, pos); err != nil {
			return nil, err
		}
	case "GE":
		r.h.HandleErrors(r.src.PopErrors())
		r.h.CloseGroup(r.cur, seg, pos)
		r.seenGS = false
	case "ST":
		r.h.OpenTransaction(seg, pos)
		r.h.HandleErrors(r.src.PopErrors())
	case "SE":
		r.h.HandleErrors(r.src.PopErrors())
		r.h.CloseTransaction(r.cur, seg, pos)
	default:
		r.h.RecordSegment(r.cur, seg, pos)
		r.h.HandleErrors(r.src.PopErrors())
	}
	return r.cur, nil
}

func (r *Reader) controlNode(path string) (*schema.Node, error) {
	n, err := r.control.NodeAt(path)
	if err != nil {
		return nil, x12err.Structuref("control map: %v", err)
	}
	return n, nil
}

// openGroup selects the map for a functional group and resets the group counters.
func (r *Reader) openGroup(seg *x12.Segment, pos x12.Position) error {
	if !r.seenISA {
		return &x12err.OrderingError{SegID: "GS", Missing: "the interchange (ISA)"}
	}
	r.fic = seg.Get("GS01")
	r.vriic = seg.Get("GS08")
	r.tspc = ""
	r.seenGS = true

	file, ok := r.index.Lookup(r.icvn, r.vriic, r.fic, "")
	if !ok {
		return &x12err.SchemaResolutionError{ICVN: r.icvn, VRIIC: r.vriic, FIC: r.fic}
	}
	if file != r.mapFile {
		tree, err := r.load(file)
		if err != nil {
			return &x12err.SchemaResolutionError{ICVN: r.icvn, VRIIC: r.vriic, FIC: r.fic, Err: err}
		}
		r.transplant(tree, r.tree.Counts())
		r.swap(tree, file)
	}
	if err := resetGroupCounts(r.tree); err != nil {
		return err
	}
	gs, err := r.tree.NodeAt(pathGS)
	if err != nil {
		return x12err.Structuref("map %s: %v", r.mapFile, err)
	}
	r.cur = gs
	r.h.OpenGroup(seg, pos)
	r.h.HandleErrors(r.src.PopErrors())
	return nil
}

// transactionType swaps to a per-transaction map for the versions that
// select one from BHT02.
func (r *Reader) transactionType(seg *x12.Segment, pos x12.Position) error {
	if slices.Contains(subTypeVersions, r.vriic) {
		if !r.seenISA || !r.seenGS {
			return &x12err.OrderingError{SegID: "BHT", Missing: "the interchange and functional group (ISA/GS)"}
		}
		tspc := seg.Get("BHT02")
		file, ok := r.index.Lookup(r.icvn, r.vriic, r.fic, tspc)
		if !ok {
			return &x12err.SchemaResolutionError{ICVN: r.icvn, VRIIC: r.vriic, FIC: r.fic, TSPC: tspc}
		}
		if file != r.mapFile {
			tree, err := r.load(file)
			if err != nil {
				return &x12err.SchemaResolutionError{ICVN: r.icvn, VRIIC: r.vriic, FIC: r.fic, TSPC: tspc, Err: err}
			}
			r.transplant(tree, schema.CountsFrom(r.cur))
			bht, err := tree.NodeAt(pathBHT)
			if err != nil {
				return x12err.Structuref("map %s: %v", file, err)
			}
			r.swap(tree, file)
			r.cur = bht
		}
		r.tspc = tspc
	}
	r.h.RecordSegment(r.cur, seg, pos)
	r.h.HandleErrors(r.src.PopErrors())
	return nil
}

func (r *Reader) load(file string) (*schema.Tree, error) {
	return schema.LoadFile(filepath.Join(r.cfg.MapPath, file))
}

func (r *Reader) transplant(tree *schema.Tree, counts map[string]int) {
	if missing := tree.ApplyCounts(counts); len(missing) > 0 {
		r.log.Debug("counters without a matching address", "map", tree.ID, "paths", missing)
	}
}

func (r *Reader) swap(tree *schema.Tree, file string) {
	r.log.Info("map swapped",
		"from", r.mapFile,
		"to", file,
		"icvn", r.icvn,
		"fic", r.fic,
		"vriic", r.vriic,
		"transaction", r.index.Abbr(r.icvn, r.vriic, r.fic),
	)
	r.tree = tree
	r.mapFile = file
}

// resetInterchangeCounts clears everything counted inside the previous
// interchange and marks one interchange as open.
func resetInterchangeCounts(tree *schema.Tree) error {
	loop, err := tree.NodeAt(pathISALoop)
	if err != nil {
		return x12err.Structuref("map %s: %v", tree.ID, err)
	}
	isa, err := tree.NodeAt(pathISA)
	if err != nil {
		return x12err.Structuref("map %s: %v", tree.ID, err)
	}
	loop.ResetChildCounts()
	loop.SetCount(1)
	isa.SetCount(1)
	return nil
}

// resetGroupCounts marks one functional group as freshly opened.
func resetGroupCounts(tree *schema.Tree) error {
	loop, err := tree.NodeAt(pathGSLoop)
	if err != nil {
		return x12err.Structuref("map %s: %v", tree.ID, err)
	}
	gs, err := tree.NodeAt(pathGS)
	if err != nil {
		return x12err.Structuref("map %s: %v", tree.ID, err)
	}
	loop.ResetCount()
	loop.SetCount(1)
	gs.SetCount(1)
	return nil
}

