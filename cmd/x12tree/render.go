package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/dgallion1/x12ctx/internal/doctree"
	"github.com/dgallion1/x12ctx/internal/x12"
)

const (
	ansiReset = "\x1b[0m"
	ansiLoop  = "\x1b[36m"
	ansiSeg   = "\x1b[1m"
	ansiCode  = "\x1b[33m"
)

const maxMessageWidth = 72

type printer struct {
	w     io.Writer
	color bool
}

func (p *printer) paint(s, code string) string {
	if !p.color {
		return s
	}
	return code + s + ansiReset
}

// tree prints one node per line, indented by depth, with segment text
// aligned in a column after the widest label.
func (p *printer) tree(t *doctree.Tree) {
	type row struct {
		label string
		text  string
		loop  bool
	}
	var rows []row
	width, depth := 0, 0
	for ev := range t.Events() {
		switch ev.Type {
		case doctree.EventLoopStart:
			rows = append(rows, row{label: strings.Repeat("  ", depth) + ev.ID, loop: true})
			depth++
		case doctree.EventLoopEnd:
			depth--
		case doctree.EventSegment:
			r := row{label: strings.Repeat("  ", depth) + ev.ID, text: ev.Segment.String()}
			width = max(width, runewidth.StringWidth(r.label))
			rows = append(rows, r)
		}
	}
	for _, r := range rows {
		if r.loop {
			fmt.Fprintln(p.w, p.paint(r.label, ansiLoop))
			continue
		}
		fmt.Fprintln(p.w, p.paint(runewidth.FillRight(r.label, width), ansiSeg)+"  "+r.text)
	}
}

// diagnostics prints a table of diagnostics; nothing when there are none.
func (p *printer) diagnostics(ds []x12.Diagnostic) {
	if len(ds) == 0 {
		return
	}
	header := []string{"CODE", "SEG", "LINE", "SOURCE", "PATH", "MESSAGE"}
	rows := [][]string{header}
	for _, d := range ds {
		rows = append(rows, []string{
			d.Code,
			d.SegID,
			strconv.Itoa(d.Pos.Line),
			d.Source,
			d.Path,
			runewidth.Truncate(d.Message, maxMessageWidth, "..."),
		})
	}
	widths := make([]int, len(header))
	for _, r := range rows {
		for i, c := range r {
			widths[i] = max(widths[i], runewidth.StringWidth(c))
		}
	}
	for n, r := range rows {
		cells := make([]string, len(r))
		for i, c := range r {
			if i < len(r)-1 {
				c = runewidth.FillRight(c, widths[i])
			}
			cells[i] = c
		}
		line := strings.Join(cells, "  ")
		if n > 0 {
			line = p.paint(cells[0], ansiCode) + line[len(cells[0]):]
		}
		fmt.Fprintln(p.w, strings.TrimRight(line, " "))
	}
}
