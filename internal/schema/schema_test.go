package schema

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dgallion1/x12ctx/internal/x12"
)

const mapsDir = "../../maps"

const testMap = `
id: test
name: Test Map
children:
  - id: ISA_LOOP
    type: loop
    repeat: ">1"
    children:
      - {id: ISA}
      - id: GS_LOOP
        type: loop
        repeat: ">1"
        children:
          - {id: GS}
          - id: "2300"
            type: loop
            repeat: "5"
            children:
              - {id: CLM}
              - {id: DTP, repeat: "3"}
              - id: "2400"
                type: loop
                repeat: ">1"
                children:
                  - {id: LX}
                  - {id: NM1, qualifier: {element: NM101, values: ["82", "DK"]}}
          - {id: GE}
      - {id: IEA}
`

func mustParse(t *testing.T, src string) *Tree {
	t.Helper()
	tree, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tree
}

func TestParse_PathsAndKinds(t *testing.T) {
	tree := mustParse(t, testMap)

	lx, err := tree.NodeAt("/ISA_LOOP/GS_LOOP/2300/2400/LX")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !lx.IsSegment() || !lx.IsFirstSegmentInLoop() {
		t.Errorf("expected LX to be the first segment of its loop")
	}
	if lx.ParentLoop().ID != "2400" {
		t.Errorf("expected parent loop 2400, got %s", lx.ParentLoop().ID)
	}
	if got := lx.AncestorLoop("2300"); got == nil || got.Path() != "/ISA_LOOP/GS_LOOP/2300" {
		t.Errorf("expected ancestor 2300, got %v", got)
	}
	if lx.AncestorLoop("9999") != nil {
		t.Error("expected no ancestor for unknown loop id")
	}

	dtp, _ := tree.NodeAt("ISA_LOOP/GS_LOOP/2300/DTP/")
	if dtp == nil || dtp.IsFirstSegmentInLoop() {
		t.Error("expected DTP found by unnormalised path and not first in loop")
	}
	if dtp.MaxUse != 3 {
		t.Errorf("expected DTP max use 3, got %d", dtp.MaxUse)
	}

	loop, _ := tree.NodeAt("/ISA_LOOP/GS_LOOP/2300/2400")
	if !loop.IsLoop() || loop.MaxUse != 0 || !loop.CanRepeat() {
		t.Errorf("expected unbounded 2400 loop, got kind=%s max=%d", loop.Kind, loop.MaxUse)
	}
	if tree.Root().Path() != "" || !tree.Root().IsRoot() {
		t.Errorf("expected empty root path, got %q", tree.Root().Path())
	}
}

func TestTree_NodeAtMissing(t *testing.T) {
	tree := mustParse(t, testMap)
	_, err := tree.NodeAt("/ISA_LOOP/NOPE")
	if !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing id", "children: []"},
		{"bad type", "id: x\nchildren:\n  - {id: A, type: widget}"},
		{"segment with children", "id: x\nchildren:\n  - {id: A, children: [{id: B}]}"},
		{"empty loop", "id: x\nchildren:\n  - {id: A, type: loop}"},
		{"bad repeat", "id: x\nchildren:\n  - {id: A, repeat: many}"},
		{"bad yaml", "id: [x"},
	}
	for _, tt := range tests {
		if _, err := Parse([]byte(tt.src)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestNode_Matches(t *testing.T) {
	tree := mustParse(t, testMap)
	nm1, _ := tree.NodeAt("/ISA_LOOP/GS_LOOP/2300/2400/NM1")

	if !nm1.Matches(x12.NewSegment("NM1", "82", "1")) {
		t.Error("expected NM1*82 to match")
	}
	if !nm1.Matches(x12.NewSegment("NM1", "DK")) {
		t.Error("expected NM1*DK to match")
	}
	if nm1.Matches(x12.NewSegment("NM1", "85")) {
		t.Error("expected NM1*85 not to match")
	}
	if nm1.Matches(x12.NewSegment("N3", "82")) {
		t.Error("expected different segment id not to match")
	}
	loop := nm1.Parent
	if loop.Matches(x12.NewSegment("2400")) {
		t.Error("expected loops never to match a segment")
	}
}

func TestCounts_ResetAndCollect(t *testing.T) {
	tree := mustParse(t, testMap)
	clm, _ := tree.NodeAt("/ISA_LOOP/GS_LOOP/2300/CLM")
	lx, _ := tree.NodeAt("/ISA_LOOP/GS_LOOP/2300/2400/LX")
	l2300 := clm.Parent
	l2400 := lx.Parent

	l2300.SetCount(2)
	clm.SetCount(1)
	l2400.SetCount(3)
	lx.IncrCount()

	want := map[string]int{
		"/ISA_LOOP/GS_LOOP/2300":         2,
		"/ISA_LOOP/GS_LOOP/2300/CLM":     1,
		"/ISA_LOOP/GS_LOOP/2300/2400":    3,
		"/ISA_LOOP/GS_LOOP/2300/2400/LX": 1,
	}
	if diff := cmp.Diff(want, tree.Counts()); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}

	chain := CountsFrom(lx)
	if _, ok := chain["/ISA_LOOP/GS_LOOP/2300/CLM"]; ok {
		t.Error("expected CountsFrom to cover only the ancestor chain")
	}
	if chain["/ISA_LOOP/GS_LOOP/2300"] != 2 || chain["/ISA_LOOP/GS_LOOP/2300/2400/LX"] != 1 {
		t.Errorf("unexpected ancestor counts: %v", chain)
	}

	l2300.ResetChildCounts()
	if l2300.Count() != 2 || clm.Count() != 0 || l2400.Count() != 0 || lx.Count() != 0 {
		t.Error("expected ResetChildCounts to zero descendants only")
	}
	l2300.ResetCount()
	if l2300.Count() != 0 {
		t.Error("expected ResetCount to zero the node itself")
	}
}

func TestApplyCounts_Transplant(t *testing.T) {
	old := mustParse(t, testMap)
	fresh := mustParse(t, testMap)

	for path, c := range map[string]int{
		"/ISA_LOOP":              1,
		"/ISA_LOOP/GS_LOOP":      2,
		"/ISA_LOOP/GS_LOOP/2300": 4,
	} {
		n, _ := old.NodeAt(path)
		n.SetCount(c)
	}

	missing := fresh.ApplyCounts(old.Counts())
	if len(missing) != 0 {
		t.Errorf("expected no missing addresses, got %v", missing)
	}
	if diff := cmp.Diff(old.Counts(), fresh.Counts()); diff != "" {
		t.Errorf("transplanted counts mismatch (-old +new):\n%s", diff)
	}

	missing = fresh.ApplyCounts(map[string]int{"/ISA_LOOP/GONE": 7})
	if diff := cmp.Diff([]string{"/ISA_LOOP/GONE"}, missing); diff != "" {
		t.Errorf("missing mismatch (-want +got):\n%s", diff)
	}
}

func TestOverMax(t *testing.T) {
	tree := mustParse(t, testMap)
	dtp, _ := tree.NodeAt("/ISA_LOOP/GS_LOOP/2300/DTP")
	dtp.SetCount(3)
	if dtp.OverMax() {
		t.Error("expected 3 of 3 to be within limit")
	}
	dtp.IncrCount()
	if !dtp.OverMax() {
		t.Error("expected 4 of 3 to be over limit")
	}
}

func TestPathUtilities(t *testing.T) {
	if diff := cmp.Diff([]string{"ISA_LOOP", "GS_LOOP", "GS"}, SplitPath("/ISA_LOOP//GS_LOOP/GS/")); diff != "" {
		t.Errorf("SplitPath mismatch (-want +got):\n%s", diff)
	}
	if SplitPath("") != nil {
		t.Error("expected nil tokens for empty path")
	}
	if got := JoinPath([]string{"A", "B"}); got != "/A/B" {
		t.Errorf("expected %q, got %q", "/A/B", got)
	}
	tests := []struct {
		a, b string
		want int
	}{
		{"/A/B/C", "/A/B/D", 2},
		{"/A/B", "/A/B/C", 2},
		{"/A/2300", "/A/2310", 1},
		{"", "/A", 0},
		{"/A/B", "/A/B", 2},
	}
	for _, tt := range tests {
		if got := MatchIndex(SplitPath(tt.a), SplitPath(tt.b)); got != tt.want {
			t.Errorf("MatchIndex(%q, %q): expected %d, got %d", tt.a, tt.b, tt.want, got)
		}
	}
}

func TestLoadFile_ShippedMaps(t *testing.T) {
	for _, name := range []string{
		"x12.control.00401.yaml",
		"837.4010.X098.A1.yaml",
		"278.4010.X094.A1.yaml",
		"278.4010.X094.27.A1.yaml",
	} {
		tree, err := LoadFile(filepath.Join(mapsDir, name))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		for _, p := range []string{"/ISA_LOOP/ISA", "/ISA_LOOP/GS_LOOP/GS", "/ISA_LOOP/GS_LOOP/ST_LOOP/ST", "/ISA_LOOP/IEA"} {
			if _, err := tree.NodeAt(p); err != nil {
				t.Errorf("%s: %v", name, err)
			}
		}
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(mapsDir, "nope.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestIndex_Lookup(t *testing.T) {
	idx, err := LoadIndex(filepath.Join(mapsDir, "maps.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tests := []struct {
		icvn, vriic, fic, tspc string
		want                   string
		ok                     bool
	}{
		{"00401", "004010X098A1", "HC", "", "837.4010.X098.A1.yaml", true},
		{"00401", "004010X094A1", "HI", "", "278.4010.X094.A1.yaml", true},
		{"00401", "004010X094A1", "HI", "13", "278.4010.X094.27.A1.yaml", true},
		{"00401", "004010X094A1", "HI", "11", "278.4010.X094.A1.yaml", true},
		{"00401", "004010X094A1", "HI", "99", "278.4010.X094.A1.yaml", true},
		{"00401", "004010X096A1", "HC", "", "", false},
		{"00501", "004010X098A1", "HC", "", "", false},
	}
	for _, tt := range tests {
		got, ok := idx.Lookup(tt.icvn, tt.vriic, tt.fic, tt.tspc)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Lookup(%s,%s,%s,%q): expected (%q,%v), got (%q,%v)",
				tt.icvn, tt.vriic, tt.fic, tt.tspc, tt.want, tt.ok, got, ok)
		}
	}
	if idx.Abbr("00401", "004010X098A1", "HC") != "837P" {
		t.Errorf("expected abbr 837P, got %q", idx.Abbr("00401", "004010X098A1", "HC"))
	}
	if len(idx.Entries()) != 4 {
		t.Errorf("expected 4 entries, got %d", len(idx.Entries()))
	}
}

func TestParseIndex_Incomplete(t *testing.T) {
	if _, err := ParseIndex([]byte("maps:\n  - {icvn: \"00401\", fic: HC}")); err == nil {
		t.Error("expected error for incomplete entry")
	}
}
