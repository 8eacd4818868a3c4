package schema

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type mapFile struct {
	ID       string    `yaml:"id"`
	Name     string    `yaml:"name"`
	Version  string    `yaml:"version"`
	Children []mapNode `yaml:"children"`
}

type mapNode struct {
	ID        string     `yaml:"id"`
	Name      string     `yaml:"name"`
	Type      string     `yaml:"type"`
	Usage     string     `yaml:"usage"`
	Repeat    string     `yaml:"repeat"`
	Qualifier *Qualifier `yaml:"qualifier"`
	Children  []mapNode  `yaml:"children"`
}

// LoadFile reads a YAML map from disk. A missing file yields an error that
// matches fs.ErrNotExist.
func LoadFile(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load map: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load map %s: %w", path, err)
	}
	return t, nil
}

// Parse builds a Tree from YAML map source.
func Parse(data []byte) (*Tree, error) {
	var mf mapFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse map: %w", err)
	}
	if mf.ID == "" {
		return nil, fmt.Errorf("parse map: missing id")
	}
	root := &Node{ID: mf.ID, Name: mf.Name, Kind: KindRoot, MaxUse: 1}
	for i, c := range mf.Children {
		child, err := buildNode(c, root, i)
		if err != nil {
			return nil, err
		}
		root.Children = append(root.Children, child)
	}
	t := &Tree{ID: mf.ID, Name: mf.Name, Version: mf.Version, root: root}
	t.index()
	return t, nil
}

func buildNode(mn mapNode, parent *Node, idx int) (*Node, error) {
	if mn.ID == "" {
		return nil, fmt.Errorf("parse map: node %d under %q has no id", idx, parent.ID)
	}
	n := &Node{
		ID:        mn.ID,
		Name:      mn.Name,
		Usage:     mn.Usage,
		Qualifier: mn.Qualifier,
		Parent:    parent,
		index:     idx,
	}
	switch mn.Type {
	case "loop":
		n.Kind = KindLoop
	case "segment", "":
		n.Kind = KindSegment
	default:
		return nil, fmt.Errorf("parse map: node %q has unknown type %q", mn.ID, mn.Type)
	}
	if n.Usage == "" {
		n.Usage = "S"
	}
	maxUse, err := parseRepeat(mn.Repeat)
	if err != nil {
		return nil, fmt.Errorf("parse map: node %q: %w", mn.ID, err)
	}
	n.MaxUse = maxUse

	if n.IsSegment() && len(mn.Children) > 0 {
		return nil, fmt.Errorf("parse map: segment %q cannot have children", mn.ID)
	}
	if n.IsLoop() && len(mn.Children) == 0 {
		return nil, fmt.Errorf("parse map: loop %q has no children", mn.ID)
	}
	for i, c := range mn.Children {
		child, err := buildNode(c, n, i)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

// parseRepeat reads a max-use value: "" or "1" for once, a count, or ">1" for unbounded.
func parseRepeat(s string) (int, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 1, nil
	case ">1":
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid repeat %q", s)
	}
	return n, nil
}
