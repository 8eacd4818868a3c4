package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// IndexEntry maps one envelope combination to a map file.
type IndexEntry struct {
	ICVN  string `yaml:"icvn" json:"icvn"`
	VRIIC string `yaml:"vriic" json:"vriic"`
	FIC   string `yaml:"fic" json:"fic"`
	TSPC  string `yaml:"tspc,omitempty" json:"tspc,omitempty"`
	Abbr  string `yaml:"abbr,omitempty" json:"abbr,omitempty"`
	File  string `yaml:"file" json:"file"`
}

// Index resolves (control version, version, functional id[, sub-type]) to a map file.
type Index struct {
	entries []IndexEntry
}

type indexFile struct {
	Maps []IndexEntry `yaml:"maps"`
}

// LoadIndex reads a YAML map index from disk.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	idx, err := ParseIndex(data)
	if err != nil {
		return nil, fmt.Errorf("load index %s: %w", path, err)
	}
	return idx, nil
}

// ParseIndex builds an Index from YAML source.
func ParseIndex(data []byte) (*Index, error) {
	var f indexFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	for i, e := range f.Maps {
		if e.File == "" || e.ICVN == "" || e.VRIIC == "" || e.FIC == "" {
			return nil, fmt.Errorf("parse index: entry %d is incomplete", i)
		}
	}
	return &Index{entries: f.Maps}, nil
}

// Lookup returns the map file for the envelope values. A non-empty tspc
// prefers an entry for that sub-type and falls back to the generic entry.
func (x *Index) Lookup(icvn, vriic, fic, tspc string) (string, bool) {
	var generic string
	for _, e := range x.entries {
		if e.ICVN != icvn || e.VRIIC != vriic || e.FIC != fic {
			continue
		}
		if e.TSPC == tspc {
			return e.File, true
		}
		if e.TSPC == "" && generic == "" {
			generic = e.File
		}
	}
	return generic, generic != ""
}

// Abbr returns the short transaction name for the envelope values, e.g. "837P".
func (x *Index) Abbr(icvn, vriic, fic string) string {
	for _, e := range x.entries {
		if e.ICVN == icvn && e.VRIIC == vriic && e.FIC == fic && e.Abbr != "" {
			return e.Abbr
		}
	}
	return ""
}

// Entries returns a copy of the index entries.
func (x *Index) Entries() []IndexEntry {
	out := make([]IndexEntry, len(x.entries))
	copy(out, x.entries)
	return out
}
