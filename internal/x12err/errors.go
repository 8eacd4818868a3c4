// Package x12err defines the fatal error kinds raised while reading an interchange.
// Non-fatal problems are reported as diagnostics, not errors.
package x12err

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError means a schema resource needed at startup is missing or unreadable.
type ConfigError struct {
	Resource string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: load %s: %v", e.Resource, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// SchemaResolutionError means no installed map covers the envelope values
// observed in the input.
type SchemaResolutionError struct {
	ICVN  string // ISA12 interchange control version
	VRIIC string // GS08 version / release / industry id
	FIC   string // GS01 functional id
	TSPC  string // BHT02 transaction set purpose code, when used for selection
	Err   error
}

func (e *SchemaResolutionError) Error() string {
	parts := []string{"icvn=" + e.ICVN, "fic=" + e.FIC, "vriic=" + e.VRIIC}
	if e.TSPC != "" {
		parts = append(parts, "tspc="+e.TSPC)
	}
	msg := "map not found: " + strings.Join(parts, ", ")
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaResolutionError) Unwrap() error { return e.Err }

// StructureError reports a violated internal precondition, which points at
// bad map data or a walker defect.
type StructureError struct {
	Msg string
}

func (e *StructureError) Error() string { return "structure: " + e.Msg }

// Structuref builds a StructureError.
func Structuref(format string, args ...any) error {
	return &StructureError{Msg: fmt.Sprintf(format, args...)}
}

// OrderingError means a segment that depends on envelope context arrived
// before that context was established.
type OrderingError struct {
	SegID   string
	Missing string
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("segment %s read before %s was established", e.SegID, e.Missing)
}

// IsFatal reports whether err is one of the kinds that stop iteration.
func IsFatal(err error) bool {
	var (
		cfg *ConfigError
		res *SchemaResolutionError
		st  *StructureError
		ord *OrderingError
	)
	return errors.As(err, &cfg) || errors.As(err, &res) || errors.As(err, &st) || errors.As(err, &ord)
}

// PlacementMismatch is the diagnostic code recorded when a segment cannot be
// placed against the current schema cursor.
const PlacementMismatch = "2"
