package chunk

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoReference is returned when a reference region has no districts to
// derive a chunk size from.
var ErrNoReference = errors.New("chunk: reference region has no districts")

// ControlSpansChunksError is returned when a control group covers zones of
// more than one chunk and therefore cannot be raked chunk by chunk.
type ControlSpansChunksError struct {
	Control string
	Geo     string
	Chunks  []ID
}

func (e *ControlSpansChunksError) Error() string {
	if e.Geo == "" {
		return fmt.Sprintf("chunk: control %q is unkeyed but the run has %d chunks", e.Control, len(e.Chunks))
	}
	return fmt.Sprintf("chunk: control %q group %s spans chunks %v", e.Control, e.Geo, e.Chunks)
}

// CoverageError reports a broken partition.
type CoverageError struct {
	// Missing zones are expected but not assigned.
	Missing []string
	// Overlapping zones are assigned to more than one chunk.
	Overlapping []string
	// Unknown geographies are referenced by data but not assigned.
	Unknown []string
}

func (e *CoverageError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("%d missing (%s)", len(e.Missing), e.Missing[0]))
	}
	if len(e.Overlapping) > 0 {
		parts = append(parts, fmt.Sprintf("%d overlapping (%s)", len(e.Overlapping), e.Overlapping[0]))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, fmt.Sprintf("%d unknown (%s)", len(e.Unknown), e.Unknown[0]))
	}
	return "chunk: incomplete partition: " + strings.Join(parts, ", ")
}

// ChunkError wraps the failure of a single chunk.
type ChunkError struct {
	ID  ID
	Err error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.ID, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }
