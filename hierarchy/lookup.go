package hierarchy

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// FromLookup builds a hierarchy from a lookup table. header names the levels
// fine to coarse; each row holds one fine id followed by its ancestors.
// Empty ancestor cells leave the parent undefined.
func FromLookup(header []string, rows [][]string) (*Hierarchy, error) {
	if len(header) == 0 {
		return nil, errors.New("hierarchy: empty lookup header")
	}
	h := New(header[0], header[1:]...)
	for i, row := range rows {
		if len(row) != len(header) {
			return nil, fmt.Errorf("hierarchy: lookup row %d has %d columns, want %d", i+1, len(row), len(header))
		}
		fine := strings.TrimSpace(row[0])
		if fine == "" {
			return nil, fmt.Errorf("hierarchy: lookup row %d has an empty %s id", i+1, header[0])
		}
		h.AddZone(fine)
		for j, level := range header[1:] {
			parent := strings.TrimSpace(row[j+1])
			if parent == "" {
				continue
			}
			if err := h.Set(fine, level, parent); err != nil {
				return nil, err
			}
		}
	}
	return h, nil
}

// ReadCSV reads a lookup table whose header row names the levels.
func ReadCSV(r io.Reader) (*Hierarchy, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("hierarchy: read lookup: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("hierarchy: empty lookup")
	}
	return FromLookup(records[0], records[1:])
}
