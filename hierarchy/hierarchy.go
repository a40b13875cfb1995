// Package hierarchy maps fine geographies to their ancestors at coarser
// levels (zone → district → region → global).
//
// The final level is always the implicit Global level with a single id.
package hierarchy

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Global is the name and the single id of the implicit top level.
const Global = "global"

// ErrUnknownLevel is returned for a level name not in the hierarchy.
var ErrUnknownLevel = errors.New("unknown hierarchy level")

// IncompleteMappingError lists fine ids without a parent at a level.
type IncompleteMappingError struct {
	Level   string
	Missing []string
}

func (e *IncompleteMappingError) Error() string {
	return fmt.Sprintf("hierarchy: %d fine geographies without a %s parent (e.g. %s)",
		len(e.Missing), e.Level, e.Missing[0])
}

// Hierarchy is an ordered list of geography levels with a parent mapping
// from each fine id to every coarse level.
//
// Missing parents are allowed; Validate reports them.
type Hierarchy struct {
	levels  []string            // fine first, coarse after; Global excluded
	parents []map[string]string // parents[i] for levels[i+1]
	fine    map[string]struct{}
}

// New creates a hierarchy with the given fine level and coarse levels
// ordered fine to coarse.
func New(fineLevel string, coarse ...string) *Hierarchy {
	h := &Hierarchy{
		levels:  append([]string{fineLevel}, coarse...),
		parents: make([]map[string]string, len(coarse)),
		fine:    make(map[string]struct{}),
	}
	for i := range h.parents {
		h.parents[i] = make(map[string]string)
	}
	return h
}

// FineLevel returns the name of the finest level.
func (h *Hierarchy) FineLevel() string { return h.levels[0] }

// Levels returns every level name fine to coarse, ending with Global.
func (h *Hierarchy) Levels() []string {
	return append(slices.Clone(h.levels), Global)
}

// Rank returns the position of level in Levels. The fine level has rank 0;
// "" is accepted as an alias for the fine level.
func (h *Hierarchy) Rank(level string) (int, error) {
	if level == "" {
		return 0, nil
	}
	if level == Global {
		return len(h.levels), nil
	}
	i := slices.Index(h.levels, level)
	if i < 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	return i, nil
}

// AddZone registers a fine id without any parents.
func (h *Hierarchy) AddZone(id string) {
	h.fine[id] = struct{}{}
}

// Set records parentID as the ancestor of fineID at level.
func (h *Hierarchy) Set(fineID, level, parentID string) error {
	i := slices.Index(h.levels, level)
	if i <= 0 {
		return fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	h.fine[fineID] = struct{}{}
	h.parents[i-1][fineID] = parentID
	return nil
}

// Parent returns the ancestor of fineID at level. The fine level maps an id
// to itself and Global maps every id to Global.
func (h *Hierarchy) Parent(fineID, level string) (string, bool) {
	if level == "" || level == h.levels[0] {
		_, ok := h.fine[fineID]
		return fineID, ok
	}
	if level == Global {
		return Global, true
	}
	i := slices.Index(h.levels, level)
	if i <= 0 {
		return "", false
	}
	p, ok := h.parents[i-1][fineID]
	return p, ok
}

// Fine returns every fine id in lexicographic order.
func (h *Hierarchy) Fine() []string {
	out := make([]string, 0, len(h.fine))
	for id := range h.fine {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Contains reports whether id is a registered fine id.
func (h *Hierarchy) Contains(id string) bool {
	_, ok := h.fine[id]
	return ok
}

// Children returns the fine ids whose ancestor at level is id, sorted.
func (h *Hierarchy) Children(level, id string) []string {
	var out []string
	for _, f := range h.Fine() {
		if p, ok := h.Parent(f, level); ok && p == id {
			out = append(out, f)
		}
	}
	return out
}

// Validate fails if any fine id lacks a parent at some coarse level.
func (h *Hierarchy) Validate() error {
	fine := h.Fine()
	for i, level := range h.levels[1:] {
		var missing []string
		for _, f := range fine {
			if _, ok := h.parents[i][f]; !ok {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			return &IncompleteMappingError{Level: level, Missing: missing}
		}
	}
	return nil
}

func (h *Hierarchy) String() string {
	return fmt.Sprintf("hierarchy(%s; %d fine ids)", strings.Join(h.Levels(), " → "), len(h.fine))
}
