package landseg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/landseg/chunk"
	"github.com/hupe1980/landseg/estimate"
	"github.com/hupe1980/landseg/fact"
	"github.com/hupe1980/landseg/rake"
	"github.com/hupe1980/landseg/resolve"
)

var (
	// ErrEmptySeed is returned when a run is started without seed rows.
	ErrEmptySeed = errors.New("landseg: empty seed")
)

// Component errors, re-exported so callers need a single import.
type (
	DimensionMismatchError  = fact.DimensionMismatchError
	DuplicateKeyError       = fact.DuplicateKeyError
	ArityError              = fact.ArityError
	EmptySeedError          = rake.EmptySeedError
	InsufficientDataError   = estimate.InsufficientDataError
	UnresolvedSegmentError  = resolve.UnresolvedSegmentError
	ControlSpansChunksError = chunk.ControlSpansChunksError
	CoverageError           = chunk.CoverageError
	ChunkError              = chunk.ChunkError
)

// StageNotCompleteError is returned when a stage runs before the stages
// it depends on.
type StageNotCompleteError struct {
	Stage   Stage
	Missing []Stage
}

func (e *StageNotCompleteError) Error() string {
	names := make([]string, len(e.Missing))
	for i, s := range e.Missing {
		names[i] = s.String()
	}
	return fmt.Sprintf("landseg: stage %s requires %s", e.Stage, strings.Join(names, ", "))
}
