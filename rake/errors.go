package rake

import (
	"errors"
	"fmt"
)

var (
	// ErrNoHierarchy is returned for a control keyed at a coarse level
	// when the engine has no hierarchy.
	ErrNoHierarchy = errors.New("rake: control keyed at a coarse level needs a hierarchy")
	// ErrTooLarge is returned when the materialised cross product would
	// not fit in memory.
	ErrTooLarge = errors.New("rake: working table too large")
)

// EmptySeedError is returned when a control has a non-zero target for a
// geography that has no seed rows, so there is nothing to rake.
type EmptySeedError struct {
	Control string
	Geo     string
	Target  float64
}

func (e *EmptySeedError) Error() string {
	if e.Geo == "" {
		return fmt.Sprintf("rake: empty seed for control %q (target %.6g)", e.Control, e.Target)
	}
	return fmt.Sprintf("rake: no seed rows for geography %q required by control %q (target %.6g)",
		e.Geo, e.Control, e.Target)
}
