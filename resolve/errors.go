package resolve

import (
	"fmt"

	"github.com/hupe1980/landseg/fact"
)

// UnresolvedSegmentError is returned when base rows found no factor and
// the factor had no usable default.
type UnresolvedSegmentError struct {
	Factor string
	Rows   []fact.Row
}

func (e *UnresolvedSegmentError) Error() string {
	r := e.Rows[0]
	return fmt.Sprintf("resolve: %d rows without a %q factor (e.g. %s%v)", len(e.Rows), e.Factor, r.Geo, r.Values)
}

// FactorError reports a factor that cannot be joined onto the base.
type FactorError struct {
	Factor string
	Reason string
}

func (e *FactorError) Error() string {
	return fmt.Sprintf("resolve: factor %q: %s", e.Factor, e.Reason)
}
