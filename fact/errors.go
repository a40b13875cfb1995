package fact

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidValue is returned for negative, NaN or infinite values.
var ErrInvalidValue = errors.New("invalid fact value")

// ArityError indicates a row whose value count does not match the schema.
type ArityError struct {
	Expected int
	Actual   int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("arity mismatch: expected %d dimension values, got %d", e.Expected, e.Actual)
}

// DuplicateKeyError indicates a second row for an existing (geo, values) key.
type DuplicateKeyError struct {
	Geo    string
	Values []string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key: geography %q, values [%s]", e.Geo, strings.Join(e.Values, ", "))
}

// DimensionMismatchError indicates dimensions that are not a subset of the
// dimensions available on the table they refer to.
type DimensionMismatchError struct {
	Control   string
	Dims      []string
	Available []string
}

func (e *DimensionMismatchError) Error() string {
	if e.Control != "" {
		return fmt.Sprintf("dimension mismatch: control %q dims [%s] not a subset of [%s]",
			e.Control, strings.Join(e.Dims, ", "), strings.Join(e.Available, ", "))
	}
	return fmt.Sprintf("dimension mismatch: [%s] not a subset of [%s]",
		strings.Join(e.Dims, ", "), strings.Join(e.Available, ", "))
}
