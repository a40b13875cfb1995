package estimate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownGeography is returned for an observation whose geography is
	// not in the hierarchy.
	ErrUnknownGeography = errors.New("estimate: unknown geography")
	// ErrInvalidObservation is returned for negative or infinite values.
	ErrInvalidObservation = errors.New("estimate: invalid observation")
)

// InsufficientDataError is returned when no hierarchy level has a usable
// denominator for a category.
type InsufficientDataError struct {
	Category string
	Levels   []string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("estimate: no data for category %q at any level (%s)",
		e.Category, strings.Join(e.Levels, ", "))
}
