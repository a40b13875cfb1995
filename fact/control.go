package fact

import "slices"

// Unkeyed is the Control.Level of a control that is not keyed by geography.
const Unkeyed = "*"

// Control constrains the sum of a seed table over every dimension it does
// not declare, for each combination of geography (unless unkeyed) and its
// declared dimensions.
type Control struct {
	// Name identifies the control in findings and logs.
	Name string
	// Level is "" for the fine geography, Unkeyed, or the name of a coarser
	// hierarchy level whose ids appear in the target rows' Geo.
	Level string
	// Targets holds one row per constrained group. Its dimensions are the
	// control's declared dimensions.
	Targets *Table
}

// NewControl creates a control with an empty target table over dims.
func NewControl(name, level string, dims ...string) Control {
	return Control{Name: name, Level: level, Targets: New(dims...)}
}

// Dims returns the declared dimensions.
func (c Control) Dims() []string {
	if c.Targets == nil {
		return nil
	}
	return c.Targets.Dims()
}

// Keyed reports whether the control is keyed by a geography level.
func (c Control) Keyed() bool { return c.Level != Unkeyed }

// Validate checks that the control's dimensions are a subset of seedDims.
func (c Control) Validate(seedDims []string) error {
	for _, d := range c.Dims() {
		if !slices.Contains(seedDims, d) {
			return &DimensionMismatchError{
				Control:   c.Name,
				Dims:      c.Dims(),
				Available: slices.Clone(seedDims),
			}
		}
	}
	return nil
}
