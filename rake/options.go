package rake

import (
	"log/slog"

	"github.com/hupe1980/landseg/hierarchy"
)

const (
	// DefaultTolerance is the default maximum relative deviation.
	DefaultTolerance = 1e-3
	// DefaultMaxIterations is the default sweep budget of one Fit call.
	DefaultMaxIterations = 100
)

// Option configures an Engine.
type Option func(*Engine)

// WithTolerance sets the maximum relative deviation at which a fit counts
// as converged. Non-positive values are ignored.
func WithTolerance(tol float64) Option {
	return func(e *Engine) {
		if tol > 0 {
			e.tol = tol
		}
	}
}

// WithMaxIterations caps the number of sweeps of one Fit call, shared by
// every folding round and the polishing pass. Non-positive values are
// ignored.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIter = n
		}
	}
}

// WithHierarchy resolves controls keyed at coarser geography levels.
func WithHierarchy(h *hierarchy.Hierarchy) Option {
	return func(e *Engine) {
		e.h = h
	}
}

// WithFolding toggles sequential folding for more than two controls.
// Without it all controls are swept together from the start.
func WithFolding(enabled bool) Option {
	return func(e *Engine) {
		e.folding = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}
