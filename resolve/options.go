package resolve

import (
	"log/slog"

	"github.com/hupe1980/landseg/audit"
)

// DefaultDriftThreshold is the relative population change a split factor
// may introduce before it is reported.
const DefaultDriftThreshold = 1e-3

// Option configures a Resolver.
type Option func(*Resolver)

// WithDriftThreshold sets the relative drift threshold.
func WithDriftThreshold(t float64) Option {
	return func(r *Resolver) {
		r.threshold = t
	}
}

// WithSink sets the sink that receives the findings of every Resolve.
func WithSink(s audit.Sink) Option {
	return func(r *Resolver) {
		r.sink = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}
