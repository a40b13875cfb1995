package landseg

import (
	"log/slog"

	"github.com/hupe1980/landseg/audit"
	"github.com/hupe1980/landseg/checkpoint"
	"github.com/hupe1980/landseg/rake"
	"github.com/hupe1980/landseg/resolve"
	"github.com/hupe1980/landseg/resource"
)

// DefaultDistrictLevel is the hierarchy level chunks are built from.
const DefaultDistrictLevel = "district"

type options struct {
	tolerance        float64
	maxIterations    int
	folding          bool
	workers          int
	chunkSize        int
	districtLevel    string
	driftThreshold   float64
	checkpoint       *checkpoint.Store
	metricsCollector MetricsCollector
	logger           *Logger
	rc               *resource.Controller
	sink             audit.Sink
}

// Option configures a Pipeline.
type Option func(*options)

// WithTolerance sets the relative raking tolerance.
func WithTolerance(tol float64) Option {
	return func(o *options) {
		o.tolerance = tol
	}
}

// WithMaxIterations caps the raking sweeps per round.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		o.maxIterations = n
	}
}

// WithFolding toggles sequential folding for runs with more than two
// controls per chunk.
func WithFolding(enabled bool) Option {
	return func(o *options) {
		o.folding = enabled
	}
}

// WithWorkers sets how many chunks are raked in parallel. Values ≤ 1 rake
// sequentially. Results do not depend on the setting.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithChunkSize sets the number of zones per synthetic district. Values
// ≤ 0 derive it from the mean district size.
func WithChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

// WithDistrictLevel sets the hierarchy level chunks are built from.
func WithDistrictLevel(level string) Option {
	return func(o *options) {
		o.districtLevel = level
	}
}

// WithDriftThreshold sets the relative population drift a split factor
// may introduce before it is reported.
func WithDriftThreshold(t float64) Option {
	return func(o *options) {
		o.driftThreshold = t
	}
}

// WithCheckpoint persists stage outputs and run state, enabling resume.
func WithCheckpoint(s *checkpoint.Store) Option {
	return func(o *options) {
		o.checkpoint = s
	}
}

// WithMetricsCollector configures metrics collection for monitoring.
//
// Example with basic in-memory metrics:
//
//	metrics := &landseg.BasicMetricsCollector{}
//	p := landseg.New(h, landseg.WithMetricsCollector(metrics))
//	// ... run ...
//	stats := metrics.GetStats()
//	fmt.Printf("Chunks: %d, avg iterations: %.1f\n", stats.RakeCount, stats.RakeAvgIterations)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging.
//
//	logger := landseg.NewJSONLogger(slog.LevelInfo)
//	p := landseg.New(h, landseg.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithResourceController bounds concurrent chunks, their estimated memory
// and checkpoint bandwidth. Without WithWorkers, the controller's
// MaxWorkers sets the parallelism.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithSink sets the audit sink receiving every finding of the run.
func WithSink(s audit.Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		tolerance:        rake.DefaultTolerance,
		maxIterations:    rake.DefaultMaxIterations,
		folding:          true,
		districtLevel:    DefaultDistrictLevel,
		driftThreshold:   resolve.DefaultDriftThreshold,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		sink:             audit.Discard,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.sink == nil {
		o.sink = audit.Discard
	}
	if o.workers == 0 && o.rc != nil {
		o.workers = int(o.rc.Config().MaxWorkers)
	}
	return o
}
