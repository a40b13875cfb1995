package rake

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hupe1980/landseg/fact"
	"github.com/hupe1980/landseg/hierarchy"
)

// Engine fits seed tables to marginal controls. It is safe for concurrent
// use; every Fit owns its working table.
type Engine struct {
	tol     float64
	maxIter int
	h       *hierarchy.Hierarchy
	folding bool
	logger  *slog.Logger
}

// New creates an engine with the given options.
func New(optFns ...Option) *Engine {
	e := &Engine{
		tol:     DefaultTolerance,
		maxIter: DefaultMaxIterations,
		folding: true,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range optFns {
		fn(e)
	}
	return e
}

// Tolerance returns the configured tolerance.
func (e *Engine) Tolerance() float64 { return e.tol }

// MaxIterations returns the sweep cap of one Fit call.
func (e *Engine) MaxIterations() int { return e.maxIter }

// level normalises a control level: "" for fine, Unkeyed, or a coarse
// level name known to the hierarchy.
func (e *Engine) level(c fact.Control) (string, error) {
	switch c.Level {
	case "", fact.Unkeyed, hierarchy.Global:
		return c.Level, nil
	}
	if e.h == nil {
		return "", fmt.Errorf("%w: control %q at %q", ErrNoHierarchy, c.Name, c.Level)
	}
	if c.Level == e.h.FineLevel() {
		return "", nil
	}
	if _, err := e.h.Rank(c.Level); err != nil {
		return "", fmt.Errorf("rake: control %q: %w", c.Name, err)
	}
	return c.Level, nil
}

func (e *Engine) rank(level string) int {
	switch level {
	case "":
		return 0
	case fact.Unkeyed:
		return int(^uint(0) >> 1)
	case hierarchy.Global:
		return int(^uint(0)>>1) - 1
	}
	r, _ := e.h.Rank(level)
	return r
}

// Fit rakes seed to controls, applied in the given order. The seed is not
// modified. Structural errors are returned as errors; non-convergence is
// reported on the Result.
func (e *Engine) Fit(ctx context.Context, seed *fact.Table, controls []fact.Control) (*Result, error) {
	levels := make([]string, len(controls))
	for i, c := range controls {
		if c.Targets == nil {
			return nil, fmt.Errorf("rake: control %q has no targets", c.Name)
		}
		if err := c.Validate(seed.Dims()); err != nil {
			return nil, err
		}
		l, err := e.level(c)
		if err != nil {
			return nil, err
		}
		levels[i] = l
	}

	w, err := newWorking(e.h, seed, controls)
	if err != nil {
		return nil, err
	}
	groups := make([]*group, len(controls))
	for i, c := range controls {
		if groups[i], err = w.control(c, levels[i]); err != nil {
			return nil, err
		}
	}

	res := &Result{Converged: true}
	if len(groups) > 0 {
		if err := e.fit(ctx, w, groups, levels, res); err != nil {
			return nil, err
		}
	}

	for _, g := range groups {
		for gi, z := range g.zero {
			if z {
				res.StructuralZeros = append(res.StructuralZeros, StructuralZero{
					Control: g.name,
					Geo:     g.label[gi],
					Values:  g.values[gi],
					Target:  g.target[gi],
				})
			}
		}
	}
	for _, z := range res.StructuralZeros {
		e.logger.Warn("structural zero", "control", z.Control, "geo", z.Geo, "values", z.Values, "target", z.Target)
	}
	if res.Warning != nil {
		e.logger.Warn("raking did not converge",
			"control", res.Warning.Control,
			"deviation", res.Warning.Deviation,
			"iterations", res.Warning.Iterations)
	}

	res.Table = w.table()
	return res, nil
}

func (e *Engine) fit(ctx context.Context, w *working, groups []*group, levels []string, res *Result) error {
	// Every round draws from the same sweep budget.
	run := func(gs []*group) error {
		n, err := e.sweep(ctx, w, gs, e.maxIter-res.Iterations)
		res.Iterations += n
		return err
	}

	if !e.folding || len(groups) <= 2 {
		if err := run(groups); err != nil {
			return err
		}
	} else {
		if err := run(groups[:2]); err != nil {
			return err
		}
		for k := 2; k < len(groups); k++ {
			before := res.Iterations
			combined := e.combine(w, groups[:k], levels[:k])
			if err := run([]*group{combined, groups[k]}); err != nil {
				return err
			}
			e.logger.Debug("folded control", "control", groups[k].name, "round", k, "iterations", res.Iterations-before)
		}
		if dev, _ := e.deviation(w, groups); dev >= e.tol {
			e.logger.Debug("polishing folded fit", "deviation", dev)
			if err := run(groups); err != nil {
				return err
			}
		}
	}

	dev, worst := e.deviation(w, groups)
	res.MaxDeviation = dev
	if dev >= e.tol {
		res.Converged = false
		res.Warning = &ConvergenceWarning{Control: worst, Deviation: dev, Iterations: res.Iterations}
	}
	return nil
}

// combine derives the combined control over the dimensions of groups,
// keyed at the finest of their levels.
func (e *Engine) combine(w *working, groups []*group, levels []string) *group {
	level := levels[0]
	var names []string
	pos := make(map[int]bool)
	for i, g := range groups {
		if e.rank(levels[i]) < e.rank(level) {
			level = levels[i]
		}
		names = append(names, g.name)
	}
	for _, c := range groups {
		for _, d := range c.dims {
			pos[d] = true
		}
	}
	var union []int
	for d := range w.dims {
		if pos[d] {
			union = append(union, d)
		}
	}
	return w.derive("combined("+strings.Join(names, "+")+")", level, union)
}

// sweep runs at most budget IPF sweeps over groups, stopping once they
// are within tolerance, and returns the number of sweeps.
func (e *Engine) sweep(ctx context.Context, w *working, groups []*group, budget int) (int, error) {
	if dev, _ := e.deviation(w, groups); dev < e.tol {
		return 0, nil
	}
	factors := make([][]float64, len(groups))
	for i, g := range groups {
		factors[i] = make([]float64, g.size())
	}
	for it := 1; it <= budget; it++ {
		if err := ctx.Err(); err != nil {
			return it - 1, err
		}
		for i, g := range groups {
			w.rescale(g, factors[i])
		}
		if dev, _ := e.deviation(w, groups); dev < e.tol {
			return it, nil
		}
	}
	return max(budget, 0), nil
}

func (e *Engine) deviation(w *working, groups []*group) (float64, string) {
	var (
		worst float64
		name  string
	)
	for _, g := range groups {
		if d := w.deviation(g); name == "" || d > worst {
			worst, name = d, g.name
		}
	}
	return worst, name
}
