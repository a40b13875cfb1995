package resolve

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/hupe1980/landseg/audit"
	"github.com/hupe1980/landseg/fact"
)

// Factor is a segment-factor table joined onto the base population.
type Factor struct {
	Name string
	// Table holds one factor per (geography, dimension values). Its
	// dimensions not listed in On become new dimensions of the result.
	Table *fact.Table
	// On lists the dimensions shared with the base that form the join key.
	On []string
	// ByGeography adds the geography to the join key. Otherwise the
	// factor applies to every geography and Table.Geo is ignored.
	ByGeography bool
	// Default is used for base rows without a match. It only applies to
	// factors that add no dimensions.
	Default *float64
	// Rescales marks a factor that is expected to change the total, so
	// its drift is not reported.
	Rescales bool
}

// JoinReport summarises one join.
type JoinReport struct {
	Factor   string
	Before   float64
	After    float64
	Delta    float64
	RelDelta float64
	// Unmatched counts factor segments that matched no base row.
	Unmatched int
	// Defaulted counts base rows that took the factor's default.
	Defaulted int
	// Unresolved counts base rows dropped for lack of a factor.
	Unresolved int
}

// Result is the outcome of Resolve.
type Result struct {
	Table    *fact.Table
	Joins    []JoinReport
	Findings []audit.Finding
}

// Resolver applies factor joins to a base population.
type Resolver struct {
	threshold float64
	sink      audit.Sink
	logger    *slog.Logger
}

// New creates a resolver.
func New(optFns ...Option) *Resolver {
	r := &Resolver{
		threshold: DefaultDriftThreshold,
		sink:      audit.Discard,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range optFns {
		fn(r)
	}
	return r
}

// Resolve joins factors onto base in order. Findings are emitted to the
// configured sink even when Resolve fails with an *UnresolvedSegmentError.
func (r *Resolver) Resolve(ctx context.Context, base *fact.Table, factors ...Factor) (*Result, error) {
	res := &Result{Table: base}
	var unresolved *UnresolvedSegmentError

	for _, f := range factors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, rep, dropped, err := join(res.Table, f)
		if err != nil {
			return nil, err
		}
		res.Table = out
		res.Joins = append(res.Joins, rep)
		res.Findings = append(res.Findings, r.audit(f, rep)...)

		if len(dropped) > 0 && unresolved == nil {
			unresolved = &UnresolvedSegmentError{Factor: f.Name, Rows: dropped}
		}
	}

	if err := r.sink.Emit(ctx, res.Findings...); err != nil {
		return nil, fmt.Errorf("resolve: emit findings: %w", err)
	}
	if unresolved != nil {
		return nil, unresolved
	}
	return res, nil
}

func (r *Resolver) audit(f Factor, rep JoinReport) []audit.Finding {
	var out []audit.Finding
	r.logger.Info("joined factor",
		"factor", f.Name,
		"before", rep.Before,
		"after", rep.After,
		"rel_delta", rep.RelDelta)

	if !f.Rescales && rep.RelDelta > r.threshold {
		fd := audit.NewFinding(audit.NamePopulationDrift, audit.SeverityWarning, f.Name, rep.Before, rep.After)
		fd.Detail = fmt.Sprintf("%d unmatched factor segments, %d unresolved rows", rep.Unmatched, rep.Unresolved)
		out = append(out, fd)
		r.logger.Warn("population drift", "factor", f.Name, "rel_delta", rep.RelDelta)
	}
	if rep.Unmatched > 0 {
		out = append(out, audit.NewFinding(audit.NameUnmatchedFactor, audit.SeverityWarning, f.Name, 0, float64(rep.Unmatched)))
	}
	if rep.Defaulted > 0 {
		out = append(out, audit.NewFinding(audit.NameDefaultedFactor, audit.SeverityInfo, f.Name, 0, float64(rep.Defaulted)))
	}
	return out
}

type match struct {
	values []string
	factor float64
	used   bool
}

// join left-joins f onto base. Rows without a factor are returned as
// dropped.
func join(base *fact.Table, f Factor) (*fact.Table, JoinReport, []fact.Row, error) {
	rep := JoinReport{Factor: f.Name, Before: base.Sum()}
	if f.Table == nil {
		return nil, rep, nil, &FactorError{Factor: f.Name, Reason: "no table"}
	}

	baseDims, factorDims := base.Dims(), f.Table.Dims()
	basePos := make([]int, len(f.On))
	factorPos := make([]int, len(f.On))
	for i, d := range f.On {
		bp, ok1 := base.DimIndex(d)
		fp, ok2 := f.Table.DimIndex(d)
		if !ok1 || !ok2 {
			return nil, rep, nil, &fact.DimensionMismatchError{Control: f.Name, Dims: slices.Clone(f.On), Available: baseDims}
		}
		basePos[i], factorPos[i] = bp, fp
	}

	var newDims []string
	var newPos []int
	for i, d := range factorDims {
		if slices.Contains(f.On, d) {
			continue
		}
		if slices.Contains(baseDims, d) {
			return nil, rep, nil, &FactorError{Factor: f.Name, Reason: fmt.Sprintf("dimension %q is already segmented; add it to On", d)}
		}
		newDims = append(newDims, d)
		newPos = append(newPos, i)
	}
	if len(newDims) > 0 && f.Default != nil {
		return nil, rep, nil, &FactorError{Factor: f.Name, Reason: "a default needs a factor without new dimensions"}
	}

	enc := fact.NewEncoder(len(f.On) + 1)
	codes := make([]uint32, len(f.On)+1)
	key := func(geo string, values []string, pos []int, intern bool) (fact.Key, bool) {
		if !f.ByGeography {
			geo = ""
		}
		for i, s := range append([]string{geo}, pick(values, pos)...) {
			if intern {
				codes[i] = enc.Encode(i, s)
				continue
			}
			c, ok := enc.Lookup(i, s)
			if !ok {
				return "", false
			}
			codes[i] = c
		}
		return fact.Pack(codes...), true
	}

	index := make(map[fact.Key][]*match)
	for row := range f.Table.All() {
		k, _ := key(row.Geo, row.Values, factorPos, true)
		nv := pick(row.Values, newPos)
		for _, m := range index[k] {
			if slices.Equal(m.values, nv) {
				return nil, rep, nil, &FactorError{Factor: f.Name, Reason: fmt.Sprintf("duplicate segment %v at %q", row.Values, row.Geo)}
			}
		}
		index[k] = append(index[k], &match{values: nv, factor: row.Value})
	}

	out := fact.New(append(baseDims, newDims...)...)
	var dropped []fact.Row
	for row := range base.All() {
		k, ok := key(row.Geo, row.Values, basePos, false)
		matches := index[k]
		if !ok || len(matches) == 0 {
			if f.Default == nil {
				dropped = append(dropped, row)
				continue
			}
			rep.Defaulted++
			if err := out.Add(row.Geo, row.Value * *f.Default, row.Values...); err != nil {
				return nil, rep, nil, err
			}
			continue
		}
		for _, m := range matches {
			m.used = true
			if err := out.Add(row.Geo, row.Value*m.factor, append(slices.Clone(row.Values), m.values...)...); err != nil {
				return nil, rep, nil, err
			}
		}
	}

	for _, ms := range index {
		for _, m := range ms {
			if !m.used {
				rep.Unmatched++
			}
		}
	}
	rep.Unresolved = len(dropped)
	rep.After = out.Sum()
	rep.Delta = rep.After - rep.Before
	rep.RelDelta = audit.RelDelta(rep.Before, rep.After)
	return out, rep, dropped, nil
}

func pick(values []string, pos []int) []string {
	out := make([]string, len(pos))
	for i, p := range pos {
		out[i] = values[p]
	}
	return out
}
