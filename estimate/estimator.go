package estimate

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"

	"github.com/hupe1980/landseg/fact"
	"github.com/hupe1980/landseg/hierarchy"
)

// Observation is a raw numerator/denominator pair for one geography and
// category. Level is "" for a fine geography, or the name of a coarser
// level whose id Geo holds (data published only for districts, say).
// A NaN in either field marks the observation as missing.
type Observation struct {
	Geo         string
	Level       string
	Category    string
	Numerator   float64
	Denominator float64
}

// Estimate is the resolved statistic of one fine geography and category.
type Estimate struct {
	Geo      string
	Category string
	Value    float64
	// Level is the hierarchy level the value was taken from.
	Level string
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithLogger sets the logger for fallback summaries.
func WithLogger(l *slog.Logger) Option {
	return func(e *Estimator) {
		e.logger = l
	}
}

// Estimator fills fine-level statistics from the nearest level with data.
type Estimator struct {
	h      *hierarchy.Hierarchy
	logger *slog.Logger
}

// New creates an estimator over h.
func New(h *hierarchy.Hierarchy, optFns ...Option) *Estimator {
	e := &Estimator{
		h:      h,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range optFns {
		fn(e)
	}
	return e
}

type ratio struct {
	num, den float64
}

type groupKey struct {
	id, category string
}

// Estimate returns one estimate per fine geography and observed category,
// sorted by geography then category.
func (e *Estimator) Estimate(obs []Observation) ([]Estimate, error) {
	levels := e.h.Levels()
	sums := make([]map[groupKey]*ratio, len(levels))
	for i := range sums {
		sums[i] = make(map[groupKey]*ratio)
	}

	up, err := e.upward()
	if err != nil {
		return nil, err
	}

	var categories []string
	seen := make(map[string]bool)
	for _, o := range obs {
		// Categories count even when every observation of them is missing.
		if !seen[o.Category] {
			seen[o.Category] = true
			categories = append(categories, o.Category)
		}
		if math.IsNaN(o.Numerator) || math.IsNaN(o.Denominator) {
			continue
		}
		if math.IsInf(o.Numerator, 0) || math.IsInf(o.Denominator, 0) || o.Numerator < 0 || o.Denominator < 0 {
			return nil, fmt.Errorf("%w: %s/%s = %v/%v", ErrInvalidObservation, o.Geo, o.Category, o.Numerator, o.Denominator)
		}
		rank, err := e.h.Rank(o.Level)
		if err != nil {
			return nil, err
		}

		if rank == 0 && !e.h.Contains(o.Geo) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownGeography, o.Geo)
		}
		// The observation counts at its own level and every coarser level
		// its id maps to.
		for li := rank; li < len(levels); li++ {
			id, ok := o.Geo, true
			if li > rank {
				id, ok = up[rank].parent(o.Geo, li)
			}
			if !ok {
				continue
			}
			k := groupKey{id, o.Category}
			r := sums[li][k]
			if r == nil {
				r = &ratio{}
				sums[li][k] = r
			}
			r.num += o.Numerator
			r.den += o.Denominator
		}
	}
	slices.Sort(categories)

	fine := e.h.Fine()
	out := make([]Estimate, 0, len(fine)*len(categories))
	for _, c := range categories {
		if r := sums[len(levels)-1][groupKey{hierarchy.Global, c}]; r == nil || r.den <= 0 {
			return nil, &InsufficientDataError{Category: c, Levels: levels}
		}
	}
	for _, g := range fine {
		for _, c := range categories {
			est, ok := e.resolve(sums, levels, g, c)
			if !ok {
				// Unreachable: the global level was checked above.
				return nil, &InsufficientDataError{Category: c, Levels: levels}
			}
			out = append(out, est)
		}
	}

	prov := Provenance(out)
	for _, level := range levels {
		if n := prov[level]; n > 0 {
			e.logger.Debug("estimates by level", "level", level, "count", n)
		}
	}
	return out, nil
}

func (e *Estimator) resolve(sums []map[groupKey]*ratio, levels []string, g, c string) (Estimate, bool) {
	for li, level := range levels {
		id, ok := e.h.Parent(g, level)
		if !ok {
			continue
		}
		r := sums[li][groupKey{id, c}]
		if r == nil || r.den <= 0 {
			continue
		}
		return Estimate{Geo: g, Category: c, Value: r.num / r.den, Level: level}, true
	}
	return Estimate{}, false
}

// ancestry maps an id at one level to its ids at coarser levels.
type ancestry map[string][]string

func (a ancestry) parent(id string, level int) (string, bool) {
	ids, ok := a[id]
	if !ok || ids[level] == "" {
		return "", false
	}
	return ids[level], true
}

// upward derives, for every level, the coarser ancestors of its ids from
// the fine-level mapping.
func (e *Estimator) upward() ([]ancestry, error) {
	levels := e.h.Levels()
	up := make([]ancestry, len(levels))
	for i := range up {
		up[i] = make(ancestry)
	}
	for _, f := range e.h.Fine() {
		ids := make([]string, len(levels))
		for li, level := range levels {
			ids[li], _ = e.h.Parent(f, level)
		}
		for li, id := range ids {
			if id == "" {
				continue
			}
			cur, ok := up[li][id]
			if !ok {
				up[li][id] = slices.Clone(ids)
				continue
			}
			for lj := li + 1; lj < len(levels); lj++ {
				switch {
				case cur[lj] == "":
					cur[lj] = ids[lj]
				case ids[lj] != "" && ids[lj] != cur[lj]:
					return nil, fmt.Errorf("estimate: %s %q has two %s parents (%q, %q)",
						levels[li], id, levels[lj], cur[lj], ids[lj])
				}
			}
		}
	}
	return up, nil
}

// Count is a raw count of one category in one geography.
type Count struct {
	Geo      string
	Level    string
	Category string
	Value    float64
}

// Shares turns counts into split observations whose denominator is the
// geography's total over all categories.
func Shares(counts []Count) []Observation {
	type geoKey struct{ level, geo string }
	totals := make(map[geoKey]float64)
	for _, c := range counts {
		if !math.IsNaN(c.Value) {
			totals[geoKey{c.Level, c.Geo}] += c.Value
		}
	}
	out := make([]Observation, len(counts))
	for i, c := range counts {
		out[i] = Observation{
			Geo:         c.Geo,
			Level:       c.Level,
			Category:    c.Category,
			Numerator:   c.Value,
			Denominator: totals[geoKey{c.Level, c.Geo}],
		}
	}
	return out
}

// ToTable converts estimates into a factor table with one dimension named
// dim holding the category.
func ToTable(ests []Estimate, dim string) (*fact.Table, error) {
	t := fact.New(dim)
	for _, e := range ests {
		if err := t.Add(e.Geo, e.Value, e.Category); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Provenance counts estimates per source level.
func Provenance(ests []Estimate) map[string]int {
	out := make(map[string]int)
	for _, e := range ests {
		out[e.Level]++
	}
	return out
}

// Fallbacks returns the estimates not taken from fineLevel, sorted.
func Fallbacks(ests []Estimate, fineLevel string) []Estimate {
	var out []Estimate
	for _, e := range ests {
		if e.Level != fineLevel {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b Estimate) int {
		return cmp.Or(cmp.Compare(a.Geo, b.Geo), cmp.Compare(a.Category, b.Category))
	})
	return out
}
