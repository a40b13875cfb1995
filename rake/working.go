package rake

import (
	"math"
	"slices"

	"github.com/hupe1980/landseg/fact"
	"github.com/hupe1980/landseg/hierarchy"
)

const maxCells = 1 << 31

// working is the dense, columnar working table. Cell i has geography
// geos[geo[i]] and category cats[d][codes[d][i]] for every dimension d.
// Geographies and categories are sorted, so cell order is row order.
type working struct {
	h      *hierarchy.Hierarchy
	dims   []string
	geos   []string
	cats   [][]string
	geo    []int32
	codes  [][]int32
	values []float64

	catIndex []map[string]int32
}

func newWorking(h *hierarchy.Hierarchy, seed *fact.Table, controls []fact.Control) (*working, error) {
	w := &working{
		h:    h,
		dims: seed.Dims(),
		geos: seed.Geographies(),
	}

	w.cats = make([][]string, len(w.dims))
	w.catIndex = make([]map[string]int32, len(w.dims))
	for d, dim := range w.dims {
		cats := seed.Categories(dim)
		for _, c := range controls {
			cats = append(cats, c.Targets.Categories(dim)...)
		}
		slices.Sort(cats)
		cats = slices.Compact(cats)
		w.cats[d] = cats
		w.catIndex[d] = make(map[string]int32, len(cats))
		for i, c := range cats {
			w.catIndex[d][c] = int32(i)
		}
	}

	n := len(w.geos)
	for _, cats := range w.cats {
		if n > 0 && len(cats) > maxCells/n {
			return nil, ErrTooLarge
		}
		n *= len(cats)
	}

	w.geo = make([]int32, n)
	w.codes = make([][]int32, len(w.dims))
	for d := range w.codes {
		w.codes[d] = make([]int32, n)
	}
	w.values = make([]float64, n)

	// Mixed-radix enumeration, last dimension fastest.
	stride := n
	if len(w.geos) > 0 {
		stride = n / len(w.geos)
	}
	for i := range n {
		w.geo[i] = int32(i / max(stride, 1))
		rem := i % max(stride, 1)
		s := stride
		for d, cats := range w.cats {
			s /= len(cats)
			w.codes[d][i] = int32(rem / s)
			rem %= s
		}
	}

	geoIndex := make(map[string]int, len(w.geos))
	for i, g := range w.geos {
		geoIndex[g] = i
	}
	for row := range seed.All() {
		idx := geoIndex[row.Geo]
		for d, v := range row.Values {
			idx = idx*len(w.cats[d]) + int(w.catIndex[d][v])
		}
		w.values[idx] = max(row.Value, 0)
	}
	return w, nil
}

func (w *working) len() int { return len(w.values) }

// table converts the working table back into a fact table.
func (w *working) table() *fact.Table {
	t := fact.New(w.dims...)
	values := make([]string, len(w.dims))
	for i, v := range w.values {
		for d := range w.dims {
			values[d] = w.cats[d][w.codes[d][i]]
		}
		_ = t.Add(w.geos[w.geo[i]], v, values...)
	}
	return t
}

// labels maps each geography of the working table to its id at level.
// "" is the fine level; fact.Unkeyed and hierarchy.Global map everything
// to one label.
func (w *working) labels(level string) (idx []int32, names []string) {
	idx = make([]int32, len(w.geos))
	seen := make(map[string]int32)
	for i, g := range w.geos {
		var (
			id string
			ok = true
		)
		switch level {
		case "":
			id = g
		case fact.Unkeyed:
			id = ""
		case hierarchy.Global:
			id = hierarchy.Global
		default:
			id, ok = w.h.Parent(g, level)
		}
		if !ok {
			idx[i] = -1
			continue
		}
		code, found := seen[id]
		if !found {
			code = int32(len(names))
			seen[id] = code
			names = append(names, id)
		}
		idx[i] = code
	}
	return idx, names
}

// group is a control laid over the working table: every cell maps to at
// most one target group.
type group struct {
	name    string
	dims    []int // working-table dimension positions

	of     []int32 // per cell, -1 if unconstrained
	target []float64
	label  []string
	values [][]string
	zero   []bool // structural zero already reported

	sums []float64
}

func (g *group) size() int { return len(g.target) }

// layout is the dense addressing of (label, control categories).
type layout struct {
	labelIdx []int32
	labels   []string
	pos      []int
	radix    []int
}

func (w *working) layout(level string, pos []int) layout {
	l := layout{pos: pos, radix: make([]int, len(pos))}
	l.labelIdx, l.labels = w.labels(level)
	for j, p := range pos {
		l.radix[j] = len(w.cats[p])
	}
	return l
}

func (l layout) size() int {
	n := len(l.labels)
	for _, r := range l.radix {
		n *= r
	}
	return n
}

func (l layout) cell(w *working, i int) int {
	li := l.labelIdx[w.geo[i]]
	if li < 0 {
		return -1
	}
	k := int(li)
	for j, p := range l.pos {
		k = k*l.radix[j] + int(w.codes[p][i])
	}
	return k
}

// control lays a fact.Control over the working table.
func (w *working) control(c fact.Control, level string) (*group, error) {
	pos := make([]int, 0, len(c.Dims()))
	for _, d := range c.Dims() {
		pos = append(pos, slices.Index(w.dims, d))
	}
	l := w.layout(level, pos)
	labelCode := make(map[string]int32, len(l.labels))
	for i, name := range l.labels {
		labelCode[name] = int32(i)
	}

	g := &group{name: c.Name, dims: pos}
	dense := make([]int32, l.size())
	for i := range dense {
		dense[i] = -1
	}
	for row := range c.Targets.All() {
		id := row.Geo
		if level == fact.Unkeyed {
			id = ""
		}
		li, ok := labelCode[id]
		if !ok {
			if row.Value > 0 {
				return nil, &EmptySeedError{Control: c.Name, Geo: id, Target: row.Value}
			}
			continue
		}
		k := int(li)
		for j, p := range pos {
			k = k*l.radix[j] + int(w.catIndex[p][row.Values[j]])
		}
		gi := dense[k]
		if gi < 0 {
			gi = int32(g.size())
			dense[k] = gi
			g.target = append(g.target, 0)
			g.label = append(g.label, id)
			g.values = append(g.values, row.Values)
		}
		g.target[gi] += row.Value
	}

	g.of = make([]int32, w.len())
	for i := range g.of {
		if k := l.cell(w, i); k >= 0 {
			g.of[i] = dense[k]
		} else {
			g.of[i] = -1
		}
	}
	g.zero = make([]bool, g.size())
	g.sums = make([]float64, g.size())
	return g, nil
}

// derive freezes the current joint distribution of the working table over
// pos, keyed at level, as a combined control.
func (w *working) derive(name, level string, pos []int) *group {
	l := w.layout(level, pos)
	g := &group{name: name, dims: pos, of: make([]int32, w.len())}
	dense := make([]int32, l.size())
	for i := range dense {
		dense[i] = -1
	}
	for i := range g.of {
		k := l.cell(w, i)
		if k < 0 {
			g.of[i] = -1
			continue
		}
		gi := dense[k]
		if gi < 0 {
			gi = int32(g.size())
			dense[k] = gi
			g.target = append(g.target, 0)
		}
		g.of[i] = gi
		g.target[gi] += w.values[i]
	}
	g.zero = make([]bool, g.size())
	g.sums = make([]float64, g.size())
	return g
}

func (w *working) sum(g *group) {
	clear(g.sums)
	for i, gi := range g.of {
		if gi >= 0 {
			g.sums[gi] += w.values[i]
		}
	}
}

// rescale multiplies every group by target/sum. Groups with a zero sum
// and a positive target are flagged as structural zeros and left alone.
func (w *working) rescale(g *group, factors []float64) {
	w.sum(g)
	for gi, s := range g.sums {
		switch {
		case s > 0:
			factors[gi] = g.target[gi] / s
		default:
			factors[gi] = 1
			if g.target[gi] > 0 {
				g.zero[gi] = true
			}
		}
	}
	for i, gi := range g.of {
		if gi >= 0 {
			w.values[i] *= factors[gi]
		}
	}
}

// deviation returns the largest relative deviation of g, ignoring
// structural zeros, which it flags as a side effect.
func (w *working) deviation(g *group) float64 {
	w.sum(g)
	var worst float64
	for gi, s := range g.sums {
		t := g.target[gi]
		if s == 0 && t > 0 {
			g.zero[gi] = true
		}
		if g.zero[gi] {
			continue
		}
		d := math.Abs(s - t)
		if t > 0 {
			d /= t
		}
		worst = max(worst, d)
	}
	return worst
}
