package fact

import (
	"cmp"
	"fmt"
	"iter"
	"math"
	"slices"
)

// Row is one (geography, dimension values, value) record.
//
// Values[i] is the category of the table's i-th dimension. Rows returned by
// a Table share their Values slice with the table and must not be modified.
type Row struct {
	Geo    string
	Values []string
	Value  float64
}

// Table is a long-format fact table: one row per geography and
// dimension-value tuple. The set of dimensions is fixed at construction and
// rows are unique on (Geo, Values).
type Table struct {
	dims   []string
	dimIdx map[string]int
	rows   []Row
	enc    *Encoder
	index  map[Key]int
}

// New creates an empty table over the given dimensions.
// It panics if a dimension name is repeated.
func New(dims ...string) *Table {
	t := &Table{
		dims:   slices.Clone(dims),
		dimIdx: make(map[string]int, len(dims)),
		enc:    NewEncoder(len(dims) + 1),
		index:  make(map[Key]int),
	}
	for i, d := range dims {
		if _, dup := t.dimIdx[d]; dup {
			panic(fmt.Sprintf("fact: duplicate dimension %q", d))
		}
		t.dimIdx[d] = i
	}
	return t
}

// Dims returns the table's dimension names in order.
func (t *Table) Dims() []string { return slices.Clone(t.dims) }

// DimIndex returns the position of dimension d.
func (t *Table) DimIndex(d string) (int, bool) {
	i, ok := t.dimIdx[d]
	return i, ok
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Row returns the i-th row in insertion order.
func (t *Table) Row(i int) Row { return t.rows[i] }

// All iterates the rows in insertion order.
func (t *Table) All() iter.Seq[Row] {
	return func(yield func(Row) bool) {
		for _, r := range t.rows {
			if !yield(r) {
				return
			}
		}
	}
}

func (t *Table) key(geo string, values []string) Key {
	codes := make([]uint32, len(values)+1)
	codes[0] = t.enc.Encode(0, geo)
	for i, v := range values {
		codes[i+1] = t.enc.Encode(i+1, v)
	}
	return Pack(codes...)
}

func (t *Table) lookupKey(geo string, values []string) (Key, bool) {
	codes := make([]uint32, len(values)+1)
	c, ok := t.enc.Lookup(0, geo)
	if !ok {
		return "", false
	}
	codes[0] = c
	for i, v := range values {
		c, ok := t.enc.Lookup(i+1, v)
		if !ok {
			return "", false
		}
		codes[i+1] = c
	}
	return Pack(codes...), true
}

// Add appends a row. It fails when the value count does not match the
// schema, when value is negative or NaN, or when the key already exists.
func (t *Table) Add(geo string, value float64, values ...string) error {
	if len(values) != len(t.dims) {
		return &ArityError{Expected: len(t.dims), Actual: len(values)}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return fmt.Errorf("%w: %v at %s%v", ErrInvalidValue, value, geo, values)
	}
	k := t.key(geo, values)
	if _, dup := t.index[k]; dup {
		return &DuplicateKeyError{Geo: geo, Values: slices.Clone(values)}
	}
	t.index[k] = len(t.rows)
	t.rows = append(t.rows, Row{Geo: geo, Values: slices.Clone(values), Value: value})
	return nil
}

// Lookup returns the value stored for (geo, values).
func (t *Table) Lookup(geo string, values ...string) (float64, bool) {
	if len(values) != len(t.dims) {
		return 0, false
	}
	k, ok := t.lookupKey(geo, values)
	if !ok {
		return 0, false
	}
	i, ok := t.index[k]
	if !ok {
		return 0, false
	}
	return t.rows[i].Value, true
}

// Sum returns the total of all row values.
func (t *Table) Sum() float64 {
	var s float64
	for _, r := range t.rows {
		s += r.Value
	}
	return s
}

// Geographies returns the distinct geography ids in lexicographic order.
func (t *Table) Geographies() []string { return t.enc.Values(0) }

// Categories returns the distinct categories of dimension d in
// lexicographic order.
func (t *Table) Categories(d string) []string {
	i, ok := t.dimIdx[d]
	if !ok {
		return nil
	}
	return t.enc.Values(i + 1)
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := New(t.dims...)
	for _, r := range t.rows {
		_ = out.Add(r.Geo, r.Value, r.Values...)
	}
	return out
}

// Filter returns a new table holding the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := New(t.dims...)
	for _, r := range t.rows {
		if keep(r) {
			_ = out.Add(r.Geo, r.Value, r.Values...)
		}
	}
	return out
}

// Sorted returns a copy whose rows are ordered by geography, then by
// dimension values.
func (t *Table) Sorted() *Table {
	rows := slices.Clone(t.rows)
	slices.SortFunc(rows, CompareRows)
	out := New(t.dims...)
	for _, r := range rows {
		_ = out.Add(r.Geo, r.Value, r.Values...)
	}
	return out
}

// CompareRows orders rows by geography, then by values left to right.
func CompareRows(a, b Row) int {
	if c := cmp.Compare(a.Geo, b.Geo); c != 0 {
		return c
	}
	return slices.Compare(a.Values, b.Values)
}

// GroupSum sums the table over every dimension not listed in dims. When
// byGeo is false the geography is summed out as well and the result rows
// carry an empty Geo.
func (t *Table) GroupSum(byGeo bool, dims ...string) (*Table, error) {
	pos := make([]int, len(dims))
	for i, d := range dims {
		p, ok := t.dimIdx[d]
		if !ok {
			return nil, &DimensionMismatchError{Dims: slices.Clone(dims), Available: t.Dims()}
		}
		pos[i] = p
	}

	type group struct {
		geo    string
		values []string
		sum    float64
	}
	enc := NewEncoder(len(dims) + 1)
	index := make(map[Key]int)
	var groups []group
	codes := make([]uint32, len(dims)+1)
	for _, r := range t.rows {
		geo := ""
		if byGeo {
			geo = r.Geo
		}
		codes[0] = enc.Encode(0, geo)
		values := make([]string, len(dims))
		for i, p := range pos {
			values[i] = r.Values[p]
			codes[i+1] = enc.Encode(i+1, values[i])
		}
		k := Pack(codes...)
		gi, ok := index[k]
		if !ok {
			gi = len(groups)
			index[k] = gi
			groups = append(groups, group{geo: geo, values: values})
		}
		groups[gi].sum += r.Value
	}

	out := New(dims...)
	for _, g := range groups {
		if err := out.Add(g.geo, g.sum, g.values...); err != nil {
			return nil, err
		}
	}
	return out.Sorted(), nil
}
