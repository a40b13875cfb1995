package testutil

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/hupe1980/landseg/fact"
	"github.com/hupe1980/landseg/hierarchy"
)

// RNG wraps a seeded random source. It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Counts returns n values uniform in [lo, hi).
func (r *RNG) Counts(n int, lo, hi float64) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + r.rand.Float64()*(hi-lo)
	}
	return out
}

// Zones returns n zone ids "z001".."zNNN".
func Zones(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("z%03d", i+1)
	}
	return out
}

// Seed2D builds a seed table over zones × a with strictly positive cells.
func (r *RNG) Seed2D(zones, a []string) *fact.Table {
	t := fact.New("a")
	vals := r.Counts(len(zones)*len(a), 1, 100)
	i := 0
	for _, z := range zones {
		for _, x := range a {
			mustAdd(t, z, vals[i], x)
			i++
		}
	}
	return t
}

// Seed3D builds a seed table over zones × a × b with strictly positive cells.
func (r *RNG) Seed3D(zones, a, b []string) *fact.Table {
	t := fact.New("a", "b")
	vals := r.Counts(len(zones)*len(a)*len(b), 1, 100)
	i := 0
	for _, z := range zones {
		for _, x := range a {
			for _, y := range b {
				mustAdd(t, z, vals[i], x, y)
				i++
			}
		}
	}
	return t
}

// MarginalControls derives one fine-level control per seed dimension from
// the seed's own marginals, scaled by factor. Raking the seed against them
// has an exact solution.
func MarginalControls(seed *fact.Table, factor float64) []fact.Control {
	var out []fact.Control
	for _, dim := range seed.Dims() {
		g, err := seed.GroupSum(true, dim)
		if err != nil {
			panic(err)
		}
		c := fact.NewControl("by_"+dim, "", dim)
		for row := range g.All() {
			mustAdd(c.Targets, row.Geo, row.Value*factor, row.Values...)
		}
		out = append(out, c)
	}
	return out
}

// Hierarchy groups zones into districts of perDistrict zones each
// ("d1", "d2", ...). Zones listed in orphans get no district.
func Hierarchy(zones []string, perDistrict int, orphans ...string) *hierarchy.Hierarchy {
	h := hierarchy.New("zone", "district")
	skip := make(map[string]bool, len(orphans))
	for _, o := range orphans {
		skip[o] = true
	}
	n := 0
	for _, z := range zones {
		h.AddZone(z)
		if skip[z] {
			continue
		}
		if err := h.Set(z, "district", fmt.Sprintf("d%d", n/perDistrict+1)); err != nil {
			panic(err)
		}
		n++
	}
	return h
}

func mustAdd(t *fact.Table, geo string, v float64, values ...string) {
	if err := t.Add(geo, v, values...); err != nil {
		panic(err)
	}
}
