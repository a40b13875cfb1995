package estimate

import (
	"fmt"
	"math"
	"testing"

	"github.com/hupe1980/landseg/hierarchy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// z1,z2 -> d1; z3 -> d2; z4 has no district.
func testHierarchy(t *testing.T) *hierarchy.Hierarchy {
	t.Helper()
	h := hierarchy.New("zone", "district")
	require.NoError(t, h.Set("z1", "district", "d1"))
	require.NoError(t, h.Set("z2", "district", "d1"))
	require.NoError(t, h.Set("z3", "district", "d2"))
	h.AddZone("z4")
	return h
}

func find(t *testing.T, ests []Estimate, geo, cat string) Estimate {
	t.Helper()
	for _, e := range ests {
		if e.Geo == geo && e.Category == cat {
			return e
		}
	}
	t.Fatalf("no estimate for %s/%s", geo, cat)
	return Estimate{}
}

func TestEstimate_Fallback(t *testing.T) {
	h := testHierarchy(t)
	obs := []Observation{
		{Geo: "z1", Category: "flat", Numerator: 30, Denominator: 10},
		{Geo: "z2", Category: "flat", Numerator: 10, Denominator: 0},
		{Geo: "z3", Category: "flat", Numerator: 5, Denominator: 0},
		{Geo: "z4", Category: "flat", Numerator: 9, Denominator: 5},
	}

	ests, err := New(h).Estimate(obs)
	require.NoError(t, err)
	require.Len(t, ests, 4)

	e := find(t, ests, "z1", "flat")
	assert.Equal(t, "zone", e.Level)
	assert.InDelta(t, 3.0, e.Value, 1e-12)

	// Zero denominator falls back to the district sums (40 / 10).
	e = find(t, ests, "z2", "flat")
	assert.Equal(t, "district", e.Level)
	assert.InDelta(t, 4.0, e.Value, 1e-12)

	// d2 has no denominator either, so global: 54 / 15.
	e = find(t, ests, "z3", "flat")
	assert.Equal(t, hierarchy.Global, e.Level)
	assert.InDelta(t, 54.0/15.0, e.Value, 1e-12)

	e = find(t, ests, "z4", "flat")
	assert.Equal(t, "zone", e.Level)
}

func TestEstimate_MissingParentSkipsLevel(t *testing.T) {
	h := testHierarchy(t)
	obs := []Observation{
		{Geo: "z1", Category: "house", Numerator: 2, Denominator: 1},
		{Geo: "z4", Category: "house", Numerator: 0, Denominator: 0},
	}
	ests, err := New(h).Estimate(obs)
	require.NoError(t, err)

	e := find(t, ests, "z4", "house")
	assert.Equal(t, hierarchy.Global, e.Level)
	assert.InDelta(t, 2.0, e.Value, 1e-12)
}

func TestEstimate_CategoryAbsentAtFineLevel(t *testing.T) {
	h := testHierarchy(t)
	obs := []Observation{
		{Geo: "z1", Category: "flat", Numerator: 1, Denominator: 1},
		{Geo: "d1", Level: "district", Category: "caravan", Numerator: 6, Denominator: 4},
	}
	ests, err := New(h).Estimate(obs)
	require.NoError(t, err)
	require.Len(t, ests, 8)

	e := find(t, ests, "z2", "caravan")
	assert.Equal(t, "district", e.Level)
	assert.InDelta(t, 1.5, e.Value, 1e-12)

	// d2 and the orphan zone only see the global aggregate of the district
	// observation.
	e = find(t, ests, "z3", "caravan")
	assert.Equal(t, hierarchy.Global, e.Level)
	assert.InDelta(t, 1.5, e.Value, 1e-12)
}

func TestEstimate_NinetyTenProperty(t *testing.T) {
	h := testHierarchy(t)
	var obs []Observation
	for i := range 10 {
		cat := fmt.Sprintf("c%02d", i)
		if i == 9 {
			obs = append(obs, Observation{Geo: "d1", Level: "district", Category: cat, Numerator: 7, Denominator: 2})
			obs = append(obs, Observation{Geo: "d2", Level: "district", Category: cat, Numerator: 1, Denominator: 1})
			continue
		}
		for _, z := range []string{"z1", "z2", "z3", "z4"} {
			obs = append(obs, Observation{Geo: z, Category: cat, Numerator: float64(i + 1), Denominator: 2})
		}
	}

	ests, err := New(h).Estimate(obs)
	require.NoError(t, err)

	for _, e := range ests {
		if e.Category != "c09" {
			assert.Equal(t, "zone", e.Level)
			assert.Equal(t, obsValue(e.Category), e.Value)
			continue
		}
		switch e.Geo {
		case "z1", "z2":
			assert.Equal(t, "district", e.Level)
			assert.Equal(t, 3.5, e.Value)
		case "z3":
			assert.Equal(t, "district", e.Level)
			assert.Equal(t, 1.0, e.Value)
		case "z4":
			assert.Equal(t, hierarchy.Global, e.Level)
			assert.InDelta(t, 8.0/3.0, e.Value, 1e-12)
		}
	}
	assert.Equal(t, map[string]int{"zone": 36, "district": 3, hierarchy.Global: 1}, Provenance(ests))
	assert.Len(t, Fallbacks(ests, "zone"), 4)
}

func obsValue(cat string) float64 {
	var i int
	_, _ = fmt.Sscanf(cat, "c%02d", &i)
	return float64(i+1) / 2
}

func TestEstimate_InsufficientData(t *testing.T) {
	h := testHierarchy(t)
	obs := []Observation{
		{Geo: "z1", Category: "flat", Numerator: 1, Denominator: 1},
		{Geo: "z2", Category: "boat", Numerator: 3, Denominator: 0},
		{Geo: "z3", Category: "boat", Numerator: 1, Denominator: math.NaN()},
	}
	_, err := New(h).Estimate(obs)

	var ide *InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, "boat", ide.Category)
	assert.Equal(t, []string{"zone", "district", hierarchy.Global}, ide.Levels)
}

func TestEstimate_MissingOnlyCategory(t *testing.T) {
	h := testHierarchy(t)
	obs := []Observation{
		{Geo: "z1", Category: "flat", Numerator: 1, Denominator: 2},
		{Geo: "z2", Category: "house", Numerator: math.NaN(), Denominator: 4},
		{Geo: "z3", Category: "house", Numerator: 2, Denominator: math.NaN()},
	}
	ests, err := New(h).Estimate(obs)

	var ide *InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, "house", ide.Category)
	assert.Nil(t, ests)
}

func TestEstimate_InvalidInput(t *testing.T) {
	h := testHierarchy(t)

	_, err := New(h).Estimate([]Observation{{Geo: "z9", Category: "flat", Numerator: 1, Denominator: 1}})
	assert.ErrorIs(t, err, ErrUnknownGeography)

	_, err = New(h).Estimate([]Observation{{Geo: "z1", Category: "flat", Numerator: -1, Denominator: 1}})
	assert.ErrorIs(t, err, ErrInvalidObservation)

	_, err = New(h).Estimate([]Observation{{Geo: "r1", Level: "region", Category: "flat", Numerator: 1, Denominator: 1}})
	assert.ErrorIs(t, err, hierarchy.ErrUnknownLevel)
}

func TestShares(t *testing.T) {
	obs := Shares([]Count{
		{Geo: "z1", Category: "a", Value: 3},
		{Geo: "z1", Category: "b", Value: 1},
		{Geo: "z2", Category: "a", Value: 0},
	})
	require.Len(t, obs, 3)
	assert.Equal(t, Observation{Geo: "z1", Category: "a", Numerator: 3, Denominator: 4}, obs[0])
	assert.Equal(t, 0.0, obs[2].Denominator)
}

func TestToTable(t *testing.T) {
	tbl, err := ToTable([]Estimate{
		{Geo: "z1", Category: "a", Value: 0.75, Level: "zone"},
		{Geo: "z1", Category: "b", Value: 0.25, Level: "district"},
	}, "nssec")
	require.NoError(t, err)
	assert.Equal(t, []string{"nssec"}, tbl.Dims())

	v, ok := tbl.Lookup("z1", "b")
	require.True(t, ok)
	assert.Equal(t, 0.25, v)
}
