package chunk

import (
	"fmt"
	"testing"

	"github.com/hupe1980/landseg/hierarchy"
	"github.com/hupe1980/landseg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numericHierarchy() *hierarchy.Hierarchy {
	h := hierarchy.New("zone", "district")
	for z, d := range map[string]string{
		"e01": "7", "e02": "7", "e03": "12", "e04": "12", "e05": "12", "e06": "3",
	} {
		_ = h.Set(z, "district", d)
	}
	for _, z := range []string{"s05", "s01", "s03", "s02", "s04"} {
		h.AddZone(z)
	}
	return h
}

func TestAssign_NumericDistricts(t *testing.T) {
	a, err := Chunker{DistrictLevel: "district", TargetSize: 2}.Assign(numericHierarchy())
	require.NoError(t, err)

	assert.Equal(t, []ID{3, 7, 12, 13, 14, 15}, a.IDs())
	assert.Equal(t, []string{"e03", "e04", "e05"}, a.Zones(12))
	assert.Equal(t, "12", a.District(12))
	assert.False(t, a.Synthetic(12))

	// Orphans are grouped in lexicographic order above the largest id.
	assert.Equal(t, []string{"s01", "s02"}, a.Zones(13))
	assert.Equal(t, []string{"s03", "s04"}, a.Zones(14))
	assert.Equal(t, []string{"s05"}, a.Zones(15))
	assert.True(t, a.Synthetic(15))
	assert.Empty(t, a.District(15))

	id, ok := a.Of("s04")
	require.True(t, ok)
	assert.Equal(t, ID(14), id)

	_, ok = a.Of("x99")
	assert.False(t, ok)
}

func TestAssign_NamedDistricts(t *testing.T) {
	h := hierarchy.New("zone", "district")
	require.NoError(t, h.Set("z1", "district", "Leeds"))
	require.NoError(t, h.Set("z2", "district", "Bradford"))
	require.NoError(t, h.Set("z3", "district", "Leeds"))
	h.AddZone("z4")

	a, err := Chunker{DistrictLevel: "district", TargetSize: 5}.Assign(h)
	require.NoError(t, err)

	assert.Equal(t, []ID{1, 2, 3}, a.IDs())
	assert.Equal(t, "Bradford", a.District(1))
	assert.Equal(t, []string{"z1", "z3"}, a.Zones(2))
	assert.Equal(t, []string{"z4"}, a.Zones(3))
	assert.True(t, a.Synthetic(3))
}

func TestAssign_CollidingNumericIDs(t *testing.T) {
	h := hierarchy.New("zone", "district")
	require.NoError(t, h.Set("z1", "district", "01"))
	require.NoError(t, h.Set("z2", "district", "1"))

	a, err := Chunker{DistrictLevel: "district"}.Assign(h)
	require.NoError(t, err)
	assert.Equal(t, []ID{1, 2}, a.IDs())
	assert.Equal(t, "01", a.District(1))
}

func TestAssign_DerivedTargetSize(t *testing.T) {
	zones := testutil.Zones(20)
	// 12 zones in districts of 4, 8 orphans.
	h := testutil.Hierarchy(zones, 4, zones[12:]...)

	a, err := Chunker{DistrictLevel: "district"}.Assign(h)
	require.NoError(t, err)
	assert.Equal(t, 5, a.Len())
	for _, id := range a.IDs() {
		assert.Len(t, a.Zones(id), 4, "chunk %d", id)
	}
}

func TestAssign_UnknownLevel(t *testing.T) {
	_, err := Chunker{DistrictLevel: "county"}.Assign(numericHierarchy())
	assert.ErrorIs(t, err, hierarchy.ErrUnknownLevel)
}

func TestAssign_Completeness(t *testing.T) {
	rng := testutil.NewRNG(11)
	for trial := range 20 {
		zones := testutil.Zones(10 + rng.Intn(90))
		var orphans []string
		for _, z := range zones {
			if rng.Float64() < 0.3 {
				orphans = append(orphans, z)
			}
		}
		h := testutil.Hierarchy(zones, 1+rng.Intn(8), orphans...)
		c := Chunker{DistrictLevel: "district", TargetSize: rng.Intn(6)}

		a, err := c.Assign(h)
		require.NoError(t, err)
		require.NoError(t, a.Verify(h.Fine()), "trial %d", trial)

		for _, id := range a.IDs() {
			assert.NotEmpty(t, a.Zones(id), "trial %d chunk %d", trial, id)
		}

		again, err := c.Assign(h)
		require.NoError(t, err)
		for _, z := range zones {
			want, _ := a.Of(z)
			got, ok := again.Of(z)
			require.True(t, ok)
			assert.Equal(t, want, got)
		}
	}
}

func TestVerify(t *testing.T) {
	a, err := Chunker{DistrictLevel: "district", TargetSize: 2}.Assign(numericHierarchy())
	require.NoError(t, err)

	zones := []string{"e01", "e02", "e03", "e04", "e05", "e06", "s01", "s02", "s03", "s04", "s05", "w01"}
	var ce *CoverageError
	require.ErrorAs(t, a.Verify(zones), &ce)
	assert.Equal(t, []string{"w01"}, ce.Missing)
	assert.Empty(t, ce.Overlapping)

	// Corrupt the partition on purpose.
	a.zones[3] = append(a.zones[3], "e01")
	require.ErrorAs(t, a.Verify(zones[:11]), &ce)
	assert.Equal(t, []string{"e01"}, ce.Overlapping)

	require.ErrorAs(t, a.Verify(zones[:10]), &ce)
	assert.Equal(t, []string{"s05"}, ce.Unknown)
	assert.Contains(t, ce.Error(), "unknown")
}

func TestTargetSizeFromReference(t *testing.T) {
	h := hierarchy.New("zone", "district", "region")
	for i := range 10 {
		z := fmt.Sprintf("z%02d", i)
		d := fmt.Sprintf("d%d", i/3)
		require.NoError(t, h.Set(z, "district", d))
		require.NoError(t, h.Set(z, "region", "north"))
	}
	require.NoError(t, h.Set("y1", "district", "d9"))
	require.NoError(t, h.Set("y1", "region", "south"))

	k, err := TargetSizeFromReference(h, "district", "region", "north")
	require.NoError(t, err)
	assert.Equal(t, 3, k) // 10 zones / 4 districts

	_, err = TargetSizeFromReference(h, "district", "region", "east")
	assert.ErrorIs(t, err, ErrNoReference)
}
