package chunk

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/landseg/fact"
	"github.com/hupe1980/landseg/hierarchy"
	"github.com/hupe1980/landseg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitFixture(t *testing.T) (*hierarchy.Hierarchy, *Assignment, *fact.Table) {
	t.Helper()
	zones := testutil.Zones(6)
	h := testutil.Hierarchy(zones, 2, "z006") // d1: z001,z002  d2: z003,z004  d3: z005
	a, err := Chunker{DistrictLevel: "district", TargetSize: 3}.Assign(h)
	require.NoError(t, err)
	return h, a, testutil.NewRNG(1).Seed2D(zones, []string{"x", "y"})
}

func TestSplit(t *testing.T) {
	h, a, seed := splitFixture(t)

	fine := fact.NewControl("by_a", "", "a")
	for row := range seed.All() {
		require.NoError(t, fine.Targets.Add(row.Geo, row.Value*2, row.Values...))
	}
	district := fact.NewControl("district_total", "district")
	require.NoError(t, district.Targets.Add("d1", 500))
	require.NoError(t, district.Targets.Add("d3", 100))

	chunks, err := a.Split(seed, []fact.Control{fine, district}, h)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	var rows int
	for i, ch := range chunks {
		assert.Equal(t, a.IDs()[i], ch.ID)
		rows += ch.Seed.Len()
		for _, g := range ch.Seed.Geographies() {
			id, _ := a.Of(g)
			assert.Equal(t, ch.ID, id)
		}
	}
	assert.Equal(t, seed.Len(), rows)

	d1 := chunks[0]
	require.Len(t, d1.Controls, 2)
	assert.Equal(t, "by_a", d1.Controls[0].Name)
	assert.Equal(t, []string{"z001", "z002"}, d1.Controls[0].Targets.Geographies())
	assert.Equal(t, "district_total", d1.Controls[1].Name)
	assert.Equal(t, 500.0, d1.Controls[1].Targets.Sum())

	// d2 has no district_total target.
	require.Len(t, chunks[1].Controls, 1)

	synthetic := chunks[3]
	assert.True(t, synthetic.Synthetic)
	assert.Equal(t, []string{"z006"}, synthetic.Seed.Geographies())
}

func TestSplit_Rejects(t *testing.T) {
	h, a, seed := splitFixture(t)

	t.Run("SpanningControl", func(t *testing.T) {
		c := fact.NewControl("all", hierarchy.Global)
		require.NoError(t, c.Targets.Add(hierarchy.Global, 1000))
		_, err := a.Split(seed, []fact.Control{c}, h)

		var se *ControlSpansChunksError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "all", se.Control)
	})

	t.Run("Unkeyed", func(t *testing.T) {
		c := fact.NewControl("a", fact.Unkeyed, "a")
		require.NoError(t, c.Targets.Add("", 10, "x"))
		_, err := a.Split(seed, []fact.Control{c}, h)

		var se *ControlSpansChunksError
		require.ErrorAs(t, err, &se)
		assert.Len(t, se.Chunks, a.Len())
	})

	t.Run("UnknownSeedGeography", func(t *testing.T) {
		s := seed.Clone()
		require.NoError(t, s.Add("q1", 1, "x"))
		_, err := a.Split(s, nil, h)

		var ce *CoverageError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, []string{"q1"}, ce.Unknown)
	})

	t.Run("UnknownControlGeography", func(t *testing.T) {
		c := fact.NewControl("district_total", "district")
		require.NoError(t, c.Targets.Add("d8", 10))
		require.NoError(t, c.Targets.Add("d9", 0))
		_, err := a.Split(seed, []fact.Control{c}, h)

		var ce *CoverageError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, []string{"d8"}, ce.Unknown)
	})
}

func TestSplit_SingleChunkAcceptsUnkeyed(t *testing.T) {
	zones := testutil.Zones(3)
	h := testutil.Hierarchy(zones, 3)
	a, err := Chunker{DistrictLevel: "district"}.Assign(h)
	require.NoError(t, err)
	require.Equal(t, 1, a.Len())

	c := fact.NewControl("total", fact.Unkeyed)
	require.NoError(t, c.Targets.Add("", 42))
	chunks, err := a.Split(testutil.NewRNG(2).Seed2D(zones, []string{"x"}), []fact.Control{c}, h)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, c, chunks[0].Controls[0])
}

func TestMap_Ordered(t *testing.T) {
	chunks := make([]Chunk, 24)
	for i := range chunks {
		chunks[i] = Chunk{ID: ID(i + 1)}
	}
	fn := func(_ context.Context, ch Chunk) (int, error) {
		// Later chunks finish first.
		time.Sleep(time.Duration(len(chunks)-int(ch.ID)) * time.Millisecond)
		return int(ch.ID) * 10, nil
	}

	seq, err := Map(context.Background(), chunks, 1, fn)
	require.NoError(t, err)
	par, err := Map(context.Background(), chunks, 8, fn)
	require.NoError(t, err)

	assert.Equal(t, seq, par)
	assert.Equal(t, 10, par[0])
	assert.Equal(t, 240, par[23])
}

func TestMap_Error(t *testing.T) {
	chunks := []Chunk{{ID: 1}, {ID: 2}, {ID: 3}}
	boom := errors.New("boom")
	var calls atomic.Int32

	for _, workers := range []int{1, 3} {
		calls.Store(0)
		_, err := Map(context.Background(), chunks, workers, func(_ context.Context, ch Chunk) (struct{}, error) {
			calls.Add(1)
			if ch.ID == 2 {
				return struct{}{}, boom
			}
			return struct{}{}, nil
		})

		var ce *ChunkError
		require.ErrorAs(t, err, &ce, "workers=%d", workers)
		assert.Equal(t, ID(2), ce.ID)
		assert.ErrorIs(t, err, boom)
	}
}

func TestMap_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Map(ctx, []Chunk{{ID: 1}}, 1, func(context.Context, Chunk) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, context.Canceled)
}
