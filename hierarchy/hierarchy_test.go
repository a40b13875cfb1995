package hierarchy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lookupCSV = `zone,district,region
z1,d1,r1
z2,d1,r1
z3,d2,r1
z4,,r2
`

func TestReadCSV(t *testing.T) {
	h, err := ReadCSV(strings.NewReader(lookupCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"zone", "district", "region", Global}, h.Levels())
	assert.Equal(t, []string{"z1", "z2", "z3", "z4"}, h.Fine())

	p, ok := h.Parent("z3", "district")
	require.True(t, ok)
	assert.Equal(t, "d2", p)

	_, ok = h.Parent("z4", "district")
	assert.False(t, ok)

	p, ok = h.Parent("z4", Global)
	require.True(t, ok)
	assert.Equal(t, Global, p)

	p, ok = h.Parent("z1", "zone")
	require.True(t, ok)
	assert.Equal(t, "z1", p)

	assert.Equal(t, []string{"z1", "z2"}, h.Children("district", "d1"))
}

func TestValidate(t *testing.T) {
	h, err := ReadCSV(strings.NewReader(lookupCSV))
	require.NoError(t, err)

	var im *IncompleteMappingError
	require.ErrorAs(t, h.Validate(), &im)
	assert.Equal(t, "district", im.Level)
	assert.Equal(t, []string{"z4"}, im.Missing)

	require.NoError(t, h.Set("z4", "district", "d3"))
	assert.NoError(t, h.Validate())
}

func TestRankAndUnknownLevel(t *testing.T) {
	h := New("zone", "district")
	r, err := h.Rank("district")
	require.NoError(t, err)
	assert.Equal(t, 1, r)

	r, err = h.Rank(Global)
	require.NoError(t, err)
	assert.Equal(t, 2, r)

	_, err = h.Rank("county")
	assert.ErrorIs(t, err, ErrUnknownLevel)
	assert.ErrorIs(t, h.Set("z1", "county", "c1"), ErrUnknownLevel)
}

func TestFromLookup_BadRow(t *testing.T) {
	_, err := FromLookup([]string{"zone", "district"}, [][]string{{"z1"}})
	assert.Error(t, err)
}
