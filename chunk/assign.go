package chunk

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/landseg/hierarchy"
)

// ID identifies a chunk. Real districts keep their numeric id when every
// district id is an integer; synthetic districts are numbered above them.
type ID int

// Chunker assigns fine geographies to chunks.
type Chunker struct {
	// DistrictLevel is the hierarchy level whose ids form the chunks.
	DistrictLevel string
	// TargetSize is the number of zones per synthetic district. Values ≤ 0
	// use the mean zones per real district.
	TargetSize int
}

// Assignment is a total, order-stable map from fine geography to chunk.
type Assignment struct {
	of        map[string]ID
	zones     map[ID][]string
	district  map[ID]string
	synthetic map[ID]bool
	ids       []ID
}

// Assign partitions the fine geographies of h.
func (c Chunker) Assign(h *hierarchy.Hierarchy) (*Assignment, error) {
	if _, err := h.Rank(c.DistrictLevel); err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}

	byDistrict := make(map[string][]string)
	var orphans []string
	for _, z := range h.Fine() { // sorted
		d, ok := h.Parent(z, c.DistrictLevel)
		if !ok || d == "" {
			orphans = append(orphans, z)
			continue
		}
		byDistrict[d] = append(byDistrict[d], z)
	}

	a := &Assignment{
		of:        make(map[string]ID, len(h.Fine())),
		zones:     make(map[ID][]string),
		district:  make(map[ID]string),
		synthetic: make(map[ID]bool),
	}

	districts := slices.Sorted(maps.Keys(byDistrict))
	next := ID(1)
	for d, id := range numberDistricts(districts) {
		a.add(id, d, false, byDistrict[d])
		next = max(next, id+1)
	}

	k := c.TargetSize
	if k <= 0 {
		k = len(orphans)
		if len(districts) > 0 {
			k = int(math.Round(float64(len(h.Fine())-len(orphans)) / float64(len(districts))))
		}
		k = max(k, 1)
	}
	for i := 0; i < len(orphans); i += k {
		a.add(next, "", true, orphans[i:min(i+k, len(orphans))])
		next++
	}

	slices.Sort(a.ids)
	return a, nil
}

// numberDistricts maps sorted district ids to chunk ids. Integer ids keep
// their value unless two of them collide; otherwise ids are numbered 1..n.
func numberDistricts(districts []string) map[string]ID {
	out := make(map[string]ID, len(districts))
	seen := make(map[ID]bool, len(districts))
	numeric := true
	for _, d := range districts {
		n, err := strconv.Atoi(d)
		if err != nil || seen[ID(n)] {
			numeric = false
			break
		}
		seen[ID(n)] = true
		out[d] = ID(n)
	}
	if numeric {
		return out
	}
	clear(out)
	for i, d := range districts {
		out[d] = ID(i + 1)
	}
	return out
}

func (a *Assignment) add(id ID, district string, synthetic bool, zones []string) {
	a.ids = append(a.ids, id)
	a.zones[id] = slices.Clone(zones)
	a.district[id] = district
	a.synthetic[id] = synthetic
	for _, z := range zones {
		a.of[z] = id
	}
}

// Of returns the chunk of a fine geography.
func (a *Assignment) Of(zone string) (ID, bool) {
	id, ok := a.of[zone]
	return id, ok
}

// IDs returns every chunk id in ascending order.
func (a *Assignment) IDs() []ID { return slices.Clone(a.ids) }

// Len returns the number of chunks.
func (a *Assignment) Len() int { return len(a.ids) }

// Zones returns the sorted zones of chunk id.
func (a *Assignment) Zones(id ID) []string { return slices.Clone(a.zones[id]) }

// District returns the real district id behind a chunk, or "" for a
// synthetic chunk.
func (a *Assignment) District(id ID) string { return a.district[id] }

// Synthetic reports whether id is a synthetic district.
func (a *Assignment) Synthetic(id ID) bool { return a.synthetic[id] }

// Verify checks that the chunks partition zones: their union is exactly
// zones and no zone is in two chunks.
func (a *Assignment) Verify(zones []string) error {
	index := make(map[string]uint32, len(zones))
	for i, z := range zones {
		index[z] = uint32(i)
	}

	var (
		union = roaring.New()
		err   CoverageError
	)
	for _, id := range a.ids {
		bm := roaring.New()
		for _, z := range a.zones[id] {
			i, ok := index[z]
			if !ok {
				err.Unknown = append(err.Unknown, z)
				continue
			}
			bm.Add(i)
		}
		if union.Intersects(bm) {
			overlap := roaring.And(union, bm)
			for it := overlap.Iterator(); it.HasNext(); {
				err.Overlapping = append(err.Overlapping, zones[it.Next()])
			}
		}
		union.Or(bm)
	}

	if n := uint64(len(zones)); union.GetCardinality() != n {
		all := roaring.New()
		all.AddRange(0, n)
		all.AndNot(union)
		for it := all.Iterator(); it.HasNext(); {
			err.Missing = append(err.Missing, zones[it.Next()])
		}
	}

	if len(err.Missing)+len(err.Overlapping)+len(err.Unknown) > 0 {
		slices.Sort(err.Missing)
		slices.Sort(err.Overlapping)
		slices.Sort(err.Unknown)
		return &err
	}
	return nil
}

// TargetSizeFromReference returns the mean number of zones per district in
// the reference region, rounded and at least 1.
func TargetSizeFromReference(h *hierarchy.Hierarchy, districtLevel, regionLevel, region string) (int, error) {
	districts := make(map[string]struct{})
	var zones int
	for _, z := range h.Fine() {
		if r, ok := h.Parent(z, regionLevel); !ok || r != region {
			continue
		}
		d, ok := h.Parent(z, districtLevel)
		if !ok {
			continue
		}
		districts[d] = struct{}{}
		zones++
	}
	if len(districts) == 0 {
		return 0, fmt.Errorf("%w: %s %q", ErrNoReference, regionLevel, region)
	}
	return max(int(math.Round(float64(zones)/float64(len(districts)))), 1), nil
}
