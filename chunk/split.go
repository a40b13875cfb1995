package chunk

import (
	"slices"

	"github.com/hupe1980/landseg/fact"
	"github.com/hupe1980/landseg/hierarchy"
)

// Chunk is one independent raking problem.
type Chunk struct {
	ID        ID
	Synthetic bool
	Seed      *fact.Table
	Controls  []fact.Control
}

// Split distributes seed rows and control targets over the chunks of a.
//
// Controls keyed at the fine level are split by zone. Controls keyed at a
// coarser level go to the one chunk holding all zones of each target
// group. Unkeyed and global controls are accepted only when there is a
// single chunk. Chunks without seed rows and controls are omitted.
func (a *Assignment) Split(seed *fact.Table, controls []fact.Control, h *hierarchy.Hierarchy) ([]Chunk, error) {
	pos := make(map[ID]int, len(a.ids))
	chunks := make([]Chunk, len(a.ids))
	for i, id := range a.ids {
		pos[id] = i
		chunks[i] = Chunk{ID: id, Synthetic: a.synthetic[id], Seed: fact.New(seed.Dims()...)}
	}

	var unknown []string
	for row := range seed.All() {
		id, ok := a.of[row.Geo]
		if !ok {
			unknown = append(unknown, row.Geo)
			continue
		}
		if err := chunks[pos[id]].Seed.Add(row.Geo, row.Value, row.Values...); err != nil {
			return nil, err
		}
	}
	if len(unknown) > 0 {
		return nil, &CoverageError{Unknown: compactSorted(unknown)}
	}

	for _, c := range controls {
		parts, err := a.splitControl(c, h)
		if err != nil {
			return nil, err
		}
		for id, part := range parts {
			i := pos[id]
			chunks[i].Controls = append(chunks[i].Controls, part)
		}
	}

	// Controls were appended in order per chunk, so each chunk keeps the
	// caller's control order.
	out := chunks[:0]
	for _, ch := range chunks {
		if ch.Seed.Len() > 0 || len(ch.Controls) > 0 {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (a *Assignment) splitControl(c fact.Control, h *hierarchy.Hierarchy) (map[ID]fact.Control, error) {
	level := c.Level
	if h != nil && level == h.FineLevel() {
		level = ""
	}

	switch level {
	case fact.Unkeyed, hierarchy.Global:
		if len(a.ids) != 1 {
			return nil, &ControlSpansChunksError{Control: c.Name, Chunks: a.IDs()}
		}
		return map[ID]fact.Control{a.ids[0]: c}, nil
	}

	// owner maps a target geography to the chunks holding its zones.
	owner := func(geo string) []ID {
		if id, ok := a.of[geo]; ok {
			return []ID{id}
		}
		return nil
	}
	if level != "" {
		if h == nil {
			return nil, &ControlSpansChunksError{Control: c.Name, Chunks: a.IDs()}
		}
		if _, err := h.Rank(level); err != nil {
			return nil, err
		}
		byParent := make(map[string][]ID)
		for z, id := range a.of {
			if p, ok := h.Parent(z, level); ok && !slices.Contains(byParent[p], id) {
				byParent[p] = append(byParent[p], id)
			}
		}
		owner = func(geo string) []ID { return byParent[geo] }
	}

	parts := make(map[ID]fact.Control)
	var unknown []string
	for row := range c.Targets.All() {
		ids := owner(row.Geo)
		switch {
		case len(ids) == 0:
			if row.Value > 0 {
				unknown = append(unknown, row.Geo)
			}
			continue
		case len(ids) > 1:
			slices.Sort(ids)
			return nil, &ControlSpansChunksError{Control: c.Name, Geo: row.Geo, Chunks: ids}
		}
		part, ok := parts[ids[0]]
		if !ok {
			part = fact.Control{Name: c.Name, Level: c.Level, Targets: fact.New(c.Dims()...)}
			parts[ids[0]] = part
		}
		if err := part.Targets.Add(row.Geo, row.Value, row.Values...); err != nil {
			return nil, err
		}
	}
	if len(unknown) > 0 {
		return nil, &CoverageError{Unknown: compactSorted(unknown)}
	}
	return parts, nil
}

func compactSorted(s []string) []string {
	slices.Sort(s)
	return slices.Compact(s)
}
