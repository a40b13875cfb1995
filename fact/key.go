package fact

import (
	"encoding/binary"
	"slices"
)

// Key identifies a tuple of dictionary codes. It is a fixed-width packing
// (4 bytes per code), so two different tuples never share a Key.
//
// Keys are only comparable when they were built from the same Encoder.
type Key string

// Pack packs codes into a Key.
func Pack(codes ...uint32) Key {
	buf := make([]byte, 4*len(codes))
	for i, c := range codes {
		binary.LittleEndian.PutUint32(buf[4*i:], c)
	}
	return Key(buf)
}

// Unpack returns the codes packed into k.
func (k Key) Unpack() []uint32 {
	codes := make([]uint32, len(k)/4)
	for i := range codes {
		codes[i] = binary.LittleEndian.Uint32([]byte(k[4*i : 4*i+4]))
	}
	return codes
}

// Encoder interns category strings into dense per-position codes.
//
// Position 0 is conventionally the geography; position i+1 is dimension i.
// Codes are assigned in first-seen order.
type Encoder struct {
	codes []map[string]uint32
	names [][]string
}

// NewEncoder creates an encoder for n key positions.
func NewEncoder(n int) *Encoder {
	e := &Encoder{
		codes: make([]map[string]uint32, n),
		names: make([][]string, n),
	}
	for i := range e.codes {
		e.codes[i] = make(map[string]uint32)
	}
	return e
}

// Width returns the number of key positions.
func (e *Encoder) Width() int { return len(e.codes) }

// Encode interns s at position pos and returns its code.
func (e *Encoder) Encode(pos int, s string) uint32 {
	if c, ok := e.codes[pos][s]; ok {
		return c
	}
	c := uint32(len(e.names[pos]))
	e.codes[pos][s] = c
	e.names[pos] = append(e.names[pos], s)
	return c
}

// Lookup returns the code of s at position pos without interning it.
func (e *Encoder) Lookup(pos int, s string) (uint32, bool) {
	c, ok := e.codes[pos][s]
	return c, ok
}

// Decode returns the string for code c at position pos.
func (e *Encoder) Decode(pos int, c uint32) string {
	return e.names[pos][c]
}

// Cardinality returns the number of distinct values seen at pos.
func (e *Encoder) Cardinality(pos int) int { return len(e.names[pos]) }

// Values returns the distinct values at pos in lexicographic order.
func (e *Encoder) Values(pos int) []string {
	out := slices.Clone(e.names[pos])
	slices.Sort(out)
	return out
}
