package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/landseg/fact"
	"github.com/hupe1980/landseg/internal/hash"
)

// ErrCorrupt is returned for a container that fails validation.
var ErrCorrupt = errors.New("checkpoint: corrupt container")

const (
	magic      = "LSG1"
	version    = 1
	headerSize = 20
)

// EncodeBinary encodes t into the LSG1 container.
func EncodeBinary(t *fact.Table, c Compression) ([]byte, error) {
	raw, err := encodePayload(t)
	if err != nil {
		return nil, err
	}
	stored, used, err := compress(raw, c)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize, headerSize+len(stored))
	copy(out, magic)
	binary.LittleEndian.PutUint16(out[4:], version)
	out[6] = byte(used)
	binary.LittleEndian.PutUint32(out[8:], hash.CRC32C(stored))
	binary.LittleEndian.PutUint32(out[12:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(out[16:], uint32(len(stored)))
	return append(out, stored...), nil
}

// DecodeBinary decodes an LSG1 container.
func DecodeBinary(data []byte) (*fact.Table, error) {
	if len(data) < headerSize || string(data[:4]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	c := Compression(data[6])
	sum := binary.LittleEndian.Uint32(data[8:])
	rawLen := int(binary.LittleEndian.Uint32(data[12:]))
	storedLen := int(binary.LittleEndian.Uint32(data[16:]))

	stored := data[headerSize:]
	if len(stored) != storedLen {
		return nil, fmt.Errorf("%w: stored payload is %d bytes, header says %d", ErrCorrupt, len(stored), storedLen)
	}
	if hash.CRC32C(stored) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	raw, err := decompress(stored, c, rawLen)
	if err != nil {
		return nil, err
	}
	return decodePayload(raw)
}

// Payload layout: dims, one dictionary per column (geography first), row
// count, code columns, value column.
func encodePayload(t *fact.Table) ([]byte, error) {
	dims := t.Dims()
	width := len(dims) + 1
	enc := fact.NewEncoder(width)
	codes := make([][]uint32, width)
	for i := range codes {
		codes[i] = make([]uint32, 0, t.Len())
	}
	for row := range t.All() {
		codes[0] = append(codes[0], enc.Encode(0, row.Geo))
		for d, v := range row.Values {
			codes[d+1] = append(codes[d+1], enc.Encode(d+1, v))
		}
	}

	pb := &payloadBuffer{}
	pb.writeUint32(uint32(len(dims)))
	for _, d := range dims {
		pb.writeString(d)
	}
	for pos := range width {
		n := enc.Cardinality(pos)
		pb.writeUint32(uint32(n))
		for c := range n {
			pb.writeString(enc.Decode(pos, uint32(c)))
		}
	}
	pb.writeUint32(uint32(t.Len()))
	for _, col := range codes {
		for _, c := range col {
			pb.writeUint32(c)
		}
	}
	for row := range t.All() {
		pb.writeUint64(math.Float64bits(row.Value))
	}
	return pb.buf, pb.err
}

func decodePayload(raw []byte) (*fact.Table, error) {
	pb := &payloadBuffer{buf: raw}

	dims := make([]string, pb.readCount())
	for i := range dims {
		dims[i] = pb.readString()
	}
	dicts := make([][]string, len(dims)+1)
	for pos := range dicts {
		dicts[pos] = make([]string, pb.readCount())
		for c := range dicts[pos] {
			dicts[pos][c] = pb.readString()
		}
	}
	n := pb.readCount()
	cols := make([][]uint32, len(dicts))
	for pos := range cols {
		cols[pos] = make([]uint32, n)
		for i := range n {
			cols[pos][i] = pb.readUint32()
		}
	}
	if pb.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, pb.err)
	}

	t := fact.New(dims...)
	values := make([]string, len(dims))
	for i := range n {
		v := math.Float64frombits(pb.readUint64())
		if pb.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, pb.err)
		}
		for pos, col := range cols {
			if int(col[i]) >= len(dicts[pos]) {
				return nil, fmt.Errorf("%w: code %d out of range", ErrCorrupt, col[i])
			}
		}
		for d := range dims {
			values[d] = dicts[d+1][cols[d+1][i]]
		}
		if err := t.Add(dicts[0][cols[0][i]], v, values...); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
	if pb.pos != len(pb.buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(pb.buf)-pb.pos)
	}
	return t, nil
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func (p *payloadBuffer) writeUint64(v uint64) {
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

func (p *payloadBuffer) writeUint32(v uint32) {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) writeString(s string) {
	if p.err != nil {
		return
	}
	if len(s) > math.MaxUint16 {
		p.err = fmt.Errorf("checkpoint: string too long: %d", len(s))
		return
	}
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *payloadBuffer) readUint64() uint64 {
	if p.err != nil {
		return 0
	}
	if p.pos+8 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint64(p.buf[p.pos:])
	p.pos += 8
	return v
}

func (p *payloadBuffer) readUint32() uint32 {
	if p.err != nil {
		return 0
	}
	if p.pos+4 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v
}

// readCount reads a length prefix and bounds it by the remaining bytes, so
// a corrupt count cannot trigger a huge allocation.
func (p *payloadBuffer) readCount() int {
	n := int(p.readUint32())
	if p.err == nil && n > len(p.buf)-p.pos {
		p.err = fmt.Errorf("count %d exceeds remaining %d bytes", n, len(p.buf)-p.pos)
		return 0
	}
	return n
}

func (p *payloadBuffer) readString() string {
	if p.err != nil {
		return ""
	}
	if p.pos+2 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return ""
	}
	n := int(binary.LittleEndian.Uint16(p.buf[p.pos:]))
	p.pos += 2
	if p.pos+n > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return ""
	}
	s := string(p.buf[p.pos : p.pos+n])
	p.pos += n
	return s
}
