package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/hupe1980/landseg/blobstore"
	"github.com/hupe1980/landseg/chunk"
	"github.com/hupe1980/landseg/codec"
	"github.com/hupe1980/landseg/fact"
	"github.com/hupe1980/landseg/resource"
)

// ErrNoState is returned by LoadState when no run state was committed.
var ErrNoState = fmt.Errorf("checkpoint: no run state: %w", blobstore.ErrNotFound)

// Format selects how tables are written.
type Format uint8

const (
	// FormatBinary is the LSG1 container.
	FormatBinary Format = iota
	// FormatCSV is long-format delimited text.
	FormatCSV
)

func (f Format) String() string {
	if f == FormatCSV {
		return "csv"
	}
	return "binary"
}

func (f Format) ext() string {
	if f == FormatCSV {
		return ".csv"
	}
	return ".lsg"
}

// ParseFormat parses "binary" or "csv".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "binary", "lsg":
		return FormatBinary, nil
	case "csv":
		return FormatCSV, nil
	}
	return 0, fmt.Errorf("checkpoint: unknown format %q", s)
}

const (
	stateDir    = "state/"
	tableName   = "table"
	chunkPrefix = "chunk-"
	notesPrefix = "notes-"
)

// Option configures a Store.
type Option func(*Store)

// WithFormat sets the write format. Reads accept both formats.
func WithFormat(f Format) Option {
	return func(s *Store) {
		s.format = f
	}
}

// WithCompression sets the compression of binary containers.
func WithCompression(c Compression) Option {
	return func(s *Store) {
		s.compression = c
	}
}

// WithCodec sets the codec for run state.
func WithCodec(c codec.Codec) Option {
	return func(s *Store) {
		s.codec = c
	}
}

// WithResourceController limits read and write bandwidth.
func WithResourceController(rc *resource.Controller) Option {
	return func(s *Store) {
		s.rc = rc
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Store saves stage outputs and run state into a blob store.
//
// Layout:
//
//	<stage>/table.lsg          whole-stage table
//	<stage>/chunk-000042.lsg   per-chunk table
//	<stage>/notes-000042.json  per-chunk notes, e.g. audit findings
//	state/000007.json          run state, CURRENT names the latest
type Store struct {
	blobs       blobstore.BlobStore
	format      Format
	compression Compression
	codec       codec.Codec
	rc          *resource.Controller
	logger      *slog.Logger
}

// New creates a checkpoint store on top of blobs.
func New(blobs blobstore.BlobStore, optFns ...Option) *Store {
	s := &Store{
		blobs:       blobs,
		format:      FormatBinary,
		compression: CompressionZSTD,
		codec:       codec.Default,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

// Blobs returns the underlying blob store.
func (s *Store) Blobs() blobstore.BlobStore { return s.blobs }

// SaveTable stores the output of a stage and returns the bytes written.
func (s *Store) SaveTable(ctx context.Context, stage string, t *fact.Table) (int64, error) {
	return s.save(ctx, path.Join(stage, tableName), t)
}

// LoadTable loads the output of a stage.
func (s *Store) LoadTable(ctx context.Context, stage string) (*fact.Table, error) {
	return s.load(ctx, path.Join(stage, tableName))
}

// Has reports whether a stage table exists.
func (s *Store) Has(ctx context.Context, stage string) (bool, error) {
	_, err := s.find(ctx, path.Join(stage, tableName))
	if errors.Is(err, blobstore.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func chunkBase(stage string, id chunk.ID) string {
	return path.Join(stage, fmt.Sprintf("%s%06d", chunkPrefix, int(id)))
}

// SaveChunk stores the output of one chunk of a stage.
func (s *Store) SaveChunk(ctx context.Context, stage string, id chunk.ID, t *fact.Table) (int64, error) {
	return s.save(ctx, chunkBase(stage, id), t)
}

// LoadChunk loads the output of one chunk of a stage.
func (s *Store) LoadChunk(ctx context.Context, stage string, id chunk.ID) (*fact.Table, error) {
	return s.load(ctx, chunkBase(stage, id))
}

func notesName(stage string, id chunk.ID) string {
	return path.Join(stage, fmt.Sprintf("%s%06d.json", notesPrefix, int(id)))
}

// SaveChunkNotes stores v, encoded with the store codec, next to the
// output of one chunk.
func (s *Store) SaveChunkNotes(ctx context.Context, stage string, id chunk.ID, v any) error {
	data, err := s.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("checkpoint: encode notes of chunk %d: %w", id, err)
	}
	return s.blobs.Put(ctx, notesName(stage, id), data)
}

// LoadChunkNotes decodes the notes saved for one chunk into v.
func (s *Store) LoadChunkNotes(ctx context.Context, stage string, id chunk.ID, v any) error {
	data, err := blobstore.ReadAll(ctx, s.blobs, notesName(stage, id))
	if err != nil {
		return err
	}
	if err := s.codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("checkpoint: decode notes of chunk %d: %w", id, err)
	}
	return nil
}

// Chunks returns the ids of the chunks saved for stage, ascending.
func (s *Store) Chunks(ctx context.Context, stage string) ([]chunk.ID, error) {
	names, err := s.blobs.List(ctx, path.Join(stage, chunkPrefix))
	if err != nil {
		return nil, err
	}
	var ids []chunk.ID
	for _, name := range names {
		base := strings.TrimPrefix(path.Base(name), chunkPrefix)
		n, err := strconv.Atoi(strings.TrimSuffix(base, path.Ext(base)))
		if err != nil {
			continue
		}
		if id := chunk.ID(n); !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Stages returns the names of every stage with saved output.
func (s *Store) Stages(ctx context.Context) ([]string, error) {
	names, err := s.blobs.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var stages []string
	for _, name := range names {
		dir := path.Dir(name)
		if dir == "." || strings.HasPrefix(name, stateDir) {
			continue
		}
		if !slices.Contains(stages, dir) {
			stages = append(stages, dir)
		}
	}
	slices.Sort(stages)
	return stages, nil
}

func (s *Store) save(ctx context.Context, base string, t *fact.Table) (int64, error) {
	var data []byte
	switch s.format {
	case FormatCSV:
		var buf bytes.Buffer
		if err := fact.WriteCSV(&buf, t); err != nil {
			return 0, err
		}
		data = buf.Bytes()
	default:
		var err error
		if data, err = EncodeBinary(t, s.compression); err != nil {
			return 0, err
		}
	}

	name := base + s.format.ext()
	w, err := s.blobs.Create(ctx, name)
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(resource.NewRateLimitedWriter(ctx, w, s.rc), bytes.NewReader(data)); err != nil {
		_ = w.Close()
		_ = s.blobs.Delete(ctx, name)
		return 0, fmt.Errorf("checkpoint: write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("checkpoint: commit %s: %w", name, err)
	}

	// Drop a copy left behind in the other format.
	other := base + FormatCSV.ext()
	if s.format == FormatCSV {
		other = base + FormatBinary.ext()
	}
	_ = s.blobs.Delete(ctx, other)

	s.logger.Debug("checkpoint saved", "name", name, "rows", t.Len(), "bytes", len(data))
	return int64(len(data)), nil
}

// find returns the name under which base is stored, preferring the
// configured format.
func (s *Store) find(ctx context.Context, base string) (string, error) {
	formats := []Format{s.format, FormatBinary, FormatCSV}
	for _, f := range formats {
		name := base + f.ext()
		b, err := s.blobs.Open(ctx, name)
		if err == nil {
			_ = b.Close()
			return name, nil
		}
		if !errors.Is(err, blobstore.ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("checkpoint: %s: %w", base, blobstore.ErrNotFound)
}

func (s *Store) load(ctx context.Context, base string) (*fact.Table, error) {
	name, err := s.find(ctx, base)
	if err != nil {
		return nil, err
	}
	data, err := s.read(ctx, name)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(name, FormatCSV.ext()) {
		return fact.ReadCSV(bytes.NewReader(data))
	}
	t, err := DecodeBinary(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

func (s *Store) read(ctx context.Context, name string) ([]byte, error) {
	if s.rc == nil {
		return blobstore.ReadAll(ctx, s.blobs, name)
	}
	b, err := s.blobs.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(resource.NewRateLimitedReader(ctx, rc, s.rc))
}

// SaveState writes v as the next run-state version and points CURRENT at
// it.
func (s *Store) SaveState(ctx context.Context, v any) error {
	data, err := s.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("checkpoint: encode state: %w", err)
	}
	names, err := s.blobs.List(ctx, stateDir)
	if err != nil {
		return err
	}
	next := 1
	for _, name := range names {
		n, err := strconv.Atoi(strings.TrimSuffix(path.Base(name), ".json"))
		if err == nil {
			next = max(next, n+1)
		}
	}
	name := fmt.Sprintf("%s%06d.json", stateDir, next)
	if err := s.blobs.Put(ctx, name, data); err != nil {
		return err
	}
	if err := s.blobs.Put(ctx, blobstore.CurrentName, []byte(name)); err != nil {
		return fmt.Errorf("checkpoint: commit state %s: %w", name, err)
	}
	s.logger.Debug("run state committed", "name", name)
	return nil
}

// LoadState decodes the latest committed run state into v. It returns
// ErrNoState when nothing was committed.
func (s *Store) LoadState(ctx context.Context, v any) error {
	ptr, err := blobstore.ReadAll(ctx, s.blobs, blobstore.CurrentName)
	if errors.Is(err, blobstore.ErrNotFound) {
		return ErrNoState
	}
	if err != nil {
		return err
	}
	data, err := blobstore.ReadAll(ctx, s.blobs, strings.TrimSpace(string(ptr)))
	if err != nil {
		return fmt.Errorf("checkpoint: read state %s: %w", ptr, err)
	}
	if err := s.codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("checkpoint: decode state: %w", err)
	}
	return nil
}
