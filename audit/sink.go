package audit

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/landseg/blobstore"
	"github.com/hupe1980/landseg/codec"
)

// Sink receives findings. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, findings ...Finding) error
}

// Discard is a Sink that drops every finding.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(context.Context, ...Finding) error { return nil }

// MemorySink keeps findings in memory, mainly for tests.
type MemorySink struct {
	mu       sync.Mutex
	findings []Finding
}

// Emit implements Sink.
func (m *MemorySink) Emit(_ context.Context, findings ...Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findings = append(m.findings, findings...)
	return nil
}

// Findings returns a copy of everything emitted so far.
func (m *MemorySink) Findings() []Finding {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.findings)
}

// Named returns the emitted findings with the given name.
func (m *MemorySink) Named(name string) []Finding {
	var out []Finding
	for _, f := range m.Findings() {
		if f.Name == name {
			out = append(out, f)
		}
	}
	return out
}

// LogSink writes findings to a slog logger; warnings and errors at their
// own level, info findings at debug.
type LogSink struct {
	Logger *slog.Logger
}

// Emit implements Sink.
func (s LogSink) Emit(ctx context.Context, findings ...Finding) error {
	for _, f := range findings {
		level := slog.LevelDebug
		switch f.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityError:
			level = slog.LevelError
		}
		s.Logger.Log(ctx, level, "audit finding",
			"name", f.Name,
			"subject", f.Subject,
			"expected", f.Expected,
			"actual", f.Actual,
			"rel_delta", f.RelDelta,
			"detail", f.Detail,
		)
	}
	return nil
}

// BlobSink writes each Emit call as one JSON-lines blob under prefix.
type BlobSink struct {
	store  blobstore.BlobStore
	codec  codec.Codec
	prefix string

	mu  sync.Mutex
	seq int
}

// NewBlobSink creates a sink writing to store. A nil codec selects
// codec.Default.
func NewBlobSink(store blobstore.BlobStore, c codec.Codec, prefix string) *BlobSink {
	if c == nil {
		c = codec.Default
	}
	return &BlobSink{store: store, codec: c, prefix: prefix}
}

// Emit implements Sink.
func (s *BlobSink) Emit(ctx context.Context, findings ...Finding) error {
	if len(findings) == 0 {
		return nil
	}
	var buf []byte
	for _, f := range findings {
		b, err := s.codec.Marshal(f)
		if err != nil {
			return fmt.Errorf("audit: encode finding %s: %w", f.Name, err)
		}
		buf = append(buf, b...)
		buf = append(buf, '\n')
	}

	s.mu.Lock()
	s.seq++
	name := fmt.Sprintf("%sfindings-%d-%06d.jsonl", s.prefix, time.Now().UTC().Unix(), s.seq)
	s.mu.Unlock()

	return s.store.Put(ctx, name, buf)
}

// Multi fans findings out to several sinks, returning the first error.
func Multi(sinks ...Sink) Sink { return multi(sinks) }

type multi []Sink

func (m multi) Emit(ctx context.Context, findings ...Finding) error {
	for _, s := range m {
		if err := s.Emit(ctx, findings...); err != nil {
			return err
		}
	}
	return nil
}
