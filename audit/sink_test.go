package audit

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/hupe1980/landseg/blobstore"
	"github.com/hupe1980/landseg/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Emit(ctx context.Context, findings ...Finding) error {
	args := m.Called(ctx, findings)
	return args.Error(0)
}

func TestMemorySink(t *testing.T) {
	var s MemorySink
	ctx := context.Background()
	require.NoError(t, s.Emit(ctx,
		NewFinding(NameStructuralZero, SeverityWarning, "c1", 5, 0),
		NewFinding(NameNotConverged, SeverityWarning, "c1", 0, 0.2),
	))
	require.NoError(t, s.Emit(ctx, NewFinding(NameStructuralZero, SeverityWarning, "c2", 3, 0)))

	assert.Len(t, s.Findings(), 3)
	zeros := s.Named(NameStructuralZero)
	require.Len(t, zeros, 2)
	assert.Equal(t, "c2", zeros[1].Subject)
}

func TestBlobSink(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	sink := NewBlobSink(store, codec.JSON{}, "audit/")

	require.NoError(t, sink.Emit(ctx))
	assert.Zero(t, store.Len())

	findings := []Finding{
		NewFinding(NamePopulationDrift, SeverityWarning, "tenure", 100, 90),
		NewFinding(NameDefaultedFactor, SeverityInfo, "vacancy", 0, 12),
	}
	require.NoError(t, sink.Emit(ctx, findings...))
	require.NoError(t, sink.Emit(ctx, findings[0]))

	names, err := store.List(ctx, "audit/")
	require.NoError(t, err)
	require.Len(t, names, 2)
	assert.True(t, strings.HasSuffix(names[0], "-000001.jsonl"))

	data, err := blobstore.ReadAll(ctx, store, names[0])
	require.NoError(t, err)

	var got []Finding
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var f Finding
		require.NoError(t, codec.JSON{}.Unmarshal(sc.Bytes(), &f))
		got = append(got, f)
	}
	assert.Equal(t, findings, got)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, sink.Emit(context.Background(),
		NewFinding(NameStructuralZero, SeverityWarning, "zone_total", 30, 0),
		NewFinding(NameDefaultedFactor, SeverityInfo, "vacancy", 0, 1),
	))

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "name=structural_zero")
	// Info findings are logged at debug, below the handler's default level.
	assert.NotContains(t, out, "defaulted_factor")
}

func TestMulti(t *testing.T) {
	ctx := context.Background()
	f := NewFinding(NameNotConverged, SeverityWarning, "c", 0, 1)

	var mem MemorySink
	failing := new(mockSink)
	failing.On("Emit", ctx, []Finding{f}).Return(errors.New("disk full"))
	never := new(mockSink)

	err := Multi(&mem, Discard, failing, never).Emit(ctx, f)
	require.EqualError(t, err, "disk full")
	assert.Len(t, mem.Findings(), 1)
	failing.AssertExpectations(t)
	never.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
}
