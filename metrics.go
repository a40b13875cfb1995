package landseg

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/hupe1980/landseg/chunk"
)

// MetricsCollector defines an interface for collecting run metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordRake is called after each chunk fit.
	RecordRake(id chunk.ID, iterations int, converged bool, duration time.Duration)

	// RecordChunk is called after each chunk is processed, whether it was
	// raked or loaded from a checkpoint. err is nil if successful.
	RecordChunk(id chunk.ID, rows int, duration time.Duration, err error)

	// RecordJoin is called after each factor join.
	RecordJoin(factor string, relDelta float64)

	// RecordCheckpoint is called after each checkpoint write.
	RecordCheckpoint(stage string, bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRake(chunk.ID, int, bool, time.Duration)        {}
func (NoopMetricsCollector) RecordChunk(chunk.ID, int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordJoin(string, float64)                           {}
func (NoopMetricsCollector) RecordCheckpoint(string, int64, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	RakeCount        atomic.Int64
	RakeNotConverged atomic.Int64
	RakeIterations   atomic.Int64
	RakeTotalNanos   atomic.Int64
	ChunkCount       atomic.Int64
	ChunkErrors      atomic.Int64
	ChunkRows        atomic.Int64
	JoinCount        atomic.Int64
	maxDriftBits     atomic.Uint64
	CheckpointCount  atomic.Int64
	CheckpointErrors atomic.Int64
	CheckpointBytes  atomic.Int64
	CheckpointNanos  atomic.Int64
}

// RecordRake implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRake(_ chunk.ID, iterations int, converged bool, duration time.Duration) {
	b.RakeCount.Add(1)
	b.RakeIterations.Add(int64(iterations))
	b.RakeTotalNanos.Add(duration.Nanoseconds())
	if !converged {
		b.RakeNotConverged.Add(1)
	}
}

// RecordChunk implements MetricsCollector.
func (b *BasicMetricsCollector) RecordChunk(_ chunk.ID, rows int, _ time.Duration, err error) {
	b.ChunkCount.Add(1)
	b.ChunkRows.Add(int64(rows))
	if err != nil {
		b.ChunkErrors.Add(1)
	}
}

// RecordJoin implements MetricsCollector.
func (b *BasicMetricsCollector) RecordJoin(_ string, relDelta float64) {
	b.JoinCount.Add(1)
	for {
		old := b.maxDriftBits.Load()
		if relDelta <= math.Float64frombits(old) {
			return
		}
		if b.maxDriftBits.CompareAndSwap(old, math.Float64bits(relDelta)) {
			return
		}
	}
}

// RecordCheckpoint implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCheckpoint(_ string, bytes int64, duration time.Duration, err error) {
	b.CheckpointCount.Add(1)
	b.CheckpointNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CheckpointErrors.Add(1)
		return
	}
	b.CheckpointBytes.Add(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	s := BasicMetricsStats{
		RakeCount:        b.RakeCount.Load(),
		RakeNotConverged: b.RakeNotConverged.Load(),
		ChunkCount:       b.ChunkCount.Load(),
		ChunkErrors:      b.ChunkErrors.Load(),
		ChunkRows:        b.ChunkRows.Load(),
		JoinCount:        b.JoinCount.Load(),
		MaxJoinDrift:     math.Float64frombits(b.maxDriftBits.Load()),
		CheckpointCount:  b.CheckpointCount.Load(),
		CheckpointErrors: b.CheckpointErrors.Load(),
		CheckpointBytes:  b.CheckpointBytes.Load(),
	}
	if s.RakeCount > 0 {
		s.RakeAvgIterations = float64(b.RakeIterations.Load()) / float64(s.RakeCount)
		s.RakeAvgNanos = b.RakeTotalNanos.Load() / s.RakeCount
	}
	return s
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	RakeCount         int64
	RakeNotConverged  int64
	RakeAvgIterations float64
	RakeAvgNanos      int64
	ChunkCount        int64
	ChunkErrors       int64
	ChunkRows         int64
	JoinCount         int64
	MaxJoinDrift      float64
	CheckpointCount   int64
	CheckpointErrors  int64
	CheckpointBytes   int64
}
