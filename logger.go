package landseg

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/hupe1980/landseg/chunk"
	"github.com/hupe1980/landseg/rake"
	"github.com/hupe1980/landseg/resolve"
)

// Logger wraps slog.Logger with landseg-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

// WithRun adds a run field to the logger.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		Logger: l.Logger.With("run", runID),
	}
}

// WithStage adds a stage field to the logger.
func (l *Logger) WithStage(s Stage) *Logger {
	return &Logger{
		Logger: l.Logger.With("stage", s.String()),
	}
}

// LogChunk logs the partition of a run.
func (l *Logger) LogChunk(ctx context.Context, chunks, synthetic, zones int) {
	l.InfoContext(ctx, "chunks assigned",
		"chunks", chunks,
		"synthetic", synthetic,
		"zones", zones,
	)
}

// LogRake logs the fit of one chunk.
func (l *Logger) LogRake(ctx context.Context, id chunk.ID, res *rake.Result, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "rake failed",
			"chunk", id,
			"error", err,
		)
	case res.Warning != nil:
		l.WarnContext(ctx, "rake did not converge",
			"chunk", id,
			"control", res.Warning.Control,
			"deviation", res.Warning.Deviation,
			"iterations", res.Iterations,
		)
	default:
		l.DebugContext(ctx, "rake converged",
			"chunk", id,
			"iterations", res.Iterations,
			"deviation", res.MaxDeviation,
			"structural_zeros", len(res.StructuralZeros),
		)
	}
}

// LogJoin logs one factor join.
func (l *Logger) LogJoin(ctx context.Context, rep resolve.JoinReport) {
	l.InfoContext(ctx, "factor joined",
		"factor", rep.Factor,
		"before", rep.Before,
		"after", rep.After,
		"rel_delta", rep.RelDelta,
		"unmatched", rep.Unmatched,
	)
}

// LogCheckpoint logs a checkpoint write.
func (l *Logger) LogCheckpoint(ctx context.Context, stage string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint failed",
			"stage", stage,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "checkpoint saved",
		"stage", stage,
		"bytes", bytes,
	)
}

// LogResume logs work skipped because a checkpoint already holds it.
func (l *Logger) LogResume(ctx context.Context, stage Stage, chunks int) {
	l.InfoContext(ctx, "resuming from checkpoint",
		"stage", stage.String(),
		"chunks", chunks,
	)
}
