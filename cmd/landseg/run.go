package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/hupe1980/landseg"
	"github.com/hupe1980/landseg/audit"
	"github.com/hupe1980/landseg/checkpoint"
	"github.com/hupe1980/landseg/chunk"
	"github.com/hupe1980/landseg/fact"
	"github.com/hupe1980/landseg/resource"
)

func newLogger(cfg LogConfig) (*landseg.Logger, error) {
	level := slog.LevelInfo
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return landseg.NewTextLogger(level), nil
	case "json":
		return landseg.NewJSONLogger(level), nil
	}
	return nil, fmt.Errorf("unknown log format %q", cfg.Format)
}

func pipelineOptions(job *Job) []landseg.Option {
	var opts []landseg.Option
	if job.Rake.Tolerance > 0 {
		opts = append(opts, landseg.WithTolerance(job.Rake.Tolerance))
	}
	if job.Rake.MaxIterations > 0 {
		opts = append(opts, landseg.WithMaxIterations(job.Rake.MaxIterations))
	}
	if job.Rake.Folding != nil {
		opts = append(opts, landseg.WithFolding(*job.Rake.Folding))
	}
	if job.Chunking.DistrictLevel != "" {
		opts = append(opts, landseg.WithDistrictLevel(job.Chunking.DistrictLevel))
	}
	if job.Resolve.DriftThreshold > 0 {
		opts = append(opts, landseg.WithDriftThreshold(job.Resolve.DriftThreshold))
	}
	return append(opts,
		landseg.WithChunkSize(job.Chunking.Size),
		landseg.WithWorkers(job.Chunking.Workers),
	)
}

func runJob(ctx context.Context, job *Job, fresh bool, out io.Writer) error {
	logger, err := newLogger(job.Log)
	if err != nil {
		return err
	}
	logger = logger.WithRun(job.RunID)

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:   job.Resources.MemoryLimitBytes,
		MaxWorkers:         int64(max(job.Chunking.Workers, 1)),
		IOLimitBytesPerSec: job.Resources.IOLimitBytesPerSec,
	})
	cp, err := openCheckpoint(ctx, job.Storage, rc, logger.Logger)
	if err != nil {
		return err
	}

	h, in, err := loadInputs(job)
	if err != nil {
		return err
	}

	var sink audit.Sink = audit.LogSink{Logger: logger.Logger}
	if cp != nil && job.Findings.Prefix != "" {
		sink = audit.Multi(sink, audit.NewBlobSink(cp.Blobs(), nil, job.Findings.Prefix))
	}
	metrics := &landseg.BasicMetricsCollector{}

	opts := append(pipelineOptions(job),
		landseg.WithLogger(logger),
		landseg.WithSink(sink),
		landseg.WithMetricsCollector(metrics),
		landseg.WithResourceController(rc),
	)
	if cp != nil {
		opts = append(opts, landseg.WithCheckpoint(cp))
	}
	p := landseg.New(h, opts...)

	st := landseg.NewRunState(job.RunID)
	if !fresh {
		if st, err = p.LoadRunState(ctx, job.RunID); err != nil {
			return err
		}
	}

	st, res, err := p.Run(ctx, st, in)
	if err != nil {
		var ue *landseg.UnresolvedSegmentError
		if errors.As(err, &ue) {
			logger.ErrorContext(ctx, "unresolved segments", "factor", ue.Factor, "rows", len(ue.Rows))
		}
		return err
	}

	if err := writeOutput(job.Output, out, res.Table); err != nil {
		return err
	}

	stats := metrics.GetStats()
	logger.InfoContext(ctx, "run complete",
		"stages", st.Completed.String(),
		"chunks", len(st.ChunksDone),
		"raked", stats.RakeCount,
		"not_converged", stats.RakeNotConverged,
		"avg_iterations", stats.RakeAvgIterations,
		"max_join_drift", stats.MaxJoinDrift,
		"checkpoint_bytes", stats.CheckpointBytes,
		"findings", len(st.Findings),
		"rows", res.Table.Len(),
	)
	return nil
}

func writeOutput(path string, stdout io.Writer, t *fact.Table) error {
	if path == "" {
		return fact.WriteCSV(stdout, t.Sorted())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fact.WriteCSV(f, t.Sorted()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func runChunks(lookup, districtLevel string, size int, out io.Writer) error {
	h, err := readHierarchy(lookup)
	if err != nil {
		return err
	}
	a, err := chunk.Chunker{DistrictLevel: districtLevel, TargetSize: size}.Assign(h)
	if err != nil {
		return err
	}
	if err := a.Verify(h.Fine()); err != nil {
		return err
	}

	w := csv.NewWriter(out)
	if err := w.Write([]string{h.FineLevel(), districtLevel, "chunk", "synthetic"}); err != nil {
		return err
	}
	for _, id := range a.IDs() {
		for _, z := range a.Zones(id) {
			rec := []string{z, a.District(id), strconv.Itoa(int(id)), strconv.FormatBool(a.Synthetic(id))}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

func runCheckpoints(ctx context.Context, job *Job, out io.Writer) error {
	cp, err := openCheckpoint(ctx, job.Storage, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return err
	}
	if cp == nil {
		return errors.New("job has no storage backend")
	}

	stages, err := cp.Stages(ctx)
	if err != nil {
		return err
	}
	for _, s := range stages {
		chunks, err := cp.Chunks(ctx, s)
		if err != nil {
			return err
		}
		has, err := cp.Has(ctx, s)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-12s table=%-5t chunks=%d\n", s, has, len(chunks))
	}

	var st landseg.RunState
	switch err := cp.LoadState(ctx, &st); {
	case errors.Is(err, checkpoint.ErrNoState):
		fmt.Fprintln(out, "no committed run state")
		return nil
	case err != nil:
		return err
	}
	fmt.Fprintf(out, "run %s: completed=%s chunks_done=%d findings=%d updated=%s\n",
		st.RunID, st.Completed, len(st.ChunksDone), len(st.Findings), st.UpdatedAt.Format("2006-01-02T15:04:05Z"))
	return nil
}
