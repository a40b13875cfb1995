package landseg

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/hupe1980/landseg/audit"
	"github.com/hupe1980/landseg/blobstore"
	"github.com/hupe1980/landseg/chunk"
	"github.com/hupe1980/landseg/estimate"
	"github.com/hupe1980/landseg/fact"
	"github.com/hupe1980/landseg/hierarchy"
	"github.com/hupe1980/landseg/rake"
	"github.com/hupe1980/landseg/resolve"
)

// Checkpoint stage names.
const (
	SeedCheckpoint    = "seed"
	RakeCheckpoint    = "rake"
	ResolveCheckpoint = "resolve"
	estimateDir       = "estimate"
)

// Pipeline runs the stages of a reconciliation over one hierarchy.
// It is safe for concurrent use; all progress lives in RunState values.
type Pipeline struct {
	h         *hierarchy.Hierarchy
	opts      options
	estimator *estimate.Estimator
	engine    *rake.Engine
	resolver  *resolve.Resolver
}

// New creates a pipeline over h.
func New(h *hierarchy.Hierarchy, optFns ...Option) *Pipeline {
	o := applyOptions(optFns)
	logger := o.logger.Logger

	return &Pipeline{
		h:         h,
		opts:      o,
		estimator: estimate.New(h, estimate.WithLogger(logger)),
		engine: rake.New(
			rake.WithTolerance(o.tolerance),
			rake.WithMaxIterations(o.maxIterations),
			rake.WithFolding(o.folding),
			rake.WithHierarchy(h),
			rake.WithLogger(logger),
		),
		resolver: resolve.New(
			resolve.WithDriftThreshold(o.driftThreshold),
			resolve.WithSink(o.sink),
			resolve.WithLogger(logger),
		),
	}
}

// Hierarchy returns the pipeline's hierarchy.
func (p *Pipeline) Hierarchy() *hierarchy.Hierarchy { return p.h }

// Inputs are the tables of a full run.
type Inputs struct {
	Seed     *fact.Table
	Controls []fact.Control
	// Factors are joined onto the raked population in order.
	Factors []resolve.Factor
}

// Run executes seed, chunk, rake and resolve. Stages already completed in
// st are loaded from the checkpoint store instead of being recomputed.
func (p *Pipeline) Run(ctx context.Context, st RunState, in Inputs) (RunState, *resolve.Result, error) {
	var err error
	if !st.Done(StageSeed) {
		if st, err = p.Seed(ctx, st, in.Seed); err != nil {
			return st, nil, err
		}
	}

	var raked *fact.Table
	if st.Done(StageRake) && p.opts.checkpoint != nil {
		raked, err = p.opts.checkpoint.LoadTable(ctx, RakeCheckpoint)
		switch {
		case err == nil:
			p.opts.logger.LogResume(ctx, StageRake, len(st.ChunksDone))
		case !errors.Is(err, blobstore.ErrNotFound):
			return st, nil, err
		}
	}
	if raked == nil {
		var chunks []chunk.Chunk
		if st, chunks, err = p.Chunk(ctx, st, in.Seed, in.Controls); err != nil {
			return st, nil, err
		}
		if st, raked, err = p.Rake(ctx, st, chunks); err != nil {
			return st, nil, err
		}
	}

	return p.Resolve(ctx, st, raked, in.Factors...)
}

// Estimate fills a statistic for every fine geography and records how
// many values fell back to a coarser level. The estimates are saved as a
// factor table over dimension name.
func (p *Pipeline) Estimate(ctx context.Context, st RunState, name string, obs []estimate.Observation) (RunState, []estimate.Estimate, error) {
	ests, err := p.estimator.Estimate(obs)
	if err != nil {
		return st, nil, err
	}

	fallbacks := estimate.Fallbacks(ests, p.h.FineLevel())
	f := audit.NewFinding(audit.NameFallback, audit.SeverityInfo, name, float64(len(ests)), float64(len(fallbacks)))
	f.Detail = fmt.Sprintf("provenance %v", estimate.Provenance(ests))
	if st, err = p.emit(ctx, st, f); err != nil {
		return st, nil, err
	}

	if p.opts.checkpoint != nil {
		tbl, err := estimate.ToTable(ests, name)
		if err != nil {
			return st, nil, err
		}
		if err := p.save(ctx, path.Join(estimateDir, name), tbl); err != nil {
			return st, nil, err
		}
	}

	st = st.Complete(StageEstimate)
	return st, ests, p.commit(ctx, st)
}

// Seed records the seed table of the run.
func (p *Pipeline) Seed(ctx context.Context, st RunState, seed *fact.Table) (RunState, error) {
	if seed == nil || seed.Len() == 0 {
		return st, ErrEmptySeed
	}
	if err := p.save(ctx, SeedCheckpoint, seed); err != nil {
		return st, err
	}
	st = st.Complete(StageSeed)
	return st, p.commit(ctx, st)
}

// Chunk partitions seed and controls by district.
func (p *Pipeline) Chunk(ctx context.Context, st RunState, seed *fact.Table, controls []fact.Control) (RunState, []chunk.Chunk, error) {
	if err := st.Require(StageChunk); err != nil {
		return st, nil, err
	}

	a, err := chunk.Chunker{DistrictLevel: p.opts.districtLevel, TargetSize: p.opts.chunkSize}.Assign(p.h)
	if err != nil {
		return st, nil, err
	}
	if err := a.Verify(p.h.Fine()); err != nil {
		return st, nil, err
	}
	chunks, err := a.Split(seed, controls, p.h)
	if err != nil {
		return st, nil, err
	}

	var synthetic int
	for _, id := range a.IDs() {
		if a.Synthetic(id) {
			synthetic++
		}
	}
	p.opts.logger.LogChunk(ctx, a.Len(), synthetic, len(p.h.Fine()))

	st = st.Complete(StageChunk)
	return st, chunks, p.commit(ctx, st)
}

type rakeOutcome struct {
	table    *fact.Table
	findings []audit.Finding
}

// Rake fits every chunk and concatenates the results in chunk order.
// Chunks recorded as done in st are loaded, with their findings, from the
// run's checkpoints. When a chunk fails, the returned state records every
// chunk finished so far.
func (p *Pipeline) Rake(ctx context.Context, st RunState, chunks []chunk.Chunk) (RunState, *fact.Table, error) {
	if err := st.Require(StageRake); err != nil {
		return st, nil, err
	}
	if len(chunks) == 0 {
		return st, nil, ErrEmptySeed
	}

	stage := chunkStage(st.RunID)
	done := make(map[chunk.ID]bool, len(st.ChunksDone))
	for _, id := range st.ChunksDone {
		done[id] = true
	}
	if len(done) > 0 {
		p.opts.logger.LogResume(ctx, StageRake, len(done))
	}

	var (
		mu       sync.Mutex
		finished []chunk.ID
	)
	results, err := chunk.Map(ctx, chunks, p.opts.workers, func(ctx context.Context, ch chunk.Chunk) (rakeOutcome, error) {
		if done[ch.ID] && p.opts.checkpoint != nil {
			out, err := p.loadChunk(ctx, stage, ch.ID)
			if err == nil {
				return out, nil
			}
			if !errors.Is(err, blobstore.ErrNotFound) {
				return rakeOutcome{}, err
			}
		}

		out, err := p.rakeChunk(ctx, stage, ch)
		if err != nil {
			return rakeOutcome{}, err
		}
		mu.Lock()
		finished = append(finished, ch.ID)
		mu.Unlock()
		return out, nil
	})
	st = st.WithChunks(finished...)
	if err != nil {
		if cerr := p.commit(ctx, st); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return st, nil, err
	}

	raked := fact.New(chunks[0].Seed.Dims()...)
	var findings []audit.Finding
	for _, r := range results {
		for row := range r.table.All() {
			if err := raked.Add(row.Geo, row.Value, row.Values...); err != nil {
				return st, nil, err
			}
		}
		findings = append(findings, r.findings...)
	}
	if st, err = p.emit(ctx, st, findings...); err != nil {
		return st, nil, err
	}
	if err := p.save(ctx, RakeCheckpoint, raked); err != nil {
		return st, nil, err
	}

	st = st.Complete(StageRake)
	return st, raked, p.commit(ctx, st)
}

func (p *Pipeline) rakeChunk(ctx context.Context, stage string, ch chunk.Chunk) (rakeOutcome, error) {
	rc := p.opts.rc
	if err := rc.AcquireWorker(ctx); err != nil {
		return rakeOutcome{}, err
	}
	defer rc.ReleaseWorker()

	mem := workingSetBytes(ch)
	if err := rc.AcquireMemory(ctx, mem); err != nil {
		return rakeOutcome{}, err
	}
	defer rc.ReleaseMemory(mem)

	start := time.Now()
	res, err := p.engine.Fit(ctx, ch.Seed, ch.Controls)
	p.opts.logger.LogRake(ctx, ch.ID, res, err)
	if err != nil {
		p.opts.metricsCollector.RecordChunk(ch.ID, 0, time.Since(start), err)
		return rakeOutcome{}, err
	}
	p.opts.metricsCollector.RecordRake(ch.ID, res.Iterations, res.Converged, time.Since(start))

	out := rakeOutcome{
		table:    res.Table,
		findings: res.Findings(fmt.Sprintf("chunk %d", ch.ID)),
	}
	if p.opts.checkpoint != nil {
		name := chunkCheckpoint(stage, ch.ID)
		cpStart := time.Now()
		n, err := p.opts.checkpoint.SaveChunk(ctx, stage, ch.ID, out.table)
		if err == nil {
			// Saved even when empty; a missing notes blob means re-rake.
			err = p.opts.checkpoint.SaveChunkNotes(ctx, stage, ch.ID, chunkNotes{Findings: out.findings})
		}
		p.opts.metricsCollector.RecordCheckpoint(name, n, time.Since(cpStart), err)
		p.opts.logger.LogCheckpoint(ctx, name, n, err)
		if err != nil {
			return rakeOutcome{}, err
		}
	}
	p.opts.metricsCollector.RecordChunk(ch.ID, out.table.Len(), time.Since(start), nil)
	return out, nil
}

// chunkNotes is what a raked chunk saves besides its table.
type chunkNotes struct {
	Findings []audit.Finding `json:"findings"`
}

// loadChunk restores a raked chunk and the findings it produced.
func (p *Pipeline) loadChunk(ctx context.Context, stage string, id chunk.ID) (rakeOutcome, error) {
	start := time.Now()
	tbl, err := p.opts.checkpoint.LoadChunk(ctx, stage, id)
	if err != nil {
		return rakeOutcome{}, err
	}
	var notes chunkNotes
	if err := p.opts.checkpoint.LoadChunkNotes(ctx, stage, id, &notes); err != nil {
		return rakeOutcome{}, err
	}
	p.opts.metricsCollector.RecordChunk(id, tbl.Len(), time.Since(start), nil)
	return rakeOutcome{table: tbl, findings: notes.Findings}, nil
}

// chunkStage is where the chunks of one run are checkpointed.
func chunkStage(runID string) string {
	return path.Join(runID, RakeCheckpoint)
}

func chunkCheckpoint(stage string, id chunk.ID) string {
	return fmt.Sprintf("%s/chunk-%06d", stage, int(id))
}

// workingSetBytes estimates the memory of a chunk's dense working table.
func workingSetBytes(ch chunk.Chunk) int64 {
	dims := ch.Seed.Dims()
	cells := int64(len(ch.Seed.Geographies()))
	for _, d := range dims {
		cells *= int64(max(len(ch.Seed.Categories(d)), 1))
	}
	perCell := int64(8 + 4*(len(dims)+1) + 4*len(ch.Controls))
	return cells * perCell
}

// Resolve joins factors onto the raked population.
func (p *Pipeline) Resolve(ctx context.Context, st RunState, base *fact.Table, factors ...resolve.Factor) (RunState, *resolve.Result, error) {
	if err := st.Require(StageResolve); err != nil {
		return st, nil, err
	}
	res, err := p.resolver.Resolve(ctx, base, factors...)
	if err != nil {
		return st, nil, err
	}
	for _, j := range res.Joins {
		p.opts.logger.LogJoin(ctx, j)
		p.opts.metricsCollector.RecordJoin(j.Factor, j.RelDelta)
	}
	// The resolver already emitted its findings to the sink.
	st = st.WithFindings(res.Findings...)

	if err := p.save(ctx, ResolveCheckpoint, res.Table); err != nil {
		return st, nil, err
	}
	st = st.Complete(StageResolve)
	return st, res, p.commit(ctx, st)
}

func (p *Pipeline) emit(ctx context.Context, st RunState, findings ...audit.Finding) (RunState, error) {
	if len(findings) == 0 {
		return st, nil
	}
	if err := p.opts.sink.Emit(ctx, findings...); err != nil {
		return st, fmt.Errorf("landseg: emit findings: %w", err)
	}
	return st.WithFindings(findings...), nil
}

func (p *Pipeline) save(ctx context.Context, stage string, t *fact.Table) error {
	if p.opts.checkpoint == nil {
		return nil
	}
	start := time.Now()
	n, err := p.opts.checkpoint.SaveTable(ctx, stage, t)
	p.opts.metricsCollector.RecordCheckpoint(stage, n, time.Since(start), err)
	p.opts.logger.LogCheckpoint(ctx, stage, n, err)
	return err
}

func (p *Pipeline) commit(ctx context.Context, st RunState) error {
	if p.opts.checkpoint == nil {
		return nil
	}
	return p.opts.checkpoint.SaveState(ctx, st)
}

// LoadRunState returns the last committed state of the checkpoint store
// when it belongs to runID, and a new state for runID otherwise.
func (p *Pipeline) LoadRunState(ctx context.Context, runID string) (RunState, error) {
	if p.opts.checkpoint == nil {
		return NewRunState(runID), nil
	}
	var st RunState
	err := p.opts.checkpoint.LoadState(ctx, &st)
	switch {
	case errors.Is(err, blobstore.ErrNotFound):
		return NewRunState(runID), nil
	case err != nil:
		return RunState{}, err
	}
	if st.RunID != runID {
		p.opts.logger.InfoContext(ctx, "ignoring run state of another run", "run_id", runID, "found", st.RunID)
		return NewRunState(runID), nil
	}
	return st, nil
}
