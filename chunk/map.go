package chunk

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map applies fn to every chunk with at most workers chunks in flight and
// returns the results in chunk order. workers ≤ 1 runs sequentially. The
// first failure cancels the remaining chunks and is returned as a
// *ChunkError.
func Map[T any](ctx context.Context, chunks []Chunk, workers int, fn func(context.Context, Chunk) (T, error)) ([]T, error) {
	results := make([]T, len(chunks))

	if workers <= 1 {
		for i, ch := range chunks {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r, err := fn(ctx, ch)
			if err != nil {
				return nil, &ChunkError{ID: ch.ID, Err: err}
			}
			results[i] = r
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, ch := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, ch)
			if err != nil {
				return &ChunkError{ID: ch.ID, Err: err}
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
