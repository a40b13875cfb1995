// Package chunk partitions a national raking problem into independent
// per-district sub-problems.
//
// Every fine geography lands in exactly one chunk. Geographies without a
// district are grouped into synthetic districts in lexicographic order,
// with ids above the largest real district id:
//
//	a, err := chunk.Chunker{DistrictLevel: "district", TargetSize: 12}.Assign(h)
//	chunks, err := a.Split(seed, controls, h)
//	results, err := chunk.Map(ctx, chunks, 8, fit)
//
// Map returns results ordered by chunk id, so parallel and sequential runs
// produce identical output.
package chunk
