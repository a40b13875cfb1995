// Package landseg reconciles demographic land-use tables: it fills sparse
// statistics by hierarchical fallback, rakes seed distributions to
// marginal controls chunk by chunk, and joins segment factors back onto a
// population while auditing the population each join gains or loses.
//
// # Quick Start
//
//	h, _ := hierarchy.ReadCSV(lookup)
//	p := landseg.New(h,
//	    landseg.WithWorkers(8),
//	    landseg.WithCheckpoint(checkpoint.New(blobstore.NewLocalStore("./run"))),
//	)
//	st, res, err := p.Run(ctx, landseg.NewRunState("2024-base"), landseg.Inputs{
//	    Seed:     seed,
//	    Controls: controls,
//	    Factors:  factors,
//	})
//
// # Stages
//
// A run moves through the stages estimate, seed, chunk, rake and resolve.
// Every stage method takes the current RunState and returns the updated
// value; RunState.Require reports a stage that has not completed yet.
//
// # Resume
//
// With a checkpoint store configured, every raked chunk is saved as soon
// as it finishes. A rerun with the same RunState loads finished chunks
// instead of raking them again.
//
// # Audit
//
// Convergence warnings, structural zeros and population drift are never
// errors. They are collected as audit.Finding values on the RunState and
// emitted to the configured audit.Sink.
package landseg
