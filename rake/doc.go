// Package rake implements iterative proportional fitting (raking, or
// "furnessing") of a seed fact table to one or more marginal controls.
//
// Fit works on a dense working table: the cross product of the seed's
// geographies with every category of every dimension seen in the seed or a
// control. Cells absent from the seed are materialised as zeros, so every
// control group has cells to report on even when it cannot gain mass.
//
// A sweep rescales, control by control, every group of cells to its target.
// Sweeps repeat until the largest relative deviation of any control group
// is below the tolerance or the iteration cap is reached. Not converging is
// reported as a ConvergenceWarning on the Result, never as an error.
//
// With more than two controls the engine folds: round k rakes a combined
// control that freezes the joint distribution already fitted over the
// dimensions of controls 0..k-1 against control k, and a final polishing
// pass over all original controls runs if the folded result is not within
// tolerance of every one of them.
package rake
