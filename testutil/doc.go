// Package testutil provides seeded random inputs for tests and benchmarks.
//
//	rng := testutil.NewRNG(4711)
//	seed := rng.Seed3D(testutil.Zones(12), []string{"own", "rent"}, []string{"a", "b", "c"})
//	controls := testutil.MarginalControls(seed, 1.1)
//
// This package is intended for use in tests only.
package testutil
