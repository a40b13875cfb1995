// Package estimate resolves a ratio statistic (household occupancy, an
// NS-SEC or SOC split) for every fine geography by falling back through a
// geography hierarchy where fine-level data is sparse.
//
// For each level, numerators and denominators are summed independently
// over the geographies below it. A fine geography takes the ratio of the
// finest level whose denominator is positive, and every estimate carries
// the level it came from.
package estimate
