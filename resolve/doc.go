// Package resolve joins segment-factor tables onto a base population and
// audits the population lost or gained by every join.
//
// Each Factor either splits the base into new dimensions (shares that sum
// to one per join key) or rescales it. After every join the total is
// compared with the pre-join total; drift beyond the threshold on a split
// factor is reported as an audit finding, not an error. Rows that end up
// without any factor fail the run with an *UnresolvedSegmentError.
package resolve
