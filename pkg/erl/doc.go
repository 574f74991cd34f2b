// Package erl scores a segmentation against ground-truth skeletons with the
// expected run length (ERL) metric.
//
// The ERL of a skeleton is the expected length of the correctly
// reconstructed run that contains a uniformly random point on the
// skeleton. An edge is correct when both endpoints map to the same nonzero
// segment and that segment does not merge this skeleton with another one.
// Correct edges are grouped by segment; a group of total length L on a
// skeleton of length T contributes L*L/T.
//
// # Pipeline
//
//	lengths, _ := erl.SkeletonLengths(g)        // fills unset edge lengths
//	ev, _ := erl.Evaluate(ctx, g, lookup, opts) // per-skeleton edge scores
//	res, _ := erl.Compute(ctx, g, lookup, erl.Options{FromPositions: true})
//
// [Compute] runs the length calculation, evaluation and aggregation in one
// call and is what most callers want.
//
// # Merges
//
// A (skeleton, segment) pair is significant when at least MergeThreshold
// nodes of the skeleton map to the segment. A segment with significant
// pairs on two or more skeletons is merging, as is any segment whose mask
// support exceeds MergeThreshold. Segment 0 is background and never
// merging. A skeleton with a significant pair on a merging segment is
// merged, and its edges inside that segment score as merged rather than
// correct.
package erl
