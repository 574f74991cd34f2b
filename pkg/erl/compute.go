package erl

import (
	"context"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
	"github.com/matzehuels/emerl/pkg/lut"
	"github.com/matzehuels/emerl/pkg/observability"
	"github.com/matzehuels/emerl/pkg/skeleton"
)

// Options configures [Compute]. Exactly one length source must be given:
// precomputed SkeletonLengths, or FromPositions to derive them (and any
// unset edge lengths) from node coordinates.
type Options struct {
	MaskSupport    lut.MaskSupport
	MergeThreshold int

	// Intervals are ascending skeleton-length thresholds for binned
	// summaries.
	Intervals []float64

	SkeletonLengths map[int64]float64
	FromPositions   bool

	ReturnStats bool
	Workers     int
}

// Validate rejects bad option combinations.
func (o Options) Validate() error {
	switch {
	case o.FromPositions && o.SkeletonLengths != nil:
		return emerrors.New(emerrors.ErrCodeConflictingOptions,
			"skeleton lengths and position-derived lengths are mutually exclusive")
	case !o.FromPositions && o.SkeletonLengths == nil:
		return emerrors.New(emerrors.ErrCodeInvalidInput,
			"either skeleton lengths or position-derived lengths are required")
	case o.MergeThreshold < 0:
		return emerrors.New(emerrors.ErrCodeInvalidInput, "merge threshold %d is negative", o.MergeThreshold)
	}
	return emerrors.ValidateIntervals(o.Intervals)
}

// SkeletonResult is the score of one skeleton.
type SkeletonResult struct {
	Length float64 `json:"length"`
	ERL    float64 `json:"erl"`
	Scores *Scores `json:"scores,omitempty"`
}

// Result is the output of [Compute].
type Result struct {
	Total       Summary                  `json:"total"`
	Intervals   []Summary                `json:"intervals,omitempty"`
	PerSkeleton map[int64]SkeletonResult `json:"per_skeleton,omitempty"`
	Stats       *MergeSplitStats         `json:"stats,omitempty"`
}

// Compute evaluates g against lookup and aggregates the ERL.
//
// Result.PerSkeleton has an entry for every skeleton with a length. A
// skeleton that has edges but no length is an error.
func Compute(ctx context.Context, g *skeleton.Graph, lookup []uint64, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	lengths := opts.SkeletonLengths
	if opts.FromPositions {
		lengths = SkeletonLengths(g)
	}

	ev, err := Evaluate(ctx, g, lookup, EvalOptions{
		MaskSupport:    opts.MaskSupport,
		MergeThreshold: opts.MergeThreshold,
		ReturnStats:    opts.ReturnStats,
		Workers:        opts.Workers,
	})
	if err != nil {
		return nil, err
	}
	for id := range ev.Scores {
		if _, ok := lengths[id]; !ok {
			return nil, emerrors.New(emerrors.ErrCodeInvalidInput, "no length for skeleton %d", id)
		}
	}

	per := make(map[int64]SkeletonResult, len(lengths))
	erls := make(map[int64]float64, len(lengths))
	for id, length := range lengths {
		s, ok := ev.Scores[id]
		if !ok {
			s = newScores()
		}
		v, err := SkeletonERL(g, s, length)
		if err != nil {
			return nil, err
		}
		erls[id] = v
		per[id] = SkeletonResult{Length: length, ERL: v, Scores: s}
	}

	total, intervals := Aggregate(lengths, erls, opts.Intervals)
	observability.Eval().OnERL(ctx, total.ERL, total.SkelAll)
	return &Result{
		Total:       total,
		Intervals:   intervals,
		PerSkeleton: per,
		Stats:       ev.Stats,
	}, nil
}
