package erl

import (
	"context"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
	"github.com/matzehuels/emerl/pkg/lut"
	"github.com/matzehuels/emerl/pkg/observability"
	"github.com/matzehuels/emerl/pkg/skeleton"
)

// Scores counts the classified edges of one skeleton.
type Scores struct {
	Omitted int `json:"omitted"`
	Split   int `json:"split"`
	Merged  int `json:"merged"`
	Correct int `json:"correct"`

	// CorrectEdges lists the correct edges of each segment in graph edge
	// order.
	CorrectEdges map[uint64][]skeleton.Edge `json:"-"`
}

func newScores() *Scores {
	return &Scores{CorrectEdges: make(map[uint64][]skeleton.Edge)}
}

// Total returns the number of classified edges.
func (s *Scores) Total() int { return s.Omitted + s.Split + s.Merged + s.Correct }

// SegmentPair is the pair of segments on either side of a split edge, in
// endpoint order.
type SegmentPair struct {
	A uint64 `json:"a"`
	B uint64 `json:"b"`
}

// MergeSplitStats records which skeletons each merging segment spans and
// which segment pairs split each skeleton.
type MergeSplitStats struct {
	// Merges maps a merging segment to the skeletons, ascending, that
	// have a significant pair with it.
	Merges map[uint64][]int64 `json:"merges"`

	// Splits maps a skeleton to its split pairs in edge order.
	Splits map[int64][]SegmentPair `json:"splits"`
}

// EvalOptions configures [Evaluate].
type EvalOptions struct {
	// MaskSupport marks segments known to merge with background. Any
	// segment with support above MergeThreshold is merging.
	MaskSupport lut.MaskSupport

	// MergeThreshold is the minimum node count for a significant
	// skeleton-segment pair.
	MergeThreshold int

	// ReturnStats fills Evaluation.Stats.
	ReturnStats bool

	// Workers bounds concurrent edge classification. Values below 1
	// mean 1.
	Workers int
}

// Evaluation is the output of [Evaluate].
type Evaluation struct {
	// Scores holds one entry per skeleton that has at least one edge.
	Scores map[int64]*Scores

	// MergingSegments lists merging segments in ascending order.
	MergingSegments []uint64

	// MergedSkeletons lists merged skeletons in ascending order.
	MergedSkeletons []int64

	// Stats is nil unless EvalOptions.ReturnStats was set.
	Stats *MergeSplitStats
}

type pair struct {
	skel int64
	seg  uint64
}

// merges holds the result of the global node pass.
type merges struct {
	segments  map[uint64]struct{}
	skeletons map[int64]struct{}
	spans     map[uint64][]int64
}

// findMerges determines merging segments and merged skeletons from node
// support. It must complete before any edge is classified.
func findMerges(g *skeleton.Graph, lookup []uint64, mask lut.MaskSupport, threshold int) merges {
	support := make(map[pair]int)
	for n := range g.Nodes() {
		support[pair{g.SkeletonID(n), lookup[n]}]++
	}

	spans := make(map[uint64][]int64)
	for p, count := range support {
		if count >= threshold && p.seg != 0 {
			spans[p.seg] = append(spans[p.seg], p.skel)
		}
	}

	m := merges{
		segments:  make(map[uint64]struct{}),
		skeletons: make(map[int64]struct{}),
		spans:     make(map[uint64][]int64),
	}
	for seg, skels := range spans {
		if len(skels) > 1 {
			m.segments[seg] = struct{}{}
		}
	}
	for seg, count := range mask {
		if seg != 0 && count > threshold {
			m.segments[seg] = struct{}{}
		}
	}
	for seg := range m.segments {
		skels := spans[seg]
		slices.Sort(skels)
		m.spans[seg] = skels
		for _, s := range skels {
			m.skeletons[s] = struct{}{}
		}
	}
	return m
}

type partial struct {
	scores map[int64]*Scores
	splits map[int64][]SegmentPair
}

// classify scores the given edges, which must all belong to skeletons
// owned by this call.
func classify(g *skeleton.Graph, lookup []uint64, edges []int, m merges, withStats bool) partial {
	out := partial{scores: make(map[int64]*Scores), splits: make(map[int64][]SegmentPair)}
	for _, i := range edges {
		e, _ := g.EdgeAt(i)
		skel := g.SkeletonID(e.U)
		s, ok := out.scores[skel]
		if !ok {
			s = newScores()
			out.scores[skel] = s
		}

		su, sv := lookup[e.U], lookup[e.V]
		switch {
		case su == 0 || sv == 0:
			s.Omitted++
		case su != sv:
			s.Split++
			if withStats {
				out.splits[skel] = append(out.splits[skel], SegmentPair{A: su, B: sv})
			}
		default:
			_, mergedSkel := m.skeletons[skel]
			_, mergingSeg := m.segments[su]
			if mergedSkel && mergingSeg {
				s.Merged++
				continue
			}
			s.Correct++
			s.CorrectEdges[su] = append(s.CorrectEdges[su], e)
		}
	}
	return out
}

// Evaluate classifies every edge of g as omitted, split, merged or
// correct against lookup, which maps each node row to a segment ID.
//
// Merge detection is a single pass over all nodes. Edge classification
// then runs per skeleton across opts.Workers goroutines; each worker owns
// a disjoint set of skeletons.
func Evaluate(ctx context.Context, g *skeleton.Graph, lookup []uint64, opts EvalOptions) (*Evaluation, error) {
	if len(lookup) != g.NodeCount() {
		return nil, emerrors.New(emerrors.ErrCodeInvalidInput,
			"lookup has %d entries for %d nodes", len(lookup), g.NodeCount())
	}
	start := time.Now()

	m := findMerges(g, lookup, opts.MaskSupport, opts.MergeThreshold)

	// Group edge indices by skeleton, preserving edge order.
	bySkel := make(map[int64][]int)
	for i := range g.EdgeCount() {
		e, _ := g.EdgeAt(i)
		s := g.SkeletonID(e.U)
		bySkel[s] = append(bySkel[s], i)
	}
	skels := slices.Sorted(maps.Keys(bySkel))
	observability.Eval().OnEvaluateStart(ctx, len(skels), g.EdgeCount())

	workers := min(max(opts.Workers, 1), max(len(skels), 1))
	parts := make([]partial, workers)
	eg, gctx := errgroup.WithContext(ctx)
	for w := range workers {
		eg.Go(func() error {
			var edges []int
			for j := w; j < len(skels); j += workers {
				edges = append(edges, bySkel[skels[j]]...)
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			parts[w] = classify(g, lookup, edges, m, opts.ReturnStats)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	ev := &Evaluation{
		Scores:          make(map[int64]*Scores, len(skels)),
		MergingSegments: slices.Sorted(maps.Keys(m.segments)),
		MergedSkeletons: slices.Sorted(maps.Keys(m.skeletons)),
	}
	var stats *MergeSplitStats
	if opts.ReturnStats {
		stats = &MergeSplitStats{Merges: m.spans, Splits: make(map[int64][]SegmentPair)}
	}
	var omitted, split, merged, correct int
	for _, p := range parts {
		for skel, s := range p.scores {
			ev.Scores[skel] = s
			omitted += s.Omitted
			split += s.Split
			merged += s.Merged
			correct += s.Correct
		}
		if stats != nil {
			maps.Copy(stats.Splits, p.splits)
		}
	}
	ev.Stats = stats
	observability.Eval().OnEvaluateComplete(ctx, omitted, split, merged, correct, time.Since(start))
	return ev, nil
}
