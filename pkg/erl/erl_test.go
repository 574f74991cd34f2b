package erl

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
	"github.com/matzehuels/emerl/pkg/lut"
	"github.com/matzehuels/emerl/pkg/skeleton"
)

// chain returns a straight skeleton of n nodes spaced one voxel apart
// along x, at row y.
func chain(id int64, n int, y int64) skeleton.Skeleton {
	s := skeleton.Skeleton{ID: id}
	for i := range n {
		s.Vertices = append(s.Vertices, [3]int64{0, y, int64(i)})
		if i > 0 {
			s.Edges = append(s.Edges, [2]int{i - 1, i})
		}
	}
	return s
}

func buildGraph(t *testing.T, skels ...skeleton.Skeleton) *skeleton.Graph {
	t.Helper()
	g, _, err := skeleton.FromSkeletons(skels, skeleton.BuildOptions{})
	require.NoError(t, err)
	return g
}

func compute(t *testing.T, g *skeleton.Graph, lookup []uint64, opts Options) *Result {
	t.Helper()
	opts.FromPositions = opts.SkeletonLengths == nil
	res, err := Compute(context.Background(), g, lookup, opts)
	require.NoError(t, err)
	return res
}

func TestSingleSegment(t *testing.T) {
	g := buildGraph(t, chain(1, 3, 0))
	res := compute(t, g, []uint64{7, 7, 7}, Options{})

	s := res.PerSkeleton[1].Scores
	assert.Equal(t, 2, s.Correct)
	assert.Zero(t, s.Split+s.Merged+s.Omitted)
	assert.InDelta(t, 2.0, res.PerSkeleton[1].ERL, 1e-12)
	assert.InDelta(t, 2.0, res.Total.ERL, 1e-12)
	assert.InDelta(t, 2.0, res.Total.SkelAll, 1e-12)
	assert.Equal(t, 1, res.Total.Count)
}

func TestSplitEdge(t *testing.T) {
	g := buildGraph(t, chain(1, 3, 0))
	res := compute(t, g, []uint64{7, 7, 9}, Options{ReturnStats: true})

	s := res.PerSkeleton[1].Scores
	assert.Equal(t, 1, s.Correct)
	assert.Equal(t, 1, s.Split)
	assert.Equal(t, []skeleton.Edge{{U: 0, V: 1}}, s.CorrectEdges[7])
	assert.InDelta(t, 0.5, res.Total.ERL, 1e-12)
	assert.InDelta(t, 2.0, res.Total.SkelAll, 1e-12)

	require.NotNil(t, res.Stats)
	assert.Equal(t, []SegmentPair{{A: 7, B: 9}}, res.Stats.Splits[1])
	assert.Empty(t, res.Stats.Merges)
}

func TestInteriorBackgroundNode(t *testing.T) {
	g := buildGraph(t, chain(1, 5, 0))
	ev, err := Evaluate(context.Background(), g, []uint64{4, 4, 0, 4, 4}, EvalOptions{})
	require.NoError(t, err)

	s := ev.Scores[1]
	assert.Equal(t, 2, s.Omitted)
	assert.Equal(t, 2, s.Correct)
	for _, e := range s.CorrectEdges[4] {
		assert.NotEqual(t, 2, e.U)
		assert.NotEqual(t, 2, e.V)
	}
}

func TestMergedSegment(t *testing.T) {
	g := buildGraph(t, chain(1, 3, 0), chain(2, 5, 2))
	lookup := []uint64{7, 7, 7, 7, 7, 7, 7, 7}

	ev, err := Evaluate(context.Background(), g, lookup, EvalOptions{ReturnStats: true})
	require.NoError(t, err)
	assert.Equal(t, []uint64{7}, ev.MergingSegments)
	assert.Equal(t, []int64{1, 2}, ev.MergedSkeletons)
	assert.Equal(t, 2, ev.Scores[1].Merged)
	assert.Equal(t, 4, ev.Scores[2].Merged)
	assert.Zero(t, ev.Scores[1].Correct+ev.Scores[2].Correct)
	assert.Equal(t, map[uint64][]int64{7: {1, 2}}, ev.Stats.Merges)

	res := compute(t, g, lookup, Options{})
	assert.Zero(t, res.Total.ERL)
	assert.InDelta(t, 20.0/6.0, res.Total.SkelAll, 1e-12)
}

func TestBackgroundNeverMerges(t *testing.T) {
	g := buildGraph(t, chain(1, 3, 0), chain(2, 3, 2))
	ev, err := Evaluate(context.Background(), g, []uint64{0, 5, 5, 0, 6, 6}, EvalOptions{})
	require.NoError(t, err)
	assert.Empty(t, ev.MergingSegments)
	assert.Empty(t, ev.MergedSkeletons)
	assert.Equal(t, 1, ev.Scores[1].Correct)
	assert.Equal(t, 1, ev.Scores[2].Correct)
}

func TestMergeThresholdMonotone(t *testing.T) {
	g := buildGraph(t, chain(1, 3, 0), chain(2, 5, 2))
	lookup := []uint64{7, 7, 7, 7, 7, 7, 7, 7}

	prev := -1.0
	for threshold := range 7 {
		res := compute(t, g, lookup, Options{MergeThreshold: threshold})
		assert.GreaterOrEqual(t, res.Total.ERL, prev, "threshold %d", threshold)
		prev = res.Total.ERL

		merged := res.PerSkeleton[1].Scores.Merged + res.PerSkeleton[2].Scores.Merged
		if threshold <= 3 {
			assert.Equal(t, 6, merged, "threshold %d", threshold)
		} else {
			// Skeleton 1 has only 3 nodes on segment 7, so the pair is no
			// longer significant and 7 spans a single skeleton.
			assert.Zero(t, merged, "threshold %d", threshold)
			assert.InDelta(t, 20.0/6.0, res.Total.ERL, 1e-12)
		}
	}
}

func TestMaskSupport(t *testing.T) {
	g := buildGraph(t, chain(1, 3, 0), chain(2, 3, 2))
	lookup := []uint64{7, 7, 7, 8, 8, 8}
	mask := lut.MaskSupport{7: 5, 0: 100}

	ev, err := Evaluate(context.Background(), g, lookup, EvalOptions{MaskSupport: mask})
	require.NoError(t, err)
	assert.Equal(t, []uint64{7}, ev.MergingSegments)
	assert.Equal(t, 2, ev.Scores[1].Merged)
	assert.Equal(t, 2, ev.Scores[2].Correct)

	// Support must exceed the threshold, not merely reach it.
	ev, err = Evaluate(context.Background(), g, lookup, EvalOptions{MaskSupport: mask, MergeThreshold: 5})
	require.NoError(t, err)
	assert.Empty(t, ev.MergingSegments)
	assert.Equal(t, 2, ev.Scores[1].Correct)
}

func TestEdgeCountsSumToTotal(t *testing.T) {
	var skels []skeleton.Skeleton
	for id := range int64(12) {
		skels = append(skels, chain(id+1, 4+int(id), 2*id))
	}
	g := buildGraph(t, skels...)

	r := rand.New(rand.NewPCG(1, 2))
	lookup := make([]uint64, g.NodeCount())
	for i := range lookup {
		lookup[i] = uint64(r.IntN(5))
	}

	edges := make(map[int64]int)
	for e := range g.Edges() {
		edges[g.SkeletonID(e.U)]++
	}

	var baseline *Evaluation
	for _, workers := range []int{1, 3, 16} {
		ev, err := Evaluate(context.Background(), g, lookup, EvalOptions{Workers: workers, ReturnStats: true})
		require.NoError(t, err)
		require.Len(t, ev.Scores, len(edges))
		for id, s := range ev.Scores {
			assert.Equal(t, edges[id], s.Total(), "skeleton %d", id)
		}
		if baseline == nil {
			baseline = ev
			continue
		}
		assert.Equal(t, baseline, ev, "workers=%d", workers)
	}
}

func TestIntervals(t *testing.T) {
	g := buildGraph(t, chain(1, 3, 0), chain(2, 5, 2))
	lookup := []uint64{7, 7, 7, 8, 8, 8, 8, 8}
	res := compute(t, g, lookup, Options{Intervals: []float64{0, 3, 10, 20}})

	require.Len(t, res.Intervals, 4)
	assert.Equal(t, res.Total, res.Intervals[0])
	assert.InDelta(t, 20.0/6.0, res.Total.ERL, 1e-12)
	assert.Equal(t, 2, res.Total.Count)

	assert.Equal(t, Summary{ERL: 2, SkelAll: 2, Count: 1}, res.Intervals[1])
	assert.Equal(t, Summary{ERL: 4, SkelAll: 4, Count: 1}, res.Intervals[2])
	assert.Equal(t, Summary{}, res.Intervals[3])
}

func TestLengthSources(t *testing.T) {
	ctx := context.Background()
	g := buildGraph(t, chain(1, 3, 0))
	lookup := []uint64{7, 7, 9}

	_, err := Compute(ctx, g, lookup, Options{FromPositions: true, SkeletonLengths: map[int64]float64{1: 2}})
	assert.True(t, emerrors.Is(err, emerrors.ErrCodeConflictingOptions))

	_, err = Compute(ctx, g, lookup, Options{})
	assert.True(t, emerrors.Is(err, emerrors.ErrCodeInvalidInput))

	_, err = Compute(ctx, g, lookup, Options{FromPositions: true, Intervals: []float64{3, 1}})
	assert.True(t, emerrors.Is(err, emerrors.ErrCodeInvalidInput))

	_, err = Compute(ctx, g, lookup, Options{SkeletonLengths: map[int64]float64{2: 1}})
	assert.True(t, emerrors.Is(err, emerrors.ErrCodeInvalidInput), "missing skeleton length")

	// Precomputed lengths reproduce the position-derived result.
	fromPos := compute(t, g, lookup, Options{})
	pre := compute(t, g, lookup, Options{SkeletonLengths: SkeletonLengths(g)})
	assert.Equal(t, fromPos.Total, pre.Total)
}

func TestSkeletonLengthsCache(t *testing.T) {
	b := skeleton.NewBuilder(nil, skeleton.Uint32)
	for _, p := range [][3]int64{{0, 0, 0}, {0, 3, 4}, {0, 3, 5}} {
		_, err := b.AddNode(map[string]int64{
			skeleton.AttrSkeletonID: 1,
			skeleton.AttrZ:          p[0],
			skeleton.AttrY:          p[1],
			skeleton.AttrX:          p[2],
		})
		require.NoError(t, err)
	}
	b.AddEdge(0, 1)
	b.AddEdgeWithLength(2, 1, 10)
	g, err := b.Build()
	require.NoError(t, err)

	lengths := SkeletonLengths(g)
	assert.InDelta(t, 15.0, lengths[1], 1e-12)

	l, ok := g.EdgeLength(1, 0)
	require.True(t, ok)
	assert.Equal(t, 5.0, l, "computed length is cached on the edge")
	l, _ = g.EdgeLength(1, 2)
	assert.Equal(t, 10.0, l, "stored length is reused verbatim")

	// Idempotent.
	assert.Equal(t, lengths, SkeletonLengths(g))
}

func TestUnsetLengthWithPrecomputed(t *testing.T) {
	b := skeleton.NewBuilder(nil, skeleton.Uint32)
	for x := range int64(2) {
		_, err := b.AddNode(map[string]int64{
			skeleton.AttrSkeletonID: 1, skeleton.AttrZ: 0, skeleton.AttrY: 0, skeleton.AttrX: x,
		})
		require.NoError(t, err)
	}
	b.AddEdge(0, 1)
	g, err := b.Build()
	require.NoError(t, err)

	_, err = Compute(context.Background(), g, []uint64{3, 3}, Options{SkeletonLengths: map[int64]float64{1: 1}})
	assert.True(t, emerrors.Is(err, emerrors.ErrCodeInvalidInput))
}

func TestLookupSizeMismatch(t *testing.T) {
	g := buildGraph(t, chain(1, 3, 0))
	_, err := Evaluate(context.Background(), g, []uint64{1, 1}, EvalOptions{})
	assert.True(t, emerrors.Is(err, emerrors.ErrCodeInvalidInput))
}

func TestAggregateEmpty(t *testing.T) {
	all, buckets := Aggregate(nil, nil, nil)
	assert.Equal(t, Summary{}, all)
	assert.Nil(t, buckets)
}
