package erl

import (
	"maps"
	"slices"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
	"github.com/matzehuels/emerl/pkg/skeleton"
)

// Summary is the ERL over a set of skeletons.
type Summary struct {
	// ERL is the length-weighted mean skeleton ERL.
	ERL float64 `json:"erl"`

	// SkelAll is the ERL a perfect segmentation would reach on the same
	// skeletons: the length-weighted mean skeleton length.
	SkelAll float64 `json:"skel_all"`

	// Count is the number of skeletons in the set.
	Count int `json:"count"`
}

// SkeletonERL returns sum(L_S * L_S / total) over the correct-edge groups
// in s, where L_S is the summed edge length of group S. total must be
// positive whenever s has correct edges.
func SkeletonERL(g *skeleton.Graph, s *Scores, total float64) (float64, error) {
	var erl float64
	// Ascending segment order keeps the float sum reproducible.
	for _, seg := range slices.Sorted(maps.Keys(s.CorrectEdges)) {
		var run float64
		for _, e := range s.CorrectEdges[seg] {
			l, ok := g.EdgeLength(e.U, e.V)
			if !ok {
				return 0, emerrors.New(emerrors.ErrCodeInvalidInput, "edge %v is not in the graph", e)
			}
			if skeleton.IsUnset(l) {
				return 0, emerrors.New(emerrors.ErrCodeInvalidInput,
					"edge %v has no length; compute lengths from positions", e)
			}
			run += l
		}
		erl += run * (run / total)
	}
	return erl, nil
}

// Aggregate combines per-skeleton lengths and ERLs. The first summary
// covers every skeleton in lengths. When intervals is non-empty the
// second return value has len(intervals) entries: entry 0 equals the first
// summary and entry i covers skeletons with length in
// [intervals[i-1], intervals[i]). Buckets without skeletons are zero.
func Aggregate(lengths, erls map[int64]float64, intervals []float64) (Summary, []Summary) {
	ids := slices.Sorted(maps.Keys(lengths))
	summarize := func(keep func(length float64) bool) Summary {
		var total, weighted, perfect float64
		n := 0
		for _, id := range ids {
			l := lengths[id]
			if !keep(l) {
				continue
			}
			total += l
			weighted += l * erls[id]
			perfect += l * l
			n++
		}
		if n == 0 || total == 0 {
			return Summary{Count: n}
		}
		return Summary{ERL: weighted / total, SkelAll: perfect / total, Count: n}
	}

	all := summarize(func(float64) bool { return true })
	if len(intervals) == 0 {
		return all, nil
	}
	buckets := make([]Summary, len(intervals))
	buckets[0] = all
	for i := 1; i < len(intervals); i++ {
		lo, hi := intervals[i-1], intervals[i]
		buckets[i] = summarize(func(l float64) bool { return l >= lo && l < hi })
	}
	return all, buckets
}
