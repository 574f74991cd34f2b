package lut

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/emerl/pkg/artifact"
	emerrors "github.com/matzehuels/emerl/pkg/errors"
	"github.com/matzehuels/emerl/pkg/observability"
	"github.com/matzehuels/emerl/pkg/volume"
)

// DefaultTileFactor is the voxel stride between tile origins.
var DefaultTileFactor = [3]int{1, 2048, 2048}

// Default artifact key formats for tiles.
const (
	DefaultSegTileKey = "seg/tile/%d_%d_%d"
	DefaultLutTileKey = "lut/tile/%d_%d_%d"
)

// TileIndex addresses one tile of the grid.
type TileIndex struct {
	Z, Y, X int
}

// String formats the index as "z_y_x".
func (t TileIndex) String() string { return fmt.Sprintf("%d_%d_%d", t.Z, t.Y, t.X) }

// Key formats the index into a key format with three %d verbs.
func (t TileIndex) Key(format string) string { return fmt.Sprintf(format, t.Z, t.Y, t.X) }

// TileRanges lists the tile indices to visit along each axis.
type TileRanges struct {
	Z, Y, X []int
}

// Range returns TileRanges covering [0,nz) x [0,ny) x [0,nx).
func Range(nz, ny, nx int) TileRanges {
	seq := func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	return TileRanges{Z: seq(nz), Y: seq(ny), X: seq(nx)}
}

// Tiles returns every index with z outermost and x innermost. Combine
// visits tiles in this order.
func (r TileRanges) Tiles() []TileIndex {
	out := make([]TileIndex, 0, len(r.Z)*len(r.Y)*len(r.X))
	for _, z := range r.Z {
		for _, y := range r.Y {
			for _, x := range r.X {
				out = append(out, TileIndex{Z: z, Y: y, X: x})
			}
		}
	}
	return out
}

// Len returns the number of tiles.
func (r TileRanges) Len() int { return len(r.Z) * len(r.Y) * len(r.X) }

// TileSource reads the segmentation sub-volume of one tile.
type TileSource interface {
	ReadTile(ctx context.Context, t TileIndex) (volume.Volume, error)
}

// StoreTiles reads tile volumes saved as volume artifacts under
// KeyFormat.
type StoreTiles struct {
	Store     artifact.Store
	KeyFormat string
}

// ReadTile loads the volume for t.
func (s *StoreTiles) ReadTile(ctx context.Context, t TileIndex) (volume.Volume, error) {
	return volume.Get(ctx, s.Store, t.Key(s.KeyFormat))
}

// PutTiles cuts v into tiles of size factor and stores each one under
// keyFormat. It returns the ranges covering v.
func PutTiles(ctx context.Context, store artifact.Store, keyFormat string, v volume.Volume, factor [3]int) (TileRanges, error) {
	if err := validateFactor(factor); err != nil {
		return TileRanges{}, err
	}
	s := v.Shape()
	ceil := func(a, b int) int { return (a + b - 1) / b }
	ranges := Range(ceil(s[0], factor[0]), ceil(s[1], factor[1]), ceil(s[2], factor[2]))
	for _, t := range ranges.Tiles() {
		origin := [3]int{t.Z * factor[0], t.Y * factor[1], t.X * factor[2]}
		var ts volume.Shape
		for d := range 3 {
			ts[d] = min(factor[d], s[d]-origin[d])
		}
		sub, _ := volume.NewDense(ts, nil)
		for z := range ts[0] {
			for y := range ts[1] {
				for x := range ts[2] {
					sub.Set(z, y, x, v.At(origin[0]+z, origin[1]+y, origin[2]+x))
				}
			}
		}
		if err := volume.Put(ctx, store, t.Key(keyFormat), sub); err != nil {
			return TileRanges{}, err
		}
	}
	return ranges, nil
}

func validateFactor(f [3]int) error {
	for _, d := range f {
		if d <= 0 {
			return emerrors.New(emerrors.ErrCodeInvalidInput, "tile factor %v must be positive", f)
		}
	}
	return nil
}

// TileArtifact is the partial lookup of one tile: an inclusion flag for
// every node and the segment value of each included node, in node order.
type TileArtifact struct {
	Include []bool
	Values  []uint64
}

// ComputeTile evaluates one tile. The tile covers
// [t*factor, t*factor + shape) on each axis, where shape is the size of
// the tile volume actually read.
func ComputeTile(seg volume.Volume, t TileIndex, positions [][3]int64, factor [3]int, idType IDType) (*TileArtifact, error) {
	if idType == 0 {
		idType = DefaultIDType
	}
	s := seg.Shape()
	origin := [3]int64{
		int64(t.Z) * int64(factor[0]),
		int64(t.Y) * int64(factor[1]),
		int64(t.X) * int64(factor[2]),
	}
	art := &TileArtifact{Include: make([]bool, len(positions))}
	for i, p := range positions {
		in := true
		for d := range 3 {
			in = in && p[d] >= origin[d] && p[d] < origin[d]+int64(s[d])
		}
		if !in {
			continue
		}
		id := seg.At(int(p[0]-origin[0]), int(p[1]-origin[1]), int(p[2]-origin[2]))
		if err := checkID(id, idType, i); err != nil {
			return nil, err
		}
		art.Include[i] = true
		art.Values = append(art.Values, id)
	}
	return art, nil
}

// TileOptions configures [BuildTiles].
type TileOptions struct {
	Options

	// Factor is the tile stride. Zero means DefaultTileFactor.
	Factor [3]int

	// KeyFormat names tile outputs. Empty means DefaultLutTileKey.
	KeyFormat string

	// Workers bounds concurrent tiles. Values below 1 mean 1.
	Workers int
}

// TileStats reports what [BuildTiles] did.
type TileStats struct {
	Computed int `json:"computed"`
	Skipped  int `json:"skipped"`
}

// BuildTile computes and stores the artifact for t unless it already
// exists. It reports whether the tile was skipped.
func BuildTile(ctx context.Context, src TileSource, t TileIndex, positions [][3]int64, sink artifact.Store, opts TileOptions) (skipped bool, err error) {
	opts.Options = opts.Options.withDefaults()
	if opts.Factor == ([3]int{}) {
		opts.Factor = DefaultTileFactor
	}
	if opts.KeyFormat == "" {
		opts.KeyFormat = DefaultLutTileKey
	}
	if err := validateFactor(opts.Factor); err != nil {
		return false, err
	}

	start := time.Now()
	included := 0
	defer func() {
		observability.Lookup().OnTileComplete(ctx, t.String(), included, skipped, time.Since(start), err)
	}()

	key := t.Key(opts.KeyFormat)
	exists, err := sink.Has(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		opts.Logger.Debug("tile exists, skipping", "tile", t)
		return true, nil
	}

	seg, err := src.ReadTile(ctx, t)
	if err != nil {
		return false, fmt.Errorf("read tile %s: %w", t, err)
	}
	art, err := ComputeTile(seg, t, positions, opts.Factor, opts.IDType)
	if err != nil {
		return false, fmt.Errorf("tile %s: %w", t, err)
	}
	included = len(art.Values)
	if err := PutTile(ctx, sink, key, art); err != nil {
		return false, err
	}
	opts.Logger.Info("tile computed", "tile", t, "nodes", included, "elapsed", time.Since(start))
	return false, nil
}

// BuildTiles runs [BuildTile] for every tile in ranges using up to
// opts.Workers goroutines. Tiles share no state, and existing outputs are
// skipped, so an interrupted run can simply be repeated.
func BuildTiles(ctx context.Context, src TileSource, ranges TileRanges, positions [][3]int64, sink artifact.Store, opts TileOptions) (TileStats, error) {
	workers := max(opts.Workers, 1)
	results := make([]bool, ranges.Len())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, t := range ranges.Tiles() {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			skipped, err := BuildTile(ctx, src, t, positions, sink, opts)
			results[i] = skipped
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return TileStats{}, err
	}

	var stats TileStats
	for _, skipped := range results {
		if skipped {
			stats.Skipped++
		} else {
			stats.Computed++
		}
	}
	return stats, nil
}
