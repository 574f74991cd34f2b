package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/emerl/pkg/artifact"
	"github.com/matzehuels/emerl/pkg/erl"
	emerrors "github.com/matzehuels/emerl/pkg/errors"
	"github.com/matzehuels/emerl/pkg/lut"
	"github.com/matzehuels/emerl/pkg/skeleton"
	"github.com/matzehuels/emerl/pkg/volume"
)

// Runner executes pipeline stages against an artifact store.
//
// The Runner is stateless except for the store and logger - it doesn't
// keep stage results in memory between calls. Every stage reads its
// inputs from the store, so stages can run in separate processes.
type Runner struct {
	Store  artifact.Store
	Logger *log.Logger
}

// NewRunner creates a runner on the given store.
// If store is nil, an in-memory store is used.
func NewRunner(store artifact.Store, logger *log.Logger) *Runner {
	if store == nil {
		store = artifact.NewMemoryStore()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Store: store, Logger: logger}
}

func (r *Runner) prepare(opts *Options) error {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	opts.Logger = r.Logger
	return nil
}

// =============================================================================
// Graph
// =============================================================================

// BuildGraph builds the graph from raw skeletons and saves it.
func (r *Runner) BuildGraph(ctx context.Context, skels []skeleton.Skeleton, opts Options) (*skeleton.Graph, skeleton.BuildStats, error) {
	if err := r.prepare(&opts); err != nil {
		return nil, skeleton.BuildStats{}, err
	}
	dtype, _ := opts.nodeDType()
	g, stats, err := skeleton.FromSkeletons(skels, skeleton.BuildOptions{
		Resolution: opts.Resolution,
		DType:      dtype,
	})
	if err != nil {
		return nil, stats, fmt.Errorf("build graph: %w", err)
	}
	for _, id := range stats.Skipped {
		r.Logger.Warn("skipped skeleton without edges", "skeleton", id)
	}
	if err := r.SaveGraph(ctx, g, opts); err != nil {
		return nil, stats, err
	}
	r.Logger.Info("built graph",
		"skeletons", stats.Skeletons,
		"nodes", stats.Nodes,
		"edges", stats.Edges,
		"skipped", len(stats.Skipped))
	return g, stats, nil
}

// SaveGraph writes the node and edge tables.
func (r *Runner) SaveGraph(ctx context.Context, g *skeleton.Graph, opts Options) error {
	opts.Keys.setDefaults()
	var nodes, edges bytes.Buffer
	if err := g.Save(&nodes, &edges); err != nil {
		return fmt.Errorf("save graph: %w", err)
	}
	if err := r.Store.Put(ctx, opts.Keys.Nodes, nodes.Bytes()); err != nil {
		return err
	}
	return r.Store.Put(ctx, opts.Keys.Edges, edges.Bytes())
}

// LoadGraph reads the node and edge tables.
func (r *Runner) LoadGraph(ctx context.Context, opts Options) (*skeleton.Graph, error) {
	opts.Keys.setDefaults()
	nodes, err := artifact.MustGet(ctx, r.Store, opts.Keys.Nodes)
	if err != nil {
		return nil, err
	}
	edges, err := artifact.MustGet(ctx, r.Store, opts.Keys.Edges)
	if err != nil {
		return nil, err
	}
	g, err := skeleton.Load(bytes.NewReader(nodes), bytes.NewReader(edges))
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	return g, nil
}

// VoxelPositions converts stored node coordinates back to voxel indices
// by dividing out the resolution the graph was built with.
func VoxelPositions(g *skeleton.Graph) [][3]int64 {
	pos := g.Positions()
	res := g.Resolution()
	if res == ([3]int64{1, 1, 1}) {
		return pos
	}
	for i := range pos {
		for d := range 3 {
			pos[i][d] /= res[d]
		}
	}
	return pos
}

// =============================================================================
// Staging
// =============================================================================

// Stage splits the stored segmentation (and mask, with UseMask) into the
// layout the configured mode reads: z-slabs for chunked, tiles for tiled.
// Full mode needs no staging. For tiled mode the returned ranges cover
// the whole volume and TileGrid should be set to match them.
func (r *Runner) Stage(ctx context.Context, opts Options) (lut.TileRanges, error) {
	if err := r.prepare(&opts); err != nil {
		return lut.TileRanges{}, err
	}
	seg, err := volume.Get(ctx, r.Store, opts.Keys.SegVolume)
	if err != nil {
		return lut.TileRanges{}, err
	}

	switch opts.Mode {
	case ModeChunked:
		if _, err := volume.PutSlabs(ctx, r.Store, opts.Keys.SegChunks, seg, opts.ChunkCount); err != nil {
			return lut.TileRanges{}, err
		}
		if opts.UseMask {
			mask, err := volume.Get(ctx, r.Store, opts.Keys.MaskVolume)
			if err != nil {
				return lut.TileRanges{}, err
			}
			if _, err := volume.PutSlabs(ctx, r.Store, opts.Keys.MaskChunks, mask, opts.ChunkCount); err != nil {
				return lut.TileRanges{}, err
			}
		}
		r.Logger.Info("staged z-slabs", "chunks", opts.ChunkCount, "shape", seg.Shape())
		return lut.TileRanges{}, nil
	case ModeTiled:
		ranges, err := lut.PutTiles(ctx, r.Store, opts.Keys.SegTiles, seg, opts.TileFactor)
		if err != nil {
			return lut.TileRanges{}, err
		}
		r.Logger.Info("staged tiles",
			"grid", fmt.Sprintf("%dx%dx%d", len(ranges.Z), len(ranges.Y), len(ranges.X)),
			"factor", opts.TileFactor)
		return ranges, nil
	}
	return lut.TileRanges{}, nil
}

// =============================================================================
// Lookup
// =============================================================================

// BuildLookup builds the lookup with the configured full or chunked mode
// and stores it together with the mask support.
func (r *Runner) BuildLookup(ctx context.Context, opts Options) ([]uint64, lut.MaskSupport, error) {
	if err := r.prepare(&opts); err != nil {
		return nil, nil, err
	}
	g, err := r.LoadGraph(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	positions := VoxelPositions(g)
	idType, _ := opts.lookupIDType()
	lopts := lut.Options{IDType: idType, Logger: r.Logger}

	start := time.Now()
	var lookup []uint64
	var mask lut.MaskSupport
	switch opts.Mode {
	case ModeFull:
		seg, err := volume.Get(ctx, r.Store, opts.Keys.SegVolume)
		if err != nil {
			return nil, nil, err
		}
		var maskVol volume.Volume
		if opts.UseMask {
			m, err := volume.Get(ctx, r.Store, opts.Keys.MaskVolume)
			if err != nil {
				return nil, nil, err
			}
			maskVol = m
		}
		lookup, mask, err = lut.Build(seg, positions, maskVol, lopts)
		if err != nil {
			return nil, nil, err
		}
	case ModeChunked:
		seg := &volume.StoreSlabs{Store: r.Store, KeyFormat: opts.Keys.SegChunks, Chunks: opts.ChunkCount}
		var maskSrc volume.SlabSource
		if opts.UseMask {
			maskSrc = &volume.StoreSlabs{Store: r.Store, KeyFormat: opts.Keys.MaskChunks, Chunks: opts.ChunkCount}
		}
		lookup, mask, err = lut.BuildChunked(ctx, seg, positions, maskSrc, lopts)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, emerrors.New(emerrors.ErrCodeInvalidInput,
			"mode %q builds its lookup with BuildTiles and CombineTiles", opts.Mode)
	}

	if err := r.saveLookup(ctx, lookup, mask, opts); err != nil {
		return nil, nil, err
	}
	r.Logger.Info("built lookup",
		"mode", opts.String(),
		"nodes", len(lookup),
		"mask_segments", len(mask),
		"duration", time.Since(start))
	return lookup, mask, nil
}

func (r *Runner) saveLookup(ctx context.Context, lookup []uint64, mask lut.MaskSupport, opts Options) error {
	if err := lut.PutLookup(ctx, r.Store, opts.Keys.Lookup, lookup); err != nil {
		return err
	}
	if mask == nil {
		// A mask left by an earlier build must not leak into evaluation.
		return r.Store.Delete(ctx, opts.Keys.Mask)
	}
	return lut.PutMask(ctx, r.Store, opts.Keys.Mask, mask)
}

// BuildTiles computes every missing tile artifact of TileGrid.
func (r *Runner) BuildTiles(ctx context.Context, opts Options) (lut.TileStats, error) {
	if err := r.prepare(&opts); err != nil {
		return lut.TileStats{}, err
	}
	if err := opts.ValidateForTiles(); err != nil {
		return lut.TileStats{}, err
	}
	g, err := r.LoadGraph(ctx, opts)
	if err != nil {
		return lut.TileStats{}, err
	}
	idType, _ := opts.lookupIDType()
	src := &lut.StoreTiles{Store: r.Store, KeyFormat: opts.Keys.SegTiles}

	start := time.Now()
	stats, err := lut.BuildTiles(ctx, src, opts.TileRanges(), VoxelPositions(g), r.Store, lut.TileOptions{
		Options:   lut.Options{IDType: idType, Logger: r.Logger},
		Factor:    opts.TileFactor,
		KeyFormat: opts.Keys.LutTiles,
		Workers:   opts.Workers,
	})
	if err != nil {
		return stats, err
	}
	r.Logger.Info("built tiles",
		"computed", stats.Computed,
		"skipped", stats.Skipped,
		"workers", opts.Workers,
		"duration", time.Since(start))
	return stats, nil
}

// CombineTiles merges the tile artifacts of TileGrid into the lookup.
// With DryRun it only checks that every tile exists and returns nil.
func (r *Runner) CombineTiles(ctx context.Context, opts Options) ([]uint64, error) {
	if err := r.prepare(&opts); err != nil {
		return nil, err
	}
	if err := opts.ValidateForTiles(); err != nil {
		return nil, err
	}
	lookup, err := lut.CombineTiles(ctx, opts.TileRanges(), r.Store, lut.CombineOptions{
		KeyFormat: opts.Keys.LutTiles,
		DryRun:    opts.DryRun,
		Logger:    r.Logger,
	})
	if err != nil || opts.DryRun {
		return nil, err
	}
	if err := r.saveLookup(ctx, lookup, nil, opts); err != nil {
		return nil, err
	}
	r.Logger.Info("combined tiles", "tiles", opts.TileRanges().Len(), "nodes", len(lookup))
	return lookup, nil
}

// =============================================================================
// Evaluation
// =============================================================================

// Evaluate scores the stored lookup against the stored graph. With
// UseMask the stored mask support must exist and is applied; otherwise
// merges are judged without it.
func (r *Runner) Evaluate(ctx context.Context, opts Options) (*Result, error) {
	if err := r.prepare(&opts); err != nil {
		return nil, err
	}
	result := &Result{RunID: uuid.NewString()}
	logger := r.Logger.With("run", result.RunID)

	g, err := r.LoadGraph(ctx, opts)
	if err != nil {
		return nil, err
	}
	lookup, err := lut.GetLookup(ctx, r.Store, opts.Keys.Lookup)
	if err != nil {
		return nil, err
	}
	var mask lut.MaskSupport
	switch {
	case opts.UseMask && opts.Mode == ModeTiled:
		logger.Warn("tiled lookups carry no mask support; evaluating without it")
	case opts.UseMask:
		if mask, err = lut.GetMask(ctx, r.Store, opts.Keys.Mask); err != nil {
			return nil, err
		}
	}

	eopts, err := opts.EvalOptions(mask)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := erl.Compute(ctx, g, lookup, eopts)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	result.ERL = res
	result.Stats.Nodes = g.NodeCount()
	result.Stats.Edges = g.EdgeCount()
	result.Stats.Skeletons = len(res.PerSkeleton)
	result.Stats.EvalTime = time.Since(start)

	logger.Info("evaluated",
		"skeletons", result.Stats.Skeletons,
		"erl", res.Total.ERL,
		"skel_all", res.Total.SkelAll,
		"duration", result.Stats.EvalTime)
	return result, nil
}

// Execute builds the lookup with the configured mode and evaluates it.
// Tiled mode stages tiles first when TileGrid is unset.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := r.prepare(&opts); err != nil {
		return nil, err
	}

	start := time.Now()
	var tiles lut.TileStats
	switch opts.Mode {
	case ModeTiled:
		if opts.TileGrid == ([3]int{}) {
			ranges, err := r.Stage(ctx, opts)
			if err != nil {
				return nil, err
			}
			opts.TileGrid = [3]int{len(ranges.Z), len(ranges.Y), len(ranges.X)}
		}
		var err error
		if tiles, err = r.BuildTiles(ctx, opts); err != nil {
			return nil, err
		}
		if _, err := r.CombineTiles(ctx, opts); err != nil {
			return nil, err
		}
	case ModeChunked:
		if _, err := r.Stage(ctx, opts); err != nil {
			return nil, err
		}
		fallthrough
	default:
		if _, _, err := r.BuildLookup(ctx, opts); err != nil {
			return nil, err
		}
	}
	lookupTime := time.Since(start)

	result, err := r.Evaluate(ctx, opts)
	if err != nil {
		return nil, err
	}
	result.Stats.LookupTime = lookupTime
	result.Stats.Tiles = tiles
	return result, nil
}
