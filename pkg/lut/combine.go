package lut

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/emerl/pkg/artifact"
	emerrors "github.com/matzehuels/emerl/pkg/errors"
	"github.com/matzehuels/emerl/pkg/observability"
)

// MissingTileError reports the first tile whose output is absent.
type MissingTileError struct {
	Tile TileIndex
	Key  string
}

func (e *MissingTileError) Error() string {
	return "MISSING_TILE: tile " + e.Tile.String() + " has no output at " + e.Key
}

// Unwrap exposes the MISSING_TILE code to [emerrors.Is].
func (e *MissingTileError) Unwrap() error {
	return emerrors.New(emerrors.ErrCodeMissingTile, "tile %s has no output at %s", e.Tile, e.Key)
}

// CombineOptions configures [CombineTiles].
type CombineOptions struct {
	// KeyFormat names tile outputs. Empty means DefaultLutTileKey.
	KeyFormat string

	// DryRun stops after checking that every tile output exists.
	DryRun bool

	Logger *log.Logger
}

// CombineTiles scatters every tile artifact into one lookup. All tile
// outputs are checked for existence before any is read; the first missing
// one fails the call with a [*MissingTileError]. With DryRun the check is
// all that happens and the returned lookup is nil.
//
// Tiles are applied in [TileRanges.Tiles] order, so a node included by
// two tiles takes the later tile's value.
func CombineTiles(ctx context.Context, ranges TileRanges, sink artifact.Store, opts CombineOptions) (lookup []uint64, err error) {
	if opts.KeyFormat == "" {
		opts.KeyFormat = DefaultLutTileKey
	}
	logger := Options{Logger: opts.Logger}.withDefaults().Logger

	start := time.Now()
	tiles := ranges.Tiles()
	defer func() {
		observability.Lookup().OnCombineComplete(ctx, len(tiles), time.Since(start), err)
	}()

	for _, t := range tiles {
		key := t.Key(opts.KeyFormat)
		ok, err := sink.Has(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &MissingTileError{Tile: t, Key: key}
		}
	}
	if opts.DryRun {
		logger.Info("all tiles present", "tiles", len(tiles))
		return nil, nil
	}

	for _, t := range tiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		art, err := GetTile(ctx, sink, t.Key(opts.KeyFormat))
		if err != nil {
			return nil, err
		}
		if lookup == nil {
			lookup = make([]uint64, len(art.Include))
		}
		if len(art.Include) != len(lookup) {
			return nil, emerrors.New(emerrors.ErrCodeCorrupt,
				"tile %s covers %d nodes, expected %d", t, len(art.Include), len(lookup))
		}
		j := 0
		for i, in := range art.Include {
			if in {
				lookup[i] = art.Values[j]
				j++
			}
		}
		logger.Debug("tile combined", "tile", t, "nodes", j)
	}
	return lookup, nil
}
