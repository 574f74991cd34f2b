// Package pipeline provides the end-to-end ERL evaluation pipeline.
//
// This package wires the graph store, lookup builders and evaluator to an
// artifact store so that the CLI and batch workers share one code path.
//
// # Architecture
//
// The pipeline consists of four stages, each reading its inputs from and
// writing its outputs to the artifact store:
//
//  1. Graph: build the skeleton graph and save its node and edge tables
//  2. Stage: split the segmentation (and mask) into z-slabs or tiles
//  3. Lookup: build the node-to-segment lookup (full, chunked or tiled)
//  4. Evaluate: score the lookup against the graph and aggregate the ERL
//
// Each stage can be run independently; stages 2 and 3 are idempotent.
//
// # Usage
//
//	store, _ := artifact.Open(ctx, "file:./work", artifact.OpenOptions{})
//	runner := pipeline.NewRunner(store, logger)
//	opts := pipeline.Options{Mode: pipeline.ModeChunked, ChunkCount: 8}
//	result, err := runner.Execute(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.ERL.Total.ERL)
package pipeline

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/emerl/pkg/erl"
	emerrors "github.com/matzehuels/emerl/pkg/errors"
	"github.com/matzehuels/emerl/pkg/lut"
	"github.com/matzehuels/emerl/pkg/skeleton"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and Workers
// =============================================================================

const (
	// DefaultChunkCount reads the segmentation as a single slab.
	DefaultChunkCount = 1

	// DefaultMergeThreshold makes every skeleton-segment pair significant.
	DefaultMergeThreshold = 0

	// DefaultWorkers runs tiles and evaluation on one goroutine.
	DefaultWorkers = 1

	// DefaultMode is the default lookup construction mode.
	DefaultMode = ModeFull
)

// Lookup construction modes.
const (
	ModeFull    = "full"
	ModeChunked = "chunked"
	ModeTiled   = "tiled"
)

// ValidModes is the set of supported lookup modes.
var ValidModes = map[string]bool{
	ModeFull:    true,
	ModeChunked: true,
	ModeTiled:   true,
}

// DefaultTileFactor is the default tile stride in voxels.
var DefaultTileFactor = lut.DefaultTileFactor

// Keys names the artifacts each stage reads and writes.
type Keys struct {
	Nodes      string `json:"nodes,omitempty" toml:"nodes" yaml:"nodes"`
	Edges      string `json:"edges,omitempty" toml:"edges" yaml:"edges"`
	SegVolume  string `json:"seg_volume,omitempty" toml:"seg_volume" yaml:"seg_volume"`
	SegChunks  string `json:"seg_chunks,omitempty" toml:"seg_chunks" yaml:"seg_chunks"`
	MaskVolume string `json:"mask_volume,omitempty" toml:"mask_volume" yaml:"mask_volume"`
	MaskChunks string `json:"mask_chunks,omitempty" toml:"mask_chunks" yaml:"mask_chunks"`
	SegTiles   string `json:"seg_tiles,omitempty" toml:"seg_tiles" yaml:"seg_tiles"`
	LutTiles   string `json:"lut_tiles,omitempty" toml:"lut_tiles" yaml:"lut_tiles"`
	Lookup     string `json:"lookup,omitempty" toml:"lookup" yaml:"lookup"`
	Mask       string `json:"mask,omitempty" toml:"mask" yaml:"mask"`
}

// DefaultKeys returns the standard artifact layout.
func DefaultKeys() Keys {
	return Keys{
		Nodes:      "graph/nodes",
		Edges:      "graph/edges",
		SegVolume:  "seg/volume",
		SegChunks:  "seg/chunk/%04d",
		MaskVolume: "mask/volume",
		MaskChunks: "mask/chunk/%04d",
		SegTiles:   lut.DefaultSegTileKey,
		LutTiles:   lut.DefaultLutTileKey,
		Lookup:     lut.DefaultLookupKey,
		Mask:       lut.DefaultMaskKey,
	}
}

func (k *Keys) setDefaults() {
	d := DefaultKeys()
	def := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	def(&k.Nodes, d.Nodes)
	def(&k.Edges, d.Edges)
	def(&k.SegVolume, d.SegVolume)
	def(&k.SegChunks, d.SegChunks)
	def(&k.MaskVolume, d.MaskVolume)
	def(&k.MaskChunks, d.MaskChunks)
	def(&k.SegTiles, d.SegTiles)
	def(&k.LutTiles, d.LutTiles)
	def(&k.Lookup, d.Lookup)
	def(&k.Mask, d.Mask)
}

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for the evaluation pipeline.
// It can be loaded from TOML or YAML with pkg/config.
type Options struct {
	// Store locates the artifact store (see artifact.Open).
	Store string `json:"store,omitempty" toml:"store" yaml:"store"`
	Keys  Keys   `json:"keys" toml:"keys" yaml:"keys"`

	// Graph options. Resolution is recorded in the node table, so later
	// stages read it from the stored graph.
	Resolution [3]int64 `json:"resolution,omitempty" toml:"resolution" yaml:"resolution"`
	NodeDType  string   `json:"node_dtype,omitempty" toml:"node_dtype" yaml:"node_dtype"`

	// Lookup options
	Mode       string `json:"mode,omitempty" toml:"mode" yaml:"mode"`
	ChunkCount int    `json:"chunk_count,omitempty" toml:"chunk_count" yaml:"chunk_count"`
	IDType     string `json:"id_dtype,omitempty" toml:"id_dtype" yaml:"id_dtype"`
	UseMask    bool   `json:"use_mask,omitempty" toml:"use_mask" yaml:"use_mask"`
	TileFactor [3]int `json:"tile_factor,omitempty" toml:"tile_factor" yaml:"tile_factor"`
	TileGrid   [3]int `json:"tile_grid,omitempty" toml:"tile_grid" yaml:"tile_grid"` // tiles per axis
	DryRun     bool   `json:"dry_run,omitempty" toml:"dry_run" yaml:"dry_run"`

	// Evaluation options
	MergeThreshold  int                `json:"merge_threshold,omitempty" toml:"merge_threshold" yaml:"merge_threshold"`
	Intervals       []float64          `json:"intervals,omitempty" toml:"intervals" yaml:"intervals"`
	SkeletonLengths map[string]float64 `json:"skeleton_lengths,omitempty" toml:"skeleton_lengths" yaml:"skeleton_lengths"` // keyed by skeleton ID
	FromPositions   bool               `json:"from_positions,omitempty" toml:"from_positions" yaml:"from_positions"`
	ReturnStats     bool               `json:"return_stats,omitempty" toml:"return_stats" yaml:"return_stats"`

	Workers int `json:"workers,omitempty" toml:"workers" yaml:"workers"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-" toml:"-" yaml:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// RunID identifies this run in logs and metrics files.
	RunID string `json:"run_id"`

	// ERL is the aggregated metric with per-skeleton detail.
	ERL *erl.Result `json:"erl"`

	// Stats contains timing and size information.
	Stats Stats `json:"stats"`
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Nodes      int           `json:"nodes"`
	Edges      int           `json:"edges"`
	Skeletons  int           `json:"skeletons"`
	LookupTime time.Duration `json:"lookup_time"`
	EvalTime   time.Duration `json:"eval_time"`
	Tiles      lut.TileStats `json:"tiles"`
}

// =============================================================================
// Validation Functions
// =============================================================================

// ValidateMode checks that a lookup mode is valid.
func ValidateMode(mode string) error {
	if !ValidModes[mode] {
		return emerrors.New(emerrors.ErrCodeInvalidInput,
			"invalid mode: %q (must be one of: full, chunked, tiled)", mode)
	}
	return nil
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks option combinations and applies defaults.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	o.Keys.setDefaults()
	if o.Mode == "" {
		o.Mode = DefaultMode
	}
	if err := ValidateMode(o.Mode); err != nil {
		return err
	}
	if o.ChunkCount == 0 {
		o.ChunkCount = DefaultChunkCount
	}
	if err := emerrors.ValidatePositive("chunk_count", o.ChunkCount); err != nil {
		return err
	}
	if o.TileFactor == ([3]int{}) {
		o.TileFactor = DefaultTileFactor
	}
	for _, f := range o.TileFactor {
		if f <= 0 {
			return emerrors.New(emerrors.ErrCodeInvalidInput, "tile_factor %v must be positive", o.TileFactor)
		}
	}
	if o.Workers == 0 {
		o.Workers = DefaultWorkers
	}
	if err := emerrors.ValidatePositive("workers", o.Workers); err != nil {
		return err
	}
	if _, err := o.lookupIDType(); err != nil {
		return err
	}
	if _, err := o.nodeDType(); err != nil {
		return err
	}

	// Exactly one length source. Stored lengths are used only when given
	// explicitly; otherwise lengths come from node positions.
	if o.FromPositions && o.SkeletonLengths != nil {
		return emerrors.New(emerrors.ErrCodeConflictingOptions,
			"skeleton_lengths and from_positions are mutually exclusive")
	}
	if o.SkeletonLengths == nil {
		o.FromPositions = true
	}
	if _, err := o.skeletonLengths(); err != nil {
		return err
	}
	if err := emerrors.ValidateIntervals(o.Intervals); err != nil {
		return err
	}
	if o.MergeThreshold < 0 {
		return emerrors.New(emerrors.ErrCodeInvalidInput, "merge_threshold %d is negative", o.MergeThreshold)
	}

	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// ValidateForTiles checks that a tile grid is configured.
func (o *Options) ValidateForTiles() error {
	if err := o.ValidateAndSetDefaults(); err != nil {
		return err
	}
	for _, n := range o.TileGrid {
		if n <= 0 {
			return emerrors.New(emerrors.ErrCodeInvalidInput,
				"tile_grid %v must be positive on every axis", o.TileGrid)
		}
	}
	return nil
}

// TileRanges returns the tile indices covered by TileGrid.
func (o *Options) TileRanges() lut.TileRanges {
	return lut.Range(o.TileGrid[0], o.TileGrid[1], o.TileGrid[2])
}

func (o *Options) lookupIDType() (lut.IDType, error) {
	return lut.ParseIDType(o.IDType)
}

func (o *Options) nodeDType() (skeleton.DType, error) {
	if o.NodeDType == "" {
		return skeleton.DefaultDType, nil
	}
	return skeleton.ParseDType(o.NodeDType)
}

func (o *Options) skeletonLengths() (map[int64]float64, error) {
	if o.SkeletonLengths == nil {
		return nil, nil
	}
	out := make(map[int64]float64, len(o.SkeletonLengths))
	for k, v := range o.SkeletonLengths {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, emerrors.Wrap(emerrors.ErrCodeInvalidInput, err, "skeleton_lengths key %q", k)
		}
		out[id] = v
	}
	return out, nil
}

// EvalOptions returns the erl options for this configuration.
func (o *Options) EvalOptions(mask lut.MaskSupport) (erl.Options, error) {
	lengths, err := o.skeletonLengths()
	if err != nil {
		return erl.Options{}, err
	}
	return erl.Options{
		MaskSupport:     mask,
		MergeThreshold:  o.MergeThreshold,
		Intervals:       o.Intervals,
		SkeletonLengths: lengths,
		FromPositions:   o.FromPositions,
		ReturnStats:     o.ReturnStats,
		Workers:         o.Workers,
	}, nil
}

// String summarizes the lookup configuration for log lines.
func (o *Options) String() string {
	switch o.Mode {
	case ModeChunked:
		return fmt.Sprintf("%s(%d chunks)", o.Mode, o.ChunkCount)
	case ModeTiled:
		return fmt.Sprintf("%s(%dx%dx%d tiles)", o.Mode, o.TileGrid[0], o.TileGrid[1], o.TileGrid[2])
	}
	return o.Mode
}
