package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/emerl/pkg/pipeline"
)

// lookupFlags are the lookup options shared by the lut subcommands.
type lookupFlags struct {
	mode       string
	chunks     int
	idType     string
	useMask    bool
	tileFactor []int
	tileGrid   []int
	workers    int
}

func (f *lookupFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", pipeline.DefaultMode, "lookup mode: full, chunked, tiled")
	cmd.Flags().IntVar(&f.chunks, "chunks", pipeline.DefaultChunkCount, "number of z-slabs (chunked mode)")
	cmd.Flags().StringVar(&f.idType, "id-dtype", "", "segment ID width: uint8, uint16, uint32 (default), uint64")
	cmd.Flags().BoolVar(&f.useMask, "mask", false, "collect mask support from the stored mask volume")
	cmd.Flags().IntSliceVar(&f.tileFactor, "tile-factor", nil, "tile size per axis (z,y,x)")
	cmd.Flags().IntSliceVar(&f.tileGrid, "grid", nil, "tiles per axis (z,y,x)")
	cmd.Flags().IntVar(&f.workers, "workers", pipeline.DefaultWorkers, "concurrent tile workers")
}

func (f *lookupFlags) apply(cmd *cobra.Command, opts *pipeline.Options) error {
	override(cmd, "mode", &opts.Mode, f.mode)
	override(cmd, "chunks", &opts.ChunkCount, f.chunks)
	override(cmd, "id-dtype", &opts.IDType, f.idType)
	override(cmd, "mask", &opts.UseMask, f.useMask)
	override(cmd, "workers", &opts.Workers, f.workers)
	if err := overrideAxes(cmd, "tile-factor", &opts.TileFactor, f.tileFactor); err != nil {
		return err
	}
	return overrideAxes(cmd, "grid", &opts.TileGrid, f.tileGrid)
}

// lutCommand creates the lut command group.
func (c *CLI) lutCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lut",
		Short: "Build the node-to-segment lookup table",
		Long: `Build the lookup table mapping every graph node to the segment ID at
its position.

  full     read the whole segmentation at once
  chunked  stream z-slabs staged with "lut stage --mode chunked"
  tiled    compute tiles independently with "lut tile" and merge them
           with "lut combine"`,
	}
	cmd.AddCommand(c.lutStageCommand())
	cmd.AddCommand(c.lutBuildCommand())
	cmd.AddCommand(c.lutTileCommand())
	cmd.AddCommand(c.lutCombineCommand())
	return cmd
}

// lutCommandOptions loads options and applies the lookup flags.
func (c *CLI) lutCommandOptions(cmd *cobra.Command, f *lookupFlags) (pipeline.Options, error) {
	opts, err := c.options()
	if err != nil {
		return opts, err
	}
	if err := f.apply(cmd, &opts); err != nil {
		return opts, err
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return opts, err
	}
	return opts, nil
}

func (c *CLI) lutStageCommand() *cobra.Command {
	var f lookupFlags
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Split the stored volumes into z-slabs or tiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.lutCommandOptions(cmd, &f)
			if err != nil {
				return err
			}
			runner, err := c.newRunner(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer runner.Store.Close()

			ranges, err := runner.Stage(cmd.Context(), opts)
			if err != nil {
				return err
			}
			switch opts.Mode {
			case pipeline.ModeChunked:
				printSuccess("Staged %d z-slabs", opts.ChunkCount)
			case pipeline.ModeTiled:
				grid := fmt.Sprintf("%d,%d,%d", len(ranges.Z), len(ranges.Y), len(ranges.X))
				printSuccess("Staged %d tiles", ranges.Len())
				printNextStep("Next", appName+" lut tile --grid "+grid)
			default:
				printInfo("Mode %s reads the volume directly; nothing to stage", opts.Mode)
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func (c *CLI) lutBuildCommand() *cobra.Command {
	var f lookupFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the lookup table in full or chunked mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.lutCommandOptions(cmd, &f)
			if err != nil {
				return err
			}
			runner, err := c.newRunner(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer runner.Store.Close()

			prog := newProgress(c.Logger)
			lookup, mask, err := runner.BuildLookup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			prog.done("lookup stage finished", "mode", opts.Mode)
			printSuccess("Built lookup for %d nodes", len(lookup))
			if mask != nil {
				printDetail("mask support for %d segments", len(mask))
			}
			printNextStep("Next", appName+" eval")
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func (c *CLI) lutTileCommand() *cobra.Command {
	var f lookupFlags
	cmd := &cobra.Command{
		Use:   "tile",
		Short: "Compute missing tile artifacts",
		Long: `Compute the partial lookup of every tile in --grid. Tiles whose
artifact already exists are skipped, so the command can be rerun after a
failure or split across machines sharing one store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.lutCommandOptions(cmd, &f)
			if err != nil {
				return err
			}
			runner, err := c.newRunner(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer runner.Store.Close()

			spin := newSpinner(cmd.Context(), fmt.Sprintf("Computing %d tiles...", opts.TileRanges().Len())).Start()
			stats, err := runner.BuildTiles(cmd.Context(), opts)
			if err != nil {
				spin.Stop()
				return err
			}
			spin.StopWithSuccess("Computed %d tiles, skipped %d", stats.Computed, stats.Skipped)
			printNextStep("Next", appName+" lut combine")
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func (c *CLI) lutCombineCommand() *cobra.Command {
	var (
		f      lookupFlags
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "combine",
		Short: "Merge tile artifacts into the lookup table",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.lutCommandOptions(cmd, &f)
			if err != nil {
				return err
			}
			override(cmd, "dry-run", &opts.DryRun, dryRun)
			runner, err := c.newRunner(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer runner.Store.Close()

			lookup, err := runner.CombineTiles(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if opts.DryRun {
				printSuccess("All %d tiles present", opts.TileRanges().Len())
				return nil
			}
			printSuccess("Combined %d tiles into a lookup for %d nodes", opts.TileRanges().Len(), len(lookup))
			printNextStep("Next", appName+" eval")
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only check that every tile exists")
	return cmd
}
