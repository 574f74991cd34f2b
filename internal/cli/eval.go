package cli

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/emerl/pkg/observability"
	"github.com/matzehuels/emerl/pkg/pipeline"
)

// evalFlags are the evaluation options shared by eval and run.
type evalFlags struct {
	threshold   int
	intervals   []float64
	lengthsPath string
	workers     int
	stats       bool
	jsonOut     bool
	metricsFile string
}

func (f *evalFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.threshold, "threshold", pipeline.DefaultMergeThreshold, "node pairs needed before a segment counts as merging")
	cmd.Flags().Float64SliceVar(&f.intervals, "intervals", nil, "ascending skeleton-length bounds for binned results")
	cmd.Flags().StringVar(&f.lengthsPath, "lengths", "", "JSON object of precomputed skeleton lengths by ID")
	cmd.Flags().IntVar(&f.workers, "eval-workers", pipeline.DefaultWorkers, "concurrent evaluation workers")
	cmd.Flags().BoolVar(&f.stats, "stats", false, "print per-skeleton scores and merge/split statistics")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "write the result as JSON to stdout")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
}

func (f *evalFlags) apply(cmd *cobra.Command, opts *pipeline.Options) error {
	override(cmd, "threshold", &opts.MergeThreshold, f.threshold)
	override(cmd, "intervals", &opts.Intervals, f.intervals)
	override(cmd, "eval-workers", &opts.Workers, f.workers)
	if f.stats {
		opts.ReturnStats = true
	}
	if f.lengthsPath != "" {
		data, err := os.ReadFile(f.lengthsPath)
		if err != nil {
			return fmt.Errorf("read lengths: %w", err)
		}
		var lengths map[string]float64
		if err := json.Unmarshal(data, &lengths); err != nil {
			return fmt.Errorf("parse lengths %s: %w", f.lengthsPath, err)
		}
		opts.SkeletonLengths = lengths
		opts.FromPositions = false
	}
	return nil
}

// withMetrics registers Prometheus hooks when a metrics file is requested
// and returns a function that writes the file and restores the defaults.
func (f *evalFlags) withMetrics() func() error {
	if f.metricsFile == "" {
		return func() error { return nil }
	}
	p := observability.NewPrometheus()
	observability.SetLookupHooks(p)
	observability.SetEvalHooks(p)
	observability.SetStoreHooks(p)
	return func() error {
		defer observability.Reset()
		if err := p.WriteTextfile(f.metricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
		return nil
	}
}

// report prints the result as JSON or as tables. Per-skeleton detail is
// included only with --stats.
func (f *evalFlags) report(cmd *cobra.Command, res *pipeline.Result, opts pipeline.Options) error {
	out := cmd.OutOrStdout()
	if f.jsonOut {
		if !f.stats {
			trimmed := *res
			erlRes := *res.ERL
			erlRes.PerSkeleton = nil
			trimmed.ERL = &erlRes
			res = &trimmed
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintln(out, StyleTitle.Render("Expected run length"))
	fmt.Fprintln(out, keyValue("run", res.RunID))
	fmt.Fprintln(out, keyValue("skeletons", strconv.Itoa(res.Stats.Skeletons)))
	fmt.Fprintln(out, keyValue("erl", StyleNumber.Render(formatFloat(res.ERL.Total.ERL))))
	fmt.Fprintln(out, keyValue("skel_all", formatFloat(res.ERL.Total.SkelAll)))
	fmt.Fprintln(out, summaryTable(res.ERL.Total, res.ERL.Intervals, opts.Intervals))

	if !f.stats {
		return nil
	}
	ids := slices.Sorted(maps.Keys(res.ERL.PerSkeleton))
	fmt.Fprintln(out, skeletonTable(ids, res.ERL.PerSkeleton))
	if st := res.ERL.Stats; st != nil {
		fmt.Fprintln(out, detail("%d merging segments · %d skeletons with splits", len(st.Merges), len(st.Splits)))
		if len(st.Merges) > 0 {
			fmt.Fprintln(out, mergeTable(st.Merges))
		}
		if len(st.Splits) > 0 {
			fmt.Fprintln(out, splitTable(st.Splits))
		}
	}
	return nil
}

// evalCommand creates the eval command.
func (c *CLI) evalCommand() *cobra.Command {
	var (
		f       evalFlags
		useMask bool
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Compute the ERL of the stored lookup against the graph",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			opts, err := c.options()
			if err != nil {
				return err
			}
			if err := f.apply(cmd, &opts); err != nil {
				return err
			}
			override(cmd, "mask", &opts.UseMask, useMask)
			flush := f.withMetrics()
			defer func() {
				if ferr := flush(); err == nil {
					err = ferr
				}
			}()

			runner, err := c.newRunner(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer runner.Store.Close()

			res, err := runner.Evaluate(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return f.report(cmd, res, opts)
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&useMask, "mask", false, "apply the mask support stored by lut build --mask")
	return cmd
}

// runCommand creates the run command: lookup build in the configured
// mode followed by evaluation.
func (c *CLI) runCommand() *cobra.Command {
	var (
		lf lookupFlags
		ef evalFlags
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build the lookup and evaluate in one step",
		Long: `Run the lookup stage for the configured mode, then evaluate.
Chunked mode stages z-slabs first; tiled mode stages tiles when --grid is
not given.`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			opts, err := c.options()
			if err != nil {
				return err
			}
			if err := lf.apply(cmd, &opts); err != nil {
				return err
			}
			if err := ef.apply(cmd, &opts); err != nil {
				return err
			}
			flush := ef.withMetrics()
			defer func() {
				if ferr := flush(); err == nil {
					err = ferr
				}
			}()

			runner, err := c.newRunner(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer runner.Store.Close()

			res, err := runner.Execute(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if !ef.jsonOut {
				fmt.Fprintln(cmd.OutOrStdout(), detail("lookup %s · eval %s", res.Stats.LookupTime, res.Stats.EvalTime))
			}
			return ef.report(cmd, res, opts)
		},
	}
	lf.register(cmd)
	ef.register(cmd)
	return cmd
}
