package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/emerl/pkg/erl"
	"github.com/matzehuels/emerl/pkg/skeleton"
)

// skeletonJSON is one entry of a --skeletons file.
type skeletonJSON struct {
	ID       int64      `json:"id"`
	Vertices [][3]int64 `json:"vertices"`
	Edges    [][2]int   `json:"edges"`
}

// readSkeletons parses a JSON array of skeletons.
func readSkeletons(path string) ([]skeleton.Skeleton, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skeletons: %w", err)
	}
	var raw []skeletonJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse skeletons %s: %w", path, err)
	}
	out := make([]skeleton.Skeleton, len(raw))
	for i, s := range raw {
		out[i] = skeleton.Skeleton{ID: s.ID, Vertices: s.Vertices, Edges: s.Edges}
	}
	return out, nil
}

// graphCommand creates the graph command group.
func (c *CLI) graphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Build and inspect the skeleton graph",
	}
	cmd.AddCommand(c.graphBuildCommand())
	cmd.AddCommand(c.graphInfoCommand())
	return cmd
}

func (c *CLI) graphBuildCommand() *cobra.Command {
	var (
		skeletonsPath string
		resolution    []int64
		dtype         string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the graph from a JSON file of skeletons",
		Long: `Build the skeleton graph from a JSON array of skeletons:

  [{"id": 7, "vertices": [[z, y, x], ...], "edges": [[0, 1], ...]}, ...]

Vertex coordinates are voxel indices. Skeletons without edges are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.options()
			if err != nil {
				return err
			}
			if err := overrideAxes(cmd, "resolution", &opts.Resolution, resolution); err != nil {
				return err
			}
			override(cmd, "dtype", &opts.NodeDType, dtype)

			skels, err := readSkeletons(skeletonsPath)
			if err != nil {
				return err
			}
			runner, err := c.newRunner(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer runner.Store.Close()

			_, stats, err := runner.BuildGraph(cmd.Context(), skels, opts)
			if err != nil {
				return err
			}
			printSuccess("Built graph from %d skeletons", stats.Skeletons)
			printDetail("%d nodes · %d edges", stats.Nodes, stats.Edges)
			if n := len(stats.Skipped); n > 0 {
				printWarning("Skipped %d skeletons without edges", n)
			}
			printNextStep("Next", appName+" lut build")
			return nil
		},
	}

	cmd.Flags().StringVar(&skeletonsPath, "skeletons", "", "JSON file of skeletons")
	cmd.Flags().Int64SliceVar(&resolution, "resolution", nil, "voxel size per axis (z,y,x)")
	cmd.Flags().StringVar(&dtype, "dtype", "", "node table dtype: uint8, uint16, uint32, int32, int64")
	_ = cmd.MarkFlagRequired("skeletons")
	return cmd
}

func (c *CLI) graphInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Summarize the stored graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.options()
			if err != nil {
				return err
			}
			runner, err := c.newRunner(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer runner.Store.Close()

			g, err := runner.LoadGraph(cmd.Context(), opts)
			if err != nil {
				return err
			}
			var total float64
			for _, l := range erl.SkeletonLengths(g) {
				total += l
			}

			fmt.Println(StyleTitle.Render("Graph"))
			printKeyValue("nodes", strconv.Itoa(g.NodeCount()))
			printKeyValue("edges", strconv.Itoa(g.EdgeCount()))
			printKeyValue("skeletons", strconv.Itoa(len(g.SkeletonIDs())))
			printKeyValue("attributes", strings.Join(g.NodeTable().Attributes(), ", "))
			printKeyValue("dtype", g.NodeTable().DType().String())
			res := g.Resolution()
			printKeyValue("resolution", fmt.Sprintf("%d,%d,%d", res[0], res[1], res[2]))
			printKeyValue("total length", formatFloat(total))
			return nil
		},
	}
}
