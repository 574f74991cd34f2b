// Package cli implements the emerl command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/emerl/pkg/artifact"
	"github.com/matzehuels/emerl/pkg/buildinfo"
	"github.com/matzehuels/emerl/pkg/config"
	"github.com/matzehuels/emerl/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "emerl"

	// envStore overrides the default store location.
	envStore = "EMERL_STORE"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	storeLoc   string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "emerl scores segmentations by expected run length",
		Long: `emerl computes the expected run length (ERL) of a volumetric segmentation
against ground-truth skeletons. Skeleton graphs, volumes, lookup tables and
tile artifacts live in an artifact store so large volumes can be processed
in chunks or tiles across separate jobs.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (.toml, .yaml)")
	root.PersistentFlags().StringVarP(&c.storeLoc, "store", "s", "", "artifact store location (default: $"+envStore+" or the data dir)")

	// Register all subcommands
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.volumeCommand())
	root.AddCommand(c.lutCommand())
	root.AddCommand(c.evalCommand())
	root.AddCommand(c.runCommand())
	root.AddCommand(c.storeCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Options and Runner Factory
// =============================================================================

// options loads the config file, if any, and applies the --store flag.
func (c *CLI) options() (pipeline.Options, error) {
	var opts pipeline.Options
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return opts, err
		}
		opts = loaded
		c.Logger.Debug("loaded config", "path", c.configPath)
	}
	if c.storeLoc != "" {
		opts.Store = c.storeLoc
	}
	return opts, nil
}

// storeLocation resolves where artifacts live: the explicit location,
// then $EMERL_STORE, then a file store in the data dir.
func storeLocation(loc string) (string, error) {
	if loc != "" {
		return loc, nil
	}
	if env := os.Getenv(envStore); env != "" {
		return env, nil
	}
	dir, err := dataDir()
	if err != nil {
		return "", fmt.Errorf("resolve store: %w", err)
	}
	return "file:" + dir, nil
}

// openStore opens the artifact store named by opts.Store.
// The caller must close it.
func (c *CLI) openStore(ctx context.Context, opts pipeline.Options) (artifact.Store, error) {
	loc, err := storeLocation(opts.Store)
	if err != nil {
		return nil, err
	}
	store, err := artifact.Open(ctx, loc, artifact.OpenOptions{Logger: c.Logger})
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("opened store", "location", loc)
	return artifact.Instrument(store), nil
}

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(ctx context.Context, opts pipeline.Options) (*pipeline.Runner, error) {
	store, err := c.openStore(ctx, opts)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(store, c.Logger), nil
}

// =============================================================================
// Paths
// =============================================================================

// dataDir returns the data directory using XDG standard (~/.local/share/emerl/).
func dataDir() (string, error) {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", appName), nil
}
