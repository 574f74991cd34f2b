package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/emerl/pkg/artifact"
)

// storeCommand creates the artifact store management command.
func (c *CLI) storeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Move raw artifacts in and out of the store",
	}
	cmd.AddCommand(c.storePutCommand())
	cmd.AddCommand(c.storeGetCommand())
	cmd.AddCommand(c.storeRmCommand())
	cmd.AddCommand(c.storePathCommand())
	return cmd
}

// withStore opens the configured store, runs fn and closes the store.
func (c *CLI) withStore(cmd *cobra.Command, fn func(artifact.Store) error) error {
	opts, err := c.options()
	if err != nil {
		return err
	}
	store, err := c.openStore(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func (c *CLI) storePutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "put KEY FILE",
		Short: "Store the contents of FILE under KEY",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[1], err)
			}
			return c.withStore(cmd, func(s artifact.Store) error {
				if err := s.Put(cmd.Context(), args[0], data); err != nil {
					return err
				}
				printSuccess("Stored %s (%d bytes)", args[0], len(data))
				printDetail("sha256 %s", artifact.Hash(data))
				return nil
			})
		},
	}
}

func (c *CLI) storeGetCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Write the artifact stored under KEY to stdout or --output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd, func(s artifact.Store) error {
				data, err := artifact.MustGet(cmd.Context(), s, args[0])
				if err != nil {
					return err
				}
				if output == "" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
				printSuccess("Wrote %s (%d bytes)", output, len(data))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	return cmd
}

func (c *CLI) storeRmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm KEY...",
		Short: "Delete artifacts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd, func(s artifact.Store) error {
				for _, key := range args {
					if err := s.Delete(cmd.Context(), key); err != nil {
						return err
					}
				}
				printSuccess("Deleted %d artifacts", len(args))
				return nil
			})
		},
	}
}

func (c *CLI) storePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the resolved store location",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.options()
			if err != nil {
				return err
			}
			loc, err := storeLocation(opts.Store)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), loc+"\n")
			return err
		},
	}
}
