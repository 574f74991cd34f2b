package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/emerl/pkg/config"
)

// configCommand creates the config command group.
func (c *CLI) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and inspect config files",
	}
	cmd.AddCommand(c.configInitCommand())
	cmd.AddCommand(c.configShowCommand())
	return cmd
}

func (c *CLI) configInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init FILE",
		Short: "Write a config file with the default options",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(args[0]); err != nil {
				return err
			}
			printSuccess("Wrote %s", args[0])
			printNextStep("Use it with", appName+" --config "+filepath.Base(args[0])+" run")
			return nil
		},
	}
}

func (c *CLI) configShowCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective options after defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.options()
			if err != nil {
				return err
			}
			if err := opts.ValidateAndSetDefaults(); err != nil {
				return err
			}
			return config.Encode(cmd.OutOrStdout(), opts, config.Format(format))
		},
	}
	cmd.Flags().StringVar(&format, "format", string(config.FormatTOML), "output format: toml, yaml")
	return cmd
}
