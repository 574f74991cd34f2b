package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/matzehuels/emerl/pkg/buildinfo"
)

func (c *CLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), appName+" "+buildinfo.String()+"\n")
			return err
		},
	}
}
