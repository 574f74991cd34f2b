package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// override sets *dst to v when the named flag was given on the command
// line, so flags win over config file values.
func override[T any](cmd *cobra.Command, name string, dst *T, v T) {
	if cmd.Flags().Changed(name) {
		*dst = v
	}
}

// overrideAxes is override for (z, y, x) triples given as a list flag.
func overrideAxes[T int | int64](cmd *cobra.Command, name string, dst *[3]T, v []T) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	if len(v) != 3 {
		return fmt.Errorf("--%s takes 3 values (z,y,x), got %d", name, len(v))
	}
	*dst = [3]T{v[0], v[1], v[2]}
	return nil
}
