package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/calltree/pkg/calltree"
)

const modulePath = "github.com/mesh-intelligence/calltree"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the calltree version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "calltree v%s\nmodule: %s\n", calltree.Version, modulePath)
			return nil
		},
	}
}
