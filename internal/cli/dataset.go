package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/calltree/pkg/calltree"
	"github.com/mesh-intelligence/calltree/pkg/types"
)

func newDatasetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Manage parameter datasets",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <test-case> <name>",
		Short: "Create a dataset owned by a test case",
		Args:  cobra.ExactArgs(2),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			tc, err := parseID("test case", args[0])
			if err != nil {
				return err
			}
			ds := &types.Dataset{TestCaseID: tc, Name: args[1]}
			if ds.ID, err = e.Store().CreateDataset(cmd.Context(), ds); err != nil {
				return err
			}
			return a.print(cmd, ds, func(p *printer) {
				p.line("created dataset %d %q of test case %d", ds.ID, ds.Name, tc)
			})
		}),
	})
	return cmd
}
