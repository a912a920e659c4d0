package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/calltree/pkg/calltree"
	"github.com/mesh-intelligence/calltree/pkg/types"
)

func newTestCaseCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "testcase",
		Aliases: []string{"tc"},
		Short:   "Create and inspect test cases",
	}

	var pinned string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a test case",
		Args:  cobra.ExactArgs(1),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			ctx := cmd.Context()
			var imp types.Importance
			if pinned != "" {
				var err error
				if imp, err = types.ParseImportance(pinned); err != nil {
					return err
				}
			}
			id, err := e.Store().CreateTestCase(ctx, &types.TestCase{Name: args[0], ImportanceAuto: true})
			if err != nil {
				return err
			}
			if pinned != "" {
				if err := e.Mutator().SetImportance(ctx, id, imp); err != nil {
					return err
				}
			}
			tc, err := e.Store().TestCase(ctx, id)
			if err != nil {
				return err
			}
			return a.print(cmd, tc, func(p *printer) {
				p.line("created test case %d %q", tc.ID, tc.Name)
			})
		}),
	}
	create.Flags().StringVar(&pinned, "importance", "", "pin the importance (LOW, MEDIUM, HIGH, VERY_HIGH)")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Display a test case with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			id, err := parseID("test case", args[0])
			if err != nil {
				return err
			}
			tc, err := e.Store().TestCase(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.print(cmd, tc, func(p *printer) {
				p.line("ID:          %d", tc.ID)
				p.line("Name:        %s", tc.Name)
				p.line("Importance:  %s (%s)", tc.Importance, autoLabel(tc.ImportanceAuto))
				p.line("Created:     %s", tc.CreatedAt.Format("2006-01-02 15:04:05"))
				if len(tc.Steps) == 0 {
					return
				}
				p.line("\nSteps:")
				for _, s := range tc.Steps {
					p.line("  %2d  #%-5d %s", s.Position, s.ID, describeStep(s))
				}
			})
		}),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List test cases",
		Args:  cobra.NoArgs,
		RunE: a.withEngine(func(cmd *cobra.Command, _ []string, e *calltree.Engine) error {
			tcs, err := e.Store().TestCases(cmd.Context())
			if err != nil {
				return err
			}
			if tcs == nil {
				tcs = []*types.TestCase{}
			}
			return a.print(cmd, tcs, func(p *printer) {
				for _, tc := range tcs {
					p.line("%-6d %-10s %-7s %s", tc.ID, tc.Importance, autoLabel(tc.ImportanceAuto), tc.Name)
				}
			})
		}),
	}

	cmd.AddCommand(create, show, list)
	return cmd
}
