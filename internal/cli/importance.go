package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/calltree/pkg/calltree"
	"github.com/mesh-intelligence/calltree/pkg/types"
)

func newImportanceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "importance",
		Short: "Pin, release and deduce test case importance",
	}

	set := &cobra.Command{
		Use:   "set <test-case> <level>",
		Short: "Pin the importance of a test case",
		Args:  cobra.ExactArgs(2),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			id, err := parseID("test case", args[0])
			if err != nil {
				return err
			}
			imp, err := types.ParseImportance(args[1])
			if err != nil {
				return err
			}
			if err := e.Mutator().SetImportance(cmd.Context(), id, imp); err != nil {
				return err
			}
			return a.printImportance(cmd, e, id)
		}),
	}

	auto := &cobra.Command{
		Use:   "auto <test-case>",
		Short: "Turn importance deduction back on",
		Args:  cobra.ExactArgs(1),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			id, err := parseID("test case", args[0])
			if err != nil {
				return err
			}
			if err := e.Mutator().EnableImportanceAuto(cmd.Context(), id); err != nil {
				return err
			}
			return a.printImportance(cmd, e, id)
		}),
	}

	deduce := &cobra.Command{
		Use:   "deduce <test-case>",
		Short: "Print the deduced importance without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			id, err := parseID("test case", args[0])
			if err != nil {
				return err
			}
			imp, err := e.Propagator().Deduce(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.print(cmd, map[string]any{"test_case_id": id, "importance": imp}, func(p *printer) {
				p.line("%s", imp)
			})
		}),
	}

	cmd.AddCommand(set, auto, deduce)
	return cmd
}

func (a *app) printImportance(cmd *cobra.Command, e *calltree.Engine, id int64) error {
	tc, err := e.Store().TestCase(cmd.Context(), id)
	if err != nil {
		return err
	}
	out := map[string]any{"test_case_id": id, "importance": tc.Importance, "importance_auto": tc.ImportanceAuto}
	return a.print(cmd, out, func(p *printer) {
		p.line("test case %d: %s (%s)", id, tc.Importance, autoLabel(tc.ImportanceAuto))
	})
}
