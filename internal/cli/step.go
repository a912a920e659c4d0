package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/calltree/pkg/calltree"
	"github.com/mesh-intelligence/calltree/pkg/types"
)

func newStepCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Add, remove, paste and configure steps",
	}
	cmd.AddCommand(
		newStepActionCmd(a),
		newStepKeywordCmd(a),
		newStepCallCmd(a),
		newStepRemoveCmd(a),
		newStepPasteCmd(a),
		newStepModeCmd(a),
	)
	return cmd
}

func positionFlag(cmd *cobra.Command, position *int) {
	cmd.Flags().IntVar(position, "position", types.AppendPosition, "insert at this 0-based position (default: append)")
}

// printStep reloads a step and prints it.
func (a *app) printStep(cmd *cobra.Command, e *calltree.Engine, verb string, id int64) error {
	s, err := e.Store().Step(cmd.Context(), id)
	if err != nil {
		return err
	}
	return a.print(cmd, s, func(p *printer) {
		p.line("%s step %d at %d of test case %d: %s", verb, s.ID, s.Position, s.TestCaseID, describeStep(s))
	})
}

func newStepActionCmd(a *app) *cobra.Command {
	var (
		expected string
		position int
	)
	cmd := &cobra.Command{
		Use:   "action <test-case> <action>",
		Short: "Add an action step",
		Args:  cobra.ExactArgs(2),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			tc, err := parseID("test case", args[0])
			if err != nil {
				return err
			}
			id, err := e.Store().CreateActionStep(cmd.Context(), tc, types.ActionStep{Action: args[1], ExpectedResult: expected}, position)
			if err != nil {
				return err
			}
			return a.printStep(cmd, e, "added", id)
		}),
	}
	cmd.Flags().StringVar(&expected, "expected", "", "expected result")
	positionFlag(cmd, &position)
	return cmd
}

func newStepKeywordCmd(a *app) *cobra.Command {
	var position int
	cmd := &cobra.Command{
		Use:   "keyword <test-case> <keyword> <text>",
		Short: "Add a keyword step (given, when, then, and, but)",
		Args:  cobra.ExactArgs(3),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			tc, err := parseID("test case", args[0])
			if err != nil {
				return err
			}
			id, err := e.Store().CreateKeywordStep(cmd.Context(), tc, types.KeywordStep{Keyword: args[1], Text: args[2]}, position)
			if err != nil {
				return err
			}
			return a.printStep(cmd, e, "added", id)
		}),
	}
	positionFlag(cmd, &position)
	return cmd
}

func newStepCallCmd(a *app) *cobra.Command {
	var position int
	cmd := &cobra.Command{
		Use:   "call <caller> <callee>...",
		Short: "Add call steps; a call that would close a cycle is rejected",
		Long: "Add a call step from <caller> to each callee. With one callee the step is\n" +
			"inserted at --position; with several they are appended in order and each\n" +
			"cyclic call is skipped and reported.",
		Args: cobra.MinimumNArgs(2),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			ids, err := parseIDs("test case", args)
			if err != nil {
				return err
			}
			caller, callees := ids[0], ids[1:]
			if len(callees) == 1 {
				s, err := e.Mutator().AddCallStep(cmd.Context(), caller, callees[0], position)
				if s == nil {
					return err
				}
				if perr := a.printStep(cmd, e, "added", s.ID); perr != nil {
					return perr
				}
				return err
			}
			if cmd.Flags().Changed("position") {
				return fmt.Errorf("%w: --position needs exactly one callee", types.ErrInvalidData)
			}

			created, err := e.Mutator().AddCallSteps(cmd.Context(), caller, callees)
			if created == nil {
				created = []*types.Step{}
			}
			if perr := a.print(cmd, created, func(p *printer) {
				for _, s := range created {
					p.line("added step %d at %d of test case %d: %s", s.ID, s.Position, s.TestCaseID, describeStep(s))
				}
			}); perr != nil {
				return errors.Join(perr, err)
			}
			return err
		}),
	}
	positionFlag(cmd, &position)
	return cmd
}

func newStepRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <test-case> <step>",
		Short: "Remove a step of a test case",
		Args:  cobra.ExactArgs(2),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			ids, err := parseIDs("id", args)
			if err != nil {
				return err
			}
			if err := e.Mutator().RemoveStep(cmd.Context(), ids[0], ids[1]); err != nil {
				return err
			}
			return a.print(cmd, map[string]any{"test_case_id": ids[0], "step_id": ids[1], "removed": true}, func(p *printer) {
				p.line("removed step %d of test case %d", ids[1], ids[0])
			})
		}),
	}
}

func newStepPasteCmd(a *app) *cobra.Command {
	var (
		from     string
		position int
	)
	cmd := &cobra.Command{
		Use:   "paste <destination> [step...]",
		Short: "Paste copies of steps, or of every step of --from, into a test case",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			ids, err := parseIDs("id", args)
			if err != nil {
				return err
			}
			dest, stepIDs := ids[0], ids[1:]

			var hasCall bool
			switch {
			case from != "" && len(stepIDs) > 0:
				return fmt.Errorf("%w: give either steps or --from", types.ErrInvalidData)
			case from != "":
				src, err := parseID("test case", from)
				if err != nil {
					return err
				}
				hasCall, err = e.Mutator().CopyStepsFrom(cmd.Context(), dest, src, position)
				if err != nil {
					return err
				}
			case len(stepIDs) == 0:
				return fmt.Errorf("%w: nothing to paste", types.ErrInvalidData)
			default:
				hasCall, err = e.Mutator().PasteSteps(cmd.Context(), dest, stepIDs, position)
				if err != nil {
					return err
				}
			}
			return a.print(cmd, map[string]any{"destination_id": dest, "has_call_step": hasCall}, func(p *printer) {
				p.line("pasted into test case %d (call steps: %t)", dest, hasCall)
			})
		}),
	}
	cmd.Flags().StringVar(&from, "from", "", "copy every step of this test case")
	positionFlag(cmd, &position)
	return cmd
}

func newStepModeCmd(a *app) *cobra.Command {
	var dataset string
	cmd := &cobra.Command{
		Use:   "mode <step> <NOTHING|DELEGATE|CALLED_DATASET>",
		Short: "Change how a call step feeds parameters to the called test case",
		Args:  cobra.ExactArgs(2),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			stepID, err := parseID("step", args[0])
			if err != nil {
				return err
			}
			mode, err := types.ParseParameterMode(args[1])
			if err != nil {
				return err
			}
			var datasetID *int64
			if dataset != "" {
				id, err := parseID("dataset", dataset)
				if err != nil {
					return err
				}
				datasetID = &id
			}
			if err := e.Mutator().ChangeParameterMode(cmd.Context(), stepID, mode, datasetID); err != nil {
				return err
			}
			return a.printStep(cmd, e, "updated", stepID)
		}),
	}
	cmd.Flags().StringVar(&dataset, "dataset", "", "dataset of the called test case (CALLED_DATASET)")
	return cmd
}
