package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/calltree/pkg/calltree"
	"github.com/mesh-intelligence/calltree/pkg/types"
)

func newTreeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Query call trees",
	}
	cmd.AddCommand(
		newClosureCmd(a, "down", "Test cases called, directly or not, by the given ones"),
		newClosureCmd(a, "up", "Test cases calling, directly or not, the given ones"),
		newGraphCmd(a),
		newCheckCmd(a),
	)
	return cmd
}

func newClosureCmd(a *app, direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   direction + " <test-case>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			roots, err := parseIDs("test case", args)
			if err != nil {
				return err
			}
			closure := e.Finder().DownstreamClosure
			if direction == "up" {
				closure = e.Finder().UpstreamClosure
			}
			set, err := closure(cmd.Context(), roots...)
			if err != nil {
				return err
			}
			ids := set.Sorted()
			if ids == nil {
				ids = []int64{}
			}
			return a.print(cmd, map[string]any{"roots": roots, "closure": ids}, func(p *printer) {
				for _, id := range ids {
					p.line("%d", id)
				}
			})
		}),
	}
}

func newGraphCmd(a *app) *cobra.Command {
	var (
		callers bool
		format  string
	)
	cmd := &cobra.Command{
		Use:   "graph <test-case>...",
		Short: "Print the call graph around test cases as DOT or JSON",
		Long: "Print every caller and callee reachable from the given test cases, with\n" +
			"the number of call steps on each edge. --callers restricts the graph to\n" +
			"the callers side.",
		Args: cobra.MinimumNArgs(1),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			seeds, err := parseIDs("test case", args)
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				format = "json"
			}
			format = strings.ToLower(format)
			if format != "dot" && format != "json" {
				return fmt.Errorf("%w: unknown format %q (expected dot or json)", types.ErrInvalidData, format)
			}

			build := e.Finder().ExtendedGraph
			if callers {
				build = e.Finder().CallerGraph
			}
			g, err := build(cmd.Context(), seeds...)
			if err != nil {
				return err
			}
			if format == "dot" {
				return g.WriteDOT(cmd.OutOrStdout())
			}
			return writeJSON(cmd.OutOrStdout(), g)
		}),
	}
	cmd.Flags().BoolVar(&callers, "callers", false, "only the callers of the given test cases")
	cmd.Flags().StringVar(&format, "format", "dot", "dot or json")
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <caller> <callee>",
		Short: "Report whether a call from caller to callee would close a cycle",
		Args:  cobra.ExactArgs(2),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			ids, err := parseIDs("test case", args)
			if err != nil {
				return err
			}
			cyclic, err := e.Checker().WouldCreateCycle(cmd.Context(), ids[0], ids[1])
			if err != nil {
				return err
			}
			return a.print(cmd, map[string]any{"caller_id": ids[0], "callee_id": ids[1], "cyclic": cyclic}, func(p *printer) {
				if cyclic {
					p.line("cycle: %d already reaches %d", ids[1], ids[0])
					return
				}
				p.line("ok")
			})
		}),
	}
}
