package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/calltree/pkg/calltree"
	"github.com/mesh-intelligence/calltree/pkg/types"
)

func newRequirementCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "requirement",
		Aliases: []string{"req"},
		Short:   "Manage requirement versions and their coverage",
	}

	var criticality string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a requirement version",
		Args:  cobra.ExactArgs(1),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			crit, err := types.ParseCriticality(criticality)
			if err != nil {
				return err
			}
			rv := &types.RequirementVersion{Name: args[0], Criticality: crit}
			id, err := e.Store().CreateRequirementVersion(cmd.Context(), rv)
			if err != nil {
				return err
			}
			rv.ID = id
			return a.print(cmd, rv, func(p *printer) {
				p.line("created requirement version %d %q (%s)", id, rv.Name, rv.Criticality)
			})
		}),
	}
	create.Flags().StringVar(&criticality, "criticality", types.CriticalityUndefined.String(), "UNDEFINED, MINOR, MAJOR or CRITICAL")

	list := &cobra.Command{
		Use:   "list",
		Short: "List requirement versions",
		Args:  cobra.NoArgs,
		RunE: a.withEngine(func(cmd *cobra.Command, _ []string, e *calltree.Engine) error {
			rvs, err := e.Store().RequirementVersions(cmd.Context())
			if err != nil {
				return err
			}
			if rvs == nil {
				rvs = []*types.RequirementVersion{}
			}
			return a.print(cmd, rvs, func(p *printer) {
				for _, rv := range rvs {
					p.line("%-6d %-10s %s", rv.ID, rv.Criticality, rv.Name)
				}
			})
		}),
	}

	bind := &cobra.Command{
		Use:   "bind <test-case> <requirement-version>",
		Short: "Record that a test case verifies a requirement version",
		Args:  cobra.ExactArgs(2),
		RunE:  a.withEngine(a.changeLink(true)),
	}

	unbind := &cobra.Command{
		Use:   "unbind <test-case> <requirement-version>",
		Short: "Remove a verification link",
		Args:  cobra.ExactArgs(2),
		RunE:  a.withEngine(a.changeLink(false)),
	}

	setCrit := &cobra.Command{
		Use:   "criticality <requirement-version> <criticality>",
		Short: "Change the criticality of a requirement version",
		Args:  cobra.ExactArgs(2),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			id, err := parseID("requirement version", args[0])
			if err != nil {
				return err
			}
			crit, err := types.ParseCriticality(args[1])
			if err != nil {
				return err
			}
			if err := e.Mutator().ChangeCriticality(cmd.Context(), id, crit); err != nil {
				return err
			}
			return a.print(cmd, map[string]any{"requirement_version_id": id, "criticality": crit}, func(p *printer) {
				p.line("requirement version %d is %s", id, crit)
			})
		}),
	}

	cmd.AddCommand(create, list, bind, unbind, setCrit)
	return cmd
}

// changeLink binds or unbinds <test-case> <requirement-version>.
func (a *app) changeLink(bind bool) engineFunc {
	return func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
		ids, err := parseIDs("id", args)
		if err != nil {
			return err
		}
		tc, rv := ids[0], ids[1]
		verb := "verifies"
		if bind {
			err = e.Mutator().BindRequirement(cmd.Context(), tc, rv)
		} else {
			verb = "no longer verifies"
			err = e.Mutator().UnbindRequirement(cmd.Context(), tc, rv)
		}
		if err != nil {
			return err
		}
		return a.print(cmd, map[string]any{"test_case_id": tc, "requirement_version_id": rv, "linked": bind}, func(p *printer) {
			p.line("test case %d %s requirement version %d", tc, verb, rv)
		})
	}
}
