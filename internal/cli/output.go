package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/calltree/pkg/types"
)

// printer writes human-readable output.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

// print writes v as indented JSON in --json mode and runs text otherwise.
func (a *app) print(cmd *cobra.Command, v any, text func(p *printer)) error {
	out := cmd.OutOrStdout()
	if a.flags.jsonMode {
		return writeJSON(out, v)
	}
	p := &printer{w: out}
	text(p)
	return p.err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseID parses a positive entity id.
func parseID(what, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s %q", types.ErrInvalidID, what, s)
	}
	return id, nil
}

// parseIDs parses every element of args.
func parseIDs(what string, args []string) ([]int64, error) {
	ids := make([]int64, len(args))
	for i, s := range args {
		id, err := parseID(what, s)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func describeStep(s *types.Step) string {
	switch s.Kind {
	case types.StepKindCall:
		desc := fmt.Sprintf("call %d [%s]", s.Call.CalledTestCaseID, s.Call.Mode())
		if s.Call.DatasetID != nil {
			desc += fmt.Sprintf(" dataset %d", *s.Call.DatasetID)
		}
		return desc
	case types.StepKindAction:
		if s.Action.ExpectedResult == "" {
			return "action " + strconv.Quote(s.Action.Action)
		}
		return fmt.Sprintf("action %q => %q", s.Action.Action, s.Action.ExpectedResult)
	case types.StepKindKeyword:
		return fmt.Sprintf("%s %s", s.Keyword.Keyword, s.Keyword.Text)
	default:
		return string(s.Kind)
	}
}

func autoLabel(auto bool) string {
	if auto {
		return "auto"
	}
	return "pinned"
}
