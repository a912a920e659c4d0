package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/calltree/internal/sqlite"
	"github.com/mesh-intelligence/calltree/pkg/calltree"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Write every table as JSONL files into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			if err := e.Store().Export(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.print(cmd, map[string]any{"dir": args[0], "files": sqlite.SnapshotFiles()}, func(p *printer) {
				p.line("exported %d tables to %s", len(sqlite.SnapshotFiles()), args[0])
			})
		}),
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Replace all data with the JSONL files of a directory",
		Long:  "Replace all data with the JSONL files of a directory. The import is all\nor nothing: on error the database is unchanged.",
		Args:  cobra.ExactArgs(1),
		RunE: a.withEngine(func(cmd *cobra.Command, args []string, e *calltree.Engine) error {
			if err := e.Store().Import(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.print(cmd, map[string]any{"dir": args[0]}, func(p *printer) {
				p.line("imported %s", args[0])
			})
		}),
	}
}
