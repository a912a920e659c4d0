package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/calltree/pkg/sqlite"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize calltree storage",
		Long:  "Create the configuration and data directories, write a default config.yaml\nif none exists, then create the database.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(a.configDir, 0o755); err != nil {
				return sysError(fmt.Errorf("create config directory: %w", err))
			}
			wrote, err := writeConfigIfMissing(a.configDir, defaultConfig(a.flags.dataDir))
			if err != nil {
				return sysError(fmt.Errorf("write config: %w", err))
			}

			backend := sqlite.NewBackend()
			if err := backend.Attach(a.cfg); err != nil {
				return sysError(fmt.Errorf("initialize storage: %w", err))
			}
			if err := backend.Detach(); err != nil {
				return sysError(fmt.Errorf("finalize storage: %w", err))
			}

			a.log.V(1).Info("initialized", "configDir", a.configDir, "dataDir", a.cfg.DataDir, "configWritten", wrote)
			return a.print(cmd, map[string]any{
				"config_dir": a.configDir,
				"data_dir":   a.cfg.DataDir,
			}, func(p *printer) {
				p.line("calltree initialized in %s", a.cfg.DataDir)
			})
		},
	}
}
