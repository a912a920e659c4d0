// Package cli implements the calltree command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/calltree/internal/importance"
	"github.com/mesh-intelligence/calltree/internal/logging"
	"github.com/mesh-intelligence/calltree/internal/paths"
	"github.com/mesh-intelligence/calltree/internal/telemetry"
	"github.com/mesh-intelligence/calltree/pkg/calltree"
	"github.com/mesh-intelligence/calltree/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	logLevel  string
	jsonMode  bool
}

// app is the state of one invocation: flags, the loaded config and the
// logger built from it.
type app struct {
	flags     rootFlags
	configDir string
	cfg       types.Config
	log       logr.Logger
}

// NewRootCmd creates the top-level "calltree" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{log: logr.Discard()}
	root := &cobra.Command{
		Use:     "calltree",
		Short:   "Keep test-case call graphs acyclic and their importance current",
		Long:    "calltree stores test cases whose steps call other test cases, rejects\ncalls that would close a cycle, answers call tree queries and deduces\ntest case importance from requirement criticality.",
		Version: calltree.Version,
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: $XDG_CONFIG_HOME/calltree)")
	root.PersistentFlags().StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/.calltree-db)")
	root.PersistentFlags().StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newTestCaseCmd(a),
		newRequirementCmd(a),
		newDatasetCmd(a),
		newStepCmd(a),
		newImportanceCmd(a),
		newTreeCmd(a),
		newExportCmd(a),
		newImportCmd(a),
	)
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "calltree:", err)
		os.Exit(exitCode(err))
	}
}

// setup resolves directories, loads config.yaml and builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return sysError(fmt.Errorf("resolve config dir: %w", err))
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return sysError(err)
	}
	dataDir, err := paths.ResolveDataDir(a.flags.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return sysError(fmt.Errorf("resolve data dir: %w", err))
	}

	a.configDir = configDir
	a.cfg = types.Config{
		Backend:         v.GetString(cfgKeyBackend),
		DataDir:         dataDir,
		LogLevel:        v.GetString(cfgKeyLogLevel),
		OTelEndpoint:    v.GetString(cfgKeyOTelEndpoint),
		ImportanceTable: v.GetStringMapString(cfgKeyImportanceTable),
	}
	if a.flags.logLevel != "" {
		a.cfg.LogLevel = a.flags.logLevel
	}

	log, err := logging.New(a.cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

// engineFunc is the body of a command that needs an open engine.
type engineFunc func(cmd *cobra.Command, args []string, e *calltree.Engine) error

// withEngine opens the engine (and tracing) around fn. Errors fn returns
// that are not user errors are reported as system errors.
func (a *app) withEngine(fn engineFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		shutdown, err := telemetry.Init(ctx, "calltree", calltree.Version, a.cfg.OTelEndpoint)
		if err != nil {
			return sysError(err)
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				a.log.Error(err, "flushing traces")
			}
		}()

		e, err := calltree.Open(ctx, a.cfg, a.log)
		if err != nil {
			if isUserError(err) {
				return err
			}
			return sysError(err)
		}
		defer e.Close()

		if err := fn(cmd, args, e); err != nil {
			if isUserError(err) {
				return err
			}
			return sysError(err)
		}
		return nil
	}
}

// exitCodeError carries an exit code through cobra.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func sysError(err error) error {
	return &exitCodeError{code: exitSysError, err: err}
}

// userErrors are the failures caused by the request rather than the system.
var userErrors = []error{
	types.ErrNotFound,
	types.ErrInvalidID,
	types.ErrInvalidData,
	types.ErrInvalidName,
	types.ErrStepNotOwned,
	types.ErrDuplicate,
	types.ErrInvalidImportance,
	types.ErrInvalidCriticality,
	types.ErrCyclicCall,
	types.ErrInvalidModeArgument,
	types.ErrLockHeld,
	types.ErrBackendEmpty,
	types.ErrBackendUnknown,
	types.ErrLogLevel,
	importance.ErrIncompleteTable,
	importance.ErrNonMonotoneTable,
}

func isUserError(err error) bool {
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// exitCode maps err to a process exit code. Errors not marked as system
// errors (bad arguments, unknown flags, rejected mutations) are user errors.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	return exitUserError
}
