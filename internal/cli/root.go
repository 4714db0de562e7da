// Package cli implements the stride command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/stride/internal/app"
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
	jsonMode  bool
}

var flags rootFlags

// NewRootCmd creates the top-level "stride" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stride",
		Short: "Offline-first planner for tasks, projects, habits and notes",
		Long: "stride keeps tasks, projects, habits and notes in a local database,\n" +
			"moves tasks through their lifecycle, checks bookings for conflicts\n" +
			"and syncs with a remote repository when one is configured.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (default: platform data dir)")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newTaskCmd())
	root.AddCommand(newProjectCmd())
	root.AddCommand(newHabitCmd())
	root.AddCommand(newNoteCmd())
	root.AddCommand(newDeleteCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newSweepCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newServeCmd())

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "stride:", err)
		os.Exit(exitCode(err))
	}
}

// cliError carries the exit code for a failed command.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

// userErr marks err as caused by the invocation.
func userErr(err error) error { return &cliError{code: exitUserError, err: err} }

// sysErr marks err as an environment or storage failure.
func sysErr(err error) error { return &cliError{code: exitSysError, err: err} }

func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return exitUserError
}

// openApp wires the application from the global flags. The caller must
// defer a.Close().
func openApp(cmd *cobra.Command) (*app.App, error) {
	a, err := app.Open(app.Options{
		ConfigDir: flags.configDir,
		DataDir:   flags.dataDir,
		LogOutput: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, sysErr(err)
	}
	return a, nil
}
