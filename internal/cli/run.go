package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/stride/internal/lifecycle"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run sync, rollover and reminders in the foreground",
		Long: "Run the background jobs until interrupted: periodic sync when a remote\n" +
			"is configured, the rollover sweep and reminders. Reminders print to\n" +
			"standard output. Edits to config.yaml apply without a restart.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			err = a.Run(ctx, func(r lifecycle.Reminder) {
				fmt.Fprintf(out, "reminder: %s %q starts in %d min\n", r.Kind, r.Task.Title, r.MinutesLeft)
			})
			if err != nil {
				return sysErr(err)
			}
			return nil
		},
	}
}
