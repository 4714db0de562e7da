package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Roll over overdue tasks once",
		Long: "Defer tasks whose day has passed, stall tasks deferred too often and\n" +
			"activate captured tasks planned for today.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Machine.Rollover(cmd.Context())
			if err != nil {
				return classify(err)
			}
			if res.Changed() {
				a.Changed()
			}
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deferred %d, stalled %d, activated %d\n", res.Deferred, res.Stalled, res.Activated)
			return nil
		},
	}
}
