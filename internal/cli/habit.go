package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/stride/internal/sqlite"
	"github.com/mesh-intelligence/stride/pkg/types"
)

func newHabitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "habit",
		Short: "Manage habits",
	}
	cmd.AddCommand(newHabitAddCmd())
	cmd.AddCommand(newHabitListCmd())
	cmd.AddCommand(newHabitDoneCmd())
	return cmd
}

func newHabitAddCmd() *cobra.Command {
	var frequency string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a habit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch frequency {
			case types.FrequencyDaily, types.FrequencyWeekdays, types.FrequencyCustom:
			default:
				return userErr(fmt.Errorf("invalid frequency %q (daily, weekdays or custom)", frequency))
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			h := &types.Habit{Title: args[0], Frequency: frequency}
			err = a.Store.Update(cmd.Context(), func(tx *sqlite.Tx) error {
				return tx.CreateHabit(h, types.OriginLocal)
			})
			if err != nil {
				return classify(err)
			}
			a.Changed()
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), h)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created habit %d %s\n", h.LocalID, h.UUID)
			return nil
		},
	}
	cmd.Flags().StringVar(&frequency, "frequency", types.FrequencyDaily, "daily, weekdays or custom")
	return cmd
}

func newHabitListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List habits with their streaks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var habits []*types.Habit
			err = a.Store.View(cmd.Context(), func(tx *sqlite.Tx) error {
				habits, err = tx.ListHabits()
				return err
			})
			if err != nil {
				return classify(err)
			}
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), habits)
			}
			w := table(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tFREQUENCY\tSTREAK\tLAST\tTITLE")
			for _, h := range habits {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", h.LocalID, h.Frequency, h.StreakCount, fmtDate(h.LastCompletedDate), h.Title)
			}
			return w.Flush()
		},
	}
}

func newHabitDoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Record today's completion of a habit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var (
				h       *types.Habit
				counted bool
			)
			err = a.Store.Update(cmd.Context(), func(tx *sqlite.Tx) error {
				h, err = tx.GetHabit(id)
				if err != nil {
					return err
				}
				if h.Tombstoned() {
					return types.ErrTombstoned
				}
				if counted = h.Complete(tx.Now()); !counted {
					return nil
				}
				return tx.SaveHabit(h, types.OriginLocal)
			})
			if err != nil {
				return classify(err)
			}
			if counted {
				a.Changed()
			}
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), h)
			}
			if !counted {
				fmt.Fprintf(cmd.OutOrStdout(), "habit %d already done today (streak %d)\n", h.LocalID, h.StreakCount)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "habit %d streak %d\n", h.LocalID, h.StreakCount)
			return nil
		},
	}
}
