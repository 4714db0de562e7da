package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errSlotUnavailable is returned when validate rejects a slot.
var errSlotUnavailable = errors.New("slot unavailable")

// slotReport is the JSON form of a validation outcome.
type slotReport struct {
	OK         bool   `json:"ok"`
	Reason     string `json:"reason,omitempty"`
	ConflictID int64  `json:"conflict_id,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func newValidateCmd() *cobra.Command {
	var (
		date     string
		clock    string
		duration int
		exclude  int64
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check whether a time slot is free",
		Long: "Check a proposed booking against existing ones, work hours and the\n" +
			"current time without writing anything. Exits 1 when the slot is taken.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if date == "" || date == "today" {
				date = a.Clock.Now().In(a.Validator.Policy().Loc()).Format(dateLayout)
			}
			out, err := a.Validator.Validate(cmd.Context(), date, clock, duration, exclude)
			if err != nil {
				return classify(err)
			}
			rep := slotReport{OK: out.OK, Reason: out.Reason, Suggestion: out.Suggestion}
			if out.Conflict != nil {
				rep.ConflictID = out.Conflict.LocalID
			}
			if flags.jsonMode {
				if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
					return err
				}
			} else if out.OK {
				fmt.Fprintln(cmd.OutOrStdout(), "slot is free")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), out.Reason)
				if out.Suggestion != "" {
					fmt.Fprintln(cmd.OutOrStdout(), out.Suggestion)
				}
			}
			if !out.OK {
				return userErr(errSlotUnavailable)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&clock, "time", "", "start time HH:MM")
	cmd.Flags().IntVar(&duration, "duration", 0, "length in minutes (default from config)")
	cmd.Flags().Int64Var(&exclude, "exclude", 0, "id of the task being moved")
	_ = cmd.MarkFlagRequired("time")
	return cmd
}
