package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/stride/pkg/types"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <id>",
		Short: "Delete a task, project, habit or note",
		Long: "Delete a record. The row is kept as a tombstone until the deletion has\n" +
			"synced. Deleting a project also deletes its tasks; deleting a note\n" +
			"releases its attachment.\n\nTables: " + strings.Join(types.SyncTables, ", "),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := args[0]
			if !types.IsSyncTable(table) {
				return userErr(fmt.Errorf("%w: %q (valid: %s)", types.ErrTableNotFound, table, strings.Join(types.SyncTables, ", ")))
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Delete(cmd.Context(), table, id); err != nil {
				return classify(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %d\n", table, id)
			return nil
		},
	}
}
