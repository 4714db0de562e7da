package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// syncReport is the JSON form of a sync status.
type syncReport struct {
	Pushed         int       `json:"pushed"`
	Pulled         int       `json:"pulled"`
	LastSuccess    time.Time `json:"last_success,omitzero"`
	Error          string    `json:"error,omitempty"`
	NeedsAttention bool      `json:"needs_attention"`
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push local changes and pull remote ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.SyncNow(cmd.Context())
			if err != nil {
				return classify(err)
			}
			rep := syncReport{
				Pushed:         st.Pushed,
				Pulled:         st.Pulled,
				LastSuccess:    st.LastSuccess,
				NeedsAttention: st.NeedsAttention,
			}
			if st.LastError != nil {
				rep.Error = st.LastError.Error()
			}
			if flags.jsonMode {
				if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "pushed %d, pulled %d\n", rep.Pushed, rep.Pulled)
			}
			if st.LastError != nil {
				if st.NeedsAttention {
					return userErr(fmt.Errorf("sync failed: %w", st.LastError))
				}
				return sysErr(fmt.Errorf("sync failed: %w", st.LastError))
			}
			return nil
		},
	}
}
