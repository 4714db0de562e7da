package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the stride release, overridden at build time with
// -ldflags "-X github.com/mesh-intelligence/stride/internal/cli.Version=...".
var Version = "0.1.0"

const modulePath = "github.com/mesh-intelligence/stride"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the stride version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "stride v%s\nmodule: %s\n", Version, modulePath)
			return nil
		},
	}
}
