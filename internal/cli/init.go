package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize stride storage",
		Long:  "Create the configuration and data directories, write a default config.yaml\nand create the local database.",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	if err := a.Close(); err != nil {
		return sysErr(fmt.Errorf("finalize storage: %w", err))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "stride initialized\nconfig: %s\ndata:   %s\n", a.Loader.Dir(), a.DataDir)
	return nil
}
