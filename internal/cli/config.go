package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/stride/internal/config"
	"github.com/mesh-intelligence/stride/internal/paths"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: "Print every setting after applying config.yaml, STRIDE_* environment\n" +
			"variables and defaults. Output is YAML, or JSON with --json.",
		Args: cobra.NoArgs,
		RunE: runConfig,
	}
}

func runConfig(cmd *cobra.Command, args []string) error {
	dir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return sysErr(fmt.Errorf("resolve config dir: %w", err))
	}
	loader, err := config.Load(dir)
	if err != nil {
		return sysErr(err)
	}
	if _, err := loader.Config(); err != nil {
		return userErr(err)
	}

	settings := loader.Settings()
	if flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), settings)
	}
	out, err := yaml.Marshal(settings)
	if err != nil {
		return sysErr(fmt.Errorf("marshal config: %w", err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", dir, out)
	return nil
}
