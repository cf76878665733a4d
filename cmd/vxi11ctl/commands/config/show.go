package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/vxi11/internal/cli/output"
	"github.com/marmos91/vxi11/pkg/config"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the configuration after defaults and VXI11_* environment
overrides are applied.

Examples:
  vxi11ctl config show
  VXI11_CONNECTION_IO_TIMEOUT=5s vxi11ctl config show -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.MustLoad(configPath(cmd))
			if err != nil {
				return err
			}

			format, _ := cmd.Flags().GetString("output")
			if format == "json" {
				return output.PrintJSON(cmd.OutOrStdout(), cfg)
			}
			return output.PrintYAML(cmd.OutOrStdout(), cfg)
		},
	}
}
