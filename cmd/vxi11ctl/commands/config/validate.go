package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/vxi11/internal/cli/output"
	"github.com/marmos91/vxi11/pkg/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validate the vxi11ctl configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  vxi11ctl config validate
  vxi11ctl config validate --config ./vxi11.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(cmd)

			cfg, err := config.MustLoad(path)
			if err != nil {
				return err
			}

			displayPath := path
			if displayPath == "" {
				displayPath = config.GetDefaultConfigPath()
			}

			var warnings []string
			if cfg.Connection.LockTimeout > 0 && !cfg.Connection.Lock {
				warnings = append(warnings, "lock_timeout is set but lock is false: device calls will still wait for foreign locks")
			}
			if cfg.Connection.TermChar == "" && cfg.Connection.MaxReadSize == 0 {
				warnings = append(warnings, "reads end on END only and are unbounded; consider max_read_size")
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
			_, _ = fmt.Fprintln(out, "Validation: OK")

			if len(warnings) > 0 {
				_, _ = fmt.Fprintln(out, "\nWarnings:")
				for _, w := range warnings {
					_, _ = fmt.Fprintf(out, "  - %s\n", w)
				}
			}

			_, _ = fmt.Fprintln(out, "\nConfiguration summary:")
			return output.SimpleTable(out, [][2]string{
				{"Transport", cfg.Connection.Transport},
				{"Device", cfg.Connection.Device},
				{"I/O timeout", cfg.Connection.IOTimeout.String()},
				{"Max chunk size", cfg.Connection.MaxRecvSize.String()},
				{"Log level", cfg.Logging.Level},
			})
		},
	}
}
