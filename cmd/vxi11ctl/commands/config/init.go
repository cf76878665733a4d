package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/vxi11/internal/cli/prompt"
	"github.com/marmos91/vxi11/pkg/config"
	"github.com/marmos91/vxi11/pkg/rpc"
)

func newInitCmd() *cobra.Command {
	var (
		force       bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file",
		Long: `Create a configuration file populated with the defaults.

By default, the file is created at $XDG_CONFIG_HOME/vxi11/config.yaml.
Use --config to specify a custom path.

Examples:
  # Write defaults
  vxi11ctl config init

  # Answer a few questions first
  vxi11ctl config init --interactive

  # Overwrite an existing file
  vxi11ctl config init --force --config ./vxi11.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(cmd)
			if path == "" {
				path = config.GetDefaultConfigPath()
			}

			if _, err := os.Stat(path); err == nil && !force {
				if !interactive {
					return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
				}
				ok, err := prompt.Confirm(fmt.Sprintf("%s exists. Overwrite", path), false)
				if err != nil {
					return err
				}
				if !ok {
					return prompt.ErrAborted
				}
			}

			cfg := config.GetDefaultConfig()
			if interactive {
				if err := askConnection(&cfg.Connection); err != nil {
					return err
				}
				if err := config.Validate(cfg); err != nil {
					return err
				}
			}

			if err := config.SaveConfig(cfg, path); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", path)
			_, _ = fmt.Fprintln(out, "\nNext steps:")
			_, _ = fmt.Fprintln(out, "  1. Edit the configuration file to match your instruments")
			_, _ = fmt.Fprintln(out, "  2. Try it with: vxi11ctl query <host> '*IDN?'")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Force overwrite existing config file")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Prompt for connection settings")
	return cmd
}

// askConnection prompts for the connection section.
func askConnection(c *config.ConnectionConfig) error {
	var err error

	if c.Device, err = prompt.Input("Device name", c.Device); err != nil {
		return err
	}
	if c.Transport, err = prompt.SelectString("Transport", rpc.AvailableTransports()); err != nil {
		return err
	}
	if c.IOTimeout, err = prompt.InputDuration("I/O timeout", c.IOTimeout); err != nil {
		return err
	}

	tc, err := prompt.InputWithValidation(`Termination character (empty, \n, \r or one character)`, "", prompt.ValidateTermChar)
	if err != nil {
		return err
	}
	parsed, err := prompt.ParseTermChar(tc)
	if err != nil {
		return err
	}
	c.TermChar = config.TermChar(parsed)

	if c.MaxRecvSize, err = prompt.InputByteSize("Max chunk size", c.MaxRecvSize); err != nil {
		return err
	}

	if c.Lock, err = prompt.Confirm("Lock the device when linking", false); err != nil {
		return err
	}
	return nil
}
