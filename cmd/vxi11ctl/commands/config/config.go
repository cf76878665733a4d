// Package config implements configuration management subcommands.
package config

import (
	"github.com/spf13/cobra"
)

// NewCmd builds the config subcommand. Its subcommands load the
// configuration themselves, so the root does not.
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long: `Manage vxi11ctl configuration files.

Subcommands:
  init      Create a configuration file
  show      Display the effective configuration
  validate  Validate a configuration file
  schema    Generate JSON schema for IDE/validation`,
		Annotations: map[string]string{"skip-config": "true"},
	}

	cmd.AddCommand(newInitCmd(), newShowCmd(), newValidateCmd(), newSchemaCmd())

	// The root checks the annotation on the command being run.
	for _, sub := range cmd.Commands() {
		if sub.Annotations == nil {
			sub.Annotations = map[string]string{}
		}
		sub.Annotations["skip-config"] = "true"
	}
	return cmd
}

// configPath returns the --config flag or the default location.
func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
