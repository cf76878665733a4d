// Package commands implements the vxi11ctl command line.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	configcmd "github.com/marmos91/vxi11/cmd/vxi11ctl/commands/config"
	"github.com/marmos91/vxi11/internal/cli/prompt"
	"github.com/marmos91/vxi11/internal/logger"
	"github.com/marmos91/vxi11/internal/telemetry"
	"github.com/marmos91/vxi11/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "skip-config"

// NewRootCmd builds the vxi11ctl command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{})
}

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vxi11ctl",
		Short: "VXI-11 instrument client",
		Long: `vxi11ctl talks to LAN instruments (oscilloscopes, DMMs, power supplies,
GPIB gateways) over the VXI-11 protocol.

It resolves the instrument's core channel through the port mapper, creates a
device link, and exchanges messages with the instrument.

Configuration is read from $XDG_CONFIG_HOME/vxi11/config.yaml (or --config)
and can be overridden with VXI11_* environment variables and flags.

Use "vxi11ctl [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return app.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.teardown(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&app.flags.ConfigFile, "config", "", "config file (default: $XDG_CONFIG_HOME/vxi11/config.yaml)")
	flags.StringVarP(&app.flags.Output, "output", "o", "table", "Output format (table|json|yaml|raw)")
	flags.Bool("no-color", false, "Disable colored output")
	flags.String("log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	flags.String("transport", "", "Record-marking transport (tcp|tcp-buffered)")
	flags.StringP("device", "d", "", "Logical device name (e.g. inst0, gpib0,5)")
	flags.Duration("timeout", 0, "Timeout for resolving, connecting and linking")
	flags.Duration("io-timeout", 0, "I/O timeout sent to the instrument")
	flags.String("term-char", "", `Termination character ending reads (e.g. "\n")`)
	flags.Bool("lock", false, "Lock the device when linking")

	rootCmd.AddCommand(
		newQueryCmd(app),
		newWriteCmd(app),
		newReadCmd(app),
		newControlCmd(app),
		newResolveCmd(app),
		newDumpCmd(app),
		newPollCmd(app),
		newVersionCmd(),
		newCompletionCmd(),
		configcmd.NewCmd(),
	)

	// Hide the default completion command (we provide our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the command line.
func Execute() error {
	return NewRootCmd().Execute()
}

// setup loads the configuration, applies flag overrides and initializes
// logging and tracing.
func (a *App) setup(cmd *cobra.Command) error {
	cfg, err := config.MustLoad(a.flags.ConfigFile)
	if err != nil {
		return err
	}
	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return err
	}
	a.cfg = cfg

	if err := logger.Init(cfg.Logging.LoggerConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	shutdown, err := telemetry.Init(cmd.Context(), cfg.Telemetry.TracingConfig(Version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.shutdownTelemetry = shutdown
	if telemetry.IsEnabled() {
		logger.Debug("Tracing enabled",
			"endpoint", cfg.Telemetry.Endpoint,
			"sample_rate", cfg.Telemetry.SampleRate)
	}
	return nil
}

func (a *App) teardown(ctx context.Context) error {
	if a.shutdownTelemetry == nil {
		return nil
	}
	if err := a.shutdownTelemetry(ctx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}
	return nil
}

// applyFlagOverrides copies explicitly set persistent flags over cfg and
// revalidates it.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	c := &cfg.Connection

	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("transport") {
		c.Transport, _ = flags.GetString("transport")
	}
	if flags.Changed("device") {
		c.Device, _ = flags.GetString("device")
	}
	if flags.Changed("timeout") {
		c.DialTimeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("io-timeout") {
		c.IOTimeout, _ = flags.GetDuration("io-timeout")
	}
	if flags.Changed("term-char") {
		tc, _ := flags.GetString("term-char")
		parsed, err := prompt.ParseTermChar(tc)
		if err != nil {
			return fmt.Errorf("--term-char: %w", err)
		}
		c.TermChar = config.TermChar(parsed)
	}
	if flags.Changed("lock") {
		c.Lock, _ = flags.GetBool("lock")
	}

	config.ApplyDefaults(cfg)
	return config.Validate(cfg)
}
