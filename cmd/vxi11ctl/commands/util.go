package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/vxi11/internal/cli/output"
	"github.com/marmos91/vxi11/internal/logger"
	"github.com/marmos91/vxi11/pkg/config"
	"github.com/marmos91/vxi11/pkg/rpc"
	"github.com/marmos91/vxi11/pkg/vxi11"
)

// GlobalFlags holds the persistent flags read before configuration loading.
type GlobalFlags struct {
	ConfigFile string
	Output     string
}

// App is the state shared by the commands of one invocation.
type App struct {
	flags GlobalFlags
	cfg   *config.Config

	// dialContext replaces the network dialer; used by tests.
	dialContext rpc.DialFunc

	shutdownTelemetry func(context.Context) error
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// printer builds an output printer writing to the command's stdout.
func (a *App) printer(cmd *cobra.Command) (*output.Printer, error) {
	format, err := output.ParseFormat(a.flags.Output)
	if err != nil {
		return nil, err
	}
	noColor, _ := cmd.Flags().GetBool("no-color")
	return output.NewPrinter(cmd.OutOrStdout(), format, !noColor), nil
}

// sessionOptions converts the connection section into session options.
func (a *App) sessionOptions() (vxi11.Options, error) {
	opts, err := a.cfg.Connection.SessionOptions()
	if err != nil {
		return vxi11.Options{}, err
	}
	opts.DialContext = a.dialContext
	return opts, nil
}

// dialOptions returns the RPC options used for port mapper connections.
func (a *App) dialOptions() (rpc.DialOptions, error) {
	size, err := a.cfg.Connection.MaxRecordSize.Uint32()
	if err != nil {
		return rpc.DialOptions{}, fmt.Errorf("max_record_size: %w", err)
	}
	return rpc.DialOptions{
		Transport:     a.cfg.Connection.Transport,
		DialContext:   a.dialContext,
		MaxRecordSize: size,
	}, nil
}

// connect opens a linked session to host, bounded by the dial timeout.
func (a *App) connect(ctx context.Context, host string, opts vxi11.Options) (*vxi11.Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, a.cfg.Connection.DialTimeout)
	defer cancel()

	s, err := vxi11.Connect(dialCtx, host, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to link to %s: %w", host, err)
	}
	return s, nil
}

// withSession links to host, runs fn and destroys the link.
func (a *App) withSession(cmd *cobra.Command, host string, fn func(ctx context.Context, s *vxi11.Session) error) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	opts, err := a.sessionOptions()
	if err != nil {
		return err
	}

	s, err := a.connect(ctx, host, opts)
	if err != nil {
		return err
	}
	defer func() {
		// ctx may be cancelled by now; destroy the link regardless.
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Connection.DialTimeout)
		defer cancel()
		if err := s.Close(closeCtx); err != nil {
			logger.Warn("Destroy link failed", logger.Host(host), logger.Err(err))
		}
	}()

	return fn(ctx, s)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
