package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/marmos91/vxi11/internal/cli/output"
	"github.com/marmos91/vxi11/internal/logger"
	"github.com/marmos91/vxi11/internal/poller"
	"github.com/marmos91/vxi11/internal/telemetry"
	"github.com/marmos91/vxi11/pkg/api"
	"github.com/marmos91/vxi11/pkg/config"
	"github.com/marmos91/vxi11/pkg/metrics"
	"github.com/marmos91/vxi11/pkg/vxi11"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/vxi11/pkg/metrics/prometheus"
)

type pollOptions struct {
	query       string
	interval    time.Duration
	count       int
	metrics     bool
	metricsPort int
	watch       bool
}

func newPollCmd(app *App) *cobra.Command {
	var o pollOptions

	cmd := &cobra.Command{
		Use:   "poll HOST",
		Short: "Query an instrument periodically",
		Long: `Query an instrument at a fixed interval over one device link.

The link is re-created after a connection loss. With --metrics, Prometheus
metrics are served on /metrics and the link state on /health/ready.

Examples:
  # Print the identification every second
  vxi11ctl poll 192.168.1.50

  # Read a voltage every 250ms and export metrics on :9090
  vxi11ctl poll 192.168.1.50 --query 'MEAS:VOLT?' --interval 250ms --metrics

  # Pick up query and interval changes from the config file
  vxi11ctl poll 192.168.1.50 --watch --config ./vxi11.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll(cmd, app, args[0], o)
		},
	}

	cmd.Flags().StringVarP(&o.query, "query", "q", "", "Command sent on every tick (default: poll.query)")
	cmd.Flags().DurationVarP(&o.interval, "interval", "i", 0, "Time between queries (default: poll.interval)")
	cmd.Flags().IntVarP(&o.count, "count", "c", 0, "Stop after this many polls (0: until interrupted)")
	cmd.Flags().BoolVar(&o.metrics, "metrics", false, "Serve Prometheus metrics (default: metrics.enabled)")
	cmd.Flags().IntVar(&o.metricsPort, "metrics-port", 0, "Metrics HTTP port (default: metrics.port)")
	cmd.Flags().BoolVarP(&o.watch, "watch", "w", false, "Reload poll settings when the config file changes")
	return cmd
}

func runPoll(cmd *cobra.Command, app *App, host string, o pollOptions) error {
	cfg := app.Config()
	if o.query == "" {
		o.query = cfg.Poll.Query
	}
	if o.interval <= 0 {
		o.interval = cfg.Poll.Interval
	}
	if cmd.Flags().Changed("metrics") {
		cfg.Metrics.Enabled = o.metrics
	}
	if o.metricsPort > 0 {
		cfg.Metrics.Port = o.metricsPort
	}

	printer, err := app.printer(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopProfiling, err := telemetry.InitProfiling(cfg.Telemetry.ProfilerConfig(Version, map[string]string{"instrument": host}))
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := stopProfiling(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	}

	opts, err := app.sessionOptions()
	if err != nil {
		return err
	}

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.InitRegistry()
		defer metrics.ResetRegistry()
		opts.Metrics = metrics.NewVXI11Metrics()
		opts.RPCMetrics = metrics.NewRPCMetrics()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	}

	p := newPoller(app, host, o, opts)

	var server *api.Server
	if reg != nil {
		server = api.NewServer(api.ServerConfig{Port: cfg.Metrics.Port}, p, reg)
	}

	return pollLoop(ctx, cancel, app, p, server, printer, o)
}

func newPoller(app *App, host string, o pollOptions, opts vxi11.Options) *poller.Poller {
	pc := poller.Config{
		Host:        host,
		Device:      opts.Device,
		Query:       o.query,
		Interval:    o.interval,
		DialTimeout: app.Config().Connection.DialTimeout,
	}
	return poller.New(pc, func(ctx context.Context) (*vxi11.Session, error) {
		return vxi11.Connect(ctx, host, opts)
	})
}

func pollLoop(ctx context.Context, cancel context.CancelFunc, app *App, p *poller.Poller, server *api.Server, printer *output.Printer, o pollOptions) error {
	serverDone := make(chan error, 1)
	if server != nil {
		go func() {
			err := server.Start(ctx)
			if err != nil {
				logger.Error("Metrics server error", "error", err)
				cancel()
			}
			serverDone <- err
		}()
	} else {
		serverDone <- nil
	}

	if o.watch {
		path := app.flags.ConfigFile
		if path == "" {
			path = config.GetDefaultConfigPath()
		}
		watchDone, err := watchConfig(ctx, path, p)
		if err != nil {
			cancel()
			<-serverDone
			return err
		}
		defer func() { <-watchDone }()
	}

	polls := 0
	err := p.Run(ctx, func(r poller.Result) {
		printResult(printer, r)
		polls++
		if o.count > 0 && polls >= o.count {
			cancel()
		}
	})

	cancel()
	if serverErr := <-serverDone; err == nil {
		err = serverErr
	}
	return err
}

// printResult prints one line per poll in table format and one document
// per poll otherwise.
func printResult(printer *output.Printer, r poller.Result) {
	switch printer.Format() {
	case output.FormatTable:
		if r.Error != "" {
			printer.Warning(fmt.Sprintf("%s  %s", r.Time.Format(time.RFC3339), r.Error))
			return
		}
		printer.Printf("%s  %s\n", r.Time.Format(time.RFC3339), r.Response)
	case output.FormatRaw:
		_, _ = printer.Writer().Write(r.Raw())
	default:
		if err := printer.Print(r); err != nil {
			logger.Warn("Failed to print poll result", logger.Err(err))
		}
	}
}

// watchConfig reloads the poll section of the config file at path whenever
// it changes. The directory is watched so that editors replacing the file
// are noticed. The returned channel is closed when the watcher exits.
func watchConfig(ctx context.Context, path string, p *poller.Poller) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { _ = watcher.Close() }()

		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}
				cfg, err := config.Load(path)
				if err != nil {
					logger.Warn("Ignoring invalid config change", "path", path, logger.Err(err))
					continue
				}
				p.Update(cfg.Poll.Query, cfg.Poll.Interval)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Config watcher error", logger.Err(err))
			}
		}
	}()

	return done, nil
}
