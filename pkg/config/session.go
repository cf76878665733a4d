package config

import (
	"fmt"

	"github.com/marmos91/vxi11/internal/logger"
	"github.com/marmos91/vxi11/internal/telemetry"
	"github.com/marmos91/vxi11/pkg/vxi11"
)

// SessionOptions builds the options of a device-link session. Metrics are
// left nil; the caller attaches them when enabled.
func (c *ConnectionConfig) SessionOptions() (vxi11.Options, error) {
	maxRecordSize, err := c.MaxRecordSize.Uint32()
	if err != nil {
		return vxi11.Options{}, fmt.Errorf("max_record_size: %w", err)
	}
	maxRecvSize, err := c.MaxRecvSize.Uint32()
	if err != nil {
		return vxi11.Options{}, fmt.Errorf("max_recv_size: %w", err)
	}

	opts := vxi11.DefaultOptions()
	opts.Device = c.Device
	opts.LockDevice = c.Lock
	opts.LockTimeout = c.LockTimeout
	opts.IOTimeout = c.IOTimeout
	opts.MaxRecvSize = maxRecvSize
	opts.MaxReadSize = c.MaxReadSize.Int()
	opts.Transport = c.Transport
	opts.MaxRecordSize = maxRecordSize

	if c.TermChar != "" {
		opts.TermChar = c.TermChar[0]
		opts.UseTermChar = true
	}
	return opts, nil
}

// LoggerConfig converts the logging section for logger.Init.
func (c *LoggingConfig) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Level, Format: c.Format, Output: c.Output}
}

// TracingConfig converts the telemetry section for telemetry.Init.
func (c *TelemetryConfig) TracingConfig(version string) telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.Enabled = c.Enabled
	cfg.Endpoint = c.Endpoint
	cfg.Insecure = c.Insecure
	cfg.SampleRate = c.SampleRate
	cfg.ServiceVersion = version
	return cfg
}

// ProfilerConfig converts the profiling section for telemetry.InitProfiling.
func (c *TelemetryConfig) ProfilerConfig(version string, tags map[string]string) telemetry.ProfilingConfig {
	return telemetry.ProfilingConfig{
		Enabled:        c.Profiling.Enabled,
		ServiceName:    telemetry.DefaultConfig().ServiceName,
		ServiceVersion: version,
		Endpoint:       c.Profiling.Endpoint,
		Tags:           tags,
		ProfileTypes:   c.Profiling.ProfileTypes,
	}
}
