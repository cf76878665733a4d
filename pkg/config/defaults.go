package config

import (
	"strings"
	"time"

	"github.com/marmos91/vxi11/internal/bytesize"
	"github.com/marmos91/vxi11/internal/telemetry"
	"github.com/marmos91/vxi11/pkg/rpc"
	"github.com/marmos91/vxi11/pkg/vxi11"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values ("", 0) are replaced with defaults; explicit values are
// preserved. Booleans and max_read_size have a meaningful zero value and are
// left alone.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyConnectionDefaults(&cfg.Connection)
	applyPollDefaults(&cfg.Poll)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = append([]string(nil), telemetry.DefaultProfileTypes...)
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyConnectionDefaults(cfg *ConnectionConfig) {
	if cfg.Transport == "" {
		cfg.Transport = rpc.DefaultTransport
	}
	if cfg.Device == "" {
		cfg.Device = vxi11.DefaultDevice
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.IOTimeout == 0 {
		cfg.IOTimeout = vxi11.DefaultIOTimeout
	}
	if cfg.MaxRecvSize == 0 {
		cfg.MaxRecvSize = bytesize.ByteSize(vxi11.MaxRecvSizeLimit)
	}
	if cfg.MaxRecordSize == 0 {
		cfg.MaxRecordSize = bytesize.ByteSize(rpc.DefaultMaxRecordSize)
	}
}

func applyPollDefaults(cfg *PollConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}
	if cfg.Query == "" {
		cfg.Query = "*IDN?"
	}
}

// GetDefaultConfig returns a Config with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Telemetry: TelemetryConfig{Insecure: true},
	}
	ApplyDefaults(cfg)
	return cfg
}
