package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/marmos91/vxi11/internal/bytesize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the vxi11ctl configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (VXI11_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry tracing and Pyroscope profiling
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics configures the Prometheus endpoint served by "poll"
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Connection holds the session settings used to reach instruments
	Connection ConnectionConfig `mapstructure:"connection" yaml:"connection"`

	// Poll configures the "poll" command
	Poll PollConfig `mapstructure:"poll" yaml:"poll"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, a span is exported for every RPC call and session operation.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling of "poll".
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" validate:"dive,profile_type" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for /metrics and /healthz
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// ConnectionConfig holds the settings of a device-link session.
type ConnectionConfig struct {
	// Transport selects the record-marking transport ("tcp" or "tcp-buffered")
	Transport string `mapstructure:"transport" validate:"required,transport" yaml:"transport"`

	// Device is the logical device name sent in create_link
	// Default: "instr"
	Device string `mapstructure:"device" validate:"required" yaml:"device"`

	// DialTimeout bounds port resolution, connection and link creation
	// Default: 5s
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"gt=0" yaml:"dial_timeout"`

	// IOTimeout is sent to the instrument with every write and read
	// Default: 1s
	IOTimeout time.Duration `mapstructure:"io_timeout" validate:"gte=0" yaml:"io_timeout"`

	// LockTimeout is how long the instrument waits for a lock
	LockTimeout time.Duration `mapstructure:"lock_timeout" validate:"gte=0" yaml:"lock_timeout"`

	// Lock requests an exclusive lock when the link is created
	Lock bool `mapstructure:"lock" yaml:"lock"`

	// TermChar ends reads when set (a single character, e.g. "\n").
	// Empty means reads end on END only.
	TermChar TermChar `mapstructure:"term_char" validate:"omitempty,len=1" yaml:"term_char"`

	// MaxRecvSize caps the chunk size advertised by the instrument
	// Default: 1Mi
	MaxRecvSize bytesize.ByteSize `mapstructure:"max_recv_size" validate:"lte=1048576" yaml:"max_recv_size"`

	// MaxRecordSize bounds one reassembled RPC reply
	// Default: 64Mi
	MaxRecordSize bytesize.ByteSize `mapstructure:"max_record_size" validate:"lte=2147483647" yaml:"max_record_size"`

	// MaxReadSize bounds the bytes accumulated by one read; 0 is unbounded
	MaxReadSize bytesize.ByteSize `mapstructure:"max_read_size" yaml:"max_read_size"`
}

// TermChar is a termination character. It is always written as a
// double-quoted YAML scalar so that control characters such as "\n" survive
// a save and reload.
type TermChar string

// MarshalYAML implements yaml.Marshaler.
func (t TermChar) MarshalYAML() (any, error) {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!!str",
		Style: yaml.DoubleQuotedStyle,
		Value: string(t),
	}, nil
}

// PollConfig configures the "poll" command.
type PollConfig struct {
	// Interval between two queries
	// Default: 1s
	Interval time.Duration `mapstructure:"interval" validate:"gt=0" yaml:"interval"`

	// Query is the command sent on every tick
	// Default: "*IDN?"
	Query string `mapstructure:"query" validate:"required" yaml:"query"`
}

// Load loads configuration from file, environment, and defaults.
//
// A missing configuration file is not an error: the defaults are returned,
// with environment overrides applied.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)
	bindDefaults(v)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad is Load with a user-facing error when an explicit config path
// does not exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Create it with:\n"+
				"  vxi11ctl config init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: VXI11_CONNECTION_IO_TIMEOUT=5s
	v.SetEnvPrefix("VXI11")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindDefaults registers every key with viper so that environment
// variables are honoured even when no config file sets the key.
func bindDefaults(v *viper.Viper) {
	def := GetDefaultConfig()

	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.output", def.Logging.Output)

	v.SetDefault("telemetry.enabled", def.Telemetry.Enabled)
	v.SetDefault("telemetry.endpoint", def.Telemetry.Endpoint)
	v.SetDefault("telemetry.insecure", def.Telemetry.Insecure)
	v.SetDefault("telemetry.sample_rate", def.Telemetry.SampleRate)
	v.SetDefault("telemetry.profiling.enabled", def.Telemetry.Profiling.Enabled)
	v.SetDefault("telemetry.profiling.endpoint", def.Telemetry.Profiling.Endpoint)
	v.SetDefault("telemetry.profiling.profile_types", def.Telemetry.Profiling.ProfileTypes)

	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.port", def.Metrics.Port)

	v.SetDefault("connection.transport", def.Connection.Transport)
	v.SetDefault("connection.device", def.Connection.Device)
	v.SetDefault("connection.dial_timeout", def.Connection.DialTimeout.String())
	v.SetDefault("connection.io_timeout", def.Connection.IOTimeout.String())
	v.SetDefault("connection.lock_timeout", def.Connection.LockTimeout.String())
	v.SetDefault("connection.lock", def.Connection.Lock)
	v.SetDefault("connection.term_char", def.Connection.TermChar)
	v.SetDefault("connection.max_recv_size", uint64(def.Connection.MaxRecvSize))
	v.SetDefault("connection.max_record_size", uint64(def.Connection.MaxRecordSize))
	v.SetDefault("connection.max_read_size", uint64(def.Connection.MaxReadSize))

	v.SetDefault("poll.interval", def.Poll.Interval.String())
	v.SetDefault("poll.query", def.Poll.Query)
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize, so
// sizes can be written as "64Mi", "512Ki" or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "500ms" or "5s" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/vxi11, ~/.config/vxi11, or "." when
// the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "vxi11")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "vxi11")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
