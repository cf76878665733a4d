package telemetry

// Config holds OpenTelemetry tracing configuration.
type Config struct {
	// Enabled turns span export on. When false every span is a no-op.
	Enabled bool

	// ServiceName is reported as service.name on every span.
	ServiceName string

	// ServiceVersion is reported as service.version.
	ServiceVersion string

	// Endpoint is the OTLP/gRPC collector address (e.g., "localhost:4317").
	Endpoint string

	// Insecure disables TLS towards the collector.
	Insecure bool

	// SampleRate is the fraction of traces kept (0.0 to 1.0).
	SampleRate float64
}

// DefaultConfig returns tracing disabled with collector settings suitable
// for a local OTLP endpoint.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "vxi11ctl",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}
