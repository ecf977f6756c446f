package config

import (
	"time"

	"github.com/kbukum/pushflow/errors"
	"github.com/kbukum/pushflow/logger"
	"github.com/kbukum/pushflow/server"
	"github.com/kbukum/pushflow/validation"
)

// Defaults for StreamConfig.
const (
	DefaultPrefetch  = 32
	DefaultSSEWindow = 16
	DefaultKeepAlive = 15 * time.Second
)

// ServiceConfig contains everything a pushflow process reads at startup.
//
// Example config.yml:
//
//	name: streamd
//	environment: production
//	server:
//	  addr: ":8080"
//	  max_streams_per_client: 8
//	logging:
//	  level: info
//	  format: json
//	stream:
//	  prefetch: 64
//	  sse_window: 16
//	  keep_alive: 15s
//	observability:
//	  tracing:
//	    enabled: true
//	    endpoint: otel-collector:4318
type ServiceConfig struct {
	Name          string              `yaml:"name" mapstructure:"name" validate:"required"`
	Environment   string              `yaml:"environment" mapstructure:"environment" validate:"oneof=development staging production"`
	Version       string              `yaml:"version" mapstructure:"version"`
	Debug         bool                `yaml:"debug" mapstructure:"debug"`
	Server        server.Config       `yaml:"server" mapstructure:"server"`
	Logging       logger.Config       `yaml:"logging" mapstructure:"logging"`
	Stream        StreamConfig        `yaml:"stream" mapstructure:"stream"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// StreamConfig tunes demand sizes used by the bridges around the engine.
type StreamConfig struct {
	// Prefetch is the buffer size of pull iterators built with stream.ToIterator.
	Prefetch int `yaml:"prefetch" mapstructure:"prefetch" validate:"min=1,max=65536"`
	// SSEWindow is the number of events an SSE client may have in flight.
	SSEWindow int `yaml:"sse_window" mapstructure:"sse_window" validate:"min=1,max=4096"`
	// KeepAlive is the SSE comment interval; zero disables keep-alives.
	KeepAlive time.Duration `yaml:"keep_alive" mapstructure:"keep_alive" validate:"min=0"`
}

// ObservabilityConfig groups tracing and metrics export settings.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// TracingConfig configures the OTLP/HTTP span exporter.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure   bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// MetricsConfig configures the OTLP/HTTP metric exporter.
type MetricsConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure bool          `yaml:"insecure" mapstructure:"insecure"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval" validate:"min=0"`
}

// GetServiceConfig returns the receiver. Embedding structs get it promoted.
func (c *ServiceConfig) GetServiceConfig() *ServiceConfig {
	return c
}

// ApplyDefaults applies default values to the configuration.
func (c *ServiceConfig) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	c.Server.ApplyDefaults()
	// Propagate service name into logging so Init() uses the right tag.
	if c.Logging.ServiceName == "" && c.Name != "" {
		c.Logging.ServiceName = c.Name
	}
	c.Logging.ApplyDefaults()
	c.Stream.ApplyDefaults()
	c.Observability.ApplyDefaults()
}

// ApplyDefaults fills zero demand sizes. KeepAlive is only defaulted when
// unset; a negative value is left for Validate to reject.
func (c *StreamConfig) ApplyDefaults() {
	if c.Prefetch == 0 {
		c.Prefetch = DefaultPrefetch
	}
	if c.SSEWindow == 0 {
		c.SSEWindow = DefaultSSEWindow
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = DefaultKeepAlive
	}
}

// ApplyDefaults sets the sampling rate and export interval.
func (c *ObservabilityConfig) ApplyDefaults() {
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = 30 * time.Second
	}
}

// Validate checks the struct tags of the whole tree, then the logging rules.
func (c *ServiceConfig) Validate() error {
	if err := validation.Validate(c); err != nil {
		return wrapInvalid(err)
	}
	if err := c.Logging.Validate(); err != nil {
		return errors.InvalidConfig("logging: " + err.Error()).WithCause(err)
	}
	return nil
}

// wrapInvalid re-labels an INVALID_INPUT error as INVALID_CONFIG, keeping
// the per-field details.
func wrapInvalid(err error) error {
	appErr := errors.InvalidConfig("invalid configuration").WithCause(err)
	var src *errors.AppError
	if errors.As(err, &src) && src.Details != nil {
		appErr.WithDetails(src.Details)
	}
	return appErr
}
