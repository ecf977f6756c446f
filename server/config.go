package server

import (
	"time"

	"github.com/kbukum/pushflow/server/middleware"
)

// Config holds HTTP server configuration.
//
// There is no write timeout: SSE responses stay open for the lifetime of a
// stream and sse.Serve clears the per-connection deadline anyway.
type Config struct {
	Addr                 string                `yaml:"addr" mapstructure:"addr" validate:"required"`
	ReadHeaderTimeout    time.Duration         `yaml:"read_header_timeout" mapstructure:"read_header_timeout" validate:"min=0"`
	IdleTimeout          time.Duration         `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"min=0"`
	ShutdownTimeout      time.Duration         `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"min=0"`
	MaxConcurrentStreams uint32                `yaml:"max_concurrent_streams" mapstructure:"max_concurrent_streams"`
	MaxStreamsPerClient  int                   `yaml:"max_streams_per_client" mapstructure:"max_streams_per_client" validate:"min=0"`
	StreamRate           float64               `yaml:"stream_rate" mapstructure:"stream_rate" validate:"min=0"`
	StreamBurst          int                   `yaml:"stream_burst" mapstructure:"stream_burst" validate:"min=0"`
	CORS                 middleware.CORSConfig `yaml:"cors" mapstructure:"cors"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.MaxConcurrentStreams == 0 {
		c.MaxConcurrentStreams = 250
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "OPTIONS"}
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = []string{"Origin", "Accept", "Cache-Control", "Last-Event-ID", "X-Request-Id"}
	}
}
