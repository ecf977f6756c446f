package main

import (
	"time"

	"github.com/kbukum/pushflow/config"
	"github.com/kbukum/pushflow/validation"
)

// Config is the streamd configuration: the service sections plus the
// limits of the demo streams.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Demo                 DemoConfig `yaml:"demo" mapstructure:"demo"`
}

// DemoConfig bounds what clients may ask the demo streams for.
type DemoConfig struct {
	MaxCount     int           `yaml:"max_count" mapstructure:"max_count" validate:"min=1"`
	TickInterval time.Duration `yaml:"tick_interval" mapstructure:"tick_interval" validate:"min=1ms"`
}

// ApplyDefaults fills the service sections and the demo limits.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Demo.MaxCount == 0 {
		c.Demo.MaxCount = 10000
	}
	if c.Demo.TickInterval == 0 {
		c.Demo.TickInterval = time.Second
	}
}

// Validate checks the service sections, then the demo limits.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	return validation.Validate(&c.Demo)
}
