// Package config holds the settings of the cbcentral tool and the examples.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	// ScanTimeout bounds scans started without an explicit duration.
	ScanTimeout time.Duration `yaml:"scan_timeout" default:"10s"`
	// ConnectTimeout bounds connection attempts, which never time out on
	// their own.
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	// OperationTimeout bounds every other GATT operation.
	OperationTimeout time.Duration `yaml:"operation_timeout" default:"10s"`
	// WriteChunkDelay paces the chunks of long writes without response.
	WriteChunkDelay time.Duration `yaml:"write_chunk_delay" default:"10ms"`

	EventBufferSize int    `yaml:"event_buffer_size" default:"16"`
	OutputFormat    string `yaml:"output_format" default:"table"`

	Tracer TracerConfig `yaml:"tracer"`
}

// TracerConfig selects the OpenTelemetry exporter.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter" default:"stdout"`
}

// OutputFormats lists the accepted values of OutputFormat.
var OutputFormats = []string{"table", "json"}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads the YAML file at path, if any, and fills every unset field
// with its default.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	defaults.SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that have a fixed set of choices.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	valid := false
	for _, f := range OutputFormats {
		if c.OutputFormat == f {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("output_format: unknown format %q", c.OutputFormat)
	}
	if c.EventBufferSize < 0 {
		return fmt.Errorf("event_buffer_size: must not be negative")
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
