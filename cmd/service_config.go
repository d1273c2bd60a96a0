package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slicesim/slicesim/sinks"
	"github.com/slicesim/slicesim/telemetry"
)

// ServiceConfig describes the `serve` process: where it listens and which
// external collaborators receive snapshots and run views. Every collaborator
// is disabled while its address is empty.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type ServiceConfig struct {
	Listen          string        `yaml:"listen"`
	Mailbox         int           `yaml:"mailbox"` // per-subscriber snapshot buffer
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	NATS       sinks.NATSConfig       `yaml:"nats"`
	ClickHouse sinks.ClickHouseConfig `yaml:"clickhouse"`
	Redis      sinks.RedisConfig      `yaml:"redis"`
	Telemetry  telemetry.OTLPConfig   `yaml:"telemetry"`
}

// DefaultServiceConfig listens on :8080 with every collaborator disabled.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Listen:          ":8080",
		Mailbox:         64,
		ShutdownTimeout: 10 * time.Second,
		ClickHouse: sinks.ClickHouseConfig{
			Port:     9000,
			Database: "default",
			Table:    sinks.DefaultMetricsTable,
		},
		Redis:     sinks.DefaultRedisConfig(""),
		Telemetry: telemetry.DefaultOTLPConfig("slicesim"),
	}
}

// LoadServiceConfig reads path over the defaults. An empty path yields the defaults.
func LoadServiceConfig(path string) (ServiceConfig, error) {
	if path == "" {
		return DefaultServiceConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ServiceConfig{}, fmt.Errorf("reading service config: %w", err)
	}
	return ParseServiceConfig(data)
}

// ParseServiceConfig decodes and validates service configuration bytes.
func ParseServiceConfig(data []byte) (ServiceConfig, error) {
	cfg := DefaultServiceConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return ServiceConfig{}, fmt.Errorf("parsing service config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ServiceConfig{}, fmt.Errorf("validating service config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings of the enabled collaborators.
func (c ServiceConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must be set")
	}
	if c.Mailbox < 1 {
		return fmt.Errorf("mailbox must be >= 1, got %d", c.Mailbox)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout)
	}
	if c.ClickHouse.Host != "" && (c.ClickHouse.Port <= 0 || c.ClickHouse.Port > 65535) {
		return fmt.Errorf("clickhouse port %d invalid", c.ClickHouse.Port)
	}
	if c.Redis.TTL < 0 {
		return fmt.Errorf("redis ttl must be non-negative, got %s", c.Redis.TTL)
	}
	if r := c.Telemetry.SamplingRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry sampling_ratio %g outside [0, 1]", r)
	}
	return nil
}
