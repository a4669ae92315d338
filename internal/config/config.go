// Package config provides configuration loading for patternd.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/patternd/internal/analytics"
	"github.com/fyrsmithlabs/patternd/internal/logging"
	"github.com/fyrsmithlabs/patternd/internal/search"
	"github.com/fyrsmithlabs/patternd/internal/spiking"
	"github.com/fyrsmithlabs/patternd/internal/telemetry"
)

// Config holds the complete patternd configuration.
type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Logging   logging.Config   `koanf:"logging"`
	Telemetry telemetry.Config `koanf:"telemetry"`
	NATS      NATSConfig       `koanf:"nats"`
	Store     StoreConfig      `koanf:"store"`
	Index     search.Config    `koanf:"index"`
	Engine    analytics.Config `koanf:"engine"`
	Spiking   spiking.Config   `koanf:"spiking"`
	Anomaly   AnomalyConfig    `koanf:"anomaly"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// MaintenanceRPS rate-limits the heavy maintenance endpoints
	// (partition, link rebuild) in requests per second.
	MaintenanceRPS float64 `koanf:"maintenance_rps"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// NATSConfig holds spike event publishing configuration.
type NATSConfig struct {
	Enabled bool `koanf:"enabled"`

	// Embedded runs an in-process NATS server instead of dialing URL.
	Embedded bool   `koanf:"embedded"`
	URL      string `koanf:"url"`
}

// StoreConfig selects and configures the pattern store backend.
type StoreConfig struct {
	Backend    string `koanf:"backend"` // badger | memory
	Path       string `koanf:"path"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// AnomalyConfig holds the default anomaly detection parameters, applied when
// a request does not override them.
type AnomalyConfig struct {
	WindowSeconds int     `koanf:"window_seconds"`
	ZThreshold    float64 `koanf:"z_threshold"`
}

// ApplyDefaults sets default values for missing configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9092
	}
	if c.Server.MaintenanceRPS == 0 {
		c.Server.MaintenanceRPS = 1
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	c.Logging.ApplyDefaults()
	c.Telemetry.ApplyDefaults()

	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}

	if c.Store.Backend == "" {
		c.Store.Backend = "badger"
	}
	if c.Store.Path == "" {
		c.Store.Path = "./data/patternd"
	}

	c.Index.ApplyDefaults()
	c.Engine.ApplyDefaults()

	if c.Spiking == (spiking.Config{}) {
		c.Spiking = spiking.DefaultConfig()
	}

	if c.Anomaly.WindowSeconds == 0 {
		c.Anomaly.WindowSeconds = analytics.DefaultAnomalyWindowSeconds
	}
	if c.Anomaly.ZThreshold == 0 {
		c.Anomaly.ZThreshold = analytics.DefaultAnomalyZThreshold
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.MaintenanceRPS <= 0 {
		return fmt.Errorf("maintenance_rps must be positive, got %v", c.Server.MaintenanceRPS)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	if c.NATS.Enabled && !c.NATS.Embedded && c.NATS.URL == "" {
		return fmt.Errorf("nats url is required when nats is enabled")
	}

	switch c.Store.Backend {
	case "badger":
		if c.Store.Path == "" {
			return fmt.Errorf("store path is required for the badger backend")
		}
	case "memory":
	default:
		return fmt.Errorf("store backend must be 'badger' or 'memory', got %q", c.Store.Backend)
	}

	if err := c.Index.Validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Spiking.Validate(); err != nil {
		return fmt.Errorf("spiking: %w", err)
	}

	if c.Anomaly.WindowSeconds <= 0 {
		return fmt.Errorf("anomaly window_seconds must be positive, got %d", c.Anomaly.WindowSeconds)
	}
	if c.Anomaly.ZThreshold <= 0 {
		return fmt.Errorf("anomaly z_threshold must be positive, got %v", c.Anomaly.ZThreshold)
	}

	return nil
}
