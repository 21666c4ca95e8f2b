// Package config holds process configuration: server address, CORS
// allowlist, default link parameters, logging level, and the adaptive
// broadcast tuning knobs.
package config

import (
	"fmt"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	MAVLink   MAVLinkConfig
	Logging   LoggingConfig
	Broadcast BroadcastConfig
	MQTT      MQTTConfig
}

type ServerConfig struct {
	Host          string
	Port          int
	CORSOrigins   []string
	LinkRegistryPath string // path to links.yaml
}

type MAVLinkConfig struct {
	// Default connection settings. Opening a link does not consult them:
	// every link needs an explicit transport string.
	DefaultPort     string
	DefaultBaudRate int
}

type LoggingConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json", "text"
}

// BroadcastConfig holds tuning values for the adaptive telemetry
// broadcaster. The broadcast engine (internal/broadcast) does not read
// them; it runs on its own fixed constants.
type BroadcastConfig struct {
	TickInterval      string // duration string, e.g. "100ms"
	FullSyncInterval  string // e.g. "5s"
	ArmedMovingRate   string // e.g. "100ms"
	ArmedStationary   string // e.g. "200ms"
	DisarmedRate      string // e.g. "1s"
	MovingSpeedMps    float64
}

// MQTTConfig configures the optional MQTT telemetry republisher. Disabled
// when BrokerURL is empty.
type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			CORSOrigins: []string{
				"http://localhost:5173",
				"http://localhost:3000",
			},
			LinkRegistryPath: "./data/config/links.yaml",
		},
		MAVLink: MAVLinkConfig{
			DefaultPort:     "/dev/ttyUSB0",
			DefaultBaudRate: 57600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Broadcast: BroadcastConfig{
			TickInterval:     "100ms",
			FullSyncInterval: "5s",
			ArmedMovingRate:  "100ms",
			ArmedStationary:  "200ms",
			DisarmedRate:     "1s",
			MovingSpeedMps:   0.5,
		},
		MQTT: MQTTConfig{
			ClientID:    "gcs-core",
			TopicPrefix: "telemetry",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// ServerAddr returns the server address as host:port.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
