package config

import (
	"os"
	"strconv"

	"github.com/mavgcs/gcs-core/internal/logging"
)

// Load loads configuration from environment variables, falling back to
// defaults for any missing values.
func Load() *Config {
	cfg := Default()

	if port := os.Getenv("GCS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if host := os.Getenv("GCS_HOST"); host != "" {
		cfg.Server.Host = host
	}

	if logLevel := os.Getenv("GCS_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if mavPort := os.Getenv("GCS_MAVLINK_PORT"); mavPort != "" {
		cfg.MAVLink.DefaultPort = mavPort
	}

	if mavBaud := os.Getenv("GCS_MAVLINK_BAUD"); mavBaud != "" {
		if b, err := strconv.Atoi(mavBaud); err == nil {
			cfg.MAVLink.DefaultBaudRate = b
		}
	}

	if registryPath := os.Getenv("GCS_LINK_REGISTRY"); registryPath != "" {
		cfg.Server.LinkRegistryPath = registryPath
	}

	if broker := os.Getenv("GCS_MQTT_BROKER"); broker != "" {
		cfg.MQTT.BrokerURL = broker
	}
	if clientID := os.Getenv("GCS_MQTT_CLIENT_ID"); clientID != "" {
		cfg.MQTT.ClientID = clientID
	}
	if user := os.Getenv("GCS_MQTT_USERNAME"); user != "" {
		cfg.MQTT.Username = user
	}
	if pass := os.Getenv("GCS_MQTT_PASSWORD"); pass != "" {
		cfg.MQTT.Password = pass
	}

	if err := cfg.Validate(); err != nil {
		logging.Default().Fatalf("invalid configuration: %v", err)
	}

	return cfg
}
