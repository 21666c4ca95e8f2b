package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LinkConfig represents one pre-configured MAVLink link.
type LinkConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Transport   string `yaml:"transport"` // e.g. "udpin:0.0.0.0:14550", "serial:/dev/ttyUSB0:57600"
	AutoConnect bool   `yaml:"auto_connect"`
}

// LinkRegistry holds all pre-configured links, loaded from YAML. It plays
// the same role as a static fleet manifest: entries the operator wants
// brought up automatically or offered in a picker, as opposed to links
// opened ad hoc through the control surface.
type LinkRegistry struct {
	Links []LinkConfig `yaml:"links"`
}

// LoadLinkRegistry loads link configurations from a YAML file.
func LoadLinkRegistry(path string) (*LinkRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read link registry: %w", err)
	}

	var registry LinkRegistry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("parse link registry: %w", err)
	}

	return &registry, nil
}

// Find returns the link configuration with the given ID.
func (r *LinkRegistry) Find(id string) (*LinkConfig, error) {
	for i := range r.Links {
		if r.Links[i].ID == id {
			return &r.Links[i], nil
		}
	}
	return nil, fmt.Errorf("link not found: %s", id)
}
