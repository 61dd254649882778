// Package xpcconfig loads the small YAML document that configures a demo
// server or client: which listener to bind or dial, which trust predicate
// to enforce, and how verbosely to log.
package xpcconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TrustPolicy names the peer-trust predicate to enforce, in the shape a
// deployment config file would carry it: a kind plus the one argument that
// kind needs, if any.
type TrustPolicy struct {
	Kind           string `yaml:"kind"`
	TeamIdentifier string `yaml:"teamIdentifier,omitempty"`
	ParentBundle   string `yaml:"parentBundle,omitempty"`
}

// Config is the top-level document.
type Config struct {
	ListenerName string      `yaml:"listenerName"`
	Trust        TrustPolicy `yaml:"trust"`
	LogLevel     string      `yaml:"logLevel"`
}

// Load reads and parses path. A missing logLevel defaults to "info".
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("xpcconfig: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("xpcconfig: parse %s: %w", path, err)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return &cfg, nil
}
