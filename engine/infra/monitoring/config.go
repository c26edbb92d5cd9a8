package monitoring

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config controls the Prometheus metrics endpoint.
type Config struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled" env:"MONITORING_ENABLED"`
	Path    string `json:"path"    yaml:"path"    mapstructure:"path"    env:"MONITORING_PATH"`
}

// DefaultConfig returns default monitoring configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled: false,
		Path:    "/metrics",
	}
}

// Validate validates the monitoring configuration.
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("monitoring path cannot be empty")
	}
	if c.Path[0] != '/' {
		return fmt.Errorf("monitoring path must start with '/': got %s", c.Path)
	}
	if strings.HasPrefix(c.Path, "/api/") {
		return fmt.Errorf("monitoring path cannot be under /api/")
	}
	if strings.ContainsRune(c.Path, '?') {
		return fmt.Errorf("monitoring path cannot contain query parameters")
	}
	return nil
}

// LoadWithEnv creates a monitoring config with environment variable
// precedence over the provided YAML config.
func LoadWithEnv(_ context.Context, yamlConfig *Config) (*Config, error) {
	config := DefaultConfig()
	if yamlConfig != nil {
		config.Enabled = yamlConfig.Enabled
		if yamlConfig.Path != "" {
			config.Path = yamlConfig.Path
		}
	}
	if envEnabled := os.Getenv("MONITORING_ENABLED"); envEnabled != "" {
		enabled, err := strconv.ParseBool(envEnabled)
		if err == nil {
			config.Enabled = enabled
		}
	}
	if envPath := os.Getenv("MONITORING_PATH"); envPath != "" {
		config.Path = envPath
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid monitoring configuration: %w", err)
	}
	return config, nil
}
