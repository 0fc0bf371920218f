package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gregLibert/eid-sim/pkg/card"
	"github.com/gregLibert/eid-sim/pkg/perso"
	"github.com/gregLibert/eid-sim/pkg/server"
)

// Config is the simulator configuration file.
type Config struct {
	// Listen is the TCP address terminals connect to.
	Listen string `yaml:"listen"`
	// HTTP is the address of the admin API, disabled when empty.
	HTTP string `yaml:"http"`
	// Profile is the personalization file, the built-in card is used when
	// empty.
	Profile string `yaml:"profile"`
	// Verbose is the google/logger verbosity level.
	Verbose int  `yaml:"verbose"`
	Metrics bool `yaml:"metrics"`
}

func defaultConfig() *Config {
	return &Config{
		Listen:  fmt.Sprintf(":%d", server.DefaultPort),
		Metrics: true,
	}
}

// loadConfig overlays the file at path on the defaults. An empty path
// yields the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	// #nosec G304 - config path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Verbose < 0 {
		return fmt.Errorf("verbose must not be negative")
	}
	return nil
}

// buildCard personalizes the simulated card.
func (c *Config) buildCard() (*card.Processor, error) {
	p := perso.Default()
	if c.Profile != "" {
		var err error
		if p, err = perso.Load(c.Profile); err != nil {
			return nil, err
		}
	}
	return p.Build()
}
