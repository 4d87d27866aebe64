// Package config loads and validates the agentxd YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the agentx.yaml daemon configuration.
type Config struct {
	Listen            string             `yaml:"listen"`
	DataDir           string             `yaml:"data_dir"`
	RefreshIntervalMS int                `yaml:"refresh_interval_ms"`
	Tasks             map[string]TaskDef `yaml:"tasks"`
}

// TaskDef declares a task the daemon runs at startup.
type TaskDef struct {
	Goal    string            `yaml:"goal"`
	Agent   string            `yaml:"agent"`
	Command string            `yaml:"command"`
	Dir     string            `yaml:"dir,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Restart string            `yaml:"restart,omitempty"` // always|on-failure|never
}

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	return &Config{
		Listen:            ":7770",
		DataDir:           "./data",
		RefreshIntervalMS: 2000,
	}
}

// Load reads and parses a config file, filling unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Listen == "" {
		cfg.Listen = ":7770"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.RefreshIntervalMS <= 0 {
		cfg.RefreshIntervalMS = 2000
	}
	return cfg, nil
}

// RefreshInterval returns the tail refresh interval as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMS) * time.Millisecond
}

// Validate checks the config for structural correctness.
func Validate(c *Config) []error {
	var errs []error

	if c.RefreshIntervalMS < 100 {
		errs = append(errs, fmt.Errorf("refresh_interval_ms must be at least 100, got %d", c.RefreshIntervalMS))
	}

	for name, task := range c.Tasks {
		if task.Agent == "" {
			errs = append(errs, fmt.Errorf("task %q: agent is required", name))
		}
		if task.Command == "" {
			errs = append(errs, fmt.Errorf("task %q: command is required", name))
		}
		switch task.Restart {
		case "", "always", "on-failure", "never":
		default:
			errs = append(errs, fmt.Errorf("task %q: restart must be always, on-failure, or never; got %q", name, task.Restart))
		}
	}

	return errs
}
