// Package config loads the command-line defaults from SPECSCRIPT_*
// environment variables. Flags given on the command line override them.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Output formats for script results.
const (
	OutputYAML = "yaml"
	OutputJSON = "json"
)

// Config holds the environment configuration.
type Config struct {
	// Interactive lets scripts prompt for missing input.
	Interactive bool   `env:"SPECSCRIPT_INTERACTIVE"`
	Output      string `env:"SPECSCRIPT_OUTPUT" envDefault:"yaml"`
	// TraceFile, when set, receives a JSONL trace of every run.
	TraceFile   string        `env:"SPECSCRIPT_TRACE"`
	WorkingDir  string        `env:"SPECSCRIPT_WORKDIR"`
	TestTimeout time.Duration `env:"SPECSCRIPT_TEST_TIMEOUT" envDefault:"30s"`
	NoColor     bool          `env:"SPECSCRIPT_NO_COLOR"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the environment parser cannot.
func (c *Config) Validate() error {
	switch c.Output {
	case OutputYAML, OutputJSON:
	default:
		return fmt.Errorf("SPECSCRIPT_OUTPUT: unknown output format %q (use yaml or json)", c.Output)
	}
	if c.TestTimeout < 0 {
		return fmt.Errorf("SPECSCRIPT_TEST_TIMEOUT: must not be negative")
	}
	return nil
}
