// Package config loads ClawRouter configuration from a JSON or YAML file.
// Every field is optional; a missing file means pure defaults. Secrets are
// never written back to disk.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/clawinfra/clawrouter/internal/router"
)

// Config holds all ClawRouter configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Routing heuristic overrides
	Routing RoutingConfig `json:"routing" yaml:"routing"`

	// Per-tier primary model overrides, keyed by tier name
	ModelOverrides map[string]string `json:"modelOverrides,omitempty" yaml:"modelOverrides,omitempty"`

	// Usage ledger settings
	Ledger LedgerConfig `json:"ledger" yaml:"ledger"`
}

type ServerConfig struct {
	Port      int    `json:"port" yaml:"port"`
	LogLevel  string `json:"logLevel" yaml:"logLevel"`
	WalletKey string `json:"walletKey,omitempty" yaml:"walletKey,omitempty"`
}

// RoutingConfig tunes the rule-based classifier. Zero values mean "keep the
// built-in default" so a partial file only overrides what it names.
type RoutingConfig struct {
	Weights             map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
	Boundaries          []float64          `json:"boundaries,omitempty" yaml:"boundaries,omitempty"`
	ConfidenceThreshold float64            `json:"confidenceThreshold,omitempty" yaml:"confidenceThreshold,omitempty"`
	LLMClassifier       bool               `json:"llmClassifier" yaml:"llmClassifier"`
}

type LedgerConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     18800,
			LogLevel: "info",
		},
		Routing: RoutingConfig{
			LLMClassifier: true,
		},
		Ledger: LedgerConfig{
			Enabled: true,
			Path:    defaultLedgerPath(),
		},
	}
}

func defaultLedgerPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "clawrouter.db"
	}
	return filepath.Join(home, ".clawrouter", "usage.db")
}

// Load reads the file at path on top of the defaults. A missing file is not
// an error. The format follows the extension: .yaml/.yml is YAML, anything
// else is JSON.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse json config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges. Model override ids are checked against the
// catalog at wiring time, not here.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	switch strings.ToLower(c.Server.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Server.LogLevel)
	}
	if n := len(c.Routing.Boundaries); n != 0 && n != 3 {
		return fmt.Errorf("boundaries must have exactly 3 values, got %d", n)
	}
	if t := c.Routing.ConfidenceThreshold; t != 0 && (t < 0.5 || t > 1.0) {
		return fmt.Errorf("confidence threshold %v outside [0.5, 1.0]", t)
	}
	return nil
}

// ScoringConfig materialises the routing overrides into a classifier
// config, leaving untouched fields at their defaults.
func (c *Config) ScoringConfig() (router.ScoringConfig, error) {
	sc := router.DefaultScoringConfig()
	if len(c.Routing.Weights) > 0 {
		sc.MergeWeights(c.Routing.Weights)
	}
	if len(c.Routing.Boundaries) == 3 {
		copy(sc.Boundaries[:], c.Routing.Boundaries)
	}
	if c.Routing.ConfidenceThreshold != 0 {
		sc.ConfidenceThreshold = c.Routing.ConfidenceThreshold
	}
	if err := sc.Validate(); err != nil {
		return sc, err
	}
	return sc, nil
}
