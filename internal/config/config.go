// Package config loads the engine configuration and the user rule file.
// Both are YAML, decoded strictly so typos fail loudly instead of being
// silently ignored.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the engine configuration.
type Config struct {
	// StateDir holds the event database, checkpoint journals, and trash.
	StateDir string `yaml:"state_dir"`

	// Shaping bounds the proposed directory layout.
	Shaping ShapingConfig `yaml:"shaping,omitempty"`

	// Guards bound what an apply run may do.
	Guards GuardsConfig `yaml:"guards,omitempty"`
}

// ShapingConfig bounds plan layout depth and fan-out.
type ShapingConfig struct {
	// MaxDepth caps target directory depth below the organizing root.
	MaxDepth int `yaml:"max_depth,omitempty"`

	// MaxChildren caps entries per proposed directory; overflow spills
	// into numbered sibling directories.
	MaxChildren int `yaml:"max_children,omitempty"`
}

// GuardsConfig bounds a single apply run.
type GuardsConfig struct {
	// MaxActions caps mutating actions per plan. Zero means unlimited.
	MaxActions int `yaml:"max_actions,omitempty"`

	// MaxMoveBytes caps the total bytes moved per plan. Zero means
	// unlimited.
	MaxMoveBytes int64 `yaml:"max_move_bytes,omitempty"`

	// ProtectedPaths are path prefixes no action may touch.
	ProtectedPaths []string `yaml:"protected_paths,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		StateDir: ".rosie",
		Shaping: ShapingConfig{
			MaxDepth:    4,
			MaxChildren: 100,
		},
		Guards: GuardsConfig{
			MaxActions:   500,
			MaxMoveBytes: 10 << 30,
		},
	}
}

// Load reads and parses a config file, rejecting unknown fields. Missing
// shaping or guard values fall back to defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}
	if c.Shaping.MaxDepth < 0 {
		return fmt.Errorf("shaping.max_depth must not be negative")
	}
	if c.Shaping.MaxChildren < 0 {
		return fmt.Errorf("shaping.max_children must not be negative")
	}
	if c.Guards.MaxActions < 0 {
		return fmt.Errorf("guards.max_actions must not be negative")
	}
	if c.Guards.MaxMoveBytes < 0 {
		return fmt.Errorf("guards.max_move_bytes must not be negative")
	}
	return nil
}
