// Package config provides configuration loading and management for annoview.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Grid layout parameters
	Grid struct {
		// Margin expands each tile by this fraction of the largest group on both sides
		Margin float64 `yaml:"margin"`

		// CenterAtOrigin centers every group inside its tile
		CenterAtOrigin bool `yaml:"centerAtOrigin"`

		// Workers bounds the number of groups laid out concurrently
		Workers int `yaml:"workers"`
	} `yaml:"grid"`

	// Coloring parameters
	Coloring struct {
		// Seed scatters categorical hash colors; change it to reshuffle
		Seed float64 `yaml:"seed"`

		// LUT names the categorical lookup table (glasbey, hsv, viridis, blue-white-red)
		LUT string `yaml:"lut"`

		// OpacityNotSelected is the alpha factor for records outside the selection
		OpacityNotSelected float64 `yaml:"opacityNotSelected"`

		// SelectionColor is an "r{R}-g{G}-b{B}-a{A}" or "#RRGGBB" color painted on selected records
		SelectionColor string `yaml:"selectionColor"`

		// Mode is the selection mode (dim-not-selected, selection-color, selection-color-and-dim-not-selected)
		Mode string `yaml:"mode"`

		// RGBAColumns are columns whose values are encoded colors
		RGBAColumns []string `yaml:"rgbaColumns"`

		// CacheSize bounds the per-column memo of hashed colors
		CacheSize int `yaml:"cacheSize"`
	} `yaml:"coloring"`

	// Annotation index parameters
	Annotation struct {
		// Lazy creates synthetic records on demand instead of using a table
		Lazy bool `yaml:"lazy"`

		// Diagnostics enables the verbose diagnostic log stream
		Diagnostics bool `yaml:"diagnostics"`
	} `yaml:"annotation"`

	// View parameters
	View struct {
		// Opacity is the global opacity of the annotation overlay
		Opacity float64 `yaml:"opacity"`
	} `yaml:"view"`

	// Bookmark storage
	Bookmarks struct {
		// Path is the SQLite database holding saved selections
		Path string `yaml:"path"`
	} `yaml:"bookmarks"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Grid.Margin = 0.1
	cfg.Grid.CenterAtOrigin = true
	cfg.Grid.Workers = runtime.NumCPU()

	cfg.Coloring.Seed = 50
	cfg.Coloring.LUT = "glasbey"
	cfg.Coloring.OpacityNotSelected = 0.15
	cfg.Coloring.SelectionColor = "r255-g255-b0-a255"
	cfg.Coloring.Mode = "dim-not-selected"
	cfg.Coloring.RGBAColumns = []string{}
	cfg.Coloring.CacheSize = 1 << 16

	cfg.Annotation.Lazy = false
	cfg.Annotation.Diagnostics = false

	cfg.View.Opacity = 1.0

	cfg.Bookmarks.Path = "annoview.db"

	return cfg
}

// Validate checks value ranges. It does not parse colors or names; the
// packages consuming them report those errors.
func (c *Config) Validate() error {
	switch {
	case c.Grid.Margin < 0:
		return fmt.Errorf("grid.margin %v is negative: %w", c.Grid.Margin, ErrInvalidConfig)
	case c.Grid.Workers < 0:
		return fmt.Errorf("grid.workers %d is negative: %w", c.Grid.Workers, ErrInvalidConfig)
	case c.Coloring.OpacityNotSelected < 0 || c.Coloring.OpacityNotSelected > 1:
		return fmt.Errorf("coloring.opacityNotSelected %v outside [0,1]: %w", c.Coloring.OpacityNotSelected, ErrInvalidConfig)
	case c.View.Opacity < 0 || c.View.Opacity > 1:
		return fmt.Errorf("view.opacity %v outside [0,1]: %w", c.View.Opacity, ErrInvalidConfig)
	case c.Coloring.CacheSize < 0:
		return fmt.Errorf("coloring.cacheSize %d is negative: %w", c.Coloring.CacheSize, ErrInvalidConfig)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
