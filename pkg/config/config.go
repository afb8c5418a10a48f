// Package config provides configuration loading and management for osteoplan.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"osteoplan/internal/models"
	"osteoplan/pkg/bending"
	"osteoplan/pkg/interpolation"
	"osteoplan/pkg/landmarks"
	"osteoplan/pkg/phantom"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// SaveIntermediaryResults determines whether to save the prepared mesh,
		// landmarks and cross sections next to the output
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`
	} `yaml:"processing"`

	// Bend parameters
	Bending struct {
		// Mode is "double" or "single"
		Mode string `yaml:"mode"`

		// Side is "a" or "b" and only used in single-sided mode
		Side string `yaml:"side"`

		// Magnitude is the signed bend magnitude
		Magnitude float64 `yaml:"magnitude"`

		// SampleTolerance is the landmark merge distance, relative to the
		// bounding box diagonal unless AbsoluteTolerance is set
		SampleTolerance   float64 `yaml:"sampleTolerance"`
		AbsoluteTolerance bool    `yaml:"absoluteTolerance"`

		// Sigma is the spline regularisation, 0 for exact interpolation
		Sigma float64 `yaml:"sigma"`

		// Basis is the spline kernel, "r" or "r2logr"
		Basis string `yaml:"basis"`

		// Epsilon is the length below which vectors count as degenerate
		Epsilon float64 `yaml:"epsilon"`

		// MaxFiducialDistance rejects fiducials farther from the surface
		MaxFiducialDistance float64 `yaml:"maxFiducialDistance"`
	} `yaml:"bending"`

	// Synthetic model parameters
	Phantom struct {
		DiscRadius   float64 `yaml:"discRadius"`
		DiscRings    int     `yaml:"discRings"`
		DiscSegments int     `yaml:"discSegments"`

		ShaftLength float64 `yaml:"shaftLength"`
		ShaftRadius float64 `yaml:"shaftRadius"`
		HeadRadius  float64 `yaml:"headRadius"`
		HeadLength  float64 `yaml:"headLength"`

		// Cells is the marching cubes resolution along the shaft
		Cells int `yaml:"cells"`
	} `yaml:"phantom"`

	// Output parameters
	Output struct {
		// SectionImageSize is the width and height in pixels of cross section images
		SectionImageSize int `yaml:"sectionImageSize"`

		// Sections lists the planes written as images, as "x", "y" or "z"
		// axes through the bend pivot
		Sections []string `yaml:"sections"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.Verbose = true
	cfg.Processing.SaveIntermediaryResults = false

	// Set default bend parameters
	params := bending.DefaultParams()
	cfg.Bending.Mode = models.DoubleSided.String()
	cfg.Bending.Side = models.SideA.String()
	cfg.Bending.Magnitude = 0.5
	cfg.Bending.SampleTolerance = landmarks.DefaultTolerance
	cfg.Bending.Sigma = params.Sigma
	cfg.Bending.Basis = params.Basis.String()
	cfg.Bending.Epsilon = params.Epsilon
	cfg.Bending.MaxFiducialDistance = 2.0

	// Set default phantom parameters
	shaft := phantom.DefaultShaft()
	cfg.Phantom.DiscRadius = 50
	cfg.Phantom.DiscRings = 10
	cfg.Phantom.DiscSegments = 36
	cfg.Phantom.ShaftLength = shaft.Length
	cfg.Phantom.ShaftRadius = shaft.ShaftRadius
	cfg.Phantom.HeadRadius = shaft.HeadRadius
	cfg.Phantom.HeadLength = shaft.HeadLength
	cfg.Phantom.Cells = shaft.Cells

	// Set default output parameters
	cfg.Output.SectionImageSize = 512
	cfg.Output.Sections = []string{"y", "z"}

	return cfg
}

// BendParams converts the bend section into session parameters
func (c *Config) BendParams() (bending.Params, error) {
	basis, err := interpolation.ParseBasis(c.Bending.Basis)
	if err != nil {
		return bending.Params{}, fmt.Errorf("bending.basis: %w", err)
	}
	if c.Bending.SampleTolerance <= 0 {
		return bending.Params{}, fmt.Errorf("bending.sampleTolerance must be positive, got %g", c.Bending.SampleTolerance)
	}
	if c.Bending.Sigma < 0 {
		return bending.Params{}, fmt.Errorf("bending.sigma must not be negative, got %g", c.Bending.Sigma)
	}
	return bending.Params{
		SampleTolerance:   c.Bending.SampleTolerance,
		AbsoluteTolerance: c.Bending.AbsoluteTolerance,
		Sigma:             c.Bending.Sigma,
		Basis:             basis,
		Epsilon:           c.Bending.Epsilon,
		NumCores:          c.Processing.NumCores,
		Verbose:           c.Processing.Verbose,
	}, nil
}

// BendMode parses the configured mode and side
func (c *Config) BendMode() (models.BendMode, models.BendSide, error) {
	mode, err := models.ParseBendMode(c.Bending.Mode)
	if err != nil {
		return 0, 0, fmt.Errorf("bending.mode: %w", err)
	}
	side, err := models.ParseBendSide(c.Bending.Side)
	if err != nil {
		return 0, 0, fmt.Errorf("bending.side: %w", err)
	}
	return mode, side, nil
}

// ShaftParams returns the shaft phantom dimensions
func (c *Config) ShaftParams() phantom.ShaftParams {
	return phantom.ShaftParams{
		Length:      c.Phantom.ShaftLength,
		ShaftRadius: c.Phantom.ShaftRadius,
		HeadRadius:  c.Phantom.HeadRadius,
		HeadLength:  c.Phantom.HeadLength,
		Cells:       c.Phantom.Cells,
	}
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
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

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
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
