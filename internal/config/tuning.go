// Package config loads the JSON tuning file that seeds the signal pipeline
// and serial connection at startup.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/orangewave/cardio/internal/ecg"
	"github.com/orangewave/cardio/internal/serialmux"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/config endpoint so the same JSON can be used
// for both startup configuration and runtime updates. All fields are
// pointers: a nil field means "use the built-in default", so partial configs
// are safe.
type TuningConfig struct {
	// Acquisition params
	SampleRate *int     `json:"sample_rate,omitempty"`
	ADCBits    *int     `json:"adc_bits,omitempty"`
	VRef       *float64 `json:"vref,omitempty"`

	// Detection params
	ThresholdRatio  *float64 `json:"threshold_ratio,omitempty"`
	MinRRIntervalMS *int     `json:"min_r_interval_ms,omitempty"`
	LookbackSeconds *float64 `json:"lookback_seconds,omitempty"`

	// Rate estimation params
	MinBPM       *float64 `json:"min_bpm,omitempty"`
	MaxBPM       *float64 `json:"max_bpm,omitempty"`
	FilterWindow *int     `json:"filter_window,omitempty"`

	// Buffering and display params
	BufferCapacity *int     `json:"buffer_capacity,omitempty"`
	WindowSeconds  *float64 `json:"window_seconds,omitempty"`

	// Serial connection params
	BaudRate *int    `json:"baud_rate,omitempty"`
	DataBits *int    `json:"data_bits,omitempty"`
	StopBits *int    `json:"stop_bits,omitempty"`
	Parity   *string `json:"parity,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file is
// validated to ensure it has a .json extension and is under the max file
// size. Fields omitted from the JSON file retain their default values.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching the current directory and common parent
// directories. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate delegates to the pipeline's config validation: the resolved
// values, not the raw pointers, are what must hold together.
func (c *TuningConfig) Validate() error {
	if err := c.PipelineConfig().Validate(); err != nil {
		return err
	}
	if c.WindowSeconds != nil && *c.WindowSeconds <= 0 {
		return fmt.Errorf("window_seconds must be positive, got %g", *c.WindowSeconds)
	}
	if _, err := c.PortOptions().Normalize(); err != nil {
		return err
	}
	return nil
}

// PipelineConfig resolves the tuning values into the pipeline configuration,
// applying built-in defaults for unset fields.
func (c *TuningConfig) PipelineConfig() ecg.Config {
	cfg := ecg.DefaultConfig()
	if c.SampleRate != nil {
		cfg.Acquisition.SampleRate = *c.SampleRate
	}
	if c.ADCBits != nil {
		cfg.Acquisition.ADCBits = *c.ADCBits
	}
	if c.VRef != nil {
		cfg.Acquisition.VRef = *c.VRef
	}
	if c.ThresholdRatio != nil {
		cfg.Detection.ThresholdRatio = *c.ThresholdRatio
	}
	if c.MinRRIntervalMS != nil {
		cfg.Detection.MinRRIntervalMS = *c.MinRRIntervalMS
	}
	if c.LookbackSeconds != nil {
		cfg.Detection.LookbackSeconds = *c.LookbackSeconds
	}
	if c.MinBPM != nil {
		cfg.Rate.MinBPM = *c.MinBPM
	}
	if c.MaxBPM != nil {
		cfg.Rate.MaxBPM = *c.MaxBPM
	}
	if c.FilterWindow != nil {
		cfg.Rate.FilterWindow = *c.FilterWindow
	}
	if c.BufferCapacity != nil {
		cfg.BufferCapacity = *c.BufferCapacity
	}
	return cfg
}

// PortOptions resolves the serial connection values, leaving unset fields to
// the serialmux defaults.
func (c *TuningConfig) PortOptions() serialmux.PortOptions {
	var opts serialmux.PortOptions
	if c.BaudRate != nil {
		opts.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		opts.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		opts.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		opts.Parity = *c.Parity
	}
	return opts
}

// GetWindowSeconds returns the window_seconds value or the default.
func (c *TuningConfig) GetWindowSeconds() float64 {
	if c.WindowSeconds == nil {
		return ecg.DefaultLookbackSeconds
	}
	return *c.WindowSeconds
}
