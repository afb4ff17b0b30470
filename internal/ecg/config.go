package ecg

import (
	"fmt"

	"github.com/orangewave/cardio/internal/units"
)

// Defaults for detection and rate estimation. The threshold window default
// mirrors the display window of the original instrument (5 seconds of
// signal); the refractory default rejects double-counted beats above 200 BPM.
const (
	DefaultThresholdRatio  = 0.6
	DefaultMinRRIntervalMS = 300
	DefaultMinBPM          = 20
	DefaultMaxBPM          = 300
	DefaultFilterWindow    = 5
	DefaultLookbackSeconds = 5.0
	DefaultSampleRate      = 250
	DefaultADCBits         = 12
	DefaultVRef            = 3.3

	// MaxSampleRate bounds the configurable acquisition rate.
	MaxSampleRate = 20000
)

// DetectionConfig holds the runtime-tunable R-peak detection parameters.
// Changes take effect on the next scan and never reprocess history.
type DetectionConfig struct {
	// ThresholdRatio positions the detection threshold within the rolling
	// amplitude range: threshold = min + ratio*(max-min). Must be in (0, 1].
	ThresholdRatio float64 `json:"threshold_ratio"`

	// MinRRIntervalMS is the refractory window in milliseconds. A candidate
	// apex inside this window after an accepted peak is discarded.
	MinRRIntervalMS int `json:"min_r_interval_ms"`

	// LookbackSeconds sizes the rolling amplitude window used to derive the
	// threshold.
	LookbackSeconds float64 `json:"lookback_seconds"`
}

// Validate checks the detection parameters, returning a ConfigError naming
// the first offending field.
func (c DetectionConfig) Validate() error {
	if !(c.ThresholdRatio > 0 && c.ThresholdRatio <= 1) {
		return &ConfigError{Field: "threshold_ratio", Reason: fmt.Sprintf("must be in (0,1], got %g", c.ThresholdRatio)}
	}
	if c.MinRRIntervalMS <= 0 {
		return &ConfigError{Field: "min_r_interval_ms", Reason: fmt.Sprintf("must be positive, got %d", c.MinRRIntervalMS)}
	}
	if c.LookbackSeconds <= 0 {
		return &ConfigError{Field: "lookback_seconds", Reason: fmt.Sprintf("must be positive, got %g", c.LookbackSeconds)}
	}
	return nil
}

// RateConfig holds the heart-rate estimation parameters.
type RateConfig struct {
	// MinBPM and MaxBPM bound the physiologically plausible band. Intervals
	// mapping outside the band are treated as detector artifacts.
	MinBPM float64 `json:"min_bpm"`
	MaxBPM float64 `json:"max_bpm"`

	// FilterWindow is the number of accepted-valid RR intervals averaged
	// into the filtered BPM.
	FilterWindow int `json:"filter_window"`
}

// Validate checks the rate estimation parameters.
func (c RateConfig) Validate() error {
	if c.MinBPM <= 0 {
		return &ConfigError{Field: "min_bpm", Reason: fmt.Sprintf("must be positive, got %g", c.MinBPM)}
	}
	if c.MaxBPM <= c.MinBPM {
		return &ConfigError{Field: "max_bpm", Reason: fmt.Sprintf("must exceed min_bpm, got %g", c.MaxBPM)}
	}
	if c.FilterWindow < 1 {
		return &ConfigError{Field: "filter_window", Reason: fmt.Sprintf("must be at least 1, got %d", c.FilterWindow)}
	}
	return nil
}

// AcquisitionConfig holds the sampling parameters. Bit depth and reference
// voltage apply to samples converted after the change; stored voltages keep
// the config active at capture time.
type AcquisitionConfig struct {
	SampleRate int     `json:"sample_rate"`
	ADCBits    int     `json:"adc_bits"`
	VRef       float64 `json:"vref"`
}

// Validate checks the acquisition parameters.
func (c AcquisitionConfig) Validate() error {
	if c.SampleRate < 1 || c.SampleRate > MaxSampleRate {
		return &ConfigError{Field: "sample_rate", Reason: fmt.Sprintf("must be in [1,%d], got %d", MaxSampleRate, c.SampleRate)}
	}
	if err := units.ValidateADCBits(c.ADCBits); err != nil {
		return &ConfigError{Field: "adc_bits", Reason: err.Error()}
	}
	if err := units.ValidateVRef(c.VRef); err != nil {
		return &ConfigError{Field: "vref", Reason: err.Error()}
	}
	return nil
}

// Config bundles everything the pipeline needs.
type Config struct {
	Acquisition AcquisitionConfig `json:"acquisition"`
	Detection   DetectionConfig   `json:"detection"`
	Rate        RateConfig        `json:"rate"`

	// BufferCapacity is the ring buffer capacity in samples.
	BufferCapacity int `json:"buffer_capacity"`
}

// Validate checks all sections.
func (c Config) Validate() error {
	if err := c.Acquisition.Validate(); err != nil {
		return err
	}
	if err := c.Detection.Validate(); err != nil {
		return err
	}
	if err := c.Rate.Validate(); err != nil {
		return err
	}
	if c.BufferCapacity < 1 {
		return &ConfigError{Field: "buffer_capacity", Reason: fmt.Sprintf("must be positive, got %d", c.BufferCapacity)}
	}
	return nil
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Acquisition: AcquisitionConfig{
			SampleRate: DefaultSampleRate,
			ADCBits:    DefaultADCBits,
			VRef:       DefaultVRef,
		},
		Detection: DetectionConfig{
			ThresholdRatio:  DefaultThresholdRatio,
			MinRRIntervalMS: DefaultMinRRIntervalMS,
			LookbackSeconds: DefaultLookbackSeconds,
		},
		Rate: RateConfig{
			MinBPM:       DefaultMinBPM,
			MaxBPM:       DefaultMaxBPM,
			FilterWindow: DefaultFilterWindow,
		},
		BufferCapacity: DefaultCapacity,
	}
}
