package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "sample_rate": 500,
  "threshold_ratio": 0.7,
  "min_bpm": 30,
  "max_bpm": 220,
  "buffer_capacity": 50000,
  "baud_rate": 230400
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.SampleRate == nil || *cfg.SampleRate != 500 {
		t.Errorf("Expected SampleRate 500, got %v", cfg.SampleRate)
	}
	if cfg.ThresholdRatio == nil || *cfg.ThresholdRatio != 0.7 {
		t.Errorf("Expected ThresholdRatio 0.7, got %v", cfg.ThresholdRatio)
	}
	if cfg.ADCBits != nil {
		t.Errorf("Expected ADCBits unset, got %v", *cfg.ADCBits)
	}

	pipe := cfg.PipelineConfig()
	if pipe.Acquisition.SampleRate != 500 {
		t.Errorf("PipelineConfig SampleRate = %d, want 500", pipe.Acquisition.SampleRate)
	}
	// Unset fields fall back to built-in defaults
	if pipe.Acquisition.ADCBits != 12 {
		t.Errorf("PipelineConfig ADCBits = %d, want 12", pipe.Acquisition.ADCBits)
	}
	if pipe.Rate.MinBPM != 30 || pipe.Rate.MaxBPM != 220 {
		t.Errorf("PipelineConfig band = [%g, %g], want [30, 220]", pipe.Rate.MinBPM, pipe.Rate.MaxBPM)
	}
	if pipe.BufferCapacity != 50000 {
		t.Errorf("PipelineConfig BufferCapacity = %d, want 50000", pipe.BufferCapacity)
	}

	opts := cfg.PortOptions()
	if opts.BaudRate != 230400 {
		t.Errorf("PortOptions BaudRate = %d, want 230400", opts.BaudRate)
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")
	if err := os.WriteFile(configPath, []byte(`{"filter_window": 8}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	pipe := cfg.PipelineConfig()
	if pipe.Rate.FilterWindow != 8 {
		t.Errorf("FilterWindow = %d, want 8", pipe.Rate.FilterWindow)
	}
	if pipe.Detection.ThresholdRatio != 0.6 {
		t.Errorf("ThresholdRatio = %g, want default 0.6", pipe.Detection.ThresholdRatio)
	}
	if cfg.GetWindowSeconds() != 5.0 {
		t.Errorf("GetWindowSeconds = %g, want 5", cfg.GetWindowSeconds())
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	if _, err := LoadTuningConfig("config.yaml"); err == nil {
		t.Error("expected error for non-.json extension")
	}
}

func TestLoadTuningConfigMissingFile(t *testing.T) {
	if _, err := LoadTuningConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadTuningConfigInvalidValues(t *testing.T) {
	tmpDir := t.TempDir()

	cases := []struct {
		name string
		json string
		want string
	}{
		{"bad ratio", `{"threshold_ratio": 2.0}`, "threshold_ratio"},
		{"bad window", `{"window_seconds": -1}`, "window_seconds"},
		{"bad parity", `{"parity": "X"}`, "parity"},
		{"malformed", `{"sample_rate": `, "parse"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, strings.ReplaceAll(tc.name, " ", "_")+".json")
			if err := os.WriteFile(path, []byte(tc.json), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadTuningConfig(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestDefaultsFileMatchesBuiltIns(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	pipe := cfg.PipelineConfig()
	if err := pipe.Validate(); err != nil {
		t.Fatalf("defaults file produced invalid pipeline config: %v", err)
	}
	if pipe.Acquisition.SampleRate != 250 {
		t.Errorf("SampleRate = %d, want 250", pipe.Acquisition.SampleRate)
	}
	if pipe.Detection.ThresholdRatio != 0.6 {
		t.Errorf("ThresholdRatio = %g, want 0.6", pipe.Detection.ThresholdRatio)
	}

	opts, err := cfg.PortOptions().Normalize()
	if err != nil {
		t.Fatalf("defaults file produced invalid port options: %v", err)
	}
	if opts.BaudRate != 115200 {
		t.Errorf("BaudRate = %d, want 115200", opts.BaudRate)
	}
}
