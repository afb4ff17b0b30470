// Package ecg implements the signal acquisition and analysis core: a bounded
// ring buffer of digitized samples, an incremental R-peak detector, a
// heart-rate estimator, and CSV export of captured ranges. The display shell
// feeds raw points in via the Pipeline and reads immutable snapshots back out.
package ecg

import "github.com/orangewave/cardio/internal/units"

// Sample is one digitized point of the waveform. Sequence is assigned at
// append time and is strictly increasing; it remains a stable key for a sample
// even after the ring buffer has evicted it. Voltage reflects the acquisition
// config active at capture time and is never retroactively reconverted.
type Sample struct {
	Sequence  uint64  `json:"sequence"`
	Timestamp float64 `json:"timestamp"` // seconds, non-decreasing
	Raw       int64   `json:"adc_raw"`
	Voltage   float64 `json:"voltage"`
}

// PeakEvent is a snapshot of the sample identified as an R-wave apex.
// Immutable once created.
type PeakEvent struct {
	Sequence  uint64  `json:"sequence"`
	Timestamp float64 `json:"timestamp"`
	Raw       int64   `json:"adc_raw"`
	Voltage   float64 `json:"voltage"`
}

// RawPoint is an ingest-side point before sequence assignment and voltage
// conversion. Callers guarantee non-decreasing timestamps within and across
// batches.
type RawPoint struct {
	Timestamp float64
	Raw       int64
}

// makeSample converts a raw point into a Sample under the given acquisition
// parameters.
func makeSample(seq uint64, p RawPoint, bits int, vref float64) Sample {
	return Sample{
		Sequence:  seq,
		Timestamp: p.Timestamp,
		Raw:       p.Raw,
		Voltage:   units.ADCToVoltage(p.Raw, bits, vref),
	}
}
