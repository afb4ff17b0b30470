package ecg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peaksAt(times ...float64) []PeakEvent {
	out := make([]PeakEvent, len(times))
	for i, ts := range times {
		out[i] = PeakEvent{Sequence: uint64(i + 1), Timestamp: ts, Raw: 3500, Voltage: 2.82}
	}
	return out
}

func defaultRateConfig() RateConfig {
	return RateConfig{MinBPM: 20, MaxBPM: 300, FilterWindow: 5}
}

func TestRateSteady75BPM(t *testing.T) {
	e := NewRateEstimator(defaultRateConfig())
	e.Update(peaksAt(0.012, 0.812, 1.612, 2.412))

	est := e.Estimate()
	assert.True(t, est.Valid)
	assert.InDelta(t, 75.0, est.BPMInstant, 1e-9)
	assert.InDelta(t, 75.0, est.BPMFiltered, 1e-9)
	assert.InDelta(t, 0.8, est.MeanRRSeconds, 1e-9)
}

func TestRateInvalidUntilTwoIntervals(t *testing.T) {
	e := NewRateEstimator(defaultRateConfig())

	assert.False(t, e.Estimate().Valid)

	e.Update(peaksAt(0.0))
	assert.False(t, e.Estimate().Valid)

	e.Update(peaksAt(0.8))
	est := e.Estimate()
	assert.False(t, est.Valid)
	assert.InDelta(t, 75.0, est.BPMInstant, 1e-9)

	e.Update(peaksAt(1.6))
	assert.True(t, e.Estimate().Valid)
}

func TestRateArtifactRejectionNoCascade(t *testing.T) {
	// A spurious detection 50ms after a real peak maps to 1200 BPM, outside
	// the band. It must not enter the filter, but it must advance the
	// last-peak reference so the following real peak also yields an
	// out-of-band interval rather than a poisoned in-band one.
	e := NewRateEstimator(defaultRateConfig())
	e.Update(peaksAt(0.0, 0.8, 1.6))
	require.True(t, e.Estimate().Valid)

	e.Update(peaksAt(1.65))
	est := e.Estimate()
	assert.False(t, est.Valid)
	assert.InDelta(t, 1200.0, est.BPMInstant, 1e-9)
	assert.InDelta(t, 75.0, est.BPMFiltered, 1e-9)

	// Next real peak at 2.4: interval from the artifact is 0.75s, in band, so
	// the estimate recovers immediately.
	e.Update(peaksAt(2.4))
	est = e.Estimate()
	assert.True(t, est.Valid)
	assert.InDelta(t, 80.0, est.BPMInstant, 1e-9)
}

func TestRateFilterWindowTrimming(t *testing.T) {
	e := NewRateEstimator(RateConfig{MinBPM: 20, MaxBPM: 300, FilterWindow: 3})

	// Intervals: 1.0, 1.0, 1.0, then three at 0.5. Window of 3 forgets the
	// slow intervals entirely.
	e.Update(peaksAt(0, 1, 2, 3, 3.5, 4.0, 4.5))

	est := e.Estimate()
	assert.True(t, est.Valid)
	assert.InDelta(t, 120.0, est.BPMFiltered, 1e-9)
	assert.InDelta(t, 0.5, est.MeanRRSeconds, 1e-9)
}

func TestRateSetConfigShrinksWindow(t *testing.T) {
	e := NewRateEstimator(defaultRateConfig())
	e.Update(peaksAt(0, 1, 2, 3, 3.5))

	e.SetConfig(RateConfig{MinBPM: 20, MaxBPM: 300, FilterWindow: 2})

	// Only the newest two intervals (1.0 and 0.5) remain.
	est := e.Estimate()
	assert.InDelta(t, 0.75, est.MeanRRSeconds, 1e-9)
}

func TestRateBandEdges(t *testing.T) {
	// Exactly 20 and 300 BPM are inside the band.
	e := NewRateEstimator(defaultRateConfig())
	e.Update(peaksAt(0.0, 3.0, 3.2))

	est := e.Estimate()
	assert.True(t, est.Valid)
	assert.InDelta(t, 300.0, est.BPMInstant, 1e-9)
}

func TestRateZeroIntervalIgnored(t *testing.T) {
	// Duplicate timestamps produce no interval at all, valid or otherwise.
	e := NewRateEstimator(defaultRateConfig())
	e.Update(peaksAt(0.8, 0.8))

	est := e.Estimate()
	assert.False(t, est.Valid)
	assert.Zero(t, est.BPMInstant)
}

func TestRateReset(t *testing.T) {
	e := NewRateEstimator(defaultRateConfig())
	e.Update(peaksAt(0.0, 0.8, 1.6))
	require.True(t, e.Estimate().Valid)

	e.Reset()
	est := e.Estimate()
	assert.False(t, est.Valid)
	assert.Zero(t, est.BPMInstant)
	assert.Zero(t, est.BPMFiltered)

	// Timestamps restarting from zero after a reset do not produce a negative
	// or bogus interval.
	e.Update(peaksAt(0.1, 0.9, 1.7))
	assert.True(t, e.Estimate().Valid)
	assert.InDelta(t, 75.0, e.Estimate().BPMInstant, 1e-9)
}
