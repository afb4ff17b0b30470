package ecg

import (
	"gonum.org/v1/gonum/floats"
)

// peakLogMax bounds the detector's peak log. Independent of ring buffer
// eviction: BPM needs interval history that may outlive raw-sample retention.
const peakLogMax = 256

// PeakDetector identifies R-wave apexes in the voltage stream using a
// threshold plus local-maximum test with refractory enforcement. It operates
// incrementally on newly appended samples only and never re-scans history.
//
// The detection threshold floats with the signal: it is derived from the
// running min/max of a rolling amplitude window (sized by
// DetectionConfig.LookbackSeconds at the configured sample rate), so gain or
// baseline drift does not require retuning the ratio.
type PeakDetector struct {
	cfg        DetectionConfig
	sampleRate int

	// Rolling amplitude window. Order is irrelevant (only min/max are taken)
	// so it is a plain overwrite ring.
	window []float64
	wHead  int
	wSize  int

	// Last two samples seen, so the local-maximum test works across batch
	// boundaries.
	prev1, prev2 Sample
	nPrev        int

	lastPeakTime float64
	hasLastPeak  bool

	log []PeakEvent
}

// NewPeakDetector creates a detector for the given parameters. The caller is
// expected to have validated cfg.
func NewPeakDetector(cfg DetectionConfig, sampleRate int) *PeakDetector {
	d := &PeakDetector{}
	d.SetConfig(cfg, sampleRate)
	return d
}

// SetConfig applies new detection parameters. The change takes effect on the
// next scan; already-processed history is never revisited. The most recent
// amplitude window contents are carried over as far as the new lookback
// allows.
func (d *PeakDetector) SetConfig(cfg DetectionConfig, sampleRate int) {
	lookback := int(cfg.LookbackSeconds * float64(sampleRate))
	if lookback < 3 {
		lookback = 3
	}
	old := d.recentWindow()
	d.cfg = cfg
	d.sampleRate = sampleRate
	d.window = make([]float64, lookback)
	d.wHead = 0
	d.wSize = 0
	start := 0
	if len(old) > lookback {
		start = len(old) - lookback
	}
	for _, v := range old[start:] {
		d.pushWindow(v)
	}
}

// recentWindow returns the window contents oldest-first.
func (d *PeakDetector) recentWindow() []float64 {
	out := make([]float64, 0, d.wSize)
	for i := 0; i < d.wSize; i++ {
		idx := (d.wHead - d.wSize + i + len(d.window)) % len(d.window)
		out = append(out, d.window[idx])
	}
	return out
}

func (d *PeakDetector) pushWindow(v float64) {
	d.window[d.wHead] = v
	d.wHead = (d.wHead + 1) % len(d.window)
	if d.wSize < len(d.window) {
		d.wSize++
	}
}

// Scan processes a contiguous range of newly appended samples in sequence
// order and returns accepted R-peak events. An empty range is a no-op.
func (d *PeakDetector) Scan(samples []Sample) []PeakEvent {
	if len(samples) == 0 {
		return nil
	}
	for _, s := range samples {
		d.pushWindow(s.Voltage)
	}

	vMin := floats.Min(d.window[:d.wSize])
	vMax := floats.Max(d.window[:d.wSize])
	amp := vMax - vMin
	threshold := vMin + d.cfg.ThresholdRatio*amp
	refractory := float64(d.cfg.MinRRIntervalMS) / 1000.0

	var events []PeakEvent
	for _, s := range samples {
		if d.nPrev >= 2 && amp > 1e-9 {
			apex := d.prev1
			// Candidate apex: above threshold and strictly greater than both
			// immediate neighbors.
			if apex.Voltage > threshold &&
				apex.Voltage > d.prev2.Voltage &&
				apex.Voltage > s.Voltage {
				// First-found-wins inside the refractory window: candidates
				// arriving too soon after an accepted peak are discarded,
				// keeping the scan O(1) per sample and deterministic.
				if !d.hasLastPeak || apex.Timestamp-d.lastPeakTime >= refractory {
					ev := PeakEvent{
						Sequence:  apex.Sequence,
						Timestamp: apex.Timestamp,
						Raw:       apex.Raw,
						Voltage:   apex.Voltage,
					}
					events = append(events, ev)
					d.appendLog(ev)
					d.lastPeakTime = apex.Timestamp
					d.hasLastPeak = true
				}
			}
		}
		d.prev2 = d.prev1
		d.prev1 = s
		if d.nPrev < 2 {
			d.nPrev++
		}
	}
	return events
}

func (d *PeakDetector) appendLog(ev PeakEvent) {
	d.log = append(d.log, ev)
	if len(d.log) > peakLogMax {
		d.log = d.log[len(d.log)-peakLogMax:]
	}
}

// RecentPeaks returns retained peaks with timestamps inside the trailing
// window (seconds) of the given reference time. A non-positive window returns
// the whole retained log.
func (d *PeakDetector) RecentPeaks(now, window float64) []PeakEvent {
	if window <= 0 {
		out := make([]PeakEvent, len(d.log))
		copy(out, d.log)
		return out
	}
	cutoff := now - window
	start := len(d.log)
	for start > 0 && d.log[start-1].Timestamp >= cutoff {
		start--
	}
	out := make([]PeakEvent, len(d.log)-start)
	copy(out, d.log[start:])
	return out
}

// Reset clears the rolling amplitude state, the refractory clock, and the
// peak log. Called by the pipeline when the buffer is cleared, so the
// detector tolerates gaps from reconnects.
func (d *PeakDetector) Reset() {
	d.wHead = 0
	d.wSize = 0
	d.nPrev = 0
	d.hasLastPeak = false
	d.lastPeakTime = 0
	d.log = nil
}
