package ecg

import (
	"gonum.org/v1/gonum/stat"
)

// RateEstimate is a point-in-time heart-rate reading. Valid is false until at
// least two plausible RR intervals have been observed, or when the most
// recent interval fell outside the physiological band.
type RateEstimate struct {
	BPMInstant  float64 `json:"bpm_instant"`
	BPMFiltered float64 `json:"bpm_filtered"`

	// MeanRRSeconds is the average accepted-valid RR interval, the "period"
	// readout of the instrument.
	MeanRRSeconds float64 `json:"mean_rr_seconds"`

	Valid bool `json:"valid"`
}

// RateEstimator turns a stream of accepted peaks into a heart-rate estimate
// robust to detector noise. Intervals mapping outside the configured BPM band
// are treated as detector artifacts: they are excluded from the filtered
// estimate and do not reset filter state, but they do advance the last-peak
// bookkeeping so one bad detection cannot poison two intervals.
type RateEstimator struct {
	cfg RateConfig

	lastPeakTime float64
	hasLastPeak  bool

	// intervals holds the most recent accepted-valid RR intervals, at most
	// cfg.FilterWindow of them.
	intervals []float64

	validCount  int
	lastInstant float64
	lastValid   bool
}

// NewRateEstimator creates an estimator with the given (validated) config.
func NewRateEstimator(cfg RateConfig) *RateEstimator {
	return &RateEstimator{cfg: cfg}
}

// SetConfig applies new rate parameters, trimming the interval window if it
// shrank.
func (e *RateEstimator) SetConfig(cfg RateConfig) {
	e.cfg = cfg
	if len(e.intervals) > cfg.FilterWindow {
		e.intervals = e.intervals[len(e.intervals)-cfg.FilterWindow:]
	}
}

// Update consumes newly accepted peaks in timestamp order.
func (e *RateEstimator) Update(events []PeakEvent) {
	for _, ev := range events {
		if e.hasLastPeak {
			rr := ev.Timestamp - e.lastPeakTime
			if rr > 0 {
				bpm := 60.0 / rr
				e.lastInstant = bpm
				if bpm >= e.cfg.MinBPM && bpm <= e.cfg.MaxBPM {
					e.intervals = append(e.intervals, rr)
					if len(e.intervals) > e.cfg.FilterWindow {
						e.intervals = e.intervals[1:]
					}
					e.validCount++
					e.lastValid = true
				} else {
					e.lastValid = false
				}
			}
		}
		e.lastPeakTime = ev.Timestamp
		e.hasLastPeak = true
	}
}

// Estimate returns the current reading.
func (e *RateEstimator) Estimate() RateEstimate {
	est := RateEstimate{
		BPMInstant: e.lastInstant,
		Valid:      e.validCount >= 2 && e.lastValid,
	}
	if len(e.intervals) > 0 {
		meanRR := stat.Mean(e.intervals, nil)
		if meanRR > 0 {
			est.MeanRRSeconds = meanRR
			est.BPMFiltered = 60.0 / meanRR
		}
	}
	return est
}

// Reset clears all interval history and bookkeeping.
func (e *RateEstimator) Reset() {
	e.lastPeakTime = 0
	e.hasLastPeak = false
	e.intervals = nil
	e.validCount = 0
	e.lastInstant = 0
	e.lastValid = false
}
