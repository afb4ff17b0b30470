package ecg

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/orangewave/cardio/internal/timeutil"
)

// BufferMeta describes the ring buffer state at snapshot time.
type BufferMeta struct {
	Len           int    `json:"len"`
	Cap           int    `json:"cap"`
	FirstSequence uint64 `json:"first_sequence"`
	LastSequence  uint64 `json:"last_sequence"`
}

// EvictionInfo summarizes eviction activity since startup.
type EvictionInfo struct {
	Total        uint64 `json:"total"`
	LastSequence uint64 `json:"last_sequence"`
}

// Snapshot is an immutable, by-value view of the pipeline published to the
// display shell. Samples and Peaks are copies; mutating them does not affect
// pipeline state.
type Snapshot struct {
	Buffer     BufferMeta   `json:"buffer"`
	Samples    []Sample     `json:"samples"`
	Peaks      []PeakEvent  `json:"peaks"`
	Rate       RateEstimate `json:"rate"`
	Eviction   EvictionInfo `json:"eviction"`
	PeakToPeak float64      `json:"peak_to_peak"`

	// MeasuredSPS is the acquisition rate observed over the trailing wall
	// second, as opposed to the configured sample rate.
	MeasuredSPS float64 `json:"measured_sps"`

	Config Config `json:"config"`
}

// Pipeline owns the ring buffer, detector, and estimator behind a single
// mutual-exclusion boundary. Ingestion is applied in strict arrival order;
// appends, scans, rate updates, and snapshot reads are serialized so a reader
// never observes a torn intermediate state. Peak scans and rate updates are
// short and bounded, so nothing here is cancellable mid-operation.
type Pipeline struct {
	mu    sync.Mutex
	cfg   Config
	buf   *RingBuffer
	det   *PeakDetector
	est   *RateEstimator
	meter *rateMeter

	nextSeq  uint64
	eviction EvictionInfo
}

// NewPipeline creates a pipeline with the given configuration and clock.
func NewPipeline(cfg Config, clock timeutil.Clock) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Pipeline{
		cfg:     cfg,
		buf:     NewRingBuffer(cfg.BufferCapacity),
		det:     NewPeakDetector(cfg.Detection, cfg.Acquisition.SampleRate),
		est:     NewRateEstimator(cfg.Rate),
		meter:   newRateMeter(clock),
		nextSeq: 1,
	},
		nil
}

// Ingest applies one ordered batch of raw points: assigns sequences, converts
// voltages under the current acquisition config, appends to the ring buffer,
// scans exactly the newly appended range for peaks, and feeds the results to
// the rate estimator. Returns ErrOutOfOrder (wrapped) if the batch's
// timestamps regress; points before the offending one remain appended.
func (p *Pipeline) Ingest(points []RawPoint) error {
	if len(points) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	appended := make([]Sample, 0, len(points))
	for _, pt := range points {
		s := makeSample(p.nextSeq, pt, p.cfg.Acquisition.ADCBits, p.cfg.Acquisition.VRef)
		out, err := p.buf.Append(s)
		if err != nil {
			// Finish analysis for what did land before surfacing the fault.
			p.finishIngest(appended)
			return fmt.Errorf("ingest at sequence %d: %w", p.nextSeq, err)
		}
		p.nextSeq++
		for _, seq := range out.EvictedSequences {
			p.eviction.Total++
			p.eviction.LastSequence = seq
		}
		appended = append(appended, s)
	}
	p.finishIngest(appended)
	return nil
}

func (p *Pipeline) finishIngest(appended []Sample) {
	if len(appended) == 0 {
		return
	}
	events := p.det.Scan(appended)
	p.est.Update(events)
	p.meter.record(len(appended))
}

// Snapshot returns an immutable view of recent state. window bounds the
// returned samples and peaks to the trailing window (seconds) of the newest
// sample; a non-positive window falls back to the detector lookback.
func (p *Pipeline) Snapshot(window float64) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	if window <= 0 {
		window = p.cfg.Detection.LookbackSeconds
	}
	snap := Snapshot{
		Buffer: BufferMeta{
			Len: p.buf.Len(),
			Cap: p.buf.Cap(),
		},
		Rate:        p.est.Estimate(),
		Eviction:    p.eviction,
		MeasuredSPS: p.meter.rate(),
		Config:      p.cfg,
	}
	if first, ok := p.buf.FirstSequence(); ok {
		snap.Buffer.FirstSequence = first
	}
	if last, ok := p.buf.LastSequence(); ok {
		snap.Buffer.LastSequence = last
	}
	snap.Samples = p.buf.TailWindow(window)
	if last, ok := p.buf.Last(); ok {
		snap.Peaks = p.det.RecentPeaks(last.Timestamp, window)
	}
	if len(snap.Samples) > 0 {
		lo, hi := snap.Samples[0].Voltage, snap.Samples[0].Voltage
		for _, s := range snap.Samples[1:] {
			if s.Voltage < lo {
				lo = s.Voltage
			}
			if s.Voltage > hi {
				hi = s.Voltage
			}
		}
		snap.PeakToPeak = hi - lo
	}
	return snap
}

// Configure atomically applies a new configuration between batches. An
// invalid config is rejected with a ConfigError and the previous config stays
// in effect. Capacity changes preserve the most recent samples that fit;
// bit-depth or vref changes apply to future conversions only.
func (p *Pipeline) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if cfg.BufferCapacity != p.cfg.BufferCapacity {
		nb := NewRingBuffer(cfg.BufferCapacity)
		keep := p.buf.Len()
		if keep > cfg.BufferCapacity {
			keep = cfg.BufferCapacity
		}
		for i := p.buf.Len() - keep; i < p.buf.Len(); i++ {
			// source samples are already ordered, so Append cannot fail
			_, _ = nb.Append(p.buf.at(i))
		}
		p.buf = nb
	}
	p.det.SetConfig(cfg.Detection, cfg.Acquisition.SampleRate)
	p.est.SetConfig(cfg.Rate)
	p.cfg = cfg
	return nil
}

// Config returns the active configuration.
func (p *Pipeline) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Reset clears the buffer and all detector and estimator state, as on a
// serial reconnect. Sequence numbers continue from where they were so stale
// references never alias new samples.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.Clear()
	p.det.Reset()
	p.est.Reset()
	p.meter.reset()
}

// ExportRange serializes the resident samples in [seqStart, seqEnd] as CSV to
// w. The snapshot is taken under the pipeline lock; serialization happens
// outside it so slow writers never stall ingestion. Failures are reported as
// an *ExportError carrying the attempted range.
func (p *Pipeline) ExportRange(seqStart, seqEnd uint64, w io.Writer) error {
	p.mu.Lock()
	samples := p.buf.GetRange(seqStart, seqEnd)
	p.mu.Unlock()

	if err := WriteCSV(w, samples); err != nil {
		return &ExportError{SeqStart: seqStart, SeqEnd: seqEnd, Err: err}
	}
	return nil
}

// rateMeter measures the observed samples/sec over the trailing wall-clock
// second, like the instrument's "sps" status readout.
type rateMeter struct {
	clock  timeutil.Clock
	events []meterEvent
}

type meterEvent struct {
	at time.Time
	n  int
}

func newRateMeter(clock timeutil.Clock) *rateMeter {
	return &rateMeter{clock: clock}
}

func (m *rateMeter) record(n int) {
	m.events = append(m.events, meterEvent{at: m.clock.Now(), n: n})
	m.prune()
}

func (m *rateMeter) prune() {
	cutoff := m.clock.Now().Add(-time.Second)
	i := 0
	for i < len(m.events) && m.events[i].at.Before(cutoff) {
		i++
	}
	m.events = m.events[i:]
}

func (m *rateMeter) rate() float64 {
	m.prune()
	total := 0
	for _, e := range m.events {
		total += e.n
	}
	return float64(total)
}

func (m *rateMeter) reset() {
	m.events = nil
}
