package ecg

// DefaultCapacity is the default ring buffer capacity in samples. At 250 Hz
// this retains roughly 13 minutes of signal.
const DefaultCapacity = 200000

// EvictionOutcome reports which samples an append pushed out of the buffer,
// so dependent bookkeeping (peak retention, export ranges) can reconcile.
type EvictionOutcome struct {
	EvictedSequences []uint64
}

// RingBuffer is a fixed-capacity FIFO store of samples. Appends are O(1);
// once full, each append evicts the oldest sample. Samples are addressed by
// sequence number, never by buffer index, so lookups for evicted sequences
// simply come back empty.
type RingBuffer struct {
	samples  []Sample
	capacity int
	head     int // next write position
	size     int
}

// NewRingBuffer creates a ring buffer with the given capacity. Non-positive
// capacities fall back to DefaultCapacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &RingBuffer{
		samples:  make([]Sample, capacity),
		capacity: capacity,
	}
}

// Append adds a sample to the buffer, evicting the oldest sample if the
// buffer is at capacity. The sample's sequence must be strictly greater than
// the last appended sequence and its timestamp must not go backwards;
// violations return ErrOutOfOrder and leave the buffer unchanged.
func (rb *RingBuffer) Append(s Sample) (EvictionOutcome, error) {
	var out EvictionOutcome
	if rb.size > 0 {
		last := rb.at(rb.size - 1)
		if s.Sequence <= last.Sequence || s.Timestamp < last.Timestamp {
			return out, ErrOutOfOrder
		}
	}
	if rb.size == rb.capacity {
		out.EvictedSequences = []uint64{rb.at(0).Sequence}
	}
	rb.samples[rb.head] = s
	rb.head = (rb.head + 1) % rb.capacity
	if rb.size < rb.capacity {
		rb.size++
	}
	return out, nil
}

// at returns the i-th oldest resident sample. i must be in [0, size).
func (rb *RingBuffer) at(i int) Sample {
	idx := (rb.head - rb.size + i + rb.capacity) % rb.capacity
	return rb.samples[idx]
}

// Len returns the number of resident samples.
func (rb *RingBuffer) Len() int { return rb.size }

// Cap returns the buffer capacity.
func (rb *RingBuffer) Cap() int { return rb.capacity }

// FirstSequence returns the oldest resident sequence number.
func (rb *RingBuffer) FirstSequence() (uint64, bool) {
	if rb.size == 0 {
		return 0, false
	}
	return rb.at(0).Sequence, true
}

// LastSequence returns the newest resident sequence number.
func (rb *RingBuffer) LastSequence() (uint64, bool) {
	if rb.size == 0 {
		return 0, false
	}
	return rb.at(rb.size - 1).Sequence, true
}

// Last returns the most recently appended sample.
func (rb *RingBuffer) Last() (Sample, bool) {
	if rb.size == 0 {
		return Sample{}, false
	}
	return rb.at(rb.size - 1), true
}

// GetRange returns resident samples with seqStart <= Sequence <= seqEnd in
// sequence order. Partial overlap with the resident window is not an error:
// the call returns whatever remains.
func (rb *RingBuffer) GetRange(seqStart, seqEnd uint64) []Sample {
	if rb.size == 0 || seqStart > seqEnd {
		return nil
	}
	first := rb.at(0).Sequence
	last := rb.at(rb.size - 1).Sequence
	if seqEnd < first || seqStart > last {
		return nil
	}
	// Sequences are strictly increasing but may have gaps after a reset, so
	// locate the start with a binary search rather than arithmetic.
	lo := rb.lowerBound(seqStart)
	var out []Sample
	for i := lo; i < rb.size; i++ {
		s := rb.at(i)
		if s.Sequence > seqEnd {
			break
		}
		out = append(out, s)
	}
	return out
}

// lowerBound returns the smallest index whose sample sequence is >= seq.
func (rb *RingBuffer) lowerBound(seq uint64) int {
	lo, hi := 0, rb.size
	for lo < hi {
		mid := (lo + hi) / 2
		if rb.at(mid).Sequence < seq {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// TailWindow returns the resident samples whose timestamps fall within the
// trailing window (in seconds) of the newest sample.
func (rb *RingBuffer) TailWindow(window float64) []Sample {
	if rb.size == 0 || window <= 0 {
		return nil
	}
	cutoff := rb.at(rb.size-1).Timestamp - window
	// Walk backwards to find the window start.
	start := rb.size
	for start > 0 && rb.at(start-1).Timestamp >= cutoff {
		start--
	}
	out := make([]Sample, 0, rb.size-start)
	for i := start; i < rb.size; i++ {
		out = append(out, rb.at(i))
	}
	return out
}

// Clear removes all samples. Used on reconnect or operator reset.
func (rb *RingBuffer) Clear() {
	rb.head = 0
	rb.size = 0
}
