package maker

import (
	"sync"

	"github.com/shopspring/decimal"
)

// RingBuffer is a bounded history of depth samples used by the depth-drop
// gate (SPEC_FULL.md §4.6 step 4). Capacity is fixed at construction
// (`drop_window_ticks + 1`); once full, appending evicts the oldest sample —
// the same cutoff-eviction shape as the teacher's FlowTracker.evictStaleLocked,
// reused here for a fixed-length window instead of a time window since the
// depth-drop gate samples once per tick rather than per fill.
type RingBuffer struct {
	mu       sync.Mutex
	capacity int
	samples  []decimal.Decimal
}

// NewRingBuffer creates a ring buffer holding at most capacity samples.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{capacity: capacity}
}

// Append adds a sample, evicting the oldest if the buffer is at capacity.
func (r *RingBuffer) Append(v decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, v)
	if len(r.samples) > r.capacity {
		r.samples = r.samples[len(r.samples)-r.capacity:]
	}
}

// Clear empties the buffer, used when the depth-drop gate trips (SPEC_FULL.md
// §4.6 step 4: "Clear history, skip rest of tick").
func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = nil
}

// Len returns the number of samples currently held.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Earliest returns the oldest retained sample and whether one exists.
func (r *RingBuffer) Earliest() (decimal.Decimal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) == 0 {
		return decimal.Zero, false
	}
	return r.samples[0], true
}

// Latest returns the most recently appended sample and whether one exists.
func (r *RingBuffer) Latest() (decimal.Decimal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) == 0 {
		return decimal.Zero, false
	}
	return r.samples[len(r.samples)-1], true
}

// DropPercent returns (earliest-current)/earliest*100 over the retained
// window, and false if there are fewer than two samples (SPEC_FULL.md §4.6
// step 4: "If ring has >=2 samples, compute drop_percent").
func (r *RingBuffer) DropPercent() (decimal.Decimal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) < 2 {
		return decimal.Zero, false
	}
	earliest := r.samples[0]
	current := r.samples[len(r.samples)-1]
	if earliest.Sign() <= 0 {
		return decimal.Zero, false
	}
	return earliest.Sub(current).Div(earliest).Mul(decimal.NewFromInt(100)), true
}
