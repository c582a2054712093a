package performance

import (
	"math/bits"
	"time"
)

// DurationRing keeps the most recent durations in a power-of-two ring. It is not synchronized; the
// Collector guards it.
type DurationRing struct {
	buf  []time.Duration
	mask uint64
	head uint64 // Absolute write cursor
}

// NewDurationRing creates a ring holding at least capacity durations.
func NewDurationRing(capacity int) *DurationRing {
	capacity = roundUpPowerOfTwo(max(capacity, 1))
	return &DurationRing{
		buf:  make([]time.Duration, capacity),
		mask: uint64(capacity - 1), //nolint:gosec // capacity is positive
	}
}

// Push writes d over the oldest entry once the ring is full.
func (r *DurationRing) Push(d time.Duration) {
	r.buf[r.head&r.mask] = d
	r.head++
}

// Len returns the number of valid entries.
func (r *DurationRing) Len() int {
	return int(min(r.head, uint64(len(r.buf)))) //nolint:gosec // bounded by len(buf)
}

// Snapshot returns the valid entries, oldest first.
func (r *DurationRing) Snapshot() []time.Duration {
	n := uint64(r.Len()) //nolint:gosec // non-negative
	out := make([]time.Duration, 0, n)
	for i := r.head - n; i < r.head; i++ {
		out = append(out, r.buf[i&r.mask])
	}
	return out
}

func roundUpPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1)) //nolint:gosec // n >= 2 at this point
}
