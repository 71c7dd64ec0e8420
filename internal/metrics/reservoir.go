// Package metrics implements the latency reservoirs, periodic CSV
// flush, and summary line described in §4.8 and §6. Percentile
// arithmetic is plain Go; sorting and linear interpolation over a
// bounded slice is simple enough that reaching for a stats library
// would just add a dependency for ~15 lines of math.
package metrics

import (
	"sort"
	"sync"

	"tradingengine/pkg/safe"
)

// ReservoirCapacity is the fixed size of each latency family's sample
// window (§4.8): the most recent 10,000 samples, oldest dropped on
// overflow.
const ReservoirCapacity = 10_000

// Reservoir is a fixed-capacity ring buffer of int64 samples (latency
// in milliseconds) with on-demand percentile computation.
type Reservoir struct {
	mu      sync.Mutex
	samples []int64
	next    int
	count   int // number of samples written, capped at ReservoirCapacity
}

// NewReservoir creates an empty reservoir.
func NewReservoir() *Reservoir {
	return &Reservoir{samples: make([]int64, ReservoirCapacity)}
}

// Add records a sample, overwriting the oldest one once the reservoir
// is full. The critical section is a fixed-size array write, kept short
// per §4.8's shared-resource discipline.
func (r *Reservoir) Add(v int64) {
	r.mu.Lock()
	r.samples[r.next] = v
	r.next = (r.next + 1) % ReservoirCapacity
	if r.count < ReservoirCapacity {
		r.count++
	}
	r.mu.Unlock()
}

// Len returns the number of samples currently held.
func (r *Reservoir) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Percentiles computes P50, P95 and P99 over a sorted copy of the
// current samples using linear interpolation between adjacent ranks:
// idx = p/100 × (n−1); result = v[⌊idx⌋]·(1−w) + v[⌈idx⌉]·w (§4.8).
// With fewer than one sample, all three are zero.
func (r *Reservoir) Percentiles() (p50, p95, p99 float64) {
	r.mu.Lock()
	sorted := make([]int64, r.count)
	copy(sorted, r.samples[:r.count])
	r.mu.Unlock()

	if len(sorted) == 0 {
		return 0, 0, 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return percentile(sorted, 50), percentile(sorted, 95), percentile(sorted, 99)
}

// Mean returns the arithmetic mean of the current samples, used by the
// 10s summary line's aggregate counters alongside the percentiles.
// Summing through safe.SafeAdd means a corrupted or adversarial sample
// overflows loudly instead of wrapping into a silently wrong mean.
func (r *Reservoir) Mean() float64 {
	r.mu.Lock()
	samples := make([]int64, r.count)
	copy(samples, r.samples[:r.count])
	r.mu.Unlock()

	if len(samples) == 0 {
		return 0
	}
	return float64(safe.SafeSum(samples)) / float64(len(samples))
}

func percentile(sorted []int64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return float64(sorted[0])
	}
	idx := p / 100 * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return float64(sorted[lo])
	}
	w := idx - float64(lo)
	return float64(sorted[lo])*(1-w) + float64(sorted[hi])*w
}
