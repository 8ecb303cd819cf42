package mcphost

import (
	"slices"
	"sync"
)

// rollingWindow keeps the most recent tool call latencies and outcomes in a
// ring buffer. All methods are safe for concurrent use.
type rollingWindow struct {
	mu      sync.Mutex
	samples []int64 // latency in ms
	failed  []bool
	pos     int // next write position
	count   int // total samples written, may exceed len(samples)
}

// newRollingWindow creates a window holding size samples. size ≤ 0 means 100.
func newRollingWindow(size int) *rollingWindow {
	if size <= 0 {
		size = defaultWindowSize
	}
	return &rollingWindow{
		samples: make([]int64, size),
		failed:  make([]bool, size),
	}
}

// Record adds one measurement, overwriting the oldest once the ring is full.
func (w *rollingWindow) Record(latencyMs int64, isError bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.pos] = latencyMs
	w.failed[w.pos] = isError
	w.pos = (w.pos + 1) % len(w.samples)
	w.count++
}

// filled returns how many slots hold real samples. Caller holds mu.
func (w *rollingWindow) filled() int {
	return min(w.count, len(w.samples))
}

// percentile returns the q-quantile (0..1) of the window. Caller holds mu.
func (w *rollingWindow) percentile(q float64) int64 {
	n := w.filled()
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(w.samples[:n])
	slices.Sort(sorted)
	return sorted[int(float64(n-1)*q+0.5)]
}

// P50 returns the median latency in ms, or 0 with no samples.
func (w *rollingWindow) P50() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.percentile(0.5)
}

// P99 returns the 99th-percentile latency in ms, or 0 with no samples.
func (w *rollingWindow) P99() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.percentile(0.99)
}

// ErrorRate returns the fraction of failed calls in the window.
func (w *rollingWindow) ErrorRate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.filled()
	if n == 0 {
		return 0
	}
	var errs int
	for _, f := range w.failed[:n] {
		if f {
			errs++
		}
	}
	return float64(errs) / float64(n)
}

// Count returns the total number of recorded calls.
func (w *rollingWindow) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
