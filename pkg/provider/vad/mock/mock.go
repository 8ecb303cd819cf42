// Package mock provides a test double for the vad.Detector interface.
//
// Detector returns scripted probabilities: either a fixed value, a queue
// consumed one per call, or a function of the chunk. Tests typically use
// ByLevel so that the audio content itself decides speech vs silence.
package mock

import (
	"math"
	"sync"

	"github.com/groovi/groovi/pkg/provider/vad"
)

var _ vad.Detector = (*Detector)(nil)

// Detector is a mock implementation of vad.Detector.
type Detector struct {
	mu sync.Mutex

	// Queue is consumed front to back; once empty, Default is returned.
	Queue []float64

	// Default is returned when Queue is empty and Func is nil.
	Default float64

	// Func, if non-nil, computes the probability from the chunk.
	Func func(chunk []byte) float64

	// Err, if non-nil, is returned from every call.
	Err error

	// Calls counts invocations of Probability.
	Calls int
}

// Probability implements vad.Detector.
func (d *Detector) Probability(chunk []byte) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	if d.Err != nil {
		return 0, d.Err
	}
	if len(d.Queue) > 0 {
		p := d.Queue[0]
		d.Queue = d.Queue[1:]
		return p, nil
	}
	if d.Func != nil {
		return d.Func(chunk), nil
	}
	return d.Default, nil
}

// CallCount returns the number of Probability calls. Thread-safe.
func (d *Detector) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Calls
}

// ByLevel returns a Func that reads the first byte of the chunk as a
// probability in hundredths (0–100). Test audio built with [Chunk] carries its
// intended probability this way.
func ByLevel(chunk []byte) float64 {
	if len(chunk) == 0 {
		return 0
	}
	return float64(chunk[0]) / 100
}

// Chunk builds an n-byte audio chunk whose first byte encodes prob for
// [ByLevel].
func Chunk(n int, prob float64) []byte {
	c := make([]byte, n)
	if n > 0 {
		c[0] = byte(math.Round(prob * 100))
	}
	return c
}
