// Package energy provides a pure-Go VAD backend that maps the RMS level of a
// PCM chunk to a speech probability with a logistic curve over dBFS.
//
// It needs no model files and is the default detector. Accuracy is lower than
// a neural VAD in noisy rooms; tune the midpoint for the microphone in use.
package energy

import (
	"math"

	"github.com/groovi/groovi/pkg/audio"
	"github.com/groovi/groovi/pkg/provider/vad"
)

var _ vad.Detector = (*Detector)(nil)

const (
	defaultMidpointDB = -42.0
	defaultSlopeDB    = 3.0
	// defaultWindow matches the 32 ms window of common neural VADs at 16 kHz.
	defaultWindow = 512
)

// Detector is an energy-based [vad.Detector]. It is stateless and safe for
// concurrent use.
type Detector struct {
	midpointDB float64
	slopeDB    float64
	window     int
}

// Option configures a Detector.
type Option func(*Detector)

// WithMidpoint sets the dBFS level that maps to probability 0.5.
func WithMidpoint(db float64) Option {
	return func(d *Detector) { d.midpointDB = db }
}

// WithSlope sets how many dB separate probability 0.5 from ~0.73. Smaller
// values make the curve steeper.
func WithSlope(db float64) Option {
	return func(d *Detector) {
		if db > 0 {
			d.slopeDB = db
		}
	}
}

// WithWindow sets the minimum analysis window in samples. Shorter chunks are
// treated as zero-padded to this length.
func WithWindow(samples int) Option {
	return func(d *Detector) {
		if samples > 0 {
			d.window = samples
		}
	}
}

// New returns a Detector with the given options applied.
func New(opts ...Option) *Detector {
	d := &Detector{
		midpointDB: defaultMidpointDB,
		slopeDB:    defaultSlopeDB,
		window:     defaultWindow,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Probability implements [vad.Detector].
func (d *Detector) Probability(chunk []byte) (float64, error) {
	n := len(chunk) / audio.BytesPerSample
	if n == 0 {
		return 0, nil
	}
	rms := audio.RMS(chunk)
	if n < d.window {
		// Zero padding scales the mean square by n/window.
		rms *= math.Sqrt(float64(n) / float64(d.window))
	}
	if rms < 1 {
		return 0, nil
	}
	db := 20 * math.Log10(rms/32768.0)
	return 1 / (1 + math.Exp(-(db-d.midpointDB)/d.slopeDB)), nil
}
