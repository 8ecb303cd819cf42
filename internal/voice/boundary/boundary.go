// Package boundary turns per-chunk VAD probabilities into speech-boundary
// decisions.
//
// A [Detector] applies hysteresis on top of a stateless vad.Detector: speech
// starts on the first frame above the speech threshold and ends only after a
// run of consecutive frames below it. It also answers the stateless
// barge-in question of whether a chunk is confidently speech.
//
// A Detector belongs to a single session and is not safe for concurrent use.
package boundary

import (
	"fmt"

	"github.com/groovi/groovi/pkg/provider/vad"
)

const (
	DefaultSpeechThreshold  = 0.5
	DefaultSilenceFrames    = 10
	DefaultBargeInThreshold = 0.7
)

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithSpeechThreshold sets the probability above which a frame counts as
// speech.
func WithSpeechThreshold(th float64) Option {
	return func(d *Detector) { d.speechThreshold = th }
}

// WithSilenceFrames sets how many consecutive non-speech frames end an
// utterance.
func WithSilenceFrames(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.silenceFrames = n
		}
	}
}

// WithBargeInThreshold sets the probability above which a frame interrupts
// playback.
func WithBargeInThreshold(th float64) Option {
	return func(d *Detector) { d.bargeInThreshold = th }
}

// Detector is a hysteresis wrapper around a VAD.
type Detector struct {
	vad vad.Detector

	speechThreshold  float64
	silenceFrames    int
	bargeInThreshold float64

	speechActive bool
	silenceRun   int
}

// New creates a Detector over v.
func New(v vad.Detector, opts ...Option) *Detector {
	d := &Detector{
		vad:              v,
		speechThreshold:  DefaultSpeechThreshold,
		silenceFrames:    DefaultSilenceFrames,
		bargeInThreshold: DefaultBargeInThreshold,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Probability returns the VAD speech probability for chunk. An empty chunk
// is silence and never reaches the VAD.
func (d *Detector) Probability(chunk []byte) (float64, error) {
	if len(chunk) == 0 {
		return 0, nil
	}
	p, err := d.vad.Probability(chunk)
	if err != nil {
		return 0, fmt.Errorf("boundary: vad: %w", err)
	}
	return p, nil
}

// SpeechEnded feeds one frame into the hysteresis and reports true exactly
// once per speech episode, on the frame that completes the silence run.
// Frames below threshold before any speech never end anything. A VAD error
// counts as a silent frame and is returned alongside the decision.
func (d *Detector) SpeechEnded(chunk []byte) (bool, error) {
	p, err := d.Probability(chunk)
	if p > d.speechThreshold {
		d.speechActive = true
		d.silenceRun = 0
		return false, err
	}
	if !d.speechActive {
		return false, err
	}
	d.silenceRun++
	if d.silenceRun >= d.silenceFrames {
		d.speechActive = false
		d.silenceRun = 0
		return true, err
	}
	return false, err
}

// IsActivelySpeaking reports whether chunk is speech at the barge-in
// threshold. It does not touch the hysteresis state.
func (d *Detector) IsActivelySpeaking(chunk []byte) (bool, error) {
	p, err := d.Probability(chunk)
	if err != nil {
		return false, err
	}
	return p > d.bargeInThreshold, nil
}

// Reset clears the hysteresis state.
func (d *Detector) Reset() {
	d.speechActive = false
	d.silenceRun = 0
}

// SpeechActive reports whether a speech episode is in progress.
func (d *Detector) SpeechActive() bool { return d.speechActive }

// SilenceRunLength is the number of consecutive silent frames seen since the
// last speech frame of the current episode.
func (d *Detector) SilenceRunLength() int { return d.silenceRun }
