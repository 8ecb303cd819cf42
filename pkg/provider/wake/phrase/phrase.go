// Package phrase implements wake.Detector by transcribing a rolling window of
// recent audio and fuzzy-matching the transcript against the wake phrase.
//
// Every stride of new audio (default 500 ms) the last window (default 1.5 s)
// is sent to an STT provider, unless the window is too quiet to contain
// speech. The transcript is matched phonetically, so "hey groovy" and
// "hey, Groovi!" both wake the assistant while "hey google" does not.
package phrase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/groovi/groovi/pkg/audio"
	"github.com/groovi/groovi/pkg/provider/stt"
	"github.com/groovi/groovi/pkg/provider/wake"
)

var _ wake.Detector = (*Detector)(nil)

// DefaultPhrase is the wake phrase used when none is configured.
const DefaultPhrase = "hey groovi"

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithPhrases sets the accepted wake phrases. The last word of each phrase is
// its keyword.
func WithPhrases(phrases ...string) Option {
	return func(d *Detector) {
		if len(phrases) > 0 {
			d.phrases = phrases
		}
	}
}

// WithWindow sets how much recent audio is transcribed per check.
func WithWindow(w time.Duration) Option {
	return func(d *Detector) { d.window = w }
}

// WithStride sets how much new audio must arrive between checks.
func WithStride(s time.Duration) Option {
	return func(d *Detector) { d.stride = s }
}

// WithEnergyFloor sets the RMS below which a window is not transcribed.
func WithEnergyFloor(rms float64) Option {
	return func(d *Detector) { d.energyFloor = rms }
}

// WithThresholds sets the Jaro-Winkler thresholds for phonetic and pure
// fuzzy matches. Defaults: 0.70 and 0.88.
func WithThresholds(phonetic, fuzzy float64) Option {
	return func(d *Detector) {
		d.phoneticThreshold = phonetic
		d.fuzzyThreshold = fuzzy
	}
}

// WithTimeout bounds each transcription call. Default: 3 s.
func WithTimeout(t time.Duration) Option {
	return func(d *Detector) { d.timeout = t }
}

// Detector is a transcript-based wake-phrase spotter. It is safe for
// concurrent use, though each session should own its own instance.
type Detector struct {
	stt stt.Provider

	phrases           []string
	window            time.Duration
	stride            time.Duration
	energyFloor       float64
	phoneticThreshold float64
	fuzzyThreshold    float64
	timeout           time.Duration

	matcher     *matcher
	windowBytes int
	strideBytes int

	mu      sync.Mutex
	buf     []byte
	pending int
}

// New creates a Detector that transcribes with p.
func New(p stt.Provider, opts ...Option) (*Detector, error) {
	if p == nil {
		return nil, fmt.Errorf("phrase: STT provider must not be nil")
	}
	d := &Detector{
		stt:               p,
		phrases:           []string{DefaultPhrase},
		window:            1500 * time.Millisecond,
		stride:            500 * time.Millisecond,
		energyFloor:       200,
		phoneticThreshold: 0.70,
		fuzzyThreshold:    0.88,
		timeout:           3 * time.Second,
	}
	for _, o := range opts {
		o(d)
	}
	if d.stride <= 0 || d.window < d.stride {
		return nil, fmt.Errorf("phrase: window %v must be at least stride %v", d.window, d.stride)
	}
	d.matcher = newMatcher(d.phrases, d.phoneticThreshold, d.fuzzyThreshold)
	if len(d.matcher.keywords) == 0 {
		return nil, fmt.Errorf("phrase: no usable wake phrase in %q", d.phrases)
	}
	d.windowBytes = audio.Capture.Bytes(d.window)
	d.strideBytes = audio.Capture.Bytes(d.stride)
	return d, nil
}

// Detect appends chunk to the rolling window and, once a stride of new audio
// has accumulated, transcribes the window and matches it.
func (d *Detector) Detect(chunk []byte) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf = append(d.buf, chunk...)
	if over := len(d.buf) - d.windowBytes; over > 0 {
		d.buf = append(d.buf[:0], d.buf[over:]...)
	}
	d.pending += len(chunk)
	if d.pending < d.strideBytes {
		return false, nil
	}
	d.pending = 0

	if audio.RMS(d.buf) < d.energyFloor {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	text, err := d.stt.Transcribe(ctx, d.buf)
	if err != nil {
		return false, fmt.Errorf("phrase: transcribe window: %w", err)
	}
	if _, ok := d.matcher.match(text); !ok {
		return false, nil
	}
	d.buf = d.buf[:0]
	return true, nil
}

// Reset discards the rolling window.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = d.buf[:0]
	d.pending = 0
}

// Factory returns a wake.Factory that creates Detectors sharing p.
func Factory(p stt.Provider, opts ...Option) wake.Factory {
	return func() (wake.Detector, error) {
		return New(p, opts...)
	}
}
