// Package vad defines the Detector interface for Voice Activity Detection
// backends.
//
// A Detector reduces one chunk of 16 kHz mono PCM to a speech probability in
// [0, 1]. It holds no per-stream state: hysteresis (consecutive silence
// counting, speech-ended decisions) belongs to the caller, which lets one
// loaded model serve every session.
//
// Implementations must be safe for concurrent use.
package vad

// Detector is the abstraction over any VAD backend.
type Detector interface {
	// Probability returns the likelihood that chunk contains speech. Chunks
	// shorter than the detector's analysis window are zero-padded; an empty
	// chunk yields 0.
	//
	// Returns an error only if the backend fails; callers treat errors as
	// silence.
	Probability(chunk []byte) (float64, error)
}
