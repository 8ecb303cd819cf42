// Package wake defines the Detector interface for wake-phrase spotting.
//
// A Detector is fed every microphone chunk while a session waits for the wake
// phrase and reports a hit once the phrase has been heard. Detectors keep a
// rolling audio window, so each session owns its own instance, created through
// a [Factory].
package wake

// Detector spots a wake phrase in a stream of 16 kHz mono PCM chunks.
type Detector interface {
	// Detect consumes one chunk and reports whether the wake phrase was
	// heard in the audio seen so far. After a hit the internal window is
	// cleared, so the same utterance does not fire twice.
	Detect(chunk []byte) (bool, error)

	// Reset discards all buffered audio. It is called on every entry into
	// the waiting state.
	Reset()
}

// Factory creates a fresh Detector for a new session.
type Factory func() (Detector, error)
