package session

// Mode is the state of a voice session.
type Mode int32

const (
	// ModeAwaitingWake listens only for the wake phrase.
	ModeAwaitingWake Mode = iota

	// ModeCapturing buffers the user's utterance until speech ends.
	ModeCapturing

	// ModeProcessing transcribes and dispatches a finished utterance.
	ModeProcessing

	// ModeResponding streams a spoken response, or waits on the music search.
	ModeResponding
)

// String returns the upper-case mode name used in logs and metrics.
func (m Mode) String() string {
	switch m {
	case ModeAwaitingWake:
		return "AWAITING_WAKE"
	case ModeCapturing:
		return "CAPTURING"
	case ModeProcessing:
		return "PROCESSING"
	case ModeResponding:
		return "RESPONDING"
	default:
		return "UNKNOWN"
	}
}
