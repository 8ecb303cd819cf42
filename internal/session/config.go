package session

import (
	"log/slog"
	"time"

	"github.com/groovi/groovi/internal/agent"
	"github.com/groovi/groovi/internal/dispatch"
	"github.com/groovi/groovi/internal/observe"
	"github.com/groovi/groovi/internal/voice/boundary"
	"github.com/groovi/groovi/internal/voice/utterance"
	"github.com/groovi/groovi/pkg/memory"
	"github.com/groovi/groovi/pkg/provider/llm"
	"github.com/groovi/groovi/pkg/provider/stt"
	"github.com/groovi/groovi/pkg/provider/tts"
	"github.com/groovi/groovi/pkg/provider/vad"
	"github.com/groovi/groovi/pkg/provider/wake"
	"github.com/groovi/groovi/pkg/types"
)

// Providers are the capabilities a session is built from. Everything except
// Wake is shared across sessions and must be safe for concurrent use.
type Providers struct {
	// Wake creates the session's own wake detector. Required.
	Wake wake.Factory

	// VAD scores speech probability. Required.
	VAD vad.Detector

	// STT transcribes finished utterances. Required.
	STT stt.Provider

	// TTS speaks responses. Nil disables audio output.
	TTS tts.Provider

	// LLM classifies and answers transcripts. Nil means keyword intent
	// detection and canned replies.
	LLM llm.Provider

	// Agent runs music searches. Nil makes every music request apologise.
	Agent agent.Searcher

	// Journal records handled turns. Optional.
	Journal memory.Journal

	// Voice selects the TTS voice.
	Voice types.VoiceProfile
}

// Config holds the per-session tunables.
type Config struct {
	// IdleTimeout returns a silent CAPTURING session to AWAITING_WAKE.
	IdleTimeout time.Duration

	// WakeCooldown ignores wake hits for this long after AWAITING_WAKE is
	// entered.
	WakeCooldown time.Duration

	// HistorySize is the capacity of the conversation ring.
	HistorySize int

	SpeechThreshold  float64
	SilenceFrames    int
	BargeInThreshold float64

	// MinUtterance is the shortest buffered audio sent to STT.
	MinUtterance time.Duration

	// WakeAck, when non-empty, is spoken after a wake hit before capturing.
	WakeAck string

	// IdleTick enables a wall-clock idle check while capturing. Zero checks
	// only when audio arrives.
	IdleTick time.Duration

	// AgentTimeout bounds one music search.
	AgentTimeout time.Duration

	// Segment is the length of audio per audio event. Zero sends each
	// response as a single WAV.
	Segment time.Duration
}

// Defaults for [Config].
const (
	DefaultIdleTimeout  = 5 * time.Second
	DefaultWakeCooldown = time.Second
	DefaultAgentTimeout = 30 * time.Second
)

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:      DefaultIdleTimeout,
		WakeCooldown:     DefaultWakeCooldown,
		HistorySize:      dispatch.DefaultHistorySize,
		SpeechThreshold:  boundary.DefaultSpeechThreshold,
		SilenceFrames:    boundary.DefaultSilenceFrames,
		BargeInThreshold: boundary.DefaultBargeInThreshold,
		MinUtterance:     utterance.DefaultMinDuration,
		AgentTimeout:     DefaultAgentTimeout,
	}
}

// withDefaults fills zero fields from [DefaultConfig].
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.WakeCooldown < 0 {
		c.WakeCooldown = 0
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.SpeechThreshold <= 0 {
		c.SpeechThreshold = d.SpeechThreshold
	}
	if c.SilenceFrames <= 0 {
		c.SilenceFrames = d.SilenceFrames
	}
	if c.BargeInThreshold <= 0 {
		c.BargeInThreshold = d.BargeInThreshold
	}
	if c.MinUtterance <= 0 {
		c.MinUtterance = d.MinUtterance
	}
	if c.AgentTimeout <= 0 {
		c.AgentTimeout = d.AgentTimeout
	}
	return c
}

// Option configures a [Session].
type Option func(*Session)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the session logger. The session adds its ID.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithMetrics records transitions, barge-ins and provider latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}
