// Package session implements the per-connection voice state machine.
//
// A [Session] consumes microphone audio and client acknowledgements, and
// produces [Event] values for its client. It moves through four modes:
//
//	AWAITING_WAKE → CAPTURING → PROCESSING → RESPONDING
//
// The wake detector gates everything. Once awake, audio is buffered until the
// boundary detector sees the speaker stop, then the utterance is transcribed
// and dispatched as a pause command, a music request, or conversation.
// Spoken responses stream back as WAV segments; speaking over a response
// interrupts it.
//
// Every session runs in a single goroutine ([Session.Run]). Only
// [Session.Mode] may be called from other goroutines.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/groovi/groovi/internal/dispatch"
	"github.com/groovi/groovi/internal/emitter"
	"github.com/groovi/groovi/internal/observe"
	"github.com/groovi/groovi/internal/voice/boundary"
	"github.com/groovi/groovi/internal/voice/utterance"
	"github.com/groovi/groovi/pkg/memory"
	"github.com/groovi/groovi/pkg/provider/wake"
	"github.com/groovi/groovi/pkg/types"
)

// Messages sent to the client.
const (
	msgNoSpeech      = "No speech detected"
	msgSTTFailed     = "Speech recognition failed"
	msgVoiceModeStop = "Switching to click mode"
)

// speechKind says what the current TTS stream is for, which decides how
// barge-in and stream exhaustion are handled.
type speechKind int

const (
	// speechReply is a chat reply, apology or wake acknowledgement.
	speechReply speechKind = iota

	// speechFiller plays while the music agent works.
	speechFiller

	// speechGoodbye ends voice mode when exhausted.
	speechGoodbye
)

// Session is one client's voice conversation.
type Session struct {
	id      string
	p       Providers
	cfg     Config
	now     func() time.Time
	log     *slog.Logger
	metrics *observe.Metrics

	wake     wake.Detector
	bound    *boundary.Detector
	buf      *utterance.Buffer
	dispatch *dispatch.Dispatcher
	voice    *emitter.Emitter
	journal  *JournalGuard

	mode atomic.Int32

	// Owned by the Run goroutine.
	out           func(Event)
	lastActivity  time.Time
	cooldownUntil time.Time
	ttsPlaying    bool
	// pendingAcks counts utterances whose audio reached the client and
	// whose tts_complete has not arrived yet.
	pendingAcks int
	stream      *emitter.Stream
	streamKind  speechKind
	streamSent  int
	search      *search
}

// New creates a session. Providers.Wake, VAD and STT are required; the wake
// factory is called once to give the session its own detector.
func New(id string, p Providers, cfg Config, opts ...Option) (*Session, error) {
	var errs []error
	if p.Wake == nil {
		errs = append(errs, errors.New("wake factory is required"))
	}
	if p.VAD == nil {
		errs = append(errs, errors.New("vad is required"))
	}
	if p.STT == nil {
		errs = append(errs, errors.New("stt is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("session: new: %w", err)
	}

	s := &Session{
		id:  id,
		p:   p,
		cfg: cfg.withDefaults(),
		now: time.Now,
		log: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("session_id", id)

	det, err := p.Wake()
	if err != nil {
		return nil, fmt.Errorf("session: create wake detector: %w", err)
	}
	s.wake = det
	s.bound = boundary.New(p.VAD,
		boundary.WithSpeechThreshold(s.cfg.SpeechThreshold),
		boundary.WithSilenceFrames(s.cfg.SilenceFrames),
		boundary.WithBargeInThreshold(s.cfg.BargeInThreshold),
	)
	s.buf = utterance.New(s.cfg.MinUtterance)
	s.dispatch = dispatch.New(p.LLM,
		dispatch.WithHistorySize(s.cfg.HistorySize),
		dispatch.WithLogger(s.log),
		dispatch.WithMetrics(s.metrics),
	)
	s.voice = emitter.New(p.TTS, p.Voice,
		emitter.WithSegment(s.cfg.Segment),
		emitter.WithLogger(s.log),
		emitter.WithMetrics(s.metrics),
	)
	s.journal = NewJournalGuard(p.Journal, s.log)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Mode returns the current mode. Safe for concurrent use.
func (s *Session) Mode() Mode { return Mode(s.mode.Load()) }

// History returns the conversation turns so far, oldest first. Only safe to
// call once Run has returned.
func (s *Session) History() *dispatch.History { return s.dispatch.History() }

// Run drives the session until in is closed or ctx is cancelled. Every event
// is delivered to out from the Run goroutine, in order. Run returns nil when
// in is closed and ctx.Err() on cancellation.
func (s *Session) Run(ctx context.Context, in <-chan Input, out func(Event)) error {
	s.out = out
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, 1)
		defer s.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	}
	defer s.teardown()

	s.mode.Store(int32(ModeAwaitingWake))
	s.log.Info("session started")

	var tick <-chan time.Time
	if s.cfg.IdleTick > 0 {
		t := time.NewTicker(s.cfg.IdleTick)
		defer t.Stop()
		tick = t.C
	}

	for {
		var audioC <-chan []byte
		if s.stream != nil {
			audioC = s.stream.C()
		}
		var agentC <-chan searchOutcome
		if s.search != nil {
			agentC = s.search.done
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-in:
			if !ok {
				s.log.Info("session input closed")
				return nil
			}
			s.handleInput(ctx, msg)

		case wav, ok := <-audioC:
			if !ok {
				s.speechFinished()
				continue
			}
			if s.streamSent == 0 {
				s.pendingAcks++
			}
			s.streamSent++
			s.send(Audio(wav))

		case res := <-agentC:
			s.finishSearch(ctx, res)

		case <-tick:
			if s.Mode() == ModeCapturing && s.idleExpired() {
				s.idleTimeout()
			}
		}
	}
}

// teardown stops speech and cancels any running search.
func (s *Session) teardown() {
	s.stopSpeech()
	if s.search != nil {
		s.search.cancel()
		s.search = nil
	}
	s.log.Info("session ended", "mode", s.Mode().String())
}

func (s *Session) send(ev Event) {
	if s.out != nil {
		s.out(ev)
	}
}

func (s *Session) setMode(m Mode) {
	old := Mode(s.mode.Swap(int32(m)))
	if old == m {
		return
	}
	s.log.Debug("session mode changed", "from", old.String(), "to", m.String())
	if s.metrics != nil {
		s.metrics.RecordTransition(context.Background(), old.String(), m.String())
	}
}

func (s *Session) handleInput(ctx context.Context, in Input) {
	switch in.Kind {
	case InputAudio:
		s.handleAudio(ctx, in.Audio)
	case InputClientEvent:
		if in.Event != ClientTTSComplete {
			s.log.Warn("unknown client event ignored", "event", in.Event)
			return
		}
		s.ttsComplete()
	default:
		s.log.Warn("unknown input kind ignored", "kind", int(in.Kind))
	}
}

func (s *Session) handleAudio(ctx context.Context, chunk []byte) {
	switch s.Mode() {
	case ModeAwaitingWake:
		s.awaitWake(ctx, chunk)
	case ModeCapturing:
		s.capture(ctx, chunk)
	case ModeResponding:
		s.bargeIn(chunk)
	}
}

func (s *Session) awaitWake(ctx context.Context, chunk []byte) {
	if s.now().Before(s.cooldownUntil) {
		return
	}
	hit, err := s.wake.Detect(chunk)
	if err != nil {
		s.log.Warn("wake detection failed", "err", err)
		return
	}
	if !hit {
		return
	}
	s.log.Info("wake word detected")
	if s.pendingAcks > 0 {
		// A client that never acknowledged the last turn must not hold up this one.
		s.log.Debug("dropping unacknowledged utterances", "pending", s.pendingAcks)
		s.pendingAcks = 0
	}
	s.send(WakeWordDetected())
	if s.cfg.WakeAck != "" {
		s.send(Response(s.cfg.WakeAck))
		s.speakReply(ctx, s.cfg.WakeAck)
		return
	}
	s.enterCapturing()
	s.send(Listening())
}

func (s *Session) capture(ctx context.Context, chunk []byte) {
	if s.idleExpired() {
		s.idleTimeout()
		return
	}
	s.buf.Append(chunk)
	ended, err := s.bound.SpeechEnded(chunk)
	if err != nil {
		s.log.Warn("vad failed, treating frame as silence", "err", err)
	}
	if s.bound.SpeechActive() && s.bound.SilenceRunLength() == 0 {
		s.lastActivity = s.now()
	}
	if ended {
		s.process(ctx)
	}
}

func (s *Session) bargeIn(chunk []byte) {
	if !s.ttsPlaying || s.search != nil {
		return
	}
	speaking, err := s.bound.IsActivelySpeaking(chunk)
	if err != nil {
		s.log.Warn("barge-in check failed", "err", err)
		return
	}
	if !speaking {
		return
	}
	s.log.Info("response interrupted by user")
	if s.metrics != nil {
		s.metrics.BargeIns.Add(context.Background(), 1)
	}
	s.stopSpeech()
	s.ttsPlaying = false
	// The client drops queued audio on tts_interrupted and acknowledges none of it.
	s.pendingAcks = 0
	s.enterCapturing()
	s.send(TTSInterrupted())
	s.send(Listening())
}

// ttsComplete handles the client's playback acknowledgement. The client
// acknowledges every utterance it received audio for, filler and goodbye
// included, in order. Only the acknowledgement that settles the last
// outstanding utterance, while that utterance is the current reply, ends the
// turn; earlier ones are consumed without effect.
func (s *Session) ttsComplete() {
	if s.pendingAcks == 0 {
		s.log.Warn("tts_complete ignored", "mode", s.Mode().String(), "tts_playing", s.ttsPlaying)
		return
	}
	s.pendingAcks--
	if s.pendingAcks > 0 || s.Mode() != ModeResponding || !s.ttsPlaying ||
		s.search != nil || s.streamKind != speechReply || s.streamSent == 0 {
		s.log.Debug("tts_complete for an earlier utterance", "pending", s.pendingAcks, "mode", s.Mode().String())
		return
	}
	s.stopSpeech()
	s.ttsPlaying = false
	s.enterCapturing()
	s.send(Listening())
}

func (s *Session) idleExpired() bool {
	return s.now().Sub(s.lastActivity) > s.cfg.IdleTimeout
}

func (s *Session) idleTimeout() {
	s.log.Info("capture idle timeout")
	s.enterAwaitingWake()
	s.send(IdleTimeout())
}

func (s *Session) enterAwaitingWake() {
	s.stopSpeech()
	s.ttsPlaying = false
	s.buf.Clear()
	s.bound.Reset()
	s.wake.Reset()
	s.cooldownUntil = s.now().Add(s.cfg.WakeCooldown)
	s.setMode(ModeAwaitingWake)
}

func (s *Session) enterCapturing() {
	s.buf.Clear()
	s.bound.Reset()
	s.lastActivity = s.now()
	s.setMode(ModeCapturing)
}

// process transcribes the buffered utterance and dispatches it.
func (s *Session) process(ctx context.Context) {
	s.setMode(ModeProcessing)
	start := s.now()

	sttCtx, done := observe.TraceProvider(ctx, s.metrics, "transcriber", "stt")
	text, err := s.buf.Transcribe(sttCtx, s.p.STT)
	done(err)
	if err != nil {
		s.log.Error("transcription failed", "err", err)
		s.enterAwaitingWake()
		s.send(Error(msgSTTFailed))
		return
	}
	if text == "" {
		s.enterAwaitingWake()
		s.send(Error(msgNoSpeech))
		return
	}

	s.log.Info("transcribed", "text", text)
	s.send(Transcript(text))

	turn := s.dispatch.Classify(ctx, text)
	switch turn.Intent {
	case dispatch.IntentPause:
		s.pause(ctx, text, turn.Reply, start)
	case dispatch.IntentMusic:
		s.music(ctx, text, start)
	default:
		s.chat(ctx, text, turn.Reply, start)
	}
}

func (s *Session) chat(ctx context.Context, text, reply string, start time.Time) {
	h := s.dispatch.History()
	h.Add(types.RoleUser, text)
	h.Add(types.RoleAssistant, reply)
	s.send(Response(reply))
	s.speakReply(ctx, reply)
	s.record(ctx, memory.Turn{Transcript: text, Intent: dispatch.IntentChat.String(), Response: reply}, start)
}

// pause speaks the goodbye and leaves voice mode once it has been sent. The
// goodbye cannot be barged in on and does not wait for its acknowledgement,
// which is still counted and consumed when it arrives.
func (s *Session) pause(ctx context.Context, text, reply string, start time.Time) {
	s.send(Response(reply))
	s.setMode(ModeResponding)
	s.startSpeech(ctx, reply, speechGoodbye)
	s.record(ctx, memory.Turn{Transcript: text, Intent: dispatch.IntentPause.String(), Response: reply}, start)
}

// speakReply enters RESPONDING and streams text as an interruptible reply.
func (s *Session) speakReply(ctx context.Context, text string) {
	s.setMode(ModeResponding)
	s.ttsPlaying = true
	s.startSpeech(ctx, text, speechReply)
}

func (s *Session) startSpeech(ctx context.Context, text string, kind speechKind) {
	s.stopSpeech()
	s.stream = s.voice.Speak(ctx, text)
	s.streamKind = kind
	s.streamSent = 0
}

func (s *Session) stopSpeech() {
	if s.stream != nil {
		s.stream.Stop()
		s.stream = nil
	}
}

// speechFinished handles the end of the current TTS stream.
func (s *Session) speechFinished() {
	kind, sent := s.streamKind, s.streamSent
	s.stream = nil

	switch kind {
	case speechGoodbye:
		s.enterAwaitingWake()
		s.send(VoiceModeStop(msgVoiceModeStop))
	case speechReply:
		if sent == 0 && s.ttsPlaying && s.Mode() == ModeResponding {
			s.log.Debug("reply produced no audio, resuming capture")
			s.ttsPlaying = false
			s.enterCapturing()
			s.send(Listening())
		}
	}
}

func (s *Session) record(ctx context.Context, t memory.Turn, start time.Time) {
	t.SessionID = s.id
	t.Timestamp = start
	t.Duration = s.now().Sub(start)
	_ = s.journal.Record(ctx, t)
}
