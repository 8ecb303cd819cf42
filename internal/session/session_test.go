package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/groovi/groovi/internal/agent"
	agentmock "github.com/groovi/groovi/internal/agent/mock"
	"github.com/groovi/groovi/internal/dispatch"
	memorymock "github.com/groovi/groovi/pkg/memory/mock"
	"github.com/groovi/groovi/pkg/provider/llm"
	llmmock "github.com/groovi/groovi/pkg/provider/llm/mock"
	sttmock "github.com/groovi/groovi/pkg/provider/stt/mock"
	ttsmock "github.com/groovi/groovi/pkg/provider/tts/mock"
	vadmock "github.com/groovi/groovi/pkg/provider/vad/mock"
	"github.com/groovi/groovi/pkg/provider/wake"
	wakemock "github.com/groovi/groovi/pkg/provider/wake/mock"
	"github.com/groovi/groovi/pkg/types"
)

// chunkBytes is 100 ms of 16 kHz mono PCM.
const chunkBytes = 3200

// wakeMarker in the second byte of a chunk makes the mock wake detector hit.
const wakeMarker = 0x7f

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// observed is an event together with the mode at the moment it was emitted.
type observed struct {
	Event
	mode Mode
}

type harness struct {
	t *testing.T

	s       *Session
	clock   *fakeClock
	wake    *wakemock.Detector
	vad     *vadmock.Detector
	stt     *sttmock.Provider
	tts     *ttsmock.Provider
	llm     *llmmock.Provider
	journal *memorymock.Journal

	in     chan Input
	events chan observed
	done   chan error
	cancel context.CancelFunc
	closed bool

	audioEvents int
}

// newHarness builds a session over mocks and starts Run. setup may adjust the
// providers and config before construction.
func newHarness(t *testing.T, setup func(p *Providers, cfg *Config)) *harness {
	t.Helper()

	h := &harness{
		t:       t,
		clock:   newFakeClock(),
		wake:    &wakemock.Detector{Func: func(c []byte) bool { return len(c) > 1 && c[1] == wakeMarker }},
		vad:     &vadmock.Detector{Func: vadmock.ByLevel},
		stt:     &sttmock.Provider{},
		tts:     &ttsmock.Provider{Chunks: [][]byte{make([]byte, 64), make([]byte, 64)}},
		llm:     &llmmock.Provider{},
		journal: &memorymock.Journal{},
		in:      make(chan Input),
		events:  make(chan observed, 512),
		done:    make(chan error, 1),
	}

	p := Providers{
		Wake:    func() (wake.Detector, error) { return h.wake, nil },
		VAD:     h.vad,
		STT:     h.stt,
		TTS:     h.tts,
		LLM:     h.llm,
		Journal: h.journal,
	}
	cfg := DefaultConfig()
	if setup != nil {
		setup(&p, &cfg)
	}

	s, err := New("test-session", p, cfg, WithClock(h.clock.Now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.s = s

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.done <- s.Run(ctx, h.in, func(ev Event) {
			h.events <- observed{Event: ev, mode: s.Mode()}
		})
	}()
	t.Cleanup(func() {
		h.stop()
	})
	return h
}

// stop closes the input and waits for Run to return.
func (h *harness) stop() error {
	if h.closed {
		return nil
	}
	h.closed = true
	close(h.in)
	select {
	case err := <-h.done:
		h.cancel()
		return err
	case <-time.After(2 * time.Second):
		h.cancel()
		h.t.Fatal("Run did not return after input closed")
		return nil
	}
}

func (h *harness) send(in Input) {
	h.t.Helper()
	select {
	case h.in <- in:
	case <-time.After(2 * time.Second):
		h.t.Fatal("session did not accept input")
	}
}

// audio sends one 100 ms chunk carrying speech probability prob.
func (h *harness) audio(prob float64) {
	h.t.Helper()
	h.send(AudioInput(vadmock.Chunk(chunkBytes, prob)))
}

func (h *harness) audioN(n int, prob float64) {
	h.t.Helper()
	for range n {
		h.audio(prob)
	}
}

// wakeUp sends a chunk the wake detector accepts.
func (h *harness) wakeUp() {
	h.t.Helper()
	c := vadmock.Chunk(chunkBytes, 0)
	c[1] = wakeMarker
	h.send(AudioInput(c))
}

// flush returns once every previously sent input has been handled: the run
// loop only receives the next input after finishing the last.
func (h *harness) flush() {
	h.t.Helper()
	h.send(ClientEvent("flush"))
	h.send(ClientEvent("flush"))
}

// next returns the next non-audio event.
func (h *harness) next() observed {
	h.t.Helper()
	for {
		select {
		case ev := <-h.events:
			if ev.Kind == KindAudio {
				h.audioEvents++
				continue
			}
			return ev
		case <-time.After(2 * time.Second):
			h.t.Fatal("timed out waiting for event")
			return observed{}
		}
	}
}

// nextAudio waits for the next audio event, skipping nothing else.
func (h *harness) nextAudio() Event {
	h.t.Helper()
	select {
	case ev := <-h.events:
		if ev.Kind != KindAudio {
			h.t.Fatalf("event = %s, want audio", ev.Kind)
		}
		h.audioEvents++
		return ev.Event
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for audio")
		return Event{}
	}
}

// played waits for the next audio event and acknowledges it, as a client
// does when playback of an utterance ends.
func (h *harness) played() {
	h.t.Helper()
	h.nextAudio()
	h.send(ClientEvent(ClientTTSComplete))
}

// expect asserts the next non-audio events have the given kinds.
func (h *harness) expect(kinds ...EventKind) []observed {
	h.t.Helper()
	out := make([]observed, 0, len(kinds))
	for _, k := range kinds {
		ev := h.next()
		if ev.Kind != k {
			h.t.Fatalf("event = %s %q%q, want %s", ev.Kind, ev.Text, ev.Message, k)
		}
		out = append(out, ev)
	}
	return out
}

// expectNone asserts no non-audio event is pending.
func (h *harness) expectNone() {
	h.t.Helper()
	for {
		select {
		case ev := <-h.events:
			if ev.Kind == KindAudio {
				h.audioEvents++
				continue
			}
			h.t.Fatalf("unexpected event %s %q%q", ev.Kind, ev.Text, ev.Message)
		default:
			return
		}
	}
}

func (h *harness) wantMode(want Mode) {
	h.t.Helper()
	if got := h.s.Mode(); got != want {
		h.t.Fatalf("mode = %s, want %s", got, want)
	}
}

// utter wakes the session and speaks one utterance that ends on silence.
func (h *harness) utter() {
	h.t.Helper()
	h.wakeUp()
	h.expect(KindWakeWordDetected, KindListening)
	h.audioN(20, 0.9)
	h.audioN(10, 0)
}

func reply(text string) *llm.CompletionResponse {
	return &llm.CompletionResponse{Content: text}
}

func threeTracks() []types.Track {
	return []types.Track{
		{Name: "Weightless", Artist: "Marconi Union", URI: "spotify:track:1"},
		{Name: "Clair de Lune", Artist: "Debussy", URI: "spotify:track:2"},
		{Name: "Holocene", Artist: "Bon Iver", URI: "spotify:track:3"},
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	okWake := func() (wake.Detector, error) { return &wakemock.Detector{}, nil }
	tests := []struct {
		name string
		p    Providers
	}{
		{"missing wake", Providers{VAD: &vadmock.Detector{}, STT: &sttmock.Provider{}}},
		{"missing vad", Providers{Wake: okWake, STT: &sttmock.Provider{}}},
		{"missing stt", Providers{Wake: okWake, VAD: &vadmock.Detector{}}},
		{"wake factory fails", Providers{
			Wake: func() (wake.Detector, error) { return nil, errors.New("no model") },
			VAD:  &vadmock.Detector{},
			STT:  &sttmock.Provider{},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New("s", tc.p, DefaultConfig()); err == nil {
				t.Error("expected error")
			}
		})
	}

	s, err := New("s", Providers{Wake: okWake, VAD: &vadmock.Detector{}, STT: &sttmock.Provider{}}, Config{})
	if err != nil {
		t.Fatalf("minimal providers: %v", err)
	}
	if s.Mode() != ModeAwaitingWake {
		t.Errorf("initial mode = %s", s.Mode())
	}
	if s.cfg.IdleTimeout != DefaultIdleTimeout || s.cfg.AgentTimeout != DefaultAgentTimeout {
		t.Errorf("zero config not defaulted: %+v", s.cfg)
	}
}

func TestMode_String(t *testing.T) {
	t.Parallel()
	want := map[Mode]string{
		ModeAwaitingWake: "AWAITING_WAKE",
		ModeCapturing:    "CAPTURING",
		ModeProcessing:   "PROCESSING",
		ModeResponding:   "RESPONDING",
		Mode(42):         "UNKNOWN",
	}
	for m, s := range want {
		if m.String() != s {
			t.Errorf("%d.String() = %q, want %q", m, m.String(), s)
		}
	}
}

func TestScenario_SilenceNeverWakes(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	h.audioN(30, 0)
	h.flush()

	h.wantMode(ModeAwaitingWake)
	h.expectNone()
	if got := h.wake.CallCount(); got != 30 {
		t.Errorf("wake Detect calls = %d, want 30", got)
	}
	if got := h.stt.CallCount(); got != 0 {
		t.Errorf("stt calls = %d, want 0", got)
	}
}

func TestScenario_MusicRequest(t *testing.T) {
	t.Parallel()

	searcher := &agentmock.Searcher{Result: agent.Result{
		Tracks:  threeTracks(),
		Mood:    "calm",
		Summary: "Some calm picks for you.",
	}}
	h := newHarness(t, func(p *Providers, _ *Config) {
		p.Agent = searcher
	})
	h.stt.Text = "play something calm"
	h.llm.Responses = []*llm.CompletionResponse{
		reply("[PLAY] Sure thing!"),
		reply("Finding something calm for you."),
	}

	h.wakeUp()
	h.expect(KindWakeWordDetected, KindListening)
	h.audioN(20, 0.9)
	h.audioN(15, 0)

	evs := h.expect(KindTranscript, KindAgentStarted, KindResponse, KindSongs, KindMusicPlaying)
	if evs[0].Text != "play something calm" {
		t.Errorf("transcript = %q", evs[0].Text)
	}
	if evs[0].mode != ModeProcessing {
		t.Errorf("transcript emitted in %s, want PROCESSING", evs[0].mode)
	}
	if evs[2].Text != "Finding something calm for you." {
		t.Errorf("filler = %q", evs[2].Text)
	}
	if len(evs[3].Songs) != 3 || evs[3].Summary != "Some calm picks for you." {
		t.Errorf("songs = %+v", evs[3].Event)
	}
	if evs[4].mode != ModeAwaitingWake {
		t.Errorf("music_playing emitted in %s", evs[4].mode)
	}
	if q := searcher.Queries(); len(q) != 1 || q[0] != "play something calm" {
		t.Errorf("agent queries = %q", q)
	}

	// Cooldown: an immediate wake hit is ignored without running the detector.
	calls := h.wake.CallCount()
	h.wakeUp()
	h.flush()
	h.expectNone()
	if got := h.wake.CallCount(); got != calls {
		t.Errorf("wake detector ran during cooldown (%d calls, was %d)", got, calls)
	}

	h.clock.Advance(DefaultWakeCooldown + time.Millisecond)
	h.wakeUp()
	h.expect(KindWakeWordDetected, KindListening)

	if err := h.stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	msgs := h.s.History().Messages()
	if len(msgs) != 3 {
		t.Fatalf("history = %+v, want user, filler, result", msgs)
	}
	want := "Some calm picks for you. Tracks: Weightless by Marconi Union, Clair de Lune by Debussy, Holocene by Bon Iver"
	if msgs[2].Role != types.RoleAssistant || msgs[2].Content != want {
		t.Errorf("history line = %q", msgs[2].Content)
	}
	turns := h.journal.Turns()
	if len(turns) != 1 || turns[0].Intent != "music" || turns[0].TrackCount != 3 {
		t.Errorf("journal = %+v", turns)
	}
}

func TestScenario_ChatRequest(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.stt.Text = "what genres do you have"
	h.llm.Responses = []*llm.CompletionResponse{reply("I can find pop, rock, jazz and more.")}

	h.utter()
	evs := h.expect(KindTranscript, KindResponse)
	if evs[1].Text != "I can find pop, rock, jazz and more." {
		t.Errorf("response = %q", evs[1].Text)
	}
	if wav := h.nextAudio(); len(wav.Data) <= 44 {
		t.Errorf("audio event of %d bytes", len(wav.Data))
	}
	h.flush()
	h.wantMode(ModeResponding)

	h.send(ClientEvent(ClientTTSComplete))
	h.expect(KindListening)
	h.wantMode(ModeCapturing)

	if got := h.tts.SpokenTexts(); len(got) != 1 || got[0] != "I can find pop, rock, jazz and more." {
		t.Errorf("spoken = %q", got)
	}

	if err := h.stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := h.s.History().Len(); got != 2 {
		t.Errorf("history len = %d, want 2", got)
	}
	if turns := h.journal.Turns(); len(turns) != 1 || turns[0].Intent != "chat" {
		t.Errorf("journal = %+v", turns)
	}
}

func TestIdleTimeout_RunsBeforeAnythingElse(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	h.wakeUp()
	h.expect(KindWakeWordDetected, KindListening)
	h.flush()
	vadCalls := h.vad.CallCount()

	h.clock.Advance(DefaultIdleTimeout + time.Millisecond)
	h.audio(0.9)
	ev := h.expect(KindIdleTimeout)[0]
	if ev.mode != ModeAwaitingWake {
		t.Errorf("idle_timeout emitted in %s", ev.mode)
	}
	h.flush()
	if got := h.vad.CallCount(); got != vadCalls {
		t.Errorf("vad ran on the timed-out chunk (%d calls, was %d)", got, vadCalls)
	}
	if h.stt.CallCount() != 0 {
		t.Error("stt called after idle timeout")
	}
}

func TestIdleTimeout_SpeechRefreshesActivity(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(_ *Providers, cfg *Config) {
		cfg.SilenceFrames = 100
	})

	h.wakeUp()
	h.expect(KindWakeWordDetected, KindListening)
	for range 8 {
		h.clock.Advance(time.Second)
		h.audio(0.9)
	}
	h.flush()
	h.expectNone()
	h.wantMode(ModeCapturing)

	// Silence does not refresh.
	for range 6 {
		h.clock.Advance(time.Second)
		h.audio(0)
	}
	h.expect(KindIdleTimeout)
}

func TestIdleTick(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(_ *Providers, cfg *Config) {
		cfg.IdleTick = 5 * time.Millisecond
	})

	h.wakeUp()
	h.expect(KindWakeWordDetected, KindListening)
	h.clock.Advance(6 * time.Second)
	h.expect(KindIdleTimeout)
	h.wantMode(ModeAwaitingWake)
}

func TestShortUtterance_SkipsSTT(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.stt.Text = "should never be heard"

	h.wakeUp()
	h.expect(KindWakeWordDetected, KindListening)
	// 11 frames of 10 ms stay under the 0.5 s floor.
	h.send(AudioInput(vadmock.Chunk(320, 0.9)))
	for range 10 {
		h.send(AudioInput(vadmock.Chunk(320, 0)))
	}

	ev := h.expect(KindError)[0]
	if ev.Message != "No speech detected" {
		t.Errorf("message = %q", ev.Message)
	}
	h.wantMode(ModeAwaitingWake)
	if got := h.stt.CallCount(); got != 0 {
		t.Errorf("stt calls = %d, want 0", got)
	}
}

func TestSTTFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.stt.Err = errors.New("model crashed")

	h.utter()
	ev := h.expect(KindError)[0]
	if ev.Message == "" {
		t.Error("error event without message")
	}
	h.wantMode(ModeAwaitingWake)
}

func TestBargeIn(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.tts.Block = true
	h.stt.Text = "tell me about jazz"
	h.llm.Responses = []*llm.CompletionResponse{reply("Jazz began in New Orleans and grew into many styles.")}

	h.utter()
	h.expect(KindTranscript, KindResponse)

	// Between the speech and barge-in thresholds: keeps playing.
	h.audio(0.6)
	h.flush()
	h.expectNone()
	h.wantMode(ModeResponding)

	h.audio(0.9)
	evs := h.expect(KindTTSInterrupted, KindListening)
	if evs[0].mode != ModeCapturing {
		t.Errorf("tts_interrupted emitted in %s", evs[0].mode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.tts.CancelCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("tts stream was not cancelled")
		}
		time.Sleep(time.Millisecond)
	}

	// The late acknowledgement is ignored.
	h.send(ClientEvent(ClientTTSComplete))
	h.flush()
	h.expectNone()
	h.wantMode(ModeCapturing)
}

func TestPause(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.stt.Text = "please stop"

	h.utter()
	evs := h.expect(KindTranscript, KindResponse, KindVoiceModeStop)
	if evs[1].Text != dispatch.PauseReply {
		t.Errorf("response = %q", evs[1].Text)
	}
	if evs[2].Message != "Switching to click mode" || evs[2].mode != ModeAwaitingWake {
		t.Errorf("voice_mode_stop = %q in %s", evs[2].Message, evs[2].mode)
	}
	if h.llm.CallCount() != 0 {
		t.Error("pause consulted the llm")
	}
	if h.audioEvents != 1 {
		t.Fatalf("goodbye sent %d audio events, want 1", h.audioEvents)
	}

	// The goodbye's acknowledgement arrives after voice mode ended and is
	// consumed quietly.
	h.send(ClientEvent(ClientTTSComplete))
	h.flush()
	h.expectNone()
	h.wantMode(ModeAwaitingWake)

	if err := h.stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := h.s.History().Len(); got != 0 {
		t.Errorf("pause added %d history entries", got)
	}
	if h.s.pendingAcks != 0 {
		t.Errorf("pending acks = %d after goodbye ack", h.s.pendingAcks)
	}
}

func TestQuiteIsNotPause(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.stt.Text = "I'm quite tired"
	h.llm.Responses = []*llm.CompletionResponse{reply("Want something mellow?")}

	h.utter()
	evs := h.expect(KindTranscript, KindResponse)
	if evs[1].Text != "Want something mellow?" {
		t.Errorf("response = %q", evs[1].Text)
	}
}

func TestMusic_NoAgent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.stt.Text = "play some jazz"
	h.llm.Responses = []*llm.CompletionResponse{reply("[PLAY] On it!")}

	h.utter()
	evs := h.expect(KindTranscript, KindAgentStarted, KindResponse)
	if evs[2].Text != ApologyUnavailable {
		t.Errorf("response = %q", evs[2].Text)
	}
	h.flush()
	h.wantMode(ModeResponding)
	if got := h.llm.CallCount(); got != 1 {
		t.Errorf("llm calls = %d, want 1 (no filler)", got)
	}

	h.played()
	h.expect(KindListening)

	if err := h.stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := h.s.History().Len(); got != 1 {
		t.Errorf("history len = %d, want only the user turn", got)
	}
}

func TestMusic_Apologies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		searcher *agentmock.Searcher
		timeout  time.Duration
		want     string
	}{
		{"agent error", &agentmock.Searcher{Err: errors.New("catalog down")}, 0, ApologySearchFailed},
		{"no tracks", &agentmock.Searcher{Result: agent.Result{Summary: "nothing"}}, 0, ApologyNoTracks},
		{"panic", &agentmock.Searcher{Panic: "kaboom"}, 0, ApologyCrashed},
		{"deadline", &agentmock.Searcher{Block: true}, 20 * time.Millisecond, ApologyCrashed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, func(p *Providers, cfg *Config) {
				p.Agent = tc.searcher
				if tc.timeout > 0 {
					cfg.AgentTimeout = tc.timeout
				}
			})
			h.stt.Text = "play something"
			h.llm.Responses = []*llm.CompletionResponse{reply("[PLAY] Sure!"), reply("One moment.")}

			h.utter()
			evs := h.expect(KindTranscript, KindAgentStarted, KindResponse, KindResponse)
			if evs[2].Text != "One moment." {
				t.Errorf("filler = %q", evs[2].Text)
			}
			if evs[3].Text != tc.want {
				t.Errorf("apology = %q, want %q", evs[3].Text, tc.want)
			}
			// Filler audio, if any was sent before the apology, is
			// acknowledged first and must not end the turn.
			fillerAudio := h.audioEvents
			h.nextAudio()
			for range fillerAudio {
				h.send(ClientEvent(ClientTTSComplete))
			}
			h.flush()
			h.expectNone()
			h.wantMode(ModeResponding)

			h.send(ClientEvent(ClientTTSComplete))
			h.expect(KindListening)

			if err := h.stop(); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := h.s.History().Len(); got != 2 {
				t.Errorf("history len = %d, want user and filler", got)
			}
		})
	}
}

func TestMusic_BargeInIgnoredWhileSearching(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	searcher := &agentmock.Searcher{
		Block:   true,
		Release: release,
		Result:  agent.Result{Tracks: threeTracks(), Summary: "Found some."},
	}
	h := newHarness(t, func(p *Providers, _ *Config) { p.Agent = searcher })
	h.tts.Block = true
	h.stt.Text = "play something upbeat"
	h.llm.Responses = []*llm.CompletionResponse{reply("[PLAY] Sure!"), reply("Looking now.")}

	h.utter()
	h.expect(KindTranscript, KindAgentStarted, KindResponse)

	h.audio(0.95)
	h.send(ClientEvent(ClientTTSComplete))
	h.flush()
	h.expectNone()
	h.wantMode(ModeResponding)

	close(release)
	h.expect(KindSongs, KindMusicPlaying)
	h.wantMode(ModeAwaitingWake)
}

func TestMusic_FillerAckDoesNotEndApology(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	searcher := &agentmock.Searcher{Block: true, Release: release, Result: agent.Result{Summary: "nothing"}}
	h := newHarness(t, func(p *Providers, _ *Config) { p.Agent = searcher })
	h.stt.Text = "play something obscure"
	h.llm.Responses = []*llm.CompletionResponse{reply("[PLAY] Sure!"), reply("Digging through the crates.")}

	h.utter()
	h.expect(KindTranscript, KindAgentStarted, KindResponse)
	h.nextAudio()

	// The search fails while the client is still playing the filler.
	close(release)
	if ev := h.next(); ev.Kind != KindResponse || ev.Text != ApologyNoTracks {
		t.Fatalf("event = %s %q, want the apology", ev.Kind, ev.Text)
	}

	h.send(ClientEvent(ClientTTSComplete))
	h.flush()
	h.expectNone()
	h.wantMode(ModeResponding)

	for h.audioEvents < 2 {
		h.nextAudio()
	}
	h.send(ClientEvent(ClientTTSComplete))
	h.expect(KindListening)
	h.wantMode(ModeCapturing)
}

func TestWake_DropsUnacknowledgedUtterances(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	searcher := &agentmock.Searcher{Block: true, Release: release, Result: agent.Result{Tracks: threeTracks(), Summary: "Here."}}
	h := newHarness(t, func(p *Providers, cfg *Config) {
		p.Agent = searcher
		cfg.WakeAck = "Yes?"
	})
	h.stt.Text = "play something"
	h.llm.Responses = []*llm.CompletionResponse{reply("[PLAY] Sure!"), reply("Looking.")}

	h.wakeUp()
	h.expect(KindWakeWordDetected, KindResponse)
	h.played()
	h.expect(KindListening)
	h.audioN(20, 0.9)
	h.audioN(10, 0)
	h.expect(KindTranscript, KindAgentStarted, KindResponse)
	h.nextAudio()
	close(release)
	h.expect(KindSongs, KindMusicPlaying)

	// The filler is never acknowledged; the next wake acknowledgement still
	// ends on its own tts_complete.
	h.clock.Advance(DefaultWakeCooldown + time.Millisecond)
	h.wakeUp()
	h.expect(KindWakeWordDetected, KindResponse)
	h.played()
	h.expect(KindListening)
	h.wantMode(ModeCapturing)
}

func TestMusic_QueryIncludesEarlierRequests(t *testing.T) {
	t.Parallel()
	searcher := &agentmock.Searcher{Result: agent.Result{Tracks: threeTracks(), Summary: "Here."}}
	h := newHarness(t, func(p *Providers, _ *Config) { p.Agent = searcher })
	h.stt.Queue = []string{"I had a long day", "play something for that"}
	h.llm.Responses = []*llm.CompletionResponse{
		reply("Sorry to hear that."),
		reply("[PLAY] Sure!"),
		reply("Let me look."),
	}

	h.utter()
	h.expect(KindTranscript, KindResponse)
	h.played()
	h.expect(KindListening)
	h.audioN(20, 0.9)
	h.audioN(10, 0)
	h.expect(KindTranscript, KindAgentStarted, KindResponse, KindSongs, KindMusicPlaying)

	want := "I had a long day | Current request: play something for that"
	if q := searcher.Queries(); len(q) != 1 || q[0] != want {
		t.Errorf("query = %q, want %q", q, want)
	}
}

func TestReply_WithoutAudioResumesCapture(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(p *Providers, _ *Config) { p.TTS = nil })
	h.stt.Text = "hello there"
	h.llm.Responses = []*llm.CompletionResponse{reply("Hi!")}

	h.utter()
	h.expect(KindTranscript, KindResponse, KindListening)
	h.wantMode(ModeCapturing)
}

func TestWakeAck(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(_ *Providers, cfg *Config) { cfg.WakeAck = "Yes?" })

	h.wakeUp()
	evs := h.expect(KindWakeWordDetected, KindResponse)
	if evs[1].Text != "Yes?" {
		t.Errorf("ack = %q", evs[1].Text)
	}
	h.flush()
	h.wantMode(ModeResponding)

	h.played()
	h.expect(KindListening)
	h.wantMode(ModeCapturing)
}

func TestTTSComplete_IgnoredOutsideResponse(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	h.send(ClientEvent(ClientTTSComplete))
	h.send(ClientEvent("something_else"))
	h.flush()
	h.expectNone()
	h.wantMode(ModeAwaitingWake)
}

func TestRun_ContextCancel(t *testing.T) {
	t.Parallel()

	s, err := New("s", Providers{
		Wake: func() (wake.Detector, error) { return &wakemock.Detector{}, nil },
		VAD:  &vadmock.Detector{},
		STT:  &sttmock.Provider{},
	}, DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, make(chan Input), nil) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return on cancel")
	}
}

func TestJournalFailureDoesNotAffectSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(p *Providers, _ *Config) {
		p.Journal = &memorymock.Journal{RecordErr: errors.New("db down")}
	})
	h.stt.Text = "hi"
	h.llm.Responses = []*llm.CompletionResponse{reply("Hello!")}

	h.utter()
	h.expect(KindTranscript, KindResponse)
	h.played()
	h.expect(KindListening)
	if !h.s.journal.IsDegraded() {
		t.Error("journal guard should be degraded")
	}
}

func TestHistoryLine(t *testing.T) {
	t.Parallel()
	got := historyLine(agent.Result{Summary: "Two picks.", Tracks: threeTracks()[:2]})
	want := "Two picks. Tracks: Weightless by Marconi Union, Clair de Lune by Debussy"
	if got != want {
		t.Errorf("historyLine = %q, want %q", got, want)
	}
}
