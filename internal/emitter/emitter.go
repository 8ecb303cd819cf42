// Package emitter turns response text into a finite, cancellable sequence of
// WAV-wrapped audio segments.
//
// An [Emitter] drives a tts.Provider. Each call to [Emitter.Speak] returns a
// [Stream] whose channel yields complete RIFF/WAVE files, each playable on its
// own. Raw PCM from the provider is coalesced up to the configured segment
// length; a zero segment length emits the whole utterance as one file.
package emitter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/groovi/groovi/internal/observe"
	"github.com/groovi/groovi/pkg/audio"
	"github.com/groovi/groovi/pkg/provider/tts"
	"github.com/groovi/groovi/pkg/types"
)

// Option is a functional option for configuring an [Emitter].
type Option func(*Emitter)

// WithSegment sets the target length of each emitted WAV segment. Zero emits
// the whole utterance as a single segment.
func WithSegment(d time.Duration) Option {
	return func(e *Emitter) { e.segment = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Emitter) { e.log = l }
}

// WithMetrics records each utterance on m as a "tts" provider call.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Emitter) { e.metrics = m }
}

// Emitter produces audio streams for response text. It is safe for
// concurrent use when the underlying provider is.
type Emitter struct {
	tts     tts.Provider
	voice   types.VoiceProfile
	segment time.Duration
	log     *slog.Logger
	metrics *observe.Metrics
}

// New creates an Emitter. p may be nil, in which case every stream is empty.
func New(p tts.Provider, voice types.VoiceProfile, opts ...Option) *Emitter {
	e := &Emitter{tts: p, voice: voice, log: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Stream is one utterance being synthesised.
type Stream struct {
	c      chan []byte
	cancel context.CancelFunc
}

// C returns the channel of WAV segments. It is closed when synthesis ends or
// the stream is stopped.
func (s *Stream) C() <-chan []byte { return s.c }

// Stop cancels synthesis. Segments already queued may still be received;
// the channel closes promptly. Stop is idempotent.
func (s *Stream) Stop() { s.cancel() }

// Speak starts synthesising text. The stream ends when ctx is cancelled,
// Stop is called, or all audio has been emitted. Failures to start synthesis
// are logged and yield an empty stream.
func (e *Emitter) Speak(ctx context.Context, text string) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{c: make(chan []byte), cancel: cancel}

	if e.tts == nil || text == "" {
		close(s.c)
		return s
	}

	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	ctx, done := observe.TraceProvider(ctx, e.metrics, "speaker", "tts")
	pcmCh, err := e.tts.SynthesizeStream(ctx, textCh, e.voice)
	if err != nil {
		done(err)
		e.log.Warn("emitter: tts stream failed to start", "err", err)
		close(s.c)
		return s
	}

	f := e.tts.Format()
	segBytes := 0
	if e.segment > 0 {
		segBytes = max(f.Bytes(e.segment), audio.BytesPerSample)
	}
	go func() {
		err := e.run(ctx, pcmCh, s.c, f, segBytes)
		if err != nil {
			e.log.Warn("emitter: tts stream ended abnormally", "err", err)
		}
		done(err)
	}()
	return s
}

// ErrNoAudio reports a synthesis stream that closed without producing any
// audio although nobody stopped it.
var ErrNoAudio = errors.New("emitter: tts produced no audio")

// run coalesces PCM into WAV segments of at least segBytes (0 = unbounded).
// Stopping the stream is not an error; a deadline on the parent context or
// a stream that ends empty is.
func (e *Emitter) run(ctx context.Context, pcmCh <-chan []byte, out chan<- []byte, f audio.Format, segBytes int) error {
	defer close(out)

	stopped := func() error {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ctx.Err()
		}
		return nil
	}

	send := func(pcm []byte) bool {
		select {
		case out <- audio.EncodeWAV(pcm, f):
			return true
		case <-ctx.Done():
			return false
		}
	}

	var buf []byte
	total := 0
	for {
		select {
		case pcm, ok := <-pcmCh:
			if !ok {
				if ctx.Err() != nil {
					return stopped()
				}
				if total == 0 {
					return ErrNoAudio
				}
				if len(buf) > 0 && !send(buf) {
					return stopped()
				}
				return nil
			}
			buf = append(buf, pcm...)
			total += len(pcm)
			if segBytes > 0 && len(buf) >= segBytes {
				if !send(buf) {
					return stopped()
				}
				buf = nil
			}
		case <-ctx.Done():
			return stopped()
		}
	}
}
